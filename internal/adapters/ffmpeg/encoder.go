// Package ffmpeg pilote le binaire ffmpeg pour une qualité de l'échelle et
// publie la progression sur le message de statut.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

type Options struct {
	Binary      string
	ProbeBinary string
	OutputDir   string
	// Intervalle minimal entre deux éditions du message de statut.
	EditInterval time.Duration
}

type Encoder struct {
	logger    zerolog.Logger
	messenger ports.Messenger
	opts      Options
}

func New(logger zerolog.Logger, messenger ports.Messenger, opts Options) *Encoder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.ProbeBinary == "" {
		opts.ProbeBinary = "ffprobe"
	}
	if opts.EditInterval <= 0 {
		opts.EditInterval = 10 * time.Second
	}
	return &Encoder{logger: logger, messenger: messenger, opts: opts}
}

// BuildArgs construit la ligne de commande complète (binaire inclus).
func BuildArgs(binary, input, output string, q domain.QualityProfile) []string {
	args := []string{binary, "-hide_banner", "-nostdin", "-y", "-i", input, "-progress", "pipe:1", "-nostats"}
	args = append(args, q.Args...)
	return append(args, output)
}

func (e *Encoder) Encode(ctx context.Context, status domain.Message, input string, outputName string, q domain.QualityProfile) (string, error) {
	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create encode dir: %w", err)
	}
	output := filepath.Join(e.opts.OutputDir, outputName)
	total := e.probeDuration(ctx, input)

	args := BuildArgs(e.opts.Binary, input, output, q)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{limit: 4 << 10}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	logger := e.logger.With().Str("quality", q.Name).Str("output", output).Logger()
	logger.Debug().Strs("args", args).Msg("starting ffmpeg")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", e.opts.Binary, err)
	}

	var last time.Time
	parseProgress(stdout, func(p Progress) {
		if p.Done || time.Since(last) < e.opts.EditInterval || e.messenger == nil {
			return
		}
		last = time.Now()
		text := StatusText(outputName, p, total, time.Since(start))
		if err := e.messenger.EditMessage(ctx, status, text, nil); err != nil {
			logger.Debug().Err(err).Msg("progress edit failed")
		}
	})

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg %s: %w: %s", q.Name, err, strings.TrimSpace(stderr.String()))
	}
	logger.Info().Dur("took", time.Since(start)).Msg("ffmpeg finished")
	return output, nil
}

// probeDuration renvoie 0 si ffprobe est absent ou échoue : la
// progression s'affiche alors sans pourcentage.
func (e *Encoder) probeDuration(ctx context.Context, input string) time.Duration {
	out, err := exec.CommandContext(ctx, e.opts.ProbeBinary, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", input).Output()
	if err != nil {
		e.logger.Debug().Err(err).Str("input", input).Msg("ffprobe unavailable")
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Progress est un bloc de la sortie -progress de ffmpeg.
type Progress struct {
	OutTime   time.Duration
	TotalSize int64
	Speed     float64
	Done      bool
}

// parseProgress lit les blocs clé=valeur ; chaque "progress=" clôt un bloc.
func parseProgress(r io.Reader, fn func(Progress)) {
	var cur Progress
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// out_time_ms est aussi en microsecondes (bug historique de ffmpeg).
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				cur.OutTime = time.Duration(us) * time.Microsecond
			}
		case "total_size":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.TotalSize = n
			}
		case "speed":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				cur.Speed = f
			}
		case "progress":
			cur.Done = value == "end"
			fn(cur)
			cur.Done = false
		}
	}
	// Vide le pipe pour ne pas bloquer ffmpeg si le scanner s'arrête.
	_, _ = io.Copy(io.Discard, r)
}

const barWidth = 12

// StatusText rend la progression d'encodage pour le message de statut.
func StatusText(name string, p Progress, total, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "‣ <b>File Name :</b> <b><i>%s</i></b>\n\n", html.EscapeString(name))
	b.WriteString("‣ <b>Status :</b> <i>Encoding</i>\n")

	if total > 0 {
		ratio := float64(p.OutTime) / float64(total)
		if ratio > 1 {
			ratio = 1
		}
		filled := int(ratio * barWidth)
		fmt.Fprintf(&b, "    <code>[%s%s]</code> %.2f%%\n", strings.Repeat("▰", filled), strings.Repeat("▱", barWidth-filled), ratio*100)
		size := humanize.Bytes(uint64(max(p.TotalSize, 0)))
		if ratio > 0 {
			estimate := humanize.Bytes(uint64(float64(p.TotalSize) / ratio))
			fmt.Fprintf(&b, "‣ <b>Size :</b> %s out of ~ %s\n", size, estimate)
		} else {
			fmt.Fprintf(&b, "‣ <b>Size :</b> %s\n", size)
		}
		if p.Speed > 0 {
			left := time.Duration(float64(total-p.OutTime) / p.Speed)
			fmt.Fprintf(&b, "‣ <b>Speed :</b> %.2fx\n", p.Speed)
			fmt.Fprintf(&b, "‣ <b>Time Took :</b> %s\n", elapsed.Round(time.Second))
			fmt.Fprintf(&b, "‣ <b>Time Left :</b> %s", left.Round(time.Second))
			return b.String()
		}
	} else {
		fmt.Fprintf(&b, "‣ <b>Encoded :</b> %s (%s)\n", p.OutTime.Round(time.Second), humanize.Bytes(uint64(max(p.TotalSize, 0))))
	}
	fmt.Fprintf(&b, "‣ <b>Time Took :</b> %s", elapsed.Round(time.Second))
	return b.String()
}

// tailBuffer garde les derniers octets de stderr pour le message d'erreur.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
