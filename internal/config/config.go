// Package config lit la configuration du serveur : fichier config.env
// (optionnel), variables AAE_* puis fichier de profils TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

const DefaultEnvFile = "config.env"

type Config struct {
	Addr     string
	DBPath   string
	LogLevel string

	// Répertoire de travail : verrou d'instance, downloads/ et encode/.
	WorkDir       string
	FFmpegBinary  string
	FFprobeBinary string
	ProfilesFile  string
	// Ordre de publication des qualités (noms de profils).
	Quals []string

	Settings domain.Settings

	GrantDelay       time.Duration
	SettleDelay      time.Duration
	Cooldown         time.Duration
	GrantTimeout     time.Duration
	PublishDelay     time.Duration
	ProgressInterval time.Duration

	ResolverRetries   int
	BackupConcurrency int
}

// Default lit uniquement l'environnement ; aucune valeur n'est validée ici.
func Default() Config {
	s := domain.DefaultSettings()
	s.LinkHost = envOr("AAE_LINK_HOST", s.LinkHost)
	s.BotUsername = envOr("AAE_BOT_USERNAME", s.BotUsername)
	s.Brand = envOr("AAE_BRAND_UNAME", s.Brand)
	s.Thumb = envOr("AAE_THUMB", s.Thumb)

	return Config{
		Addr:          envOr("AAE_ADDR", "127.0.0.1:8080"),
		DBPath:        envOr("AAE_DB_PATH", "aae.db"),
		LogLevel:      envOr("AAE_LOG_LEVEL", "info"),
		WorkDir:       envOr("AAE_WORK_DIR", "."),
		FFmpegBinary:  envOr("AAE_FFMPEG", "ffmpeg"),
		FFprobeBinary: envOr("AAE_FFPROBE", "ffprobe"),
		ProfilesFile:  os.Getenv("AAE_PROFILES_FILE"),
		Quals:         strings.Fields(envOr("AAE_QUALS", "360 480 720 1080")),
		Settings:      s,

		GrantDelay:       1500 * time.Millisecond,
		SettleDelay:      1500 * time.Millisecond,
		Cooldown:         10 * time.Second,
		GrantTimeout:     6 * time.Hour,
		PublishDelay:     1500 * time.Millisecond,
		ProgressInterval: 10 * time.Second,

		ResolverRetries:   5,
		BackupConcurrency: 2,
	}
}

// Load charge envFile s'il existe (sans écraser l'environnement), puis
// construit et valide la configuration.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.Settings.MainChannel, err = envInt64("AAE_MAIN_CHANNEL")
	collect(err)
	cfg.Settings.StoreChannel, err = envInt64("AAE_FILE_STORE")
	collect(err)
	cfg.Settings.LogChannel, err = envInt64("AAE_LOG_CHANNEL")
	collect(err)
	cfg.Settings.BackupChannels, err = parseChannels(os.Getenv("AAE_BACKUP_CHANNEL"))
	collect(err)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"AAE_GRANT_DELAY", &cfg.GrantDelay},
		{"AAE_SETTLE_DELAY", &cfg.SettleDelay},
		{"AAE_COOLDOWN", &cfg.Cooldown},
		{"AAE_GRANT_TIMEOUT", &cfg.GrantTimeout},
		{"AAE_PUBLISH_DELAY", &cfg.PublishDelay},
		{"AAE_PROGRESS_INTERVAL", &cfg.ProgressInterval},
	}
	for _, d := range durations {
		collect(envDuration(d.key, d.dst))
	}
	collect(envIntVar("AAE_RESOLVER_RETRIES", &cfg.ResolverRetries))
	collect(envIntVar("AAE_BACKUP_CONCURRENCY", &cfg.BackupConcurrency))

	ladder := DefaultLadder()
	if cfg.ProfilesFile != "" {
		ladder, err = LoadProfiles(cfg.ProfilesFile)
		collect(err)
	}
	cfg.Settings.Qualities, err = selectQualities(ladder, cfg.Quals)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate renvoie toutes les erreurs d'un coup.
func (c Config) Validate() error {
	var errs []error
	if c.Settings.MainChannel == 0 {
		errs = append(errs, errors.New("AAE_MAIN_CHANNEL is required"))
	}
	if c.Settings.StoreChannel == 0 {
		errs = append(errs, errors.New("AAE_FILE_STORE is required"))
	}
	if strings.TrimSpace(c.Settings.BotUsername) == "" {
		errs = append(errs, errors.New("AAE_BOT_USERNAME is required"))
	}
	if len(c.Settings.Qualities) == 0 {
		errs = append(errs, errors.New("at least one quality is required"))
	}
	if c.GrantTimeout <= 0 {
		errs = append(errs, errors.New("AAE_GRANT_TIMEOUT must be positive"))
	}
	if c.ResolverRetries < 0 {
		errs = append(errs, errors.New("AAE_RESOLVER_RETRIES must not be negative"))
	}
	if c.BackupConcurrency < 1 {
		errs = append(errs, errors.New("AAE_BACKUP_CONCURRENCY must be at least 1"))
	}
	for _, d := range []time.Duration{c.GrantDelay, c.SettleDelay, c.Cooldown, c.PublishDelay} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("negative delay %s", d))
			break
		}
	}
	return errors.Join(errs...)
}

func (c Config) DownloadDir() string { return filepath.Join(c.WorkDir, "downloads") }
func (c Config) EncodeDir() string   { return filepath.Join(c.WorkDir, "encode") }

// DefaultLadder est l'échelle libx264 intégrée, utilisée sans fichier de
// profils.
func DefaultLadder() []domain.QualityProfile {
	ladder := []struct {
		name   string
		height int
		size   string
		preset string
	}{
		{"360", 360, "640x360", "superfast"},
		{"480", 480, "854x480", "superfast"},
		{"720", 720, "1280x720", "superfast"},
		{"1080", 1080, "1920x1080", "veryfast"},
	}
	out := make([]domain.QualityProfile, 0, len(ladder))
	for _, l := range ladder {
		out = append(out, domain.QualityProfile{
			Name:   l.name,
			Height: l.height,
			Codec:  domain.CodecH264,
			Args: []string{
				"-preset", l.preset, "-c:v", "libx264", "-s", l.size, "-pix_fmt", "yuv420p",
				"-crf", "30", "-c:a", "libopus", "-b:a", "32k", "-c:s", "copy", "-map", "0",
				"-ac", "2", "-ab", "32k", "-vbr", "2", "-level", "3.1",
			},
		})
	}
	return out
}

type profilesFile struct {
	Profiles []domain.QualityProfile `toml:"profile"`
}

// LoadProfiles lit un fichier TOML de blocs [[profile]]. Le codec est
// obligatoire et normalisé.
func LoadProfiles(path string) ([]domain.QualityProfile, error) {
	var f profilesFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode profiles %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("profiles %s: unknown keys %v", path, undec)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("profiles %s: no [[profile]] entries", path)
	}

	var errs []error
	seen := map[string]bool{}
	for i := range f.Profiles {
		p := &f.Profiles[i]
		p.Name = strings.TrimSuffix(strings.TrimSpace(p.Name), "p")
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("profile #%d: name is required", i+1))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("profile %s: duplicate name", p.Name))
		}
		seen[p.Name] = true
		if strings.TrimSpace(string(p.Codec)) == "" {
			errs = append(errs, fmt.Errorf("profile %s: codec is required", p.Name))
		} else if c, err := domain.ParseCodec(string(p.Codec)); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", p.Name, err))
		} else {
			p.Codec = c
		}
		if len(p.Args) == 0 {
			errs = append(errs, fmt.Errorf("profile %s: args are required", p.Name))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Profiles, nil
}

func selectQualities(ladder []domain.QualityProfile, names []string) ([]domain.QualityProfile, error) {
	byName := make(map[string]domain.QualityProfile, len(ladder))
	for _, p := range ladder {
		byName[p.Name] = p
	}
	var (
		out  []domain.QualityProfile
		errs []error
	)
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSuffix(n, "p")
		if seen[n] {
			continue
		}
		seen[n] = true
		p, ok := byName[n]
		if !ok {
			errs = append(errs, fmt.Errorf("AAE_QUALS: unknown quality %q", n))
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func parseChannels(raw string) ([]int64, error) {
	var out []int64
	for _, f := range strings.Fields(raw) {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("AAE_BACKUP_CHANNEL: invalid chat id %q", f)
		}
		out = append(out, id)
	}
	return out, nil
}

func envInt64(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envIntVar(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
