// Package localfs rapatrie les fichiers entrants dans le répertoire de
// téléchargement, depuis un chemin local ou une URL http(s).
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

type FileHandler struct {
	logger zerolog.Logger
	dir    string
	client *http.Client
}

func New(logger zerolog.Logger, downloadDir string, client *http.Client) *FileHandler {
	if client == nil {
		// Pas de timeout global : un épisode peut prendre longtemps, ctx borne.
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 30 * time.Second,
		}}
	}
	return &FileHandler{logger: logger, dir: downloadDir, client: client}
}

const runDirPattern = "run-*"

// Save place la source sous name, dans un sous-répertoire propre à cet appel :
// deux runs du même fichier ne partagent jamais leur fichier de travail.
// L'écriture passe par un fichier temporaire renommé à la fin.
func (h *FileHandler) Save(ctx context.Context, source string, name string) (path string, err error) {
	name = safeName(name)
	if name == "" {
		return "", fmt.Errorf("invalid file name for %q", source)
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	runDir, err := os.MkdirTemp(h.dir, runDirPattern)
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(runDir)
		}
	}()
	dest := filepath.Join(runDir, name)

	var (
		src  io.ReadCloser
		size int64 = -1
	)
	if isRemote(source) {
		src, size, err = h.open(ctx, source)
	} else {
		src, size, err = openLocal(source)
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	start := time.Now()
	written, err := writeAtomic(ctx, dest, src)
	if err != nil {
		return "", err
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("short download: got %d of %d bytes", written, size)
	}
	h.logger.Info().
		Str("source", source).
		Str("path", dest).
		Str("size", humanize.Bytes(uint64(written))).
		Dur("took", time.Since(start)).
		Msg("file saved")
	return dest, nil
}

// Remove supprime un fichier de travail ; absent n'est pas une erreur.
// Le sous-répertoire créé par Save part avec lui.
func (h *FileHandler) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if parent := filepath.Dir(path); h.isRunDir(parent) {
		if err := os.Remove(parent); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Debug().Err(err).Str("dir", parent).Msg("run dir not removed")
		}
	}
	return nil
}

func (h *FileHandler) isRunDir(dir string) bool {
	ok, _ := filepath.Match(runDirPattern, filepath.Base(dir))
	return ok && filepath.Dir(dir) == filepath.Clean(h.dir)
}

func (h *FileHandler) open(ctx context.Context, source string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "aae-server")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download %s: %w", source, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download %s: unexpected status %d", source, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func openLocal(source string) (io.ReadCloser, int64, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat source: %w", err)
	}
	if st.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("source %s is a directory", source)
	}
	return f, st.Size(), nil
}

func writeAtomic(ctx context.Context, dest string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: src})
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("rename temp file: %w", err)
	}
	return n, nil
}

// ctxReader interrompt une copie locale à l'annulation du contexte.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func isRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func safeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return ""
	}
	return name
}
