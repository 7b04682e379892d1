package localfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_LocalCopy(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "in.mkv")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	h := New(zerolog.Nop(), filepath.Join(t.TempDir(), "downloads"), nil)
	got, err := h.Save(context.Background(), src, "Show.S01E01.1080p.mkv")
	require.NoError(t, err)
	assert.Equal(t, "Show.S01E01.1080p.mkv", filepath.Base(got))

	b, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	// La source n'est pas touchée.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestSave_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mkv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	h := New(zerolog.Nop(), dir, srv.Client())

	got, err := h.Save(context.Background(), srv.URL+"/ep.mkv", "ep.mkv")
	require.NoError(t, err)
	b, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(b))

	_, err = h.Save(context.Background(), srv.URL+"/missing.mkv", "missing.mkv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed download leaves nothing behind")
}

func TestSave_RejectsTraversalAndDirectories(t *testing.T) {
	dir := t.TempDir()
	h := New(zerolog.Nop(), dir, nil)

	src := filepath.Join(t.TempDir(), "in.mkv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	got, err := h.Save(context.Background(), src, "../../etc/evil.mkv")
	require.NoError(t, err)
	assert.Equal(t, "evil.mkv", filepath.Base(got))
	assert.Equal(t, dir, filepath.Dir(filepath.Dir(got)))

	_, err = h.Save(context.Background(), t.TempDir(), "dir.mkv")
	assert.Error(t, err)
}

func TestRemove_MissingIsNotAnError(t *testing.T) {
	h := New(zerolog.Nop(), t.TempDir(), nil)
	assert.NoError(t, h.Remove(filepath.Join(t.TempDir(), "nope.mkv")))
}

func TestSave_SameNameGetsDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	h := New(zerolog.Nop(), dir, nil)
	src := filepath.Join(t.TempDir(), "in.mkv")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	first, err := h.Save(context.Background(), src, "ep.mkv")
	require.NoError(t, err)
	second, err := h.Save(context.Background(), src, "ep.mkv")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.NoError(t, h.Remove(first))
	_, err = os.Stat(second)
	assert.NoError(t, err, "removing one run's file keeps the other")

	// Le sous-répertoire du run disparaît avec son fichier.
	_, err = os.Stat(filepath.Dir(first))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, h.Remove(second))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove_KeepsDirsOutsideDownloadDir(t *testing.T) {
	h := New(zerolog.Nop(), t.TempDir(), nil)
	other := filepath.Join(t.TempDir(), "run-keep")
	require.NoError(t, os.MkdirAll(other, 0o755))
	f := filepath.Join(other, "out.mkv")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	require.NoError(t, h.Remove(f))
	_, err := os.Stat(other)
	assert.NoError(t, err)
}
