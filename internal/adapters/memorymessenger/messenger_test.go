package memorymessenger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

func TestMessenger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := New(zerolog.Nop(), -200)

	photo, err := m.SendPhoto(ctx, -100, "https://img.anili.st/media/1", "caption")
	require.NoError(t, err)
	status, err := m.SendMessage(ctx, -100, "Downloading...")
	require.NoError(t, err)
	assert.NotEqual(t, photo.ID, status.ID)

	kb := domain.Keyboard{}.Append(domain.Button{Text: "480p", URL: "https://t.me/bot?start=x"})
	require.NoError(t, m.EditMessage(ctx, photo, "new caption", kb))
	got, err := m.GetMessage(ctx, -100, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "new caption", got.Text)
	assert.Equal(t, "https://img.anili.st/media/1", got.Photo)
	assert.Len(t, got.Buttons.Flatten(), 1)

	require.NoError(t, m.DeleteMessage(ctx, status))
	_, err = m.GetMessage(ctx, -100, status.ID)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
	assert.Len(t, m.Messages(-100), 1)

	err = m.EditMessage(ctx, status, "gone", nil)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestMessenger_UploadAndCopy(t *testing.T) {
	ctx := context.Background()
	m := New(zerolog.Nop(), -200)

	path := filepath.Join(t.TempDir(), "[S01-E01] Show [480p] [H264] [Sub].mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	up, err := m.Upload(ctx, domain.Message{}, path, domain.QualityProfile{Name: "480"})
	require.NoError(t, err)
	assert.Equal(t, int64(2048), up.FileSize)

	store := m.Messages(-200)
	require.Len(t, store, 1)
	assert.Equal(t, up.MessageID, store[0].ID)
	assert.Equal(t, filepath.Base(path), store[0].Text)

	cp, err := m.CopyMessage(ctx, store[0], -500)
	require.NoError(t, err)
	assert.Equal(t, int64(-500), cp.ChatID)
	assert.Equal(t, int64(2048), cp.FileSize)

	_, err = m.CopyMessage(ctx, domain.Message{ChatID: -200, ID: 999}, -500)
	assert.Error(t, err)
}

func TestMessenger_UploadMissingFile(t *testing.T) {
	m := New(zerolog.Nop(), -200)
	_, err := m.Upload(context.Background(), domain.Message{}, filepath.Join(t.TempDir(), "nope.mkv"), domain.QualityProfile{})
	assert.Error(t, err)
	assert.Empty(t, m.Messages(-200))
}
