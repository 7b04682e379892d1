// Package memorymessenger garde les canaux en mémoire. Il sert au mode
// dry-run du serveur et aux tests : chaque opération est journalisée.
package memorymessenger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

var ErrMessageNotFound = fmt.Errorf("message: %w", ports.ErrNotFound)

type Messenger struct {
	logger       zerolog.Logger
	storeChannel int64

	mu     sync.Mutex
	nextID int64
	chats  map[int64]map[int64]domain.Message
}

func New(logger zerolog.Logger, storeChannel int64) *Messenger {
	return &Messenger{
		logger:       logger,
		storeChannel: storeChannel,
		chats:        map[int64]map[int64]domain.Message{},
	}
}

func (m *Messenger) post(msg domain.Message) domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	chat := m.chats[msg.ChatID]
	if chat == nil {
		chat = map[int64]domain.Message{}
		m.chats[msg.ChatID] = chat
	}
	chat[msg.ID] = msg
	return msg
}

func (m *Messenger) SendPhoto(_ context.Context, chatID int64, photo string, caption string) (domain.Message, error) {
	msg := m.post(domain.Message{ChatID: chatID, Photo: photo, Text: caption})
	m.logger.Info().Int64("chat_id", chatID).Int64("message_id", msg.ID).Str("photo", photo).Msg("photo sent")
	return msg, nil
}

func (m *Messenger) SendMessage(_ context.Context, chatID int64, text string) (domain.Message, error) {
	msg := m.post(domain.Message{ChatID: chatID, Text: text})
	m.logger.Debug().Int64("chat_id", chatID).Int64("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

func (m *Messenger) EditMessage(_ context.Context, msg domain.Message, text string, buttons domain.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.chats[msg.ChatID][msg.ID]
	if !ok {
		return ErrMessageNotFound
	}
	cur.Text = text
	if buttons != nil {
		cur.Buttons = buttons
	}
	m.chats[msg.ChatID][msg.ID] = cur
	m.logger.Debug().Int64("chat_id", msg.ChatID).Int64("message_id", msg.ID).Int("buttons", len(buttons.Flatten())).Msg("message edited")
	return nil
}

func (m *Messenger) DeleteMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[msg.ChatID][msg.ID]; !ok {
		return ErrMessageNotFound
	}
	delete(m.chats[msg.ChatID], msg.ID)
	m.logger.Debug().Int64("chat_id", msg.ChatID).Int64("message_id", msg.ID).Msg("message deleted")
	return nil
}

func (m *Messenger) CopyMessage(ctx context.Context, msg domain.Message, toChatID int64) (domain.Message, error) {
	src, err := m.GetMessage(ctx, msg.ChatID, msg.ID)
	if err != nil {
		return domain.Message{}, err
	}
	src.ChatID = toChatID
	cp := m.post(src)
	m.logger.Info().Int64("from_chat", msg.ChatID).Int64("to_chat", toChatID).Int64("message_id", cp.ID).Msg("message copied")
	return cp, nil
}

func (m *Messenger) GetMessage(_ context.Context, chatID int64, id int64) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.chats[chatID][id]
	if !ok {
		return domain.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

// Upload poste le fichier encodé comme document dans le canal de stockage.
// Seuls le nom et la taille sont conservés.
func (m *Messenger) Upload(ctx context.Context, status domain.Message, path string, q domain.QualityProfile) (domain.UploadedFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.UploadedFile{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("stat upload: %w", err)
	}
	if st.IsDir() {
		return domain.UploadedFile{}, fmt.Errorf("upload %s: is a directory", path)
	}
	doc := m.post(domain.Message{ChatID: m.storeChannel, Text: filepath.Base(path), FileSize: st.Size()})
	m.logger.Info().
		Str("quality", q.Name).
		Str("file", filepath.Base(path)).
		Str("size", humanize.Bytes(uint64(st.Size()))).
		Int64("message_id", doc.ID).
		Int64("status_id", status.ID).
		Msg("document uploaded")
	return domain.UploadedFile{MessageID: doc.ID, FileSize: st.Size()}, nil
}

// Messages renvoie les messages d'un canal, par identifiant croissant.
func (m *Messenger) Messages(chatID int64) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, 0, len(m.chats[chatID]))
	for _, msg := range m.chats[chatID] {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
