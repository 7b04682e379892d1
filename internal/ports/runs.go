package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

type RunRepository interface {
	Create(ctx context.Context, run domain.Run) (domain.Run, error)
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
	// UpdateState applique la transition expected -> next de façon atomique.
	// Renvoie ErrNotFound si le run n'est plus dans l'état attendu.
	UpdateState(ctx context.Context, id string, expected domain.RunState, next domain.RunState) (domain.Run, error)
	SetAnnouncement(ctx context.Context, id string, announcementID int64) (domain.Run, error)
	AddQuality(ctx context.Context, id string, quality string) (domain.Run, error)
	UpdateError(ctx context.Context, id string, code string, message string) (domain.Run, error)
}

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
