package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/xid"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

// RunService tient l'historique des runs et publie leurs changements.
type RunService struct {
	repo ports.RunRepository
	bus  ports.EventBus
}

func NewRunService(repo ports.RunRepository, bus ports.EventBus) *RunService {
	return &RunService{repo: repo, bus: bus}
}

type RunDTO struct {
	ID             string          `json:"id"`
	FileName       string          `json:"fileName"`
	AnnouncementID int64           `json:"announcementId,omitempty"`
	State          domain.RunState `json:"state"`
	Qualities      []string        `json:"qualities"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	ErrorCode      string          `json:"errorCode,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func ToRunDTO(r domain.Run) RunDTO {
	qualities := r.Qualities
	if qualities == nil {
		qualities = []string{}
	}
	return RunDTO{
		ID:             r.ID,
		FileName:       r.FileName,
		AnnouncementID: r.AnnouncementID,
		State:          r.State,
		Qualities:      qualities,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		ErrorCode:      r.ErrorCode,
		Error:          r.ErrorMessage,
	}
}

func PublishRunEvent(bus ports.EventBus, topic string, run domain.Run) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(ToRunDTO(run))
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}

func (s *RunService) Create(ctx context.Context, fileName string) (domain.Run, error) {
	now := time.Now().UTC()
	run := domain.Run{
		ID:        xid.New().String(),
		FileName:  fileName,
		State:     domain.RunResolving,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.Create(ctx, run)
	if err != nil {
		return domain.Run{}, err
	}
	PublishRunEvent(s.bus, "run.created", created)
	return created, nil
}

func (s *RunService) Get(ctx context.Context, id string) (RunDTO, error) {
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return RunDTO{}, err
	}
	return ToRunDTO(run), nil
}

func (s *RunService) List(ctx context.Context, limit int) ([]RunDTO, error) {
	runs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, ToRunDTO(r))
	}
	return out, nil
}

// Advance applique from -> to et publie "run.<to>".
func (s *RunService) Advance(ctx context.Context, id string, from, to domain.RunState) (domain.Run, error) {
	updated, err := s.repo.UpdateState(ctx, id, from, to)
	if err != nil {
		return domain.Run{}, err
	}
	PublishRunEvent(s.bus, "run."+string(to), updated)
	return updated, nil
}

func (s *RunService) SetAnnouncement(ctx context.Context, id string, announcementID int64) error {
	_, err := s.repo.SetAnnouncement(ctx, id, announcementID)
	return err
}

func (s *RunService) AddQuality(ctx context.Context, id string, quality string) error {
	updated, err := s.repo.AddQuality(ctx, id, quality)
	if err != nil {
		return err
	}
	PublishRunEvent(s.bus, "run.quality", updated)
	return nil
}

// Fail enregistre l'erreur puis passe le run en failed depuis son état courant.
func (s *RunService) Fail(ctx context.Context, id string, code, message string) (domain.Run, error) {
	if _, err := s.repo.UpdateError(ctx, id, code, message); err != nil {
		return domain.Run{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	if current.State.IsTerminal() {
		return current, nil
	}
	return s.Advance(ctx, id, current.State, domain.RunFailed)
}
