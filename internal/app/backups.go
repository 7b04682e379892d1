package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

type BackupState string

const (
	BackupPending   BackupState = "pending"
	BackupCopied    BackupState = "copied"
	BackupFailed    BackupState = "failed"
	BackupCancelled BackupState = "cancelled"
)

type BackupTask struct {
	ID         string      `json:"id"`
	SourceChat int64       `json:"sourceChat"`
	MessageID  int64       `json:"messageId"`
	TargetChat int64       `json:"targetChat"`
	State      BackupState `json:"state"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// maxBackupHistory borne la mémoire des tâches terminées.
const maxBackupHistory = 256

// BackupTracker copie les uploads vers les canaux de sauvegarde en tâche de
// fond. Chaque copie est suivie et son issue rapportée.
type BackupTracker struct {
	parent    context.Context
	logger    zerolog.Logger
	messenger ports.Messenger
	reporter  ports.Reporter
	metrics   *Metrics
	// Borne les copies simultanées.
	copies *semaphore.Weighted

	mu    sync.Mutex
	tasks map[string]*BackupTask
	order []string
	wg    sync.WaitGroup
}

// NewBackupTracker : les copies vivent sous parent, pas sous le contexte du
// run qui les a planifiées.
func NewBackupTracker(parent context.Context, logger zerolog.Logger, messenger ports.Messenger, reporter ports.Reporter, metrics *Metrics, concurrency int) *BackupTracker {
	if parent == nil {
		parent = context.Background()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &BackupTracker{
		parent:    parent,
		logger:    logger,
		messenger: messenger,
		reporter:  reporter,
		metrics:   metrics,
		copies:    semaphore.NewWeighted(int64(concurrency)),
		tasks:     map[string]*BackupTask{},
	}
}

// Schedule planifie une copie de msg par canal et renvoie les ids de tâche.
func (b *BackupTracker) Schedule(msg domain.Message, channels []int64) []string {
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch == 0 {
			continue
		}
		task := &BackupTask{
			ID:         xid.New().String(),
			SourceChat: msg.ChatID,
			MessageID:  msg.ID,
			TargetChat: ch,
			State:      BackupPending,
			CreatedAt:  time.Now().UTC(),
		}
		b.mu.Lock()
		b.tasks[task.ID] = task
		b.order = append(b.order, task.ID)
		b.pruneLocked()
		b.mu.Unlock()

		ids = append(ids, task.ID)
		b.wg.Add(1)
		go b.copy(msg, task.ID, ch)
	}
	return ids
}

func (b *BackupTracker) copy(msg domain.Message, id string, target int64) {
	defer b.wg.Done()
	ctx := b.parent
	logger := b.logger.With().Str("backup_id", id).Int64("message_id", msg.ID).Int64("target", target).Logger()

	if err := b.copies.Acquire(ctx, 1); err != nil {
		b.finish(id, BackupCancelled, err)
		return
	}
	defer b.copies.Release(1)

	_, err := b.messenger.CopyMessage(ctx, msg, target)
	switch {
	case err == nil:
		b.finish(id, BackupCopied, nil)
		b.metrics.backupCopied("ok")
		logger.Debug().Msg("backup copied")
	case ctx.Err() != nil:
		b.finish(id, BackupCancelled, err)
	default:
		b.finish(id, BackupFailed, err)
		b.metrics.backupCopied("failed")
		report(ctx, b.reporter, ports.SeverityWarning, fmt.Sprintf("backup of message %d to %d failed: %v", msg.ID, target, err), true)
	}
}

func (b *BackupTracker) finish(id string, state BackupState, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.State = state
	task.FinishedAt = &now
	if err != nil {
		task.Error = err.Error()
	}
}

// pruneLocked oublie les plus anciennes tâches terminées au-delà de la limite.
func (b *BackupTracker) pruneLocked() {
	if len(b.order) <= maxBackupHistory {
		return
	}
	kept := b.order[:0]
	excess := len(b.order) - maxBackupHistory
	for _, id := range b.order {
		if excess > 0 && b.tasks[id].State != BackupPending {
			delete(b.tasks, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
}

// Snapshot renvoie les tâches, plus récentes d'abord.
func (b *BackupTracker) Snapshot() []BackupTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BackupTask, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		out = append(out, *b.tasks[b.order[i]])
	}
	return out
}

// Wait bloque jusqu'à la fin de toutes les copies planifiées.
func (b *BackupTracker) Wait() {
	b.wg.Wait()
}
