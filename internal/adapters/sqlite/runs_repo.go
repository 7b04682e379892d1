package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

// Largeur fixe : l'ordre lexicographique suit l'ordre chronologique.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = `id, file_name, announcement_id, state, qualities_json, created_at, updated_at, error_code, error_message`

type RunsRepository struct {
	db *sql.DB
}

func NewRunsRepository(db *sql.DB) *RunsRepository {
	return &RunsRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (domain.Run, error) {
	var r domain.Run
	var qualities, createdAt, updatedAt string
	if err := s.Scan(&r.ID, &r.FileName, &r.AnnouncementID, &r.State, &qualities, &createdAt, &updatedAt, &r.ErrorCode, &r.ErrorMessage); err != nil {
		return domain.Run{}, err
	}
	if err := json.Unmarshal([]byte(qualities), &r.Qualities); err != nil {
		return domain.Run{}, err
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return r, nil
}

func encodeQualities(q []string) (string, error) {
	if q == nil {
		q = []string{}
	}
	b, err := json.Marshal(q)
	return string(b), err
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func (r *RunsRepository) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	qualities, err := encodeQualities(run.Qualities)
	if err != nil {
		return domain.Run{}, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs(`+runColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.FileName, run.AnnouncementID, string(run.State), qualities,
		run.CreatedAt.UTC().Format(timeLayout), run.UpdatedAt.UTC().Format(timeLayout), run.ErrorCode, run.ErrorMessage)
	if err != nil {
		return domain.Run{}, err
	}
	return r.Get(ctx, run.ID)
}

func (r *RunsRepository) Get(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, ports.ErrNotFound
		}
		return domain.Run{}, err
	}
	return run, nil
}

func (r *RunsRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunsRepository) UpdateState(ctx context.Context, id string, expected domain.RunState, next domain.RunState) (domain.Run, error) {
	if !domain.CanTransition(expected, next) {
		return domain.Run{}, domain.ErrInvalidTransition
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(next), now(), id, string(expected))
	if err != nil {
		return domain.Run{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Run{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *RunsRepository) SetAnnouncement(ctx context.Context, id string, announcementID int64) (domain.Run, error) {
	return r.update(ctx, id, `UPDATE runs SET announcement_id = ?, updated_at = ? WHERE id = ?`, announcementID, now(), id)
}

func (r *RunsRepository) UpdateError(ctx context.Context, id string, code string, message string) (domain.Run, error) {
	return r.update(ctx, id, `UPDATE runs SET error_code = ?, error_message = ?, updated_at = ? WHERE id = ?`, code, message, now(), id)
}

// AddQuality ajoute une qualité publiée ; l'ordre d'ajout est conservé.
func (r *RunsRepository) AddQuality(ctx context.Context, id string, quality string) (domain.Run, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT qualities_json FROM runs WHERE id = ?`, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, ports.ErrNotFound
		}
		return domain.Run{}, err
	}
	var qualities []string
	if err := json.Unmarshal([]byte(raw), &qualities); err != nil {
		return domain.Run{}, err
	}
	encoded, err := encodeQualities(append(qualities, quality))
	if err != nil {
		return domain.Run{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET qualities_json = ?, updated_at = ? WHERE id = ?`, encoded, now(), id); err != nil {
		return domain.Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Run{}, err
	}
	return r.Get(ctx, id)
}

func (r *RunsRepository) update(ctx context.Context, id string, query string, args ...any) (domain.Run, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Run{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Run{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}
