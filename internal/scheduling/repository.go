package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for visits.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const visitColumns = `id, client_id, type, status, scheduled_at, technician, notes, created_at, updated_at, completed_at`

// Create inserts a scheduled visit.
func (r *Repository) Create(ctx context.Context, v *Visit) (*Visit, error) {
	const query = `
		INSERT INTO visits (client_id, type, status, scheduled_at, technician, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		v.ClientID, v.Type, v.Status, v.ScheduledAt, v.Technician, v.Notes,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert visit: %w", err)
	}
	return v, nil
}

// Get retrieves a visit by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Visit, error) {
	query := fmt.Sprintf(`SELECT %s FROM visits WHERE id = $1`, visitColumns)
	return scanVisit(r.pool.QueryRow(ctx, query, id))
}

// ListByClient returns a client's visits, newest first.
func (r *Repository) ListByClient(ctx context.Context, clientID int64) ([]Visit, error) {
	query := fmt.Sprintf(`SELECT %s FROM visits WHERE client_id = $1 ORDER BY scheduled_at DESC, id DESC`, visitColumns)
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list by client: %w", err)
	}
	defer rows.Close()
	return collectVisits(rows)
}

// ListScheduledBetween returns scheduled visits inside a time window,
// earliest first. Used for the daily agenda.
func (r *Repository) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Visit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM visits
		WHERE status = 'scheduled' AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at ASC, id ASC`, visitColumns)
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list scheduled: %w", err)
	}
	defer rows.Close()
	return collectVisits(rows)
}

// Complete flips a scheduled visit to completed.
func (r *Repository) Complete(ctx context.Context, id int64, completedAt time.Time, report string) error {
	const query = `
		UPDATE visits SET status = 'completed', completed_at = $2, notes = CASE WHEN $3 = '' THEN notes ELSE $3 END, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`
	tag, err := r.pool.Exec(ctx, query, id, completedAt, report)
	if err != nil {
		return fmt.Errorf("scheduling: complete visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotScheduled
	}
	return nil
}

// Cancel flips a scheduled visit to cancelled.
func (r *Repository) Cancel(ctx context.Context, id int64) error {
	const query = `
		UPDATE visits SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("scheduling: cancel visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotScheduled
	}
	return nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.ClientID, &v.Type, &v.Status, &v.ScheduledAt,
		&v.Technician, &v.Notes, &v.CreatedAt, &v.UpdatedAt, &v.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: scan visit: %w", err)
	}
	return &v, nil
}

func collectVisits(rows pgx.Rows) ([]Visit, error) {
	var visits []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}
