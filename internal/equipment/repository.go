package equipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for equipment.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, model, serial_number, status, client_id, notes, created_at, updated_at`

// Create registers a new item in stock.
func (r *Repository) Create(ctx context.Context, item *Item) (*Item, error) {
	const query = `
		INSERT INTO equipment_items (model, serial_number, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, item.Model, item.SerialNumber, item.Status, item.Notes).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSerial
		}
		return nil, fmt.Errorf("equipment: insert item: %w", err)
	}
	return item, nil
}

// Get retrieves an item by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM equipment_items WHERE id = $1`, itemColumns)
	return scanItem(r.pool.QueryRow(ctx, query, id))
}

// List returns items, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status ItemStatus) ([]Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM equipment_items`, itemColumns)
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("equipment: list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListByClient returns items currently assigned to a client.
func (r *Repository) ListByClient(ctx context.Context, clientID int64) ([]Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM equipment_items WHERE client_id = $1 AND status = 'assigned' ORDER BY id`, itemColumns)
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("equipment: list by client: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// Assign moves an in-stock item to a client. The status guard makes
// concurrent assignment of the same unit lose cleanly.
func (r *Repository) Assign(ctx context.Context, itemID, clientID int64) error {
	const query = `
		UPDATE equipment_items SET status = 'assigned', client_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'in_stock'`
	tag, err := r.pool.Exec(ctx, query, itemID, clientID)
	if err != nil {
		return fmt.Errorf("equipment: assign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAvailable
	}
	return nil
}

// Return moves an assigned item back into stock.
func (r *Repository) Return(ctx context.Context, itemID int64) error {
	const query = `
		UPDATE equipment_items SET status = 'in_stock', client_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'assigned'`
	tag, err := r.pool.Exec(ctx, query, itemID)
	if err != nil {
		return fmt.Errorf("equipment: return: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

// Retire takes an in-stock item out of circulation.
func (r *Repository) Retire(ctx context.Context, itemID int64) error {
	const query = `
		UPDATE equipment_items SET status = 'retired', updated_at = NOW()
		WHERE id = $1 AND status = 'in_stock'`
	tag, err := r.pool.Exec(ctx, query, itemID)
	if err != nil {
		return fmt.Errorf("equipment: retire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAvailable
	}
	return nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Model, &it.SerialNumber, &it.Status, &it.ClientID,
		&it.Notes, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("equipment: scan item: %w", err)
	}
	return &it, nil
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}
