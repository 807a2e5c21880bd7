package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velanet/velanet-crm/internal/shared"
)

// Repository provides PostgreSQL backed persistence for clients.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, phone, email, address, zone, plan_name, status, notes, created_at, updated_at, converted_at`

// Create inserts a new prospect.
func (r *Repository) Create(ctx context.Context, c *Client) (*Client, error) {
	const query = `
		INSERT INTO clients (name, phone, email, address, zone, plan_name, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		c.Name, c.Phone, c.Email, c.Address, c.Zone, c.PlanName, c.Status, c.Notes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePhone
		}
		return nil, fmt.Errorf("clients: insert: %w", err)
	}
	return c, nil
}

// Get retrieves a client by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)
	return scanClient(r.pool.QueryRow(ctx, query, id))
}

// List returns clients filtered by status and a name/phone search term,
// newest first, with pagination metadata.
func (r *Repository) List(ctx context.Context, status Status, search string, page, perPage int) ([]Client, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%d OR phone ILIKE $%d)`, len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("clients: count: %w", err)
	}
	pg := shared.NewPagination(page, perPage, total)

	args = append(args, pg.PerPage, (pg.Page-1)*pg.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM clients%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("clients: list: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, *c)
	}
	return out, pg, rows.Err()
}

// UpdateContact updates mutable contact fields.
func (r *Repository) UpdateContact(ctx context.Context, c *Client) error {
	const query = `
		UPDATE clients SET name = $2, phone = $3, email = $4, address = $5, zone = $6, notes = $7, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Phone, c.Email, c.Address, c.Zone, c.Notes)
	if err != nil {
		return fmt.Errorf("clients: update contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus transitions a client between lifecycle states. The
// expected status guards against concurrent transitions.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to Status, convertedAt *time.Time) error {
	const query = `
		UPDATE clients SET status = $3, converted_at = COALESCE($4, converted_at), updated_at = NOW()
		WHERE id = $1 AND status = $2`
	tag, err := r.pool.Exec(ctx, query, id, from, to, convertedAt)
	if err != nil {
		return fmt.Errorf("clients: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotProspect
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Zone,
		&c.PlanName, &c.Status, &c.Notes, &c.CreatedAt, &c.UpdatedAt, &c.ConvertedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("clients: scan: %w", err)
	}
	return &c, nil
}
