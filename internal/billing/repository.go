package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OnboardRecord is everything persisted when an account starts billing.
type OnboardRecord struct {
	ClientID         int64
	InstallationDate time.Time
	BillingDay       int
	MonthlyFee       decimal.Decimal
	InitialBalance   decimal.Decimal
	Charges          []ChargeRecord
}

// ChargeRecord describes a charge row to insert.
type ChargeRecord struct {
	Description string
	Amount      decimal.Decimal
}

// PaymentRecord describes a payment row to insert.
type PaymentRecord struct {
	Number     string
	Amount     decimal.Decimal
	CreditUsed decimal.Decimal
	Method     string
	Note       string
	PaidAt     time.Time
}

// GetProfile retrieves a billing profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	const query = `
		SELECT id, client_id, installation_date, billing_day, monthly_fee, balance, status, created_at, updated_at
		FROM billing_profiles
		WHERE id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, id))
}

// GetProfileByClient retrieves the billing profile owned by a client.
func (r *Repository) GetProfileByClient(ctx context.Context, clientID int64) (*Profile, error) {
	const query = `
		SELECT id, client_id, installation_date, billing_day, monthly_fee, balance, status, created_at, updated_at
		FROM billing_profiles
		WHERE client_id = $1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, clientID))
}

func (r *Repository) scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.ClientID, &p.InstallationDate, &p.BillingDay,
		&p.MonthlyFee, &p.Balance, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: scan profile: %w", err)
	}
	return &p, nil
}

// Onboard creates the profile, its opening charges and the initial
// balance in one transaction.
func (r *Repository) Onboard(ctx context.Context, rec OnboardRecord) (*Profile, error) {
	var profile *Profile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertProfile = `
			INSERT INTO billing_profiles (client_id, installation_date, billing_day, monthly_fee, balance, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'active', NOW(), NOW())
			RETURNING id, created_at, updated_at`
		p := Profile{
			ClientID:         rec.ClientID,
			InstallationDate: rec.InstallationDate,
			BillingDay:       rec.BillingDay,
			MonthlyFee:       rec.MonthlyFee,
			Balance:          rec.InitialBalance,
			Status:           ProfileActive,
		}
		err := tx.QueryRow(ctx, insertProfile,
			rec.ClientID, rec.InstallationDate, rec.BillingDay, rec.MonthlyFee, rec.InitialBalance,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyOnboarded
			}
			return fmt.Errorf("billing: insert profile: %w", err)
		}
		for _, c := range rec.Charges {
			const insertCharge = `
				INSERT INTO charges (profile_id, description, amount, status, created_at)
				VALUES ($1, $2, $3, 'pending', NOW())`
			if _, err := tx.Exec(ctx, insertCharge, p.ID, c.Description, c.Amount); err != nil {
				return fmt.Errorf("billing: insert opening charge: %w", err)
			}
		}
		profile = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// ListPendingCharges returns pending charges oldest first. Ordering is
// load-bearing: the allocator pays charges in creation order.
func (r *Repository) ListPendingCharges(ctx context.Context, profileID int64) ([]Charge, error) {
	const query = `
		SELECT id, profile_id, description, amount, status, created_at, paid_date, payment_id
		FROM charges
		WHERE profile_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("billing: list pending charges: %w", err)
	}
	defer rows.Close()
	return scanCharges(rows)
}

// ListCharges returns charges for a profile, newest first, optionally
// filtered by status.
func (r *Repository) ListCharges(ctx context.Context, profileID int64, status ChargeStatus, limit int) ([]Charge, error) {
	query := `
		SELECT id, profile_id, description, amount, status, created_at, paid_date, payment_id
		FROM charges
		WHERE profile_id = $1`
	args := []any{profileID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list charges: %w", err)
	}
	defer rows.Close()
	return scanCharges(rows)
}

func scanCharges(rows pgx.Rows) ([]Charge, error) {
	var charges []Charge
	for rows.Next() {
		var c Charge
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.Description, &c.Amount,
			&c.Status, &c.CreatedAt, &c.PaidDate, &c.PaymentID); err != nil {
			return nil, fmt.Errorf("billing: scan charge: %w", err)
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// CreateCharge inserts a pending charge and bumps the balance in one
// transaction.
func (r *Repository) CreateCharge(ctx context.Context, profileID int64, rec ChargeRecord) (*Charge, error) {
	var charge Charge
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `
			INSERT INTO charges (profile_id, description, amount, status, created_at)
			VALUES ($1, $2, $3, 'pending', NOW())
			RETURNING id, created_at`
		charge = Charge{ProfileID: profileID, Description: rec.Description, Amount: rec.Amount, Status: ChargePending}
		if err := tx.QueryRow(ctx, insert, profileID, rec.Description, rec.Amount).Scan(&charge.ID, &charge.CreatedAt); err != nil {
			return fmt.Errorf("billing: insert charge: %w", err)
		}
		const bump = `
			UPDATE billing_profiles SET balance = balance + $2, updated_at = NOW() WHERE id = $1`
		tag, err := tx.Exec(ctx, bump, profileID, rec.Amount)
		if err != nil {
			return fmt.Errorf("billing: bump balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

// ApplyAllocation persists an allocation result atomically: payment
// row, charge status flips, advance charges and the balance adjustment
// commit together or not at all. The balance is written as a delta
// (credit used minus cash), so a charge committed between the
// allocation snapshot and this write keeps its balance bump.
func (r *Repository) ApplyAllocation(ctx context.Context, profileID int64, rec PaymentRecord, res AllocationResult) (*Payment, error) {
	var payment Payment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertPayment = `
			INSERT INTO payments (profile_id, number, amount, credit_used, method, note, paid_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id, created_at`
		payment = Payment{
			ProfileID:  profileID,
			Number:     rec.Number,
			Amount:     rec.Amount,
			CreditUsed: rec.CreditUsed,
			Method:     rec.Method,
			Note:       rec.Note,
			PaidAt:     rec.PaidAt,
		}
		if err := tx.QueryRow(ctx, insertPayment,
			profileID, rec.Number, rec.Amount, rec.CreditUsed, rec.Method, rec.Note, rec.PaidAt,
		).Scan(&payment.ID, &payment.CreatedAt); err != nil {
			return fmt.Errorf("billing: insert payment: %w", err)
		}

		const markPaid = `
			UPDATE charges SET status = 'paid', paid_date = $2, payment_id = $3
			WHERE id = $1 AND status = 'pending'`
		for _, pc := range res.ChargesToMarkPaid {
			tag, err := tx.Exec(ctx, markPaid, pc.ChargeID, pc.PaidDate, payment.ID)
			if err != nil {
				return fmt.Errorf("billing: mark charge paid: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return ErrChargeConflict
			}
		}

		const insertAdvance = `
			INSERT INTO charges (profile_id, description, amount, status, created_at, paid_date, payment_id)
			VALUES ($1, $2, $3, 'paid', NOW(), $4, $5)`
		for _, adv := range res.AdvanceCharges {
			if _, err := tx.Exec(ctx, insertAdvance,
				profileID, adv.Description, adv.Amount, rec.PaidAt, payment.ID); err != nil {
				return fmt.Errorf("billing: insert advance charge: %w", err)
			}
		}

		const adjustBalance = `
			UPDATE billing_profiles SET balance = balance + $2 - $3, updated_at = NOW() WHERE id = $1`
		tag, err := tx.Exec(ctx, adjustBalance, profileID, rec.CreditUsed, rec.Amount)
		if err != nil {
			return fmt.Errorf("billing: set balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListProfilesDueOn returns active profiles whose billing day matches.
func (r *Repository) ListProfilesDueOn(ctx context.Context, day int) ([]Profile, error) {
	const query = `
		SELECT id, client_id, installation_date, billing_day, monthly_fee, balance, status, created_at, updated_at
		FROM billing_profiles
		WHERE status = 'active' AND billing_day = $1 AND monthly_fee > 0
		ORDER BY id`
	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("billing: list profiles due: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.ClientID, &p.InstallationDate, &p.BillingDay,
			&p.MonthlyFee, &p.Balance, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("billing: scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// InsertMonthlyCharge creates the recurring charge for a period and
// bumps the balance. The unique (profile_id, period) index makes the
// monthly run idempotent.
func (r *Repository) InsertMonthlyCharge(ctx context.Context, profileID int64, period string, amount decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `
			INSERT INTO charges (profile_id, description, amount, status, created_at, period)
			VALUES ($1, $2, $3, 'pending', NOW(), $4)`
		_, err := tx.Exec(ctx, insert, profileID, "Monthly fee "+period, amount, period)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyBilled
			}
			return fmt.Errorf("billing: insert monthly charge: %w", err)
		}
		const bump = `
			UPDATE billing_profiles SET balance = balance + $2, updated_at = NOW() WHERE id = $1`
		if _, err := tx.Exec(ctx, bump, profileID, amount); err != nil {
			return fmt.Errorf("billing: bump balance: %w", err)
		}
		return nil
	})
}

// ListOverdue returns profiles holding pending charges created before
// the cutoff, with the outstanding total per profile.
func (r *Repository) ListOverdue(ctx context.Context, cutoff time.Time) ([]OverdueAccount, error) {
	const query = `
		SELECT p.id, p.client_id, SUM(c.amount), MIN(c.created_at)
		FROM billing_profiles p
		JOIN charges c ON c.profile_id = p.id AND c.status = 'pending'
		WHERE p.status = 'active' AND c.created_at < $1
		GROUP BY p.id, p.client_id
		ORDER BY MIN(c.created_at)`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("billing: list overdue: %w", err)
	}
	defer rows.Close()

	var out []OverdueAccount
	for rows.Next() {
		var o OverdueAccount
		if err := rows.Scan(&o.ProfileID, &o.ClientID, &o.PendingTotal, &o.OldestCharge); err != nil {
			return nil, fmt.Errorf("billing: scan overdue: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OverdueAccount summarises an account with aged pending charges.
type OverdueAccount struct {
	ProfileID    int64
	ClientID     int64
	PendingTotal decimal.Decimal
	OldestCharge time.Time
}
