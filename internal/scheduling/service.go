package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velanet/velanet-crm/internal/billing"
)

// RepositoryPort defines data access methods for visits.
type RepositoryPort interface {
	Create(ctx context.Context, v *Visit) (*Visit, error)
	Get(ctx context.Context, id int64) (*Visit, error)
	ListByClient(ctx context.Context, clientID int64) ([]Visit, error)
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Visit, error)
	Complete(ctx context.Context, id int64, completedAt time.Time, report string) error
	Cancel(ctx context.Context, id int64) error
}

// BillingPort lets visit completion bill call-out fees.
type BillingPort interface {
	ChargeClient(ctx context.Context, clientID int64, description string, amount decimal.Decimal) (*billing.Charge, error)
}

// Service handles visit scheduling logic.
type Service struct {
	repo    RepositoryPort
	billing BillingPort
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, billingSvc BillingPort) *Service {
	return &Service{repo: repo, billing: billingSvc, now: time.Now}
}

// ScheduleInput captures a new visit booking.
type ScheduleInput struct {
	ClientID    int64
	Type        VisitType
	ScheduledAt time.Time
	Technician  string
	Notes       string
}

var validVisitTypes = map[VisitType]bool{
	VisitInstallation: true,
	VisitSupport:      true,
	VisitRemoval:      true,
}

// ScheduleVisit books a technician appointment.
func (s *Service) ScheduleVisit(ctx context.Context, in ScheduleInput) (*Visit, error) {
	if in.ClientID == 0 {
		return nil, errors.New("scheduling: client ID required")
	}
	if !validVisitTypes[in.Type] {
		return nil, errors.New("scheduling: unknown visit type")
	}
	if in.ScheduledAt.Before(s.now()) {
		return nil, ErrPastDate
	}
	return s.repo.Create(ctx, &Visit{
		ClientID:    in.ClientID,
		Type:        in.Type,
		Status:      VisitScheduled,
		ScheduledAt: in.ScheduledAt,
		Technician:  strings.TrimSpace(in.Technician),
		Notes:       in.Notes,
	})
}

// GetVisit returns a visit by ID.
func (s *Service) GetVisit(ctx context.Context, id int64) (*Visit, error) {
	return s.repo.Get(ctx, id)
}

// ListClientVisits returns a client's visit history.
func (s *Service) ListClientVisits(ctx context.Context, clientID int64) ([]Visit, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// DayAgenda returns the scheduled visits of one calendar day.
func (s *Service) DayAgenda(ctx context.Context, day time.Time) ([]Visit, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.repo.ListScheduledBetween(ctx, start, start.AddDate(0, 0, 1))
}

// CompleteVisit closes a scheduled visit. A positive fee is billed to
// the client's account before the status flip, so a billing failure
// keeps the visit open for retry.
func (s *Service) CompleteVisit(ctx context.Context, in CompletionInput) (*Visit, error) {
	visit, err := s.repo.Get(ctx, in.VisitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != VisitScheduled {
		return nil, ErrNotScheduled
	}
	if in.Fee.IsNegative() {
		return nil, errors.New("scheduling: fee cannot be negative")
	}
	completedAt := in.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	if in.Fee.IsPositive() {
		desc := fmt.Sprintf("Service visit (%s) %s", visit.Type, completedAt.Format("2006-01-02"))
		if _, err := s.billing.ChargeClient(ctx, visit.ClientID, desc, in.Fee); err != nil {
			return nil, fmt.Errorf("scheduling: bill visit fee: %w", err)
		}
	}
	if err := s.repo.Complete(ctx, visit.ID, completedAt, in.Report); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, visit.ID)
}

// CancelVisit cancels a scheduled visit.
func (s *Service) CancelVisit(ctx context.Context, id int64) error {
	return s.repo.Cancel(ctx, id)
}
