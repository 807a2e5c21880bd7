package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/velanet/velanet-crm/internal/billing"
	"github.com/velanet/velanet-crm/internal/shared"
)

type stubBillingRepo struct {
	mu       sync.Mutex
	profiles []billing.Profile
	billed   map[string]bool
	overdue  []billing.OverdueAccount
}

func (s *stubBillingRepo) GetProfile(context.Context, int64) (*billing.Profile, error) {
	return nil, billing.ErrNotFound
}

func (s *stubBillingRepo) GetProfileByClient(context.Context, int64) (*billing.Profile, error) {
	return nil, billing.ErrNotFound
}

func (s *stubBillingRepo) Onboard(context.Context, billing.OnboardRecord) (*billing.Profile, error) {
	return nil, billing.ErrNotFound
}

func (s *stubBillingRepo) ListPendingCharges(context.Context, int64) ([]billing.Charge, error) {
	return nil, nil
}

func (s *stubBillingRepo) ListCharges(context.Context, int64, billing.ChargeStatus, int) ([]billing.Charge, error) {
	return nil, nil
}

func (s *stubBillingRepo) CreateCharge(context.Context, int64, billing.ChargeRecord) (*billing.Charge, error) {
	return nil, billing.ErrNotFound
}

func (s *stubBillingRepo) ApplyAllocation(context.Context, int64, billing.PaymentRecord, billing.AllocationResult) (*billing.Payment, error) {
	return nil, billing.ErrNotFound
}

func (s *stubBillingRepo) ListProfilesDueOn(_ context.Context, day int) ([]billing.Profile, error) {
	var out []billing.Profile
	for _, p := range s.profiles {
		if p.BillingDay == day {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubBillingRepo) InsertMonthlyCharge(_ context.Context, profileID int64, period string, _ decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.billed == nil {
		s.billed = map[string]bool{}
	}
	key := fmt.Sprintf("%s#%d", period, profileID)
	if s.billed[key] {
		return billing.ErrAlreadyBilled
	}
	s.billed[key] = true
	return nil
}

func (s *stubBillingRepo) ListOverdue(context.Context, time.Time) ([]billing.OverdueAccount, error) {
	return s.overdue, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func monthlyFee(t *testing.T) decimal.Decimal {
	t.Helper()
	fee, err := decimal.NewFromString("150")
	require.NoError(t, err)
	return fee
}

func TestMonthlyRunJobCreatesCharges(t *testing.T) {
	repo := &stubBillingRepo{profiles: []billing.Profile{
		{ID: 1, ClientID: 10, BillingDay: 14, MonthlyFee: monthlyFee(t), Status: billing.ProfileActive},
		{ID: 2, ClientID: 11, BillingDay: 14, MonthlyFee: monthlyFee(t), Status: billing.ProfileActive},
	}}
	job := NewMonthlyRunJob(billing.NewService(repo, nil), nil, nil, discardLogger())

	task, err := NewMonthlyRunTask(MonthlyRunPayload{AsOf: "2025-07-14"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.billed, 2)

	// A retry of the same day is a no-op.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.billed, 2)
}

func TestMonthlyRunJobRejectsBadDate(t *testing.T) {
	job := NewMonthlyRunJob(billing.NewService(&stubBillingRepo{}, nil), nil, nil, discardLogger())

	task, err := NewMonthlyRunTask(MonthlyRunPayload{AsOf: "14-07-2025"})
	require.NoError(t, err)

	// SkipRetry is still an error result, the task just won't retry.
	require.Error(t, job.Handle(context.Background(), task))
}

func TestMonthlyRunJobSkipsWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	held, err := shared.AcquireLock(context.Background(), client, shared.BillingRunLockKey("2025-07-14"), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	repo := &stubBillingRepo{profiles: []billing.Profile{
		{ID: 1, ClientID: 10, BillingDay: 14, MonthlyFee: monthlyFee(t), Status: billing.ProfileActive},
	}}
	job := NewMonthlyRunJob(billing.NewService(repo, nil), client, nil, discardLogger())

	task, err := NewMonthlyRunTask(MonthlyRunPayload{AsOf: "2025-07-14"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, repo.billed)
}

type captureNotifier struct {
	messages map[int64]string
}

func (c *captureNotifier) NotifyClient(_ context.Context, clientID int64, message string) error {
	if c.messages == nil {
		c.messages = map[int64]string{}
	}
	c.messages[clientID] = message
	return nil
}

func TestPaymentRemindersJob(t *testing.T) {
	total, err := decimal.NewFromString("1250.50")
	require.NoError(t, err)
	repo := &stubBillingRepo{overdue: []billing.OverdueAccount{
		{ProfileID: 1, ClientID: 10, PendingTotal: total, OldestCharge: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}}
	notifier := &captureNotifier{}
	job := NewPaymentRemindersJob(billing.NewService(repo, nil), notifier, nil, discardLogger(), 15*24*time.Hour)

	require.NoError(t, job.Handle(context.Background(), NewPaymentRemindersTask()))
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[10], "1,250.50")
	require.Contains(t, notifier.messages[10], "2025-06-01")
}
