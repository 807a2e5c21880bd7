package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RepositoryPort defines data access methods for billing.
type RepositoryPort interface {
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	GetProfileByClient(ctx context.Context, clientID int64) (*Profile, error)
	Onboard(ctx context.Context, rec OnboardRecord) (*Profile, error)
	ListPendingCharges(ctx context.Context, profileID int64) ([]Charge, error)
	ListCharges(ctx context.Context, profileID int64, status ChargeStatus, limit int) ([]Charge, error)
	CreateCharge(ctx context.Context, profileID int64, rec ChargeRecord) (*Charge, error)
	ApplyAllocation(ctx context.Context, profileID int64, rec PaymentRecord, res AllocationResult) (*Payment, error)
	ListProfilesDueOn(ctx context.Context, day int) ([]Profile, error)
	InsertMonthlyCharge(ctx context.Context, profileID int64, period string, amount decimal.Decimal) error
	ListOverdue(ctx context.Context, cutoff time.Time) ([]OverdueAccount, error)
}

// Service handles billing business logic on top of the pure
// calculation layer.
type Service struct {
	repo  RepositoryPort
	cache *SummaryCache
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *SummaryCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// OnboardInput starts billing for a converted client.
type OnboardInput struct {
	ClientID          int64
	InstallationDate  time.Time
	BillingDay        int
	MonthlyFee        decimal.Decimal
	InstallationCost  decimal.Decimal
	AdditionalCharges []ChargeRecord
}

// OnboardAccount computes the prorated first period and opens the
// account with its initial charges and balance in one transaction.
func (s *Service) OnboardAccount(ctx context.Context, in OnboardInput) (*Profile, ProrationResult, error) {
	if in.ClientID == 0 {
		return nil, ProrationResult{}, errors.New("billing: client ID required")
	}
	if in.InstallationDate.IsZero() {
		return nil, ProrationResult{}, errors.New("billing: installation date required")
	}
	if in.InstallationCost.IsNegative() {
		return nil, ProrationResult{}, ErrNegativeAmount
	}

	proration, err := CalculateProration(in.InstallationDate, in.BillingDay, in.MonthlyFee)
	if err != nil {
		return nil, ProrationResult{}, err
	}

	var charges []ChargeRecord
	if proration.ProratedAmount.IsPositive() {
		charges = append(charges, ChargeRecord{
			Description: fmt.Sprintf("Prorated service, %d day(s) until %s",
				proration.DaysCharged, proration.FirstBillingDate.Format("2006-01-02")),
			Amount: proration.ProratedAmount,
		})
	}
	if in.InstallationCost.IsPositive() {
		charges = append(charges, ChargeRecord{Description: "Installation", Amount: in.InstallationCost})
	}
	additional := decimal.Zero
	for _, c := range in.AdditionalCharges {
		if !c.Amount.IsPositive() {
			return nil, ProrationResult{}, errors.New("billing: additional charge amount must be positive")
		}
		additional = additional.Add(c.Amount)
		charges = append(charges, c)
	}

	profile, err := s.repo.Onboard(ctx, OnboardRecord{
		ClientID:         in.ClientID,
		InstallationDate: in.InstallationDate,
		BillingDay:       in.BillingDay,
		MonthlyFee:       in.MonthlyFee,
		InitialBalance:   CalculateInitialBalance(proration.ProratedAmount, in.InstallationCost, additional),
		Charges:          charges,
	})
	if err != nil {
		return nil, ProrationResult{}, err
	}
	return profile, proration, nil
}

// RecordPaymentInput captures a payment to apply to an account.
type RecordPaymentInput struct {
	ProfileID   int64
	CashAmount  decimal.Decimal
	CreditToUse decimal.Decimal
	Method      string
	Note        string
	PaidAt      time.Time
}

// PreviewPayment runs the allocation against the current snapshot
// without persisting anything.
func (s *Service) PreviewPayment(ctx context.Context, in RecordPaymentInput) (AllocationResult, error) {
	_, result, err := s.allocate(ctx, in)
	return result, err
}

// RecordPayment allocates the payment and persists the full result as
// one transaction: payment row, paid charges, advance charges, new
// balance.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Payment, AllocationResult, error) {
	profile, result, err := s.allocate(ctx, in)
	if err != nil {
		return nil, AllocationResult{}, err
	}

	payment, err := s.repo.ApplyAllocation(ctx, profile.ID, PaymentRecord{
		Number:     newPaymentNumber(),
		Amount:     in.CashAmount,
		CreditUsed: in.CreditToUse,
		Method:     in.Method,
		Note:       in.Note,
		PaidAt:     in.PaidAt,
	}, result)
	if err != nil {
		return nil, AllocationResult{}, err
	}
	if err := s.cache.Invalidate(ctx, profile.ID); err != nil {
		// Stale summaries expire by TTL; the payment itself committed.
		return payment, result, nil
	}
	return payment, result, nil
}

func (s *Service) allocate(ctx context.Context, in RecordPaymentInput) (*Profile, AllocationResult, error) {
	profile, err := s.repo.GetProfile(ctx, in.ProfileID)
	if err != nil {
		return nil, AllocationResult{}, err
	}
	if profile.Status != ProfileActive {
		return nil, AllocationResult{}, ErrProfileNotActive
	}
	pending, err := s.repo.ListPendingCharges(ctx, profile.ID)
	if err != nil {
		return nil, AllocationResult{}, err
	}
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		return nil, AllocationResult{}, errors.New("billing: payment date required")
	}
	result, err := AllocatePayment(AllocationInput{
		CashAmount:     in.CashAmount,
		CreditToUse:    in.CreditToUse,
		CurrentBalance: profile.Balance,
		PendingCharges: pending,
		MonthlyFee:     profile.MonthlyFee,
		ReferenceDate:  paidAt,
	})
	if err != nil {
		return nil, AllocationResult{}, err
	}
	return profile, result, nil
}

// CreateCharge registers a manual charge (equipment change, service
// visit fee) against an account.
func (s *Service) CreateCharge(ctx context.Context, profileID int64, description string, amount decimal.Decimal) (*Charge, error) {
	if strings.TrimSpace(description) == "" {
		return nil, errors.New("billing: charge description required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("billing: charge amount must be positive")
	}
	profile, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.Status != ProfileActive {
		return nil, ErrProfileNotActive
	}
	charge, err := s.repo.CreateCharge(ctx, profileID, ChargeRecord{Description: description, Amount: amount})
	if err != nil {
		return nil, err
	}
	_ = s.cache.Invalidate(ctx, profileID)
	return charge, nil
}

// GetAccountSummary returns the cached balance snapshot for a profile.
func (s *Service) GetAccountSummary(ctx context.Context, profileID int64) (AccountSummary, error) {
	return s.cache.Fetch(ctx, profileID, func(ctx context.Context) (AccountSummary, error) {
		profile, err := s.repo.GetProfile(ctx, profileID)
		if err != nil {
			return AccountSummary{}, err
		}
		pending, err := s.repo.ListPendingCharges(ctx, profileID)
		if err != nil {
			return AccountSummary{}, err
		}
		total := decimal.Zero
		for _, c := range pending {
			total = total.Add(c.Amount)
		}
		return AccountSummary{
			ProfileID:       profile.ID,
			Balance:         profile.Balance,
			AvailableCredit: profile.AvailableCredit(),
			PendingCount:    len(pending),
			PendingTotal:    total,
		}, nil
	})
}

// ListCharges returns charge history for a profile.
func (s *Service) ListCharges(ctx context.Context, profileID int64, status ChargeStatus, limit int) ([]Charge, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListCharges(ctx, profileID, status, limit)
}

// GetProfileByClient exposes profile lookup to sibling modules.
func (s *Service) GetProfileByClient(ctx context.Context, clientID int64) (*Profile, error) {
	return s.repo.GetProfileByClient(ctx, clientID)
}

// ChargeClient registers a charge against the profile owned by a
// client. Used by the equipment and scheduling modules.
func (s *Service) ChargeClient(ctx context.Context, clientID int64, description string, amount decimal.Decimal) (*Charge, error) {
	profile, err := s.repo.GetProfileByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.CreateCharge(ctx, profile.ID, description, amount)
}

// monthlyRunWorkers bounds the fan-out of the recurring billing run.
const monthlyRunWorkers = 8

// RunMonthlyBilling creates the recurring charge for every active
// profile whose billing day matches asOf. Profiles already billed for
// the period are skipped, so the run can be retried safely.
func (s *Service) RunMonthlyBilling(ctx context.Context, asOf time.Time) (int, error) {
	profiles, err := s.repo.ListProfilesDueOn(ctx, asOf.Day())
	if err != nil {
		return 0, err
	}
	period := asOf.Format("2006-01")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(monthlyRunWorkers)
	billed := make(chan int64, len(profiles))
	for _, profile := range profiles {
		g.Go(func() error {
			err := s.repo.InsertMonthlyCharge(ctx, profile.ID, period, profile.MonthlyFee)
			if errors.Is(err, ErrAlreadyBilled) {
				return nil
			}
			if err != nil {
				return err
			}
			billed <- profile.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(billed)
	count := 0
	for id := range billed {
		_ = s.cache.Invalidate(ctx, id)
		count++
	}
	return count, nil
}

// ListOverdueAccounts returns accounts with pending charges older than
// the grace period.
func (s *Service) ListOverdueAccounts(ctx context.Context, asOf time.Time, grace time.Duration) ([]OverdueAccount, error) {
	return s.repo.ListOverdue(ctx, asOf.Add(-grace))
}

func newPaymentNumber() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}
