package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryBillingRepo struct {
	mu            sync.Mutex
	profiles      map[int64]*Profile
	charges       map[int64]*Charge
	payments      map[int64]*Payment
	billedPeriods map[string]bool
	nextProfileID int64
	nextChargeID  int64
	nextPaymentID int64

	// beforeApply runs at the top of ApplyAllocation, standing in for
	// writes that land between the allocation snapshot and the commit.
	beforeApply func()
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		profiles:      make(map[int64]*Profile),
		charges:       make(map[int64]*Charge),
		payments:      make(map[int64]*Payment),
		billedPeriods: make(map[string]bool),
	}
}

func (r *memoryBillingRepo) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryBillingRepo) GetProfileByClient(ctx context.Context, clientID int64) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.ClientID == clientID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryBillingRepo) Onboard(ctx context.Context, rec OnboardRecord) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.ClientID == rec.ClientID {
			return nil, ErrAlreadyOnboarded
		}
	}
	r.nextProfileID++
	now := time.Now()
	p := &Profile{
		ID:               r.nextProfileID,
		ClientID:         rec.ClientID,
		InstallationDate: rec.InstallationDate,
		BillingDay:       rec.BillingDay,
		MonthlyFee:       rec.MonthlyFee,
		Balance:          rec.InitialBalance,
		Status:           ProfileActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.profiles[p.ID] = p
	for _, c := range rec.Charges {
		r.nextChargeID++
		r.charges[r.nextChargeID] = &Charge{
			ID:          r.nextChargeID,
			ProfileID:   p.ID,
			Description: c.Description,
			Amount:      c.Amount,
			Status:      ChargePending,
			CreatedAt:   now,
		}
	}
	cp := *p
	return &cp, nil
}

func (r *memoryBillingRepo) ListPendingCharges(ctx context.Context, profileID int64) ([]Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Charge
	for id := int64(1); id <= r.nextChargeID; id++ {
		c, ok := r.charges[id]
		if ok && c.ProfileID == profileID && c.Status == ChargePending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) ListCharges(ctx context.Context, profileID int64, status ChargeStatus, limit int) ([]Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Charge
	for id := r.nextChargeID; id >= 1; id-- {
		c, ok := r.charges[id]
		if !ok || c.ProfileID != profileID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) CreateCharge(ctx context.Context, profileID int64, rec ChargeRecord) (*Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileID]
	if !ok {
		return nil, ErrNotFound
	}
	r.nextChargeID++
	c := &Charge{
		ID:          r.nextChargeID,
		ProfileID:   profileID,
		Description: rec.Description,
		Amount:      rec.Amount,
		Status:      ChargePending,
		CreatedAt:   time.Now(),
	}
	r.charges[c.ID] = c
	p.Balance = p.Balance.Add(rec.Amount)
	cp := *c
	return &cp, nil
}

func (r *memoryBillingRepo) ApplyAllocation(ctx context.Context, profileID int64, rec PaymentRecord, res AllocationResult) (*Payment, error) {
	if r.beforeApply != nil {
		r.beforeApply()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileID]
	if !ok {
		return nil, ErrNotFound
	}
	r.nextPaymentID++
	payment := &Payment{
		ID:         r.nextPaymentID,
		ProfileID:  profileID,
		Number:     rec.Number,
		Amount:     rec.Amount,
		CreditUsed: rec.CreditUsed,
		Method:     rec.Method,
		Note:       rec.Note,
		PaidAt:     rec.PaidAt,
		CreatedAt:  time.Now(),
	}
	r.payments[payment.ID] = payment
	for _, pc := range res.ChargesToMarkPaid {
		c, ok := r.charges[pc.ChargeID]
		if !ok || c.Status != ChargePending {
			return nil, ErrChargeConflict
		}
		paidDate := pc.PaidDate
		c.Status = ChargePaid
		c.PaidDate = &paidDate
		c.PaymentID = &payment.ID
	}
	for _, adv := range res.AdvanceCharges {
		r.nextChargeID++
		paidDate := rec.PaidAt
		r.charges[r.nextChargeID] = &Charge{
			ID:          r.nextChargeID,
			ProfileID:   profileID,
			Description: adv.Description,
			Amount:      adv.Amount,
			Status:      ChargePaid,
			CreatedAt:   time.Now(),
			PaidDate:    &paidDate,
			PaymentID:   &payment.ID,
		}
	}
	// Delta write, matching the SQL repository: concurrent balance
	// bumps between snapshot and apply must survive.
	p.Balance = p.Balance.Add(rec.CreditUsed).Sub(rec.Amount)
	cp := *payment
	return &cp, nil
}

func (r *memoryBillingRepo) ListProfilesDueOn(ctx context.Context, day int) ([]Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Profile
	for _, p := range r.profiles {
		if p.Status == ProfileActive && p.BillingDay == day && p.MonthlyFee.IsPositive() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) InsertMonthlyCharge(ctx context.Context, profileID int64, period string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := period + "/" + decimal.NewFromInt(profileID).String()
	if r.billedPeriods[key] {
		return ErrAlreadyBilled
	}
	r.billedPeriods[key] = true
	r.nextChargeID++
	r.charges[r.nextChargeID] = &Charge{
		ID:          r.nextChargeID,
		ProfileID:   profileID,
		Description: "Monthly fee " + period,
		Amount:      amount,
		Status:      ChargePending,
		CreatedAt:   time.Now(),
	}
	r.profiles[profileID].Balance = r.profiles[profileID].Balance.Add(amount)
	return nil
}

func (r *memoryBillingRepo) ListOverdue(ctx context.Context, cutoff time.Time) ([]OverdueAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := make(map[int64]*OverdueAccount)
	for _, c := range r.charges {
		if c.Status != ChargePending || !c.CreatedAt.Before(cutoff) {
			continue
		}
		acc, ok := totals[c.ProfileID]
		if !ok {
			acc = &OverdueAccount{
				ProfileID:    c.ProfileID,
				ClientID:     r.profiles[c.ProfileID].ClientID,
				PendingTotal: decimal.Zero,
				OldestCharge: c.CreatedAt,
			}
			totals[c.ProfileID] = acc
		}
		acc.PendingTotal = acc.PendingTotal.Add(c.Amount)
		if c.CreatedAt.Before(acc.OldestCharge) {
			acc.OldestCharge = c.CreatedAt
		}
	}
	var out []OverdueAccount
	for _, acc := range totals {
		out = append(out, *acc)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *memoryBillingRepo) {
	t.Helper()
	repo := newMemoryBillingRepo()
	return NewService(repo, nil), repo
}

func onboardTestAccount(t *testing.T, svc *Service) *Profile {
	t.Helper()
	profile, _, err := svc.OnboardAccount(context.Background(), OnboardInput{
		ClientID:         42,
		InstallationDate: time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC),
		BillingDay:       10,
		MonthlyFee:       d(t, "500"),
		InstallationCost: d(t, "1500"),
	})
	require.NoError(t, err)
	return profile
}

func TestOnboardAccount(t *testing.T) {
	svc, repo := newTestService(t)

	profile := onboardTestAccount(t, svc)
	requireAmount(t, "1750", profile.Balance) // 250 prorated + 1500 installation
	require.Equal(t, ProfileActive, profile.Status)

	pending, err := repo.ListPendingCharges(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	requireAmount(t, "250", pending[0].Amount)
	requireAmount(t, "1500", pending[1].Amount)
}

func TestOnboardAccountNoProratedChargeWhenZeroDays(t *testing.T) {
	svc, repo := newTestService(t)

	profile, proration, err := svc.OnboardAccount(context.Background(), OnboardInput{
		ClientID:         7,
		InstallationDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		BillingDay:       10,
		MonthlyFee:       d(t, "600"),
		InstallationCost: d(t, "800"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, proration.DaysCharged)
	requireAmount(t, "800", profile.Balance)

	pending, err := repo.ListPendingCharges(context.Background(), profile.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Installation", pending[0].Description)
}

func TestOnboardAccountRejectsInvalidBillingDay(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.OnboardAccount(context.Background(), OnboardInput{
		ClientID:         7,
		InstallationDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		BillingDay:       30,
		MonthlyFee:       d(t, "600"),
	})
	require.ErrorIs(t, err, ErrInvalidBillingDay)
}

func TestRecordPaymentPersistsWholeAllocation(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()

	payment, result, err := svc.RecordPayment(ctx, RecordPaymentInput{
		ProfileID:  profile.ID,
		CashAmount: d(t, "2000"),
		Method:     "cash",
		PaidAt:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, payment.Number)
	require.Len(t, result.ChargesToMarkPaid, 2)
	require.Empty(t, result.AdvanceCharges) // 250 leftover < 500 fee
	requireAmount(t, "-250", result.NewBalance)

	stored, err := repo.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "-250", stored.Balance)

	pending, err := repo.ListPendingCharges(ctx, profile.ID)
	require.NoError(t, err)
	require.Empty(t, pending)

	paid, err := repo.ListCharges(ctx, profile.ID, ChargePaid, 0)
	require.NoError(t, err)
	require.Len(t, paid, 2)
	for _, c := range paid {
		require.NotNil(t, c.PaidDate)
		require.NotNil(t, c.PaymentID)
		require.Equal(t, payment.ID, *c.PaymentID)
	}
}

func TestRecordPaymentCreatesAdvanceCharges(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()

	// 1750 retires both opening charges, 1200 buys two 500 advance
	// months with 200 leftover credit.
	_, result, err := svc.RecordPayment(ctx, RecordPaymentInput{
		ProfileID:  profile.ID,
		CashAmount: d(t, "2950"),
		Method:     "transfer",
		PaidAt:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.AdvanceCharges, 2)
	requireAmount(t, "200", result.Summary.LeftoverCredit)

	paid, err := repo.ListCharges(ctx, profile.ID, ChargePaid, 0)
	require.NoError(t, err)
	require.Len(t, paid, 4)
}

func TestRecordPaymentKeepsConcurrentChargeInBalance(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()

	// A charge lands after the allocation snapshot but before the
	// result is persisted. Its balance bump must survive the payment.
	repo.beforeApply = func() {
		_, err := repo.CreateCharge(ctx, profile.ID, ChargeRecord{Description: "Router swap", Amount: d(t, "80")})
		require.NoError(t, err)
	}

	_, result, err := svc.RecordPayment(ctx, RecordPaymentInput{
		ProfileID:  profile.ID,
		CashAmount: d(t, "1750"),
		Method:     "cash",
		PaidAt:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	requireAmount(t, "0", result.NewBalance) // snapshot view

	stored, err := repo.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "80", stored.Balance)

	pending, err := repo.ListPendingCharges(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Router swap", pending[0].Description)
}

func TestPreviewPaymentDoesNotPersist(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()

	result, err := svc.PreviewPayment(ctx, RecordPaymentInput{
		ProfileID:  profile.ID,
		CashAmount: d(t, "2000"),
		Method:     "cash",
		PaidAt:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.ChargesToMarkPaid, 2)

	stored, err := repo.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "1750", stored.Balance)
	pending, err := repo.ListPendingCharges(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Empty(t, repo.payments)
}

func TestRecordPaymentRejectsEmptyPayment(t *testing.T) {
	svc, _ := newTestService(t)
	profile := onboardTestAccount(t, svc)

	_, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		ProfileID: profile.ID,
		Method:    "cash",
		PaidAt:    time.Now(),
	})
	require.ErrorIs(t, err, ErrEmptyPayment)
}

func TestRecordPaymentRejectsInactiveProfile(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	repo.profiles[profile.ID].Status = ProfileSuspended

	_, _, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		ProfileID:  profile.ID,
		CashAmount: d(t, "100"),
		Method:     "cash",
		PaidAt:     time.Now(),
	})
	require.ErrorIs(t, err, ErrProfileNotActive)
}

func TestRunMonthlyBillingIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	count, err := svc.RunMonthlyBilling(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stored, err := repo.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "2250", stored.Balance) // 1750 + 500 monthly

	// Re-run for the same period bills nothing.
	count, err = svc.RunMonthlyBilling(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRunMonthlyBillingSkipsOtherDays(t *testing.T) {
	svc, _ := newTestService(t)
	onboardTestAccount(t, svc)

	count, err := svc.RunMonthlyBilling(context.Background(), time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestListOverdueAccounts(t *testing.T) {
	svc, repo := newTestService(t)
	profile := onboardTestAccount(t, svc)

	// Age the opening charges past the grace period.
	for _, c := range repo.charges {
		c.CreatedAt = time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)
	}

	overdue, err := svc.ListOverdueAccounts(context.Background(),
		time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 15*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, profile.ID, overdue[0].ProfileID)
	requireAmount(t, "1750", overdue[0].PendingTotal)
}

func TestGetAccountSummaryCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryBillingRepo()
	cache := NewSummaryCache(client, time.Minute)
	svc := NewService(repo, cache)
	profile := onboardTestAccount(t, svc)
	ctx := context.Background()

	summary, err := svc.GetAccountSummary(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "1750", summary.Balance)
	require.Equal(t, 2, summary.PendingCount)
	requireAmount(t, "1750", summary.PendingTotal)

	// Mutate the store behind the cache: the cached snapshot persists
	// until a write through the service invalidates it.
	repo.profiles[profile.ID].Balance = d(t, "999")
	cached, err := svc.GetAccountSummary(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "1750", cached.Balance)

	_, err = svc.CreateCharge(ctx, profile.ID, "Router swap", d(t, "80"))
	require.NoError(t, err)

	fresh, err := svc.GetAccountSummary(ctx, profile.ID)
	require.NoError(t, err)
	requireAmount(t, "1079", fresh.Balance)
	require.Equal(t, 3, fresh.PendingCount)
}
