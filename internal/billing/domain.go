package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus enumerates charge lifecycle states.
type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargePaid      ChargeStatus = "paid"
	ChargeCancelled ChargeStatus = "cancelled"
)

// ProfileStatus enumerates billing profile states.
type ProfileStatus string

const (
	ProfileActive    ProfileStatus = "active"
	ProfileSuspended ProfileStatus = "suspended"
	ProfileClosed    ProfileStatus = "closed"
)

// Profile holds the recurring billing terms of a client account.
// Balance is signed: positive means the client owes, negative is
// credit in their favour.
type Profile struct {
	ID               int64
	ClientID         int64
	InstallationDate time.Time
	BillingDay       int
	MonthlyFee       decimal.Decimal
	Balance          decimal.Decimal
	Status           ProfileStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableCredit returns the credit usable against future payments.
func (p Profile) AvailableCredit() decimal.Decimal {
	if p.Balance.IsNegative() {
		return p.Balance.Neg()
	}
	return decimal.Zero
}

// Charge is a billable line item attached to a billing profile.
type Charge struct {
	ID          int64
	ProfileID   int64
	Description string
	Amount      decimal.Decimal
	Status      ChargeStatus
	CreatedAt   time.Time
	PaidDate    *time.Time
	PaymentID   *int64
}

// Payment records money received, possibly combined with credit
// balance consumption. Amount is the cash portion only.
type Payment struct {
	ID         int64
	ProfileID  int64
	Number     string
	Amount     decimal.Decimal
	CreditUsed decimal.Decimal
	Method     string
	Note       string
	PaidAt     time.Time
	CreatedAt  time.Time
}

// ProrationResult is the outcome of first-period proration.
type ProrationResult struct {
	ProratedAmount   decimal.Decimal
	DaysCharged      int
	FirstBillingDate time.Time
}

// AllocationInput is a consistent snapshot of everything the payment
// allocator needs. PendingCharges must be ordered oldest first; the
// allocator never reorders them.
type AllocationInput struct {
	CashAmount     decimal.Decimal
	CreditToUse    decimal.Decimal
	CurrentBalance decimal.Decimal
	PendingCharges []Charge
	MonthlyFee     decimal.Decimal
	ReferenceDate  time.Time
}

// PaidCharge identifies a pending charge the allocator fully covered.
type PaidCharge struct {
	ChargeID int64
	PaidDate time.Time
}

// AdvanceCharge is a future billing cycle paid ahead of its due date.
type AdvanceCharge struct {
	Description  string
	Amount       decimal.Decimal
	BillingMonth time.Time
}

// AllocationSummary carries the counts a consumer shows to operators.
type AllocationSummary struct {
	ChargesCovered int
	AdvanceMonths  int
	CashApplied    decimal.Decimal
	CreditApplied  decimal.Decimal
	LeftoverCredit decimal.Decimal
}

// AllocationResult is the full outcome of a payment allocation. The
// consumer must persist charge updates, advance charges and the new
// balance as a single atomic unit; applying them piecemeal breaks the
// balance/charges invariant.
type AllocationResult struct {
	ChargesToMarkPaid []PaidCharge
	AdvanceCharges    []AdvanceCharge
	NewBalance        decimal.Decimal
	Summary           AllocationSummary
}
