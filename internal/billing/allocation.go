package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocatePayment distributes cash plus consumed credit across pending
// charges, oldest first. A charge is either covered in full or not at
// all; the first charge the remainder cannot cover stops the walk and
// any shortfall stays on the account balance rather than being split
// per charge. When the remainder exceeds every outstanding charge and
// the profile carries a monthly fee, whole multiples of the fee become
// pre-paid advance charges dated to the months following ReferenceDate.
//
// The function is pure: it never reads a clock or any store, and the
// returned result must be persisted by the caller as one atomic unit.
func AllocatePayment(in AllocationInput) (AllocationResult, error) {
	if in.CashAmount.IsNegative() || in.CreditToUse.IsNegative() {
		return AllocationResult{}, ErrNegativeAmount
	}
	total := in.CashAmount.Add(in.CreditToUse)
	if total.IsZero() {
		return AllocationResult{}, ErrEmptyPayment
	}
	available := decimal.Zero
	if in.CurrentBalance.IsNegative() {
		available = in.CurrentBalance.Neg()
	}
	if in.CreditToUse.GreaterThan(available) {
		return AllocationResult{}, ErrCreditExceedsAvailable
	}

	remaining := total
	var paid []PaidCharge
	covered := 0
	for i, charge := range in.PendingCharges {
		if remaining.LessThan(charge.Amount) {
			covered = i
			break
		}
		remaining = remaining.Sub(charge.Amount)
		paid = append(paid, PaidCharge{ChargeID: charge.ID, PaidDate: in.ReferenceDate})
		covered = i + 1
	}

	stillPending := decimal.Zero
	for _, charge := range in.PendingCharges[covered:] {
		stillPending = stillPending.Add(charge.Amount)
	}

	var advances []AdvanceCharge
	leftover := decimal.Zero
	if remaining.IsPositive() && remaining.GreaterThan(stillPending) {
		excess := remaining.Sub(stillPending)
		if in.MonthlyFee.IsPositive() {
			months := excess.Div(in.MonthlyFee).Floor()
			leftover = excess.Sub(in.MonthlyFee.Mul(months))
			for i := int64(1); i <= months.IntPart(); i++ {
				billingMonth := in.ReferenceDate.AddDate(0, int(i), 0)
				advances = append(advances, AdvanceCharge{
					Description:  fmt.Sprintf("Monthly fee (advance) %s", billingMonth.Format("2006-01")),
					Amount:       in.MonthlyFee,
					BillingMonth: billingMonth,
				})
			}
		} else {
			leftover = excess
		}
	}

	// Balance moves by cash in and credit consumed, independent of the
	// per-charge bookkeeping above.
	newBalance := in.CurrentBalance.Add(in.CreditToUse).Sub(in.CashAmount)

	return AllocationResult{
		ChargesToMarkPaid: paid,
		AdvanceCharges:    advances,
		NewBalance:        newBalance,
		Summary: AllocationSummary{
			ChargesCovered: len(paid),
			AdvanceMonths:  len(advances),
			CashApplied:    in.CashAmount,
			CreditApplied:  in.CreditToUse,
			LeftoverCredit: leftover,
		},
	}, nil
}
