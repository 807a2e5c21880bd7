package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// prorationDenominator is the fixed 30-day month used for the daily
// rate, regardless of the actual length of the installation month.
var prorationDenominator = decimal.NewFromInt(30)

// CalculateProration computes the first-period charge for a service
// installed off-cycle. When the installation day is on or before the
// billing day the first billing date falls in the same month and the
// prorated span runs up to it. Otherwise the first billing date is the
// billing day of the following month and the span covers the rest of
// the installation month plus billingDay-1 days; the billing day
// itself starts the new cycle and is excluded.
func CalculateProration(installationDate time.Time, billingDay int, monthlyFee decimal.Decimal) (ProrationResult, error) {
	if billingDay < 1 || billingDay > 28 {
		return ProrationResult{}, ErrInvalidBillingDay
	}
	if monthlyFee.IsNegative() {
		return ProrationResult{}, ErrNegativeFee
	}

	installDay := installationDate.Day()
	year, month := installationDate.Year(), installationDate.Month()

	var daysCharged int
	var firstBillingDate time.Time
	if installDay <= billingDay {
		daysCharged = billingDay - installDay
		firstBillingDate = time.Date(year, month, billingDay, 0, 0, 0, 0, installationDate.Location())
	} else {
		daysCharged = (lastDayOfMonth(year, month) - installDay) + (billingDay - 1)
		firstBillingDate = time.Date(year, month+1, billingDay, 0, 0, 0, 0, installationDate.Location())
	}

	prorated := monthlyFee.
		Mul(decimal.NewFromInt(int64(daysCharged))).
		Div(prorationDenominator).
		Round(2)

	return ProrationResult{
		ProratedAmount:   prorated,
		DaysCharged:      daysCharged,
		FirstBillingDate: firstBillingDate,
	}, nil
}

// CalculateInitialBalance sums the opening debt of a freshly onboarded
// account: prorated first period, installation cost and any extras.
func CalculateInitialBalance(proratedAmount, installationCost, additionalCharges decimal.Decimal) decimal.Decimal {
	return proratedAmount.Add(installationCost).Add(additionalCharges)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
