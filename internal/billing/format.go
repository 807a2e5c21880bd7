package billing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/shopspring/decimal"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with locale-aware grouping
// and two decimals. All amounts are in the single account currency.
func FormatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("%v", number.Decimal(f, number.Scale(2)))
}

// Describe renders the operator-facing summary of an allocation.
func (s AllocationSummary) Describe() string {
	msg := printer.Sprintf("%d charge(s) covered with %s cash and %s credit",
		s.ChargesCovered, FormatAmount(s.CashApplied), FormatAmount(s.CreditApplied))
	if s.AdvanceMonths > 0 {
		msg += printer.Sprintf("; %d month(s) paid in advance", s.AdvanceMonths)
	}
	if s.LeftoverCredit.IsPositive() {
		msg += printer.Sprintf("; %s left as credit", FormatAmount(s.LeftoverCredit))
	}
	return msg
}
