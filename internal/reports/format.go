package reports

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands separators and two decimals.
// Negative amounts are wrapped in parentheses: -1234.5 becomes (1,234.50).
func FormatAmount(amount decimal.Decimal) string {
	abs := amount.Round(2).Abs()
	whole := abs.Truncate(0)
	cents := abs.Sub(whole).Shift(2).IntPart()
	text := fmt.Sprintf("%s.%02d", amountPrinter.Sprintf("%d", whole.IntPart()), cents)
	if amount.Round(2).IsNegative() {
		return "(" + text + ")"
	}
	return text
}
