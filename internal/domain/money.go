package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the display format of currency, e.g. "$1,500.00".
// Digits beyond the currency's minor unit are truncated. Amounts whose minor units
// do not fit in an int64 are rendered plainly, e.g. "1e20 USD" as "100000000000000000000.00 USD".
func FormatMoney(amount decimal.Decimal, currency string) string {
	// money.New never returns a nil currency, unlike money.GetCurrency
	cur := money.New(0, currency).Currency()
	fraction := int32(cur.Fraction)
	minor := amount.Shift(fraction).Truncate(0)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		return amount.Truncate(fraction).StringFixed(fraction) + " " + cur.Code
	}
	return cur.Formatter().Format(minor.IntPart())
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// NormalizeCurrency upper-cases code, defaulting to the base currency when empty.
// Codes unknown to ISO 4217 are rejected.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return BaseCurrency, nil
	}
	if money.GetCurrency(code) == nil {
		return "", NewValidationError("currency", fmt.Sprintf("unknown currency %q", code))
	}
	return code, nil
}
