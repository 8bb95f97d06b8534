package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits every stored amount carries.
const MoneyScale = 2

// ParseMoney parses a decimal string into a fixed-point amount.
// It rejects non-numeric input (including NaN and Inf spellings) and values
// with more than MoneyScale fractional digits instead of silently rounding.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !IsMoney(d) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", s, MoneyScale)
	}
	return RoundMoney(d), nil
}

// IsMoney reports whether d is representable with MoneyScale fractional digits.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// RoundMoney rounds d half away from zero to MoneyScale digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// MaxZero returns d when positive and zero otherwise.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LineTotal returns unitPrice × qty rounded to MoneyScale.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}

// FormatMoney renders d with exactly MoneyScale fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
