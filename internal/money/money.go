package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has more than two decimal places")
)

// ParseMinor converts a decimal string such as "12.50" into minor units
// (1250). At most two decimal places are accepted.
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := value.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrTooManyDecimals
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units as a scale-2 decimal string.
func FormatMinor(value int64) string {
	return decimal.New(value, -2).StringFixed(2)
}
