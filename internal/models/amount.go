package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// NanoPerUnit is the number of nano units in one whole unit.
const NanoPerUnit = 1_000_000_000

var nanoExp = decimal.New(1, 9)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a human amount like "10.5" into nano units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}

	nano := d.Mul(nanoExp)
	// more than 9 fractional digits
	if !nano.IsInteger() {
		return 0, ErrInvalidAmount
	}
	if nano.GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, ErrInvalidAmount
	}
	return nano.IntPart(), nil
}

// FormatAmount renders nano units as a whole-unit decimal string.
func FormatAmount(nano int64) string {
	return decimal.New(nano, -9).String()
}
