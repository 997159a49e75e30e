package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Column limits shared by every backend.
const (
	DecimalPrecision = 24
	DecimalScale     = 8
	MaxSymbolLength  = 20
)

var (
	ErrNumericOverflow = errors.New("numeric value out of range")
	ErrValueTooLong    = errors.New("value too long for column")
)

// 10^(precision-scale): the smallest magnitude that no longer fits.
var decimalLimit = decimal.New(1, DecimalPrecision-DecimalScale)

// NormalizeDecimal rounds a DECIMAL(24,8) value half away from zero to 8
// fractional digits and rejects values needing more than 16 integer digits.
// NULL passes through untouched.
func NormalizeDecimal(column string, v decimal.NullDecimal) (decimal.NullDecimal, error) {
	if !v.Valid {
		return v, nil
	}
	r := v.Decimal.Round(DecimalScale)
	if r.Abs().GreaterThanOrEqual(decimalLimit) {
		return decimal.NullDecimal{}, fmt.Errorf("%s=%s exceeds DECIMAL(%d,%d): %w",
			column, v.Decimal.String(), DecimalPrecision, DecimalScale, ErrNumericOverflow)
	}
	return Dec(r), nil
}

// CheckLength enforces the VARCHAR(20) limit on text columns.
func CheckLength(column, v string) error {
	if n := utf8.RuneCountInString(v); n > MaxSymbolLength {
		return fmt.Errorf("%s has %d characters, limit is %d: %w", column, n, MaxSymbolLength, ErrValueTooLong)
	}
	return nil
}
