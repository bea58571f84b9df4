package parser

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrValueOverflow is returned when a normalized value does not fit the
// NUMERIC(20,5) storage columns.
var ErrValueOverflow = errors.New("normalized value exceeds storage width")

// ErrNonPositiveRate is returned when either leg of a raw rate is zero
var ErrNonPositiveRate = errors.New("rate legs must be non-zero")

var (
	one = decimal.NewFromInt(1)
	// NUMERIC(20,5) holds values strictly below 10^15
	maxStorable = decimal.New(1, 15)
	hundred     = decimal.NewFromInt(100)
)

// NormalizeRate converts a raw (in, out) pair into canonical storage
// form: absolute values, ratio pinned so exactly one leg equals 1, fee
// percentage subtracted from the unpinned leg, both legs quantized to
// 5 decimal digits (round half up). Applying it to an already
// normalized pair is a no-op.
func NormalizeRate(in, out decimal.Decimal, feePercent *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	in = in.Abs()
	out = out.Abs()

	if in.IsZero() || out.IsZero() {
		return decimal.Zero, decimal.Zero, ErrNonPositiveRate
	}

	if !in.Equal(one) {
		out = out.Div(in)
		in = one
	}
	if out.LessThan(one) {
		in = one.Div(out)
		out = one
	}

	if feePercent != nil {
		fee := *feePercent
		if in.Equal(one) {
			out = out.Sub(out.Mul(fee).Div(hundred))
		} else {
			in = in.Sub(in.Mul(fee).Div(hundred))
		}
	}

	in = in.Round(5)
	out = out.Round(5)

	if in.GreaterThanOrEqual(maxStorable) || out.GreaterThanOrEqual(maxStorable) {
		return decimal.Zero, decimal.Zero, ErrValueOverflow
	}
	return in, out, nil
}
