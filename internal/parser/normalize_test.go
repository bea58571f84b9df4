package parser

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestNormalizeRate(t *testing.T) {
	fivePercent := decimal.NewFromInt(5)

	tests := []struct {
		name    string
		in      string
		out     string
		fee     *decimal.Decimal
		wantIn  string
		wantOut string
		wantErr error
	}{
		{
			name: "already normalized",
			in:   "1", out: "65000",
			wantIn: "1", wantOut: "65000",
		},
		{
			name: "pin in leg to one",
			in:   "2", out: "130000",
			wantIn: "1", wantOut: "65000",
		},
		{
			name: "invert when out below one",
			in:   "1", out: "0.00002",
			wantIn: "50000", wantOut: "1",
		},
		{
			name: "negative legs use absolute values",
			in:   "-1", out: "-400",
			wantIn: "1", wantOut: "400",
		},
		{
			name: "fee subtracted from out leg",
			in:   "1", out: "100",
			fee:    &fivePercent,
			wantIn: "1", wantOut: "95",
		},
		{
			name: "fee subtracted from in leg when out is pinned",
			in:   "1", out: "0.5",
			fee:    &fivePercent,
			wantIn: "1.9", wantOut: "1",
		},
		{
			name: "result rounded to five places",
			in:   "3", out: "1000",
			wantIn: "1", wantOut: "333.33333",
		},
		{
			name: "zero in leg rejected",
			in:   "0", out: "100",
			wantErr: ErrNonPositiveRate,
		},
		{
			name: "zero out leg rejected",
			in:   "1", out: "0",
			wantErr: ErrNonPositiveRate,
		},
		{
			name: "overflowing value rejected",
			in:   "1", out: "2000000000000000",
			wantErr: ErrValueOverflow,
		},
		{
			name: "tiny rate overflowing after inversion rejected",
			in:   "1", out: "0.0000000000000005",
			wantErr: ErrValueOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotIn, gotOut, err := NormalizeRate(dec(t, tt.in), dec(t, tt.out), tt.fee)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NormalizeRate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeRate() unexpected error: %v", err)
			}
			if !gotIn.Equal(dec(t, tt.wantIn)) {
				t.Errorf("in = %s, want %s", gotIn, tt.wantIn)
			}
			if !gotOut.Equal(dec(t, tt.wantOut)) {
				t.Errorf("out = %s, want %s", gotOut, tt.wantOut)
			}
		})
	}
}

func TestNormalizeRateIdempotent(t *testing.T) {
	in, out, err := NormalizeRate(dec(t, "7"), dec(t, "91000"), nil)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	in2, out2, err := NormalizeRate(in, out, nil)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !in.Equal(in2) || !out.Equal(out2) {
		t.Errorf("second pass changed values: (%s, %s) -> (%s, %s)", in, out, in2, out2)
	}
}
