package service

import (
	"testing"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/shopspring/decimal"
)

// TestImbalanceRatio checks the thinner-over-thicker-side ratio used to flag
// a one-sided CLOB book.
func TestImbalanceRatio(t *testing.T) {
	cases := []struct {
		name string
		a, b float64
		want float64
	}{
		{"balanced book", 100, 100, 1},
		{"thin bid side", 10, 100, 0.1},
		{"thin ask side", 100, 10, 0.1},
		{"zero bid side", 0, 100, 0},
		{"zero both sides", 0, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := imbalanceRatio(decimal.NewFromFloat(tc.a), decimal.NewFromFloat(tc.b))
			want := decimal.NewFromFloat(tc.want)
			if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
				t.Errorf("imbalanceRatio(%v, %v) = %s, want %s", tc.a, tc.b, got, want)
			}
		})
	}
}

// TestSumLevels totals quantity×price across book levels.
func TestSumLevels(t *testing.T) {
	levels := []domain.BookLevel{
		{Price: decimal.NewFromFloat(0.60), Quantity: decimal.NewFromInt(100)},
		{Price: decimal.NewFromFloat(0.55), Quantity: decimal.NewFromInt(50)},
	}
	got := sumLevels(levels)
	want := decimal.NewFromFloat(60 + 27.5)
	if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("sumLevels = %s, want %s", got, want)
	}
}

// TestSumLevels_Empty confirms an empty book sums to zero, not an error.
func TestSumLevels_Empty(t *testing.T) {
	got := sumLevels(nil)
	if !got.IsZero() {
		t.Errorf("sumLevels(nil) = %s, want 0", got)
	}
}
