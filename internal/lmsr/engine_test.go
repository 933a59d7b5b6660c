package lmsr_test

import (
	"math"
	"testing"

	"github.com/evetabi/prediction/internal/lmsr"
)

func TestPrice_SumsToOne(t *testing.T) {
	states := []lmsr.State{
		{QYes: 0, QNo: 0, B: 100},
		{QYes: 49.245, QNo: 0, B: 100},
		{QYes: 10000, QNo: 0, B: 100},
		{QYes: 500, QNo: 500, B: 50},
	}
	for _, s := range states {
		py := lmsr.Price(s, lmsr.Yes)
		pn := lmsr.Price(s, lmsr.No)
		if math.Abs(py+pn-1) > 1e-9 {
			t.Errorf("Price(yes)+Price(no) = %v, want 1 ± 1e-9 for state %+v", py+pn, s)
		}
	}
}

func TestPrice_ZeroState_IsHalf(t *testing.T) {
	s := lmsr.State{QYes: 0, QNo: 0, B: 100}
	py := lmsr.Price(s, lmsr.Yes)
	pn := lmsr.Price(s, lmsr.No)
	if math.Abs(py-0.5) > 1e-9 || math.Abs(pn-0.5) > 1e-9 {
		t.Errorf("zero state should price both outcomes at 0.5, got yes=%v no=%v", py, pn)
	}
}

func TestPrice_LargeQOverB_StaysFinite(t *testing.T) {
	s := lmsr.State{QYes: 10000, QNo: 0, B: 100}
	py := lmsr.Price(s, lmsr.Yes)
	pn := lmsr.Price(s, lmsr.No)
	if math.IsNaN(py) || math.IsInf(py, 0) || math.IsNaN(pn) || math.IsInf(pn, 0) {
		t.Fatalf("expected finite prices for large q/b, got yes=%v no=%v", py, pn)
	}
	if math.Abs(py+pn-1) > 1e-9 {
		t.Errorf("large q/b prices should still sum to 1, got %v", py+pn)
	}
	if py < 0.999 {
		t.Errorf("overwhelming yes volume should push price near 1, got %v", py)
	}
}

func TestSharesForAmount_ZeroAmount(t *testing.T) {
	s := lmsr.State{QYes: 0, QNo: 0, B: 100}
	if got := lmsr.SharesForAmount(s, lmsr.Yes, 0); got != 0 {
		t.Errorf("SharesForAmount(amount=0) = %v, want 0", got)
	}
	if got := lmsr.SharesForAmount(s, lmsr.Yes, -5); got != 0 {
		t.Errorf("SharesForAmount(amount<0) = %v, want 0", got)
	}
}

// Concrete scenario 1 from spec.md §8: q_yes=0, q_no=0, b=100; buy YES for
// net 49.00 PRC (50 gross, 2% fee). Expected shares ≈ 49.245, post-trade
// price_yes ≈ 0.622, within the binary search's ~1e-6 PRC tolerance.
func TestSharesForAmount_ConcreteScenario(t *testing.T) {
	s := lmsr.State{QYes: 0, QNo: 0, B: 100}
	net := 49.00
	shares := lmsr.SharesForAmount(s, lmsr.Yes, net)

	wantShares := 49.245
	if math.Abs(shares-wantShares) > 1e-2 {
		t.Errorf("shares = %v, want ~%v", shares, wantShares)
	}

	gotCost := lmsr.CostToBuy(s, lmsr.Yes, shares)
	if math.Abs(gotCost-net) > 1e-4 {
		t.Errorf("CostToBuy(shares) = %v, want ~%v (inverse of binary search)", gotCost, net)
	}

	after := lmsr.State{QYes: s.QYes + shares, QNo: s.QNo, B: s.B}
	priceYes := lmsr.Price(after, lmsr.Yes)
	wantPrice := 0.622
	if math.Abs(priceYes-wantPrice) > 1e-2 {
		t.Errorf("post-trade price_yes = %v, want ~%v", priceYes, wantPrice)
	}
}

// Round-trip law (spec.md §8 property 2): selling exactly the shares just
// bought on the same pre-trade state should return within 1e-6 of the cost
// that was paid.
func TestRoundTrip_BuyThenSell(t *testing.T) {
	s := lmsr.State{QYes: 120, QNo: 80, B: 75}
	amount := 30.0
	shares := lmsr.SharesForAmount(s, lmsr.Yes, amount)
	paid := lmsr.CostToBuy(s, lmsr.Yes, shares)

	after := lmsr.State{QYes: s.QYes + shares, QNo: s.QNo, B: s.B}
	revenue := lmsr.SaleRevenue(after, lmsr.Yes, shares)

	if math.Abs(revenue-paid) > 1e-6 {
		t.Errorf("round-trip mismatch: paid=%v revenue=%v", paid, revenue)
	}
}

func TestCostToBuy_StrictlyPositive(t *testing.T) {
	s := lmsr.State{QYes: 0, QNo: 0, B: 50}
	c := lmsr.CostToBuy(s, lmsr.Yes, 10)
	if c <= 0 {
		t.Errorf("CostToBuy with positive delta should be strictly positive, got %v", c)
	}
}

func TestPrice_SkewedState_FavorsHeavierOutcome(t *testing.T) {
	s := lmsr.State{QYes: 200, QNo: 10, B: 50}
	py := lmsr.Price(s, lmsr.Yes)
	pn := lmsr.Price(s, lmsr.No)
	if py <= pn {
		t.Errorf("outcome with more shares issued should have higher price: yes=%v no=%v", py, pn)
	}
}
