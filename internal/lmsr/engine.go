// Package lmsr implements the Logarithmic Market Scoring Rule pricing and
// cost engine: pure functions over a market state (q_yes, q_no, b).
//
// Money arithmetic elsewhere in this module uses shopspring/decimal for
// exactness, but LMSR intermediate computation uses float64 throughout —
// per SPEC_FULL.md §6.2 (decimal row), exactness is not required mid-computation
// here; results are re-quantised to decimal.Decimal at the AMM Trader
// boundary (internal/service.AMMTrader).
package lmsr

import "math"

// State is the LMSR market state: q_yes and q_no are cumulative shares
// issued on each outcome, b is the liquidity parameter (b > 0 — larger b
// means deeper liquidity and flatter price response to trades).
type State struct {
	QYes float64
	QNo  float64
	B    float64
}

// BinarySearchIterations is the fixed iteration count for SharesForAmount's
// binary search, grounded on original_source/backend/app/services/market_maker/lmsr.py.
// The original performs no early-exit tolerance check; it always runs this
// many iterations, which converges to roughly 1e-6 PRC error over the
// search interval used here. This is preserved exactly rather than
// "improved" with a tolerance-based early exit.
const BinarySearchIterations = 50

// cost computes C(q_yes, q_no) = b * log(exp(q_yes/b) + exp(q_no/b)) via the
// logsumexp identity, subtracting the max exponent argument to keep the
// exponentials from overflowing when q/b is large.
func cost(qYes, qNo, b float64) float64 {
	a := qYes / b
	c := qNo / b
	m := math.Max(a, c)
	return b * (m + math.Log(math.Exp(a-m)+math.Exp(c-m)))
}

// Cost returns the LMSR cost function C(q_yes, q_no) for the given state.
func Cost(s State) float64 {
	return cost(s.QYes, s.QNo, s.B)
}

// Price returns the instantaneous price of outcome (softmax over q/b,
// numerically stabilised by subtracting the max exponent argument). The
// two outcome prices always sum to 1 within 1e-9.
func Price(s State, outcome Outcome) float64 {
	a := s.QYes / s.B
	c := s.QNo / s.B
	m := math.Max(a, c)
	eYes := math.Exp(a - m)
	eNo := math.Exp(c - m)
	sum := eYes + eNo
	if outcome == Yes {
		return eYes / sum
	}
	return eNo / sum
}

// CostToBuy returns the PRC cost of adding deltaShares to outcome's q,
// C(q') - C(q). Strictly positive for positive deltaShares.
func CostToBuy(s State, outcome Outcome, deltaShares float64) float64 {
	before := cost(s.QYes, s.QNo, s.B)
	qYes, qNo := s.QYes, s.QNo
	if outcome == Yes {
		qYes += deltaShares
	} else {
		qNo += deltaShares
	}
	after := cost(qYes, qNo, s.B)
	return after - before
}

// SaleRevenue returns the PRC proceeds from removing deltaShares from
// outcome's q: C(q) - C(q'). Round-trip law: selling exactly the shares
// just bought on the same starting state yields within 1e-6 of the cost
// that was paid to buy them.
func SaleRevenue(s State, outcome Outcome, deltaShares float64) float64 {
	before := cost(s.QYes, s.QNo, s.B)
	qYes, qNo := s.QYes, s.QNo
	if outcome == Yes {
		qYes -= deltaShares
	} else {
		qNo -= deltaShares
	}
	after := cost(qYes, qNo, s.B)
	return before - after
}

// SharesForAmount inverts CostToBuy via monotonic binary search: finds the
// shares quantity whose cost equals amount. Search interval starts at
// [0, 10*amount] and always runs exactly BinarySearchIterations steps.
// Returns 0 when amount <= 0.
func SharesForAmount(s State, outcome Outcome, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	low, high := 0.0, amount*10
	mid := low
	for i := 0; i < BinarySearchIterations; i++ {
		mid = (low + high) / 2
		c := CostToBuy(s, outcome, mid)
		if c < amount {
			low = mid
		} else {
			high = mid
		}
	}
	return mid
}

// Outcome is the LMSR-local mirror of domain.Outcome, kept dependency-free
// so this package has no import on internal/domain (pure math library).
type Outcome int

const (
	Yes Outcome = iota
	No
)
