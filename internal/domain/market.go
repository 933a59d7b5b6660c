// Package domain defines the core business entities and types for the
// PRC prediction-market trading core.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market. Transitions are
// monotonically forward; resolved/cancelled are terminal.
type MarketStatus string

const (
	MarketOpen          MarketStatus = "open"
	MarketTradingClosed  MarketStatus = "trading_closed"
	MarketResolved       MarketStatus = "resolved"
	MarketCancelled      MarketStatus = "cancelled"
)

// Mechanism selects which market-maker subsystem governs a market.
type Mechanism string

const (
	MechanismLMSR Mechanism = "lmsr"
	MechanismCLOB Mechanism = "clob"
)

// Outcome represents one of the two terminal outcomes of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// IsValid returns true if the outcome is a recognised terminal value.
func (o Outcome) IsValid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MinBookPrice and MaxBookPrice bound every CLOB order price. LMSR prices
// are not clamped to them.
var (
	MinBookPrice = decimal.NewFromFloat(0.01)
	MaxBookPrice = decimal.NewFromFloat(0.99)
)

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market represents a single binary-outcome question. Exactly one of the
// LMSR fields (QYes/QNo/LiquidityB) or the CLOB field (LastTradePriceYes) is
// actively maintained, selected by Mechanism.
type Market struct {
	ID        uuid.UUID    `json:"id"         db:"id"`
	Question  string       `json:"question"   db:"question"`
	Status    MarketStatus `json:"status"     db:"status"`
	Mechanism Mechanism    `json:"mechanism"  db:"mechanism"`

	// LMSR state
	QYes       decimal.Decimal `json:"q_yes"       db:"q_yes"`
	QNo        decimal.Decimal `json:"q_no"        db:"q_no"`
	LiquidityB decimal.Decimal `json:"liquidity_b" db:"liquidity_b"`

	// CLOB state
	LastTradePriceYes decimal.Decimal `json:"last_trade_price_yes" db:"last_trade_price_yes"`

	ClosesAt          time.Time  `json:"closes_at"          db:"closes_at"`
	ResolutionOutcome *Outcome   `json:"resolution_outcome" db:"resolution_outcome"`
	ResolvedAt        *time.Time `json:"resolved_at"        db:"resolved_at"`

	MinBet decimal.Decimal `json:"min_bet" db:"min_bet"`
	MaxBet decimal.Decimal `json:"max_bet" db:"max_bet"`

	TotalVolume  decimal.Decimal `json:"total_volume"  db:"total_volume"`
	TotalTrades  int64           `json:"total_trades"  db:"total_trades"`
	TotalTraders int64           `json:"total_traders" db:"total_traders"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOpen returns true while the market is accepting trades/orders.
func (m *Market) IsOpen() bool {
	return m.Status == MarketOpen
}

// IsResolved returns true after the market has been terminally settled.
func (m *Market) IsResolved() bool {
	return m.Status == MarketResolved
}

// IsTerminal returns true for resolved or cancelled markets.
func (m *Market) IsTerminal() bool {
	return m.Status == MarketResolved || m.Status == MarketCancelled
}

// LMSRState returns the LMSR pricing state (q_yes, q_no, b) for this market.
// Callers must only invoke this for Mechanism == MechanismLMSR.
func (m *Market) LMSRState() (qYes, qNo, b float64) {
	qy, _ := m.QYes.Float64()
	qn, _ := m.QNo.Float64()
	bb, _ := m.LiquidityB.Float64()
	return qy, qn, bb
}

// ──────────────────────────────────────────────────────────────────────────────
// PriceHistory
// ──────────────────────────────────────────────────────────────────────────────

// PriceHistory is an append-only time series of LMSR price points, recorded
// after every AMM trade.
type PriceHistory struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	MarketID  uuid.UUID       `json:"market_id"  db:"market_id"`
	PriceYes  decimal.Decimal `json:"price_yes"  db:"price_yes"`
	PriceNo   decimal.Decimal `json:"price_no"   db:"price_no"`
	QYes      decimal.Decimal `json:"q_yes"      db:"q_yes"`
	QNo       decimal.Decimal `json:"q_no"       db:"q_no"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
