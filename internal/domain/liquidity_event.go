package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LiquidityEventKind classifies an observation recorded by the house
// exposure monitor (see internal/service/liquidity_monitor.go — adapted
// from the teacher's platform market-maker; see DESIGN.md).
type LiquidityEventKind string

const (
	// LiquidityEventLMSRDepth flags an LMSR market whose liquidity_b is below
	// the configured minimum (the book equivalent of a shallow pool).
	LiquidityEventLMSRDepth LiquidityEventKind = "lmsr_depth_warning"
	// LiquidityEventCLOBImbalance flags a CLOB market whose resting bid/ask
	// reservation totals are heavily skewed to one side.
	LiquidityEventCLOBImbalance LiquidityEventKind = "clob_imbalance_warning"
	// LiquidityEventReserveLow flags that aggregate house exposure across all
	// open markets exceeds the configured reserve-safety threshold.
	LiquidityEventReserveLow LiquidityEventKind = "reserve_low_warning"
)

// LiquidityEvent is an append-only observation row written by the house
// exposure monitor for the back-office risk dashboard.
type LiquidityEvent struct {
	ID        uuid.UUID          `json:"id"         db:"id"`
	MarketID  uuid.UUID          `json:"market_id"  db:"market_id"`
	Kind      LiquidityEventKind `json:"kind"       db:"kind"`
	Detail    string             `json:"detail"     db:"detail"`
	Magnitude decimal.Decimal    `json:"magnitude"  db:"magnitude"` // e.g. imbalance ratio or exposure amount
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}
