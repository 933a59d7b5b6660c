package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a user's holding of one outcome's shares in one market.
// Unique per (user, market, outcome); created lazily on first trade.
type Position struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UserID         uuid.UUID       `json:"user_id"         db:"user_id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	Outcome        Outcome         `json:"outcome"         db:"outcome"`
	Shares         decimal.Decimal `json:"shares"          db:"shares"`
	ReservedShares decimal.Decimal `json:"reserved_shares" db:"reserved_shares"`
	TotalCost      decimal.Decimal `json:"total_cost"      db:"total_cost"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
}

// AvgPrice returns total_cost/shares, or zero when shares is zero.
func (p *Position) AvgPrice() decimal.Decimal {
	if p.Shares.IsZero() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Shares).Round(4)
}

// AvailableShares returns shares not earmarked for a resting sell order.
func (p *Position) AvailableShares() decimal.Decimal {
	return p.Shares.Sub(p.ReservedShares)
}
