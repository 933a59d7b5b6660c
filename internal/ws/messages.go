// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypePriceUpdate         MsgType = "price_update"
	MsgTypeBookUpdate          MsgType = "book_update"
	MsgTypeMarketResolved      MsgType = "market_resolved"
	MsgTypeMarketCancelled     MsgType = "market_cancelled"
	MsgTypePrivateBetResolved  MsgType = "private_bet_resolved"
	MsgTypePrivateBetCancelled MsgType = "private_bet_cancelled"
	MsgTypeError               MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// PriceUpdateMessage — broadcast after every LMSR trade.
// ──────────────────────────────────────────────────────────────────────────────

// PriceUpdateMessage carries an LMSR market's freshly recomputed price.
type PriceUpdateMessage struct {
	Type      MsgType         `json:"type"`
	MarketID  uuid.UUID       `json:"market_id"`
	PriceYes  decimal.Decimal `json:"price_yes"`
	PriceNo   decimal.Decimal `json:"price_no"`
	Timestamp time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BookUpdateMessage — broadcast after every CLOB fill or cancel.
// ──────────────────────────────────────────────────────────────────────────────

// BookUpdateMessage carries the refreshed order-book read model.
type BookUpdateMessage struct {
	Type      MsgType          `json:"type"`
	MarketID  uuid.UUID        `json:"market_id"`
	Bids      []domain.BookLevel `json:"bids"`
	Asks      []domain.BookLevel `json:"asks"`
	LastPrice decimal.Decimal  `json:"last_price"`
	Timestamp time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketResolvedMessage / MarketCancelledMessage
// ──────────────────────────────────────────────────────────────────────────────

// MarketResolvedMessage tells clients which outcome a market settled on.
type MarketResolvedMessage struct {
	Type      MsgType        `json:"type"`
	MarketID  uuid.UUID      `json:"market_id"`
	Outcome   domain.Outcome `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarketCancelledMessage tells clients a market was cancelled and refunded.
type MarketCancelledMessage struct {
	Type      MsgType   `json:"type"`
	MarketID  uuid.UUID `json:"market_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PrivateBetResolvedMessage / PrivateBetCancelledMessage
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBetResolvedMessage tells a bet's participants which side won.
type PrivateBetResolvedMessage struct {
	Type      MsgType        `json:"type"`
	BetID     uuid.UUID      `json:"bet_id"`
	Outcome   domain.Outcome `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
}

// PrivateBetCancelledMessage tells a bet's participants it was refunded.
type PrivateBetCancelledMessage struct {
	Type      MsgType   `json:"type"`
	BetID     uuid.UUID `json:"bet_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
