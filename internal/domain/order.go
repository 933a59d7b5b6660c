package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the book-normalised side of a CLOB order. The book is always
// two-sided in YES terms; user-facing Intent is translated to Side/Price by
// TranslateIntent.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus tracks fill progress. status=filled iff filled_quantity ==
// quantity; cancelled and filled are terminal.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
)

// Intent is the user-facing four-valued action; the book stores it
// alongside the translated Side/Price for settlement-mode derivation.
type Intent string

const (
	IntentBuyYes  Intent = "buy_yes"
	IntentBuyNo   Intent = "buy_no"
	IntentSellYes Intent = "sell_yes"
	IntentSellNo  Intent = "sell_no"
)

// IsValid reports whether i is one of the four recognised intents.
func (i Intent) IsValid() bool {
	switch i {
	case IntentBuyYes, IntentBuyNo, IntentSellYes, IntentSellNo:
		return true
	}
	return false
}

// SettlementType is the mode under which a matched fill is settled, derived
// from the pair of original intents at match time.
type SettlementType string

const (
	SettlementTransfer SettlementType = "transfer"
	SettlementMint     SettlementType = "mint"
	SettlementBurn     SettlementType = "burn"
)

// Order is a single resting or filled CLOB order.
type Order struct {
	ID              uuid.UUID       `json:"id"               db:"id"`
	UserID          uuid.UUID       `json:"user_id"          db:"user_id"`
	MarketID        uuid.UUID       `json:"market_id"        db:"market_id"`
	Side            OrderSide       `json:"side"             db:"side"`
	Price           decimal.Decimal `json:"price"            db:"price"`
	Quantity        decimal.Decimal `json:"quantity"         db:"quantity"`
	FilledQuantity  decimal.Decimal `json:"filled_quantity"  db:"filled_quantity"`
	Status          OrderStatus     `json:"status"           db:"status"`
	OriginalIntent  Intent          `json:"original_intent"  db:"original_intent"`
	CreatedAt       time.Time       `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"       db:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsTerminal returns true for filled or cancelled orders.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}

// IsOpenForMatching returns true for orders that can still absorb fills.
func (o *Order) IsOpenForMatching() bool {
	return o.Status == OrderOpen || o.Status == OrderPartiallyFilled
}

// ReservationPrice returns the per-share PRC price at which this order's
// collateral was reserved: order.price for YES-sided intents, 1-order.price
// for the NO-sided buy_no intent (spec.md §4.3 cancellation rule).
func (o *Order) ReservationPrice() decimal.Decimal {
	if o.OriginalIntent == IntentBuyNo {
		return decimal.NewFromInt(1).Sub(o.Price)
	}
	return o.Price
}

// ReservesBalance reports whether this order reserves PRC balance (true) or
// share inventory (false), per the intent-translation table in spec.md §4.3.
func (o *Order) ReservesBalance() bool {
	return o.OriginalIntent == IntentBuyYes || o.OriginalIntent == IntentBuyNo
}

// ReservedOutcome returns the outcome whose shares this order reserves, only
// meaningful when ReservesBalance() is false.
func (o *Order) ReservedOutcome() Outcome {
	if o.OriginalIntent == IntentSellYes {
		return OutcomeYes
	}
	return OutcomeNo
}

// TranslateIntent maps a user-facing intent at price p (always quoted in YES
// terms) to the book-normalised (side, price) pair, per spec.md §4.3.
func TranslateIntent(intent Intent, priceYes decimal.Decimal) (side OrderSide, bookPrice decimal.Decimal) {
	one := decimal.NewFromInt(1)
	switch intent {
	case IntentBuyYes:
		return SideBuy, priceYes
	case IntentSellYes:
		return SideSell, priceYes
	case IntentBuyNo:
		return SideSell, one.Sub(priceYes)
	case IntentSellNo:
		return SideBuy, one.Sub(priceYes)
	}
	return "", decimal.Zero
}

// TradeFill is an immutable record pairing a buy order and a sell order at a
// single match.
type TradeFill struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	BuyOrderID     uuid.UUID       `json:"buy_order_id"    db:"buy_order_id"`
	SellOrderID    uuid.UUID       `json:"sell_order_id"   db:"sell_order_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"        db:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"       db:"seller_id"`
	Price          decimal.Decimal `json:"price"           db:"price"`
	Quantity       decimal.Decimal `json:"quantity"        db:"quantity"`
	Fee            decimal.Decimal `json:"fee"             db:"fee"`
	SettlementType SettlementType  `json:"settlement_type" db:"settlement_type"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
}

// BookLevel is one aggregated (price, quantity) row in an order-book view.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookView is the cached read model returned by the Order Book's book() op.
type BookView struct {
	MarketID          uuid.UUID       `json:"market_id"`
	Bids              []BookLevel     `json:"bids"` // highest price first
	Asks              []BookLevel     `json:"asks"` // lowest price first
	LastTradePriceYes decimal.Decimal `json:"last_trade_price_yes"`
	CachedAt          time.Time       `json:"cached_at"`
}
