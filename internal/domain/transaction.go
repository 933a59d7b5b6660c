package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType enumerates the append-only wallet ledger's transaction kinds.
// Wire-stable per spec.md §3.
type TxType string

const (
	TxBuy         TxType = "BUY"
	TxSell        TxType = "SELL"
	TxPayout      TxType = "PAYOUT"
	TxFee         TxType = "FEE"
	TxDeposit     TxType = "DEPOSIT"
	TxWithdraw    TxType = "WITHDRAW"
	TxOrderFill   TxType = "ORDER_FILL"
	TxOrderCancel TxType = "ORDER_CANCEL"
	TxBetStake    TxType = "BET_STAKE"
	TxBetPayout   TxType = "BET_PAYOUT"
	TxBetRefund   TxType = "BET_REFUND"
	TxReferral    TxType = "REFERRAL"
	TxDaily       TxType = "DAILY"
	TxBonus       TxType = "BONUS"
)

// Transaction is an immutable, append-only ledger entry. Every state change
// that moves PRC emits at least one of these per affected user (an LMSR buy
// with a fee writes a BUY row and a FEE row).
type Transaction struct {
	ID            uuid.UUID        `json:"id"              db:"id"`
	UserID        uuid.UUID        `json:"user_id"         db:"user_id"`
	MarketID      *uuid.UUID       `json:"market_id"       db:"market_id"`
	Type          TxType           `json:"type"            db:"type"`
	Amount        decimal.Decimal  `json:"amount"          db:"amount"`
	Shares        *decimal.Decimal `json:"shares"          db:"shares"`
	Outcome       *Outcome         `json:"outcome"         db:"outcome"`
	PriceAtTrade  *decimal.Decimal `json:"price_at_trade"  db:"price_at_trade"`
	Description   string           `json:"description"     db:"description"`
	CreatedAt     time.Time        `json:"created_at"      db:"created_at"`
}
