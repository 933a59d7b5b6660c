package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/lmsr"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PriceBroadcaster is the minimal interface AMMTrader needs from the WS hub
// to push a post-trade price update. Declared here, implemented by
// internal/ws, to avoid an import cycle.
type PriceBroadcaster interface {
	BroadcastPriceUpdate(marketID uuid.UUID, priceYes, priceNo decimal.Decimal)
}

// BuyResult is the response shape for the buy() call-level contract (spec.md §6).
type BuyResult struct {
	Shares     decimal.Decimal `json:"shares"`
	Cost       decimal.Decimal `json:"cost"`
	Fee        decimal.Decimal `json:"fee"`
	PriceYes   decimal.Decimal `json:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// SellResult is the response shape for the sell() call-level contract.
type SellResult struct {
	SharesSold decimal.Decimal `json:"shares_sold"`
	Revenue    decimal.Decimal `json:"revenue"`
	PriceYes   decimal.Decimal `json:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// AMMTrader mediates LMSR buy/sell: validates, computes, updates position,
// emits transactions, appends price history, all inside one transaction.
type AMMTrader struct {
	db          *sqlx.DB
	userRepo    *repository.UserRepository
	marketRepo  *repository.MarketRepository
	positionRepo *repository.PositionRepository
	txnRepo     *repository.TransactionRepository
	cfg         *config.Config
	broadcaster PriceBroadcaster
}

// NewAMMTrader creates an AMMTrader.
func NewAMMTrader(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	marketRepo *repository.MarketRepository,
	positionRepo *repository.PositionRepository,
	txnRepo *repository.TransactionRepository,
	cfg *config.Config,
) *AMMTrader {
	return &AMMTrader{
		db:           db,
		userRepo:     userRepo,
		marketRepo:   marketRepo,
		positionRepo: positionRepo,
		txnRepo:      txnRepo,
		cfg:          cfg,
	}
}

// SetBroadcaster injects the WS hub after construction.
func (s *AMMTrader) SetBroadcaster(b PriceBroadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy executes an LMSR purchase of outcome shares for amount PRC.
// Lock order: user -> market -> position (spec.md §4.2).
func (s *AMMTrader) Buy(ctx context.Context, userID, marketID uuid.UUID, outcome domain.Outcome, amount decimal.Decimal) (*BuyResult, error) {
	// ── 1. Input validation (cheap checks before any lock) ──
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// ── 2. Lock user, then market (canonical order) ──
	user, err := s.userRepo.Lock(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: lock user: %w", err)
	}
	market, err := s.marketRepo.Lock(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: lock market: %w", err)
	}

	if !market.IsOpen() {
		return nil, domain.ErrMarketNotOpen
	}
	if market.Mechanism != domain.MechanismLMSR {
		return nil, domain.ErrWrongMechanism
	}
	if amount.LessThan(market.MinBet) || amount.GreaterThan(market.MaxBet) {
		return nil, domain.ErrAmountOutOfRange
	}
	if user.Available().LessThan(amount) {
		return nil, domain.ErrInsufficientBalance
	}

	// ── 3. fee = round(amount * fee_rate, 2); net = amount - fee ──
	feeRate := decimal.NewFromFloat(s.cfg.Trade.FeeRate)
	fee := amount.Mul(feeRate).Round(2)
	net := amount.Sub(fee)

	qYes, qNo, b := market.LMSRState()
	state := lmsr.State{QYes: qYes, QNo: qNo, B: b}
	lmsrOutcome := toLMSROutcome(outcome)
	netF, _ := net.Float64()

	sharesF := lmsr.SharesForAmount(state, lmsrOutcome, netF)
	shares := decimal.NewFromFloat(sharesF).Round(6)
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}

	// ── 4. Update market LMSR state + volume ──
	newQYes, newQNo := market.QYes, market.QNo
	if outcome == domain.OutcomeYes {
		newQYes = newQYes.Add(shares)
	} else {
		newQNo = newQNo.Add(shares)
	}
	if err := s.marketRepo.UpdateLMSRState(ctx, tx, marketID, newQYes, newQNo); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: update lmsr state: %w", err)
	}

	// ── 5. Upsert position — a newly-created row means this user is new to
	// *this market*, which is what market.total_traders counts (not whether
	// they have ever traded anywhere before) ──
	position, created, err := s.positionRepo.GetOrCreate(ctx, tx, userID, marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: get or create position: %w", err)
	}
	if err := s.positionRepo.AddShares(ctx, tx, position.ID, shares, amount); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: add shares: %w", err)
	}

	if err := s.marketRepo.RecordTrade(ctx, tx, marketID, amount, created); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: record trade: %w", err)
	}

	// ── 6. Debit user balance, increment total_trades ──
	if err := s.userRepo.DebitBalance(ctx, tx, userID, amount); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: debit balance: %w", err)
	}
	if err := s.userRepo.IncrementTotalTrades(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: increment total trades: %w", err)
	}

	// ── 7. Emit BUY and, if positive, FEE transactions ──
	priceYes := decimal.NewFromFloat(lmsr.Price(lmsr.State{QYes: newQYes.InexactFloat64(), QNo: newQNo.InexactFloat64(), B: b}, lmsr.Yes)).Round(4)
	priceNo := decimal.NewFromInt(1).Sub(priceYes)

	now := time.Now().UTC()
	buyTxn := &domain.Transaction{
		ID: uuid.New(), UserID: userID, MarketID: &marketID, Type: domain.TxBuy,
		Amount: amount.Neg(), Shares: &shares, Outcome: &outcome, PriceAtTrade: &priceYes,
		Description: "LMSR buy", CreatedAt: now,
	}
	if err := s.txnRepo.Create(ctx, tx, buyTxn); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: emit buy txn: %w", err)
	}
	if fee.GreaterThan(decimal.Zero) {
		feeTxn := &domain.Transaction{
			ID: uuid.New(), UserID: userID, MarketID: &marketID, Type: domain.TxFee,
			Amount: fee.Neg(), Description: "LMSR trade fee", CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, feeTxn); err != nil {
			return nil, fmt.Errorf("amm_trader.Buy: emit fee txn: %w", err)
		}
	}

	// ── 8. Append PriceHistory at post-trade state ──
	ph := &domain.PriceHistory{
		ID: uuid.New(), MarketID: marketID, PriceYes: priceYes, PriceNo: priceNo,
		QYes: newQYes, QNo: newQNo, CreatedAt: now,
	}
	if err := s.marketRepo.CreatePriceHistory(ctx, tx, ph); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: append price history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("amm_trader.Buy: commit: %w", err)
	}
	committed = true

	go s.postTradeAsync(marketID, priceYes, priceNo)

	return &BuyResult{
		Shares:     shares,
		Cost:       amount,
		Fee:        fee,
		PriceYes:   priceYes,
		PriceNo:    priceNo,
		NewBalance: user.Balance.Sub(amount),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell liquidates shares of outcome back into the LMSR pool for PRC revenue.
// No fee is charged on the sell side (SPEC_FULL.md §9 Open Question 1 decision).
func (s *AMMTrader) Sell(ctx context.Context, userID, marketID uuid.UUID, outcome domain.Outcome, shares decimal.Decimal) (*SellResult, error) {
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	user, err := s.userRepo.Lock(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: lock user: %w", err)
	}
	market, err := s.marketRepo.Lock(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: lock market: %w", err)
	}
	if !market.IsOpen() {
		return nil, domain.ErrMarketNotOpen
	}
	if market.Mechanism != domain.MechanismLMSR {
		return nil, domain.ErrWrongMechanism
	}

	position, _, err := s.positionRepo.GetOrCreate(ctx, tx, userID, marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: get position: %w", err)
	}
	if position.AvailableShares().LessThan(shares) {
		return nil, domain.ErrInsufficientShares
	}

	qYes, qNo, b := market.LMSRState()
	state := lmsr.State{QYes: qYes, QNo: qNo, B: b}
	lmsrOutcome := toLMSROutcome(outcome)
	sharesF, _ := shares.Float64()

	revenueF := lmsr.SaleRevenue(state, lmsrOutcome, sharesF)
	revenue := decimal.NewFromFloat(revenueF).Round(2)

	newQYes, newQNo := market.QYes, market.QNo
	if outcome == domain.OutcomeYes {
		newQYes = newQYes.Sub(shares)
	} else {
		newQNo = newQNo.Sub(shares)
	}
	if err := s.marketRepo.UpdateLMSRState(ctx, tx, marketID, newQYes, newQNo); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: update lmsr state: %w", err)
	}

	if err := s.userRepo.CreditBalance(ctx, tx, userID, revenue); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: credit balance: %w", err)
	}

	// cost_proportion computed against pre-decrement shares (SPEC_FULL.md §9
	// Open Question 3 decision: denominator is position.shares before this sell).
	costProportion := shares.Div(position.Shares)
	costRemoved := position.TotalCost.Mul(costProportion)
	if err := s.positionRepo.RemoveShares(ctx, tx, position.ID, shares, costRemoved); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: remove shares: %w", err)
	}

	priceYes := decimal.NewFromFloat(lmsr.Price(lmsr.State{QYes: newQYes.InexactFloat64(), QNo: newQNo.InexactFloat64(), B: b}, lmsr.Yes)).Round(4)
	priceNo := decimal.NewFromInt(1).Sub(priceYes)

	now := time.Now().UTC()
	sellTxn := &domain.Transaction{
		ID: uuid.New(), UserID: userID, MarketID: &marketID, Type: domain.TxSell,
		Amount: revenue, Shares: &shares, Outcome: &outcome, PriceAtTrade: &priceYes,
		Description: "LMSR sell", CreatedAt: now,
	}
	if err := s.txnRepo.Create(ctx, tx, sellTxn); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: emit sell txn: %w", err)
	}

	ph := &domain.PriceHistory{
		ID: uuid.New(), MarketID: marketID, PriceYes: priceYes, PriceNo: priceNo,
		QYes: newQYes, QNo: newQNo, CreatedAt: now,
	}
	if err := s.marketRepo.CreatePriceHistory(ctx, tx, ph); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: append price history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("amm_trader.Sell: commit: %w", err)
	}
	committed = true

	go s.postTradeAsync(marketID, priceYes, priceNo)

	return &SellResult{
		SharesSold: shares,
		Revenue:    revenue,
		PriceYes:   priceYes,
		PriceNo:    priceNo,
		NewBalance: user.Balance.Add(revenue),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// postTradeAsync pushes a price update to the WS hub without blocking the
// caller or risking the committed trade on notifier failure.
func (s *AMMTrader) postTradeAsync(marketID uuid.UUID, priceYes, priceNo decimal.Decimal) {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.broadcaster != nil {
		s.broadcaster.BroadcastPriceUpdate(marketID, priceYes, priceNo)
	}
}

func toLMSROutcome(o domain.Outcome) lmsr.Outcome {
	if o == domain.OutcomeYes {
		return lmsr.Yes
	}
	return lmsr.No
}
