package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ResolutionBroadcaster is the minimal WS interface ResolutionService needs,
// declared here (not imported from internal/ws) to avoid an import cycle.
type ResolutionBroadcaster interface {
	BroadcastMarketResolved(marketID uuid.UUID, outcome domain.Outcome)
	BroadcastMarketCancelled(marketID uuid.UUID)
}

// ResolutionService settles markets: pays winning positions at 1.00 PRC per
// share, zeroes out losing ones, and refunds every position at cost when a
// market is cancelled outright.
type ResolutionService struct {
	db           *sqlx.DB
	marketRepo   *repository.MarketRepository
	positionRepo *repository.PositionRepository
	userRepo     *repository.UserRepository
	txnRepo      *repository.TransactionRepository
	orderBook    *OrderBookService
	broadcaster  ResolutionBroadcaster
}

// NewResolutionService builds a ResolutionService.
func NewResolutionService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	positionRepo *repository.PositionRepository,
	userRepo *repository.UserRepository,
	txnRepo *repository.TransactionRepository,
	orderBook *OrderBookService,
) *ResolutionService {
	return &ResolutionService{
		db:           db,
		marketRepo:   marketRepo,
		positionRepo: positionRepo,
		userRepo:     userRepo,
		txnRepo:      txnRepo,
		orderBook:    orderBook,
	}
}

// SetBroadcaster injects the WS hub after construction.
func (s *ResolutionService) SetBroadcaster(b ResolutionBroadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolveMarket
// ──────────────────────────────────────────────────────────────────────────────

// ResolveMarket locks the market, cancels any resting CLOB orders, pays
// winners shares×1.00 PRC and zeroes losing positions, per spec.md §4.4.
func (s *ResolutionService) ResolveMarket(ctx context.Context, marketID uuid.UUID, outcome domain.Outcome) error {
	if !outcome.IsValid() {
		return domain.ErrInvalidOutcome
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	market, err := s.marketRepo.Lock(ctx, tx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: lock market: %w", err)
	}
	if market.IsTerminal() {
		return domain.ErrMarketAlreadyResolved
	}

	// ── 1. Cancel resting CLOB orders, releasing their reservations ──
	if market.Mechanism == domain.MechanismCLOB {
		if err := s.orderBook.CancelAllForMarket(ctx, tx, marketID); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: cancel orders: %w", err)
		}
	}

	if err := s.marketRepo.Resolve(ctx, tx, marketID, outcome); err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: resolve: %w", err)
	}

	// ── 2. Pay winners ──
	winners, err := s.positionRepo.ListByMarketAndOutcome(ctx, marketID, outcome)
	if err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: list winners: %w", err)
	}
	payoutPerShare := decimal.NewFromInt(1)
	now := time.Now().UTC()
	for _, pos := range winners {
		payout := pos.Shares.Mul(payoutPerShare).Round(2)
		profit := payout.Sub(pos.TotalCost)

		if err := s.userRepo.CreditBalance(ctx, tx, pos.UserID, payout); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: credit winner %s: %w", pos.UserID, err)
		}
		if err := s.userRepo.RecordWin(ctx, tx, pos.UserID, profit); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: record win %s: %w", pos.UserID, err)
		}
		txn := &domain.Transaction{
			ID: uuid.New(), UserID: pos.UserID, MarketID: &marketID, Type: domain.TxBetPayout,
			Amount: payout, Shares: &pos.Shares, Outcome: &outcome,
			Description: fmt.Sprintf("market %s resolved %s", marketID, outcome), CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: payout txn %s: %w", pos.UserID, err)
		}
		if err := s.positionRepo.ZeroOut(ctx, tx, pos.ID); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: zero winner %s: %w", pos.UserID, err)
		}
	}

	// ── 3. Mark losers, no payout ──
	losers, err := s.positionRepo.ListByMarketAndOutcome(ctx, marketID, outcome.Opposite())
	if err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: list losers: %w", err)
	}
	for _, pos := range losers {
		if err := s.userRepo.RecordLoss(ctx, tx, pos.UserID, pos.TotalCost.Neg()); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: record loss %s: %w", pos.UserID, err)
		}
		if err := s.positionRepo.ZeroOut(ctx, tx, pos.ID); err != nil {
			return fmt.Errorf("resolution_service.ResolveMarket: zero loser %s: %w", pos.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resolution_service.ResolveMarket: commit: %w", err)
	}
	committed = true

	log.Printf("[resolution] market %s resolved outcome=%s winners=%d losers=%d", marketID, outcome, len(winners), len(losers))
	go s.postResolveAsync(marketID, outcome, false)

	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelMarket
// ──────────────────────────────────────────────────────────────────────────────

// CancelMarket cancels resting CLOB orders and refunds every position at its
// total_cost, per spec.md §4.4's cancel_market path.
func (s *ResolutionService) CancelMarket(ctx context.Context, marketID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("resolution_service.CancelMarket: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	market, err := s.marketRepo.Lock(ctx, tx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service.CancelMarket: lock market: %w", err)
	}
	if market.IsTerminal() {
		return domain.ErrMarketAlreadyResolved
	}

	if market.Mechanism == domain.MechanismCLOB {
		if err := s.orderBook.CancelAllForMarket(ctx, tx, marketID); err != nil {
			return fmt.Errorf("resolution_service.CancelMarket: cancel orders: %w", err)
		}
	}

	if err := s.marketRepo.Cancel(ctx, tx, marketID); err != nil {
		return fmt.Errorf("resolution_service.CancelMarket: cancel: %w", err)
	}

	positions, err := s.positionRepo.ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("resolution_service.CancelMarket: list positions: %w", err)
	}
	now := time.Now().UTC()
	for _, pos := range positions {
		refund := pos.TotalCost
		if refund.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if err := s.userRepo.CreditBalance(ctx, tx, pos.UserID, refund); err != nil {
			return fmt.Errorf("resolution_service.CancelMarket: refund %s: %w", pos.UserID, err)
		}
		if err := s.userRepo.RecordRefund(ctx, tx, pos.UserID); err != nil {
			return fmt.Errorf("resolution_service.CancelMarket: record refund %s: %w", pos.UserID, err)
		}
		outcome := pos.Outcome
		txn := &domain.Transaction{
			ID: uuid.New(), UserID: pos.UserID, MarketID: &marketID, Type: domain.TxBetRefund,
			Amount: refund, Shares: &pos.Shares, Outcome: &outcome,
			Description: fmt.Sprintf("market %s cancelled", marketID), CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("resolution_service.CancelMarket: refund txn %s: %w", pos.UserID, err)
		}
		if err := s.positionRepo.ZeroOut(ctx, tx, pos.ID); err != nil {
			return fmt.Errorf("resolution_service.CancelMarket: zero %s: %w", pos.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resolution_service.CancelMarket: commit: %w", err)
	}
	committed = true

	log.Printf("[resolution] market %s cancelled, refunded %d positions", marketID, len(positions))
	go s.postResolveAsync(marketID, domain.Outcome(""), true)

	return nil
}

func (s *ResolutionService) postResolveAsync(marketID uuid.UUID, outcome domain.Outcome, cancelled bool) {
	if s.broadcaster == nil {
		return
	}
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cancelled {
		s.broadcaster.BroadcastMarketCancelled(marketID)
		return
	}
	s.broadcaster.BroadcastMarketResolved(marketID, outcome)
}
