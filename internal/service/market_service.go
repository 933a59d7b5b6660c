package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// cachedMarket pairs a market snapshot with when it was cached.
type cachedMarket struct {
	market   *domain.Market
	cachedAt time.Time
}

// MarketService handles admin market lifecycle (create/update/list/history)
// and the scheduler's close_expired_markets job.
type MarketService struct {
	db         *sqlx.DB
	marketRepo *repository.MarketRepository
	cfg        *config.Config

	// 500 ms per-market read cache, adapted from the teacher's
	// single-active-market cache shape.
	cacheMu sync.RWMutex
	cache   map[uuid.UUID]cachedMarket
}

// NewMarketService creates a MarketService.
func NewMarketService(db *sqlx.DB, marketRepo *repository.MarketRepository, cfg *config.Config) *MarketService {
	return &MarketService{
		db:         db,
		marketRepo: marketRepo,
		cfg:        cfg,
		cache:      make(map[uuid.UUID]cachedMarket),
	}
}

const marketCacheTTL = 500 * time.Millisecond

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarket / UpdateMarket
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket opens a new market under the given mechanism. liquidityB is
// only meaningful for lmsr markets and falls back to
// cfg.LMSR.DefaultLiquidityB when zero; minBet/maxBet fall back to
// cfg.Trade's defaults when zero.
func (s *MarketService) CreateMarket(
	ctx context.Context, question string, mechanism domain.Mechanism,
	closesAt time.Time, minBet, maxBet, liquidityB decimal.Decimal,
) (*domain.Market, error) {
	if mechanism != domain.MechanismLMSR && mechanism != domain.MechanismCLOB {
		return nil, domain.ErrWrongMechanism
	}
	if time.Until(closesAt) <= 0 {
		return nil, fmt.Errorf("%w: closes_at must be in the future", domain.ErrInvalidAmount)
	}
	if minBet.IsZero() {
		minBet = decimal.NewFromFloat(s.cfg.Trade.DefaultMinBet)
	}
	if maxBet.IsZero() {
		maxBet = decimal.NewFromFloat(s.cfg.Trade.DefaultMaxBet)
	}
	if liquidityB.IsZero() {
		liquidityB = decimal.NewFromFloat(s.cfg.LMSR.DefaultLiquidityB)
	}

	now := time.Now().UTC()
	m := &domain.Market{
		ID: uuid.New(), Question: question, Status: domain.MarketOpen, Mechanism: mechanism,
		QYes: decimal.Zero, QNo: decimal.Zero, LiquidityB: liquidityB,
		LastTradePriceYes: decimal.NewFromFloat(0.5),
		ClosesAt:          closesAt.UTC(),
		MinBet:            minBet, MaxBet: maxBet,
		TotalVolume: decimal.Zero, TotalTrades: 0, TotalTraders: 0,
		CreatedAt: now, UpdatedAt: now,
	}

	if err := s.marketRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: %w", err)
	}
	return m, nil
}

// UpdateMarket adjusts a still-open market's closing time and bet bounds.
func (s *MarketService) UpdateMarket(ctx context.Context, marketID uuid.UUID, closesAt time.Time, minBet, maxBet decimal.Decimal) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("market_service.UpdateMarket: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.marketRepo.Update(ctx, tx, marketID, closesAt, minBet, maxBet); err != nil {
		return fmt.Errorf("market_service.UpdateMarket: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("market_service.UpdateMarket: commit: %w", err)
	}
	committed = true

	s.invalidate(marketID)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// Get returns a market by id, served from a 500ms cache to absorb bursts of
// concurrent reads (e.g. a freshly placed order's response plus a WS push
// both reading the same market moments apart).
func (s *MarketService) Get(ctx context.Context, marketID uuid.UUID) (*domain.Market, error) {
	s.cacheMu.RLock()
	if c, ok := s.cache[marketID]; ok && time.Since(c.cachedAt) < marketCacheTTL {
		m := c.market
		s.cacheMu.RUnlock()
		return m, nil
	}
	s.cacheMu.RUnlock()

	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service.Get: %w", err)
	}

	s.cacheMu.Lock()
	s.cache[marketID] = cachedMarket{market: m, cachedAt: time.Now()}
	s.cacheMu.Unlock()

	return m, nil
}

// List returns a paginated slice of markets, optionally filtered by status.
func (s *MarketService) List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	markets, total, err := s.marketRepo.List(ctx, limit, offset, status)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service.List: %w", err)
	}
	return markets, total, nil
}

// History returns resolved/cancelled markets, most recent first.
func (s *MarketService) History(ctx context.Context, limit, offset int) ([]*domain.Market, error) {
	markets, err := s.marketRepo.GetHistory(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("market_service.History: %w", err)
	}
	return markets, nil
}

func (s *MarketService) invalidate(marketID uuid.UUID) {
	s.cacheMu.Lock()
	delete(s.cache, marketID)
	s.cacheMu.Unlock()
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler job: close_expired_markets
// ──────────────────────────────────────────────────────────────────────────────

// CloseExpiredMarkets transitions every market still open past its closes_at
// to trading_closed, per spec.md §4.6. Trading-closed markets await a manual
// resolve_market/cancel_market admin call; the scheduler never guesses an
// outcome.
func (s *MarketService) CloseExpiredMarkets(ctx context.Context) (int, error) {
	markets, err := s.marketRepo.GetExpiredOpen(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("market_service.CloseExpiredMarkets: fetch: %w", err)
	}

	count := 0
	for _, m := range markets {
		if err := s.closeOne(ctx, m.ID); err != nil {
			log.Printf("[market] ERROR closing expired market %s: %v", m.ID, err)
			continue
		}
		s.invalidate(m.ID)
		count++
	}
	return count, nil
}

func (s *MarketService) closeOne(ctx context.Context, marketID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.marketRepo.CloseTrading(ctx, tx, marketID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
