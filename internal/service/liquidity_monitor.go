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
	"github.com/shopspring/decimal"
)

// LiquidityReport is the aggregated snapshot returned to the back-office
// risk dashboard.
type LiquidityReport struct {
	ScannedMarkets  int                      `json:"scanned_markets"`
	FlaggedMarkets  int                      `json:"flagged_markets"`
	AggregateExposure decimal.Decimal        `json:"aggregate_exposure"`
	Events          []*domain.LiquidityEvent `json:"events"`
}

// LiquidityMonitor scans open markets for thin LMSR liquidity, skewed CLOB
// books, and aggregate house exposure over the configured reserve floor. It
// is read-only — it never trades or moves balances, it only records
// observations for operators to act on manually.
type LiquidityMonitor struct {
	marketRepo   *repository.MarketRepository
	positionRepo *repository.PositionRepository
	orderBook    *OrderBookService
	eventRepo    *repository.LiquidityEventRepository
	cfg          *config.Config
	mu           sync.Mutex // prevents overlapping scans from double-flagging
}

// NewLiquidityMonitor builds a LiquidityMonitor.
func NewLiquidityMonitor(
	marketRepo *repository.MarketRepository,
	positionRepo *repository.PositionRepository,
	orderBook *OrderBookService,
	eventRepo *repository.LiquidityEventRepository,
	cfg *config.Config,
) *LiquidityMonitor {
	return &LiquidityMonitor{
		marketRepo:   marketRepo,
		positionRepo: positionRepo,
		orderBook:    orderBook,
		eventRepo:    eventRepo,
		cfg:          cfg,
	}
}

// Scan walks every open market and records a liquidity_events row for any
// market that trips a guard rail. Overlapping calls are silently skipped via
// TryLock, matching the teacher's rebalance-guard shape.
func (m *LiquidityMonitor) Scan(ctx context.Context) (*LiquidityReport, error) {
	if !m.mu.TryLock() {
		return nil, nil
	}
	defer m.mu.Unlock()

	const scanPageSize = 500
	markets, _, err := m.marketRepo.List(ctx, scanPageSize, 0, string(domain.MarketOpen))
	if err != nil {
		return nil, fmt.Errorf("liquidity_monitor.Scan: list markets: %w", err)
	}

	report := &LiquidityReport{ScannedMarkets: len(markets), AggregateExposure: decimal.Zero}
	for _, mkt := range markets {
		events, exposure, err := m.scanMarket(ctx, mkt)
		if err != nil {
			log.Printf("[liquidity] ERROR scanning market %s: %v", mkt.ID, err)
			continue
		}
		report.AggregateExposure = report.AggregateExposure.Add(exposure)
		if len(events) > 0 {
			report.FlaggedMarkets++
			report.Events = append(report.Events, events...)
		}
	}

	if report.AggregateExposure.GreaterThan(decimal.NewFromFloat(m.cfg.Liquidity.ReserveFloor)) {
		evt := m.newEvent(uuid.Nil, domain.LiquidityEventReserveLow,
			fmt.Sprintf("aggregate open-market exposure %s exceeds reserve floor %.2f",
				report.AggregateExposure.StringFixed(2), m.cfg.Liquidity.ReserveFloor),
			report.AggregateExposure)
		if err := m.eventRepo.Create(ctx, evt); err != nil {
			log.Printf("[liquidity] ERROR recording reserve-low event: %v", err)
		} else {
			report.Events = append(report.Events, evt)
		}
		log.Printf("[liquidity] ALARM: house exposure %s over floor %.2f",
			report.AggregateExposure.StringFixed(2), m.cfg.Liquidity.ReserveFloor)
	}

	return report, nil
}

// scanMarket checks a single market's mechanism-specific guard rail and
// returns any events it recorded plus the market's exposure contribution.
func (m *LiquidityMonitor) scanMarket(ctx context.Context, mkt *domain.Market) ([]*domain.LiquidityEvent, decimal.Decimal, error) {
	switch mkt.Mechanism {
	case domain.MechanismLMSR:
		return m.scanLMSR(ctx, mkt)
	case domain.MechanismCLOB:
		return m.scanCLOB(ctx, mkt)
	default:
		return nil, decimal.Zero, nil
	}
}

// scanLMSR flags a market whose liquidity_b is below the configured minimum
// — a thin-depth warning. Only liquidity_b is compared; q_yes/q_no feed the
// returned exposure figure but not the check.
func (m *LiquidityMonitor) scanLMSR(ctx context.Context, mkt *domain.Market) ([]*domain.LiquidityEvent, decimal.Decimal, error) {
	exposure := mkt.QYes.Add(mkt.QNo).Mul(mkt.LiquidityB).Abs()

	var events []*domain.LiquidityEvent
	if mkt.LiquidityB.LessThan(decimal.NewFromFloat(m.cfg.Liquidity.MinLiquidityB)) {
		evt := m.newEvent(mkt.ID, domain.LiquidityEventLMSRDepth,
			fmt.Sprintf("liquidity_b=%s below minimum %.2f", mkt.LiquidityB.StringFixed(4), m.cfg.Liquidity.MinLiquidityB),
			mkt.LiquidityB)
		if err := m.eventRepo.Create(ctx, evt); err != nil {
			return nil, exposure, fmt.Errorf("record lmsr depth event: %w", err)
		}
		events = append(events, evt)
	}
	return events, exposure, nil
}

// scanCLOB flags a market whose resting bid/ask reservation totals are
// heavily skewed to one side of the book.
func (m *LiquidityMonitor) scanCLOB(ctx context.Context, mkt *domain.Market) ([]*domain.LiquidityEvent, decimal.Decimal, error) {
	book, err := m.orderBook.Book(ctx, mkt.ID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("book: %w", err)
	}

	bidTotal := sumLevels(book.Bids)
	askTotal := sumLevels(book.Asks)
	exposure := bidTotal.Add(askTotal)

	var events []*domain.LiquidityEvent
	ratio := imbalanceRatio(bidTotal, askTotal)
	if ratio.LessThan(decimal.NewFromFloat(m.cfg.Liquidity.CLOBImbalanceRatio)) {
		evt := m.newEvent(mkt.ID, domain.LiquidityEventCLOBImbalance,
			fmt.Sprintf("bid total=%s ask total=%s ratio=%s below threshold %.2f",
				bidTotal.StringFixed(2), askTotal.StringFixed(2), ratio.StringFixed(4), m.cfg.Liquidity.CLOBImbalanceRatio),
			ratio)
		if err := m.eventRepo.Create(ctx, evt); err != nil {
			return nil, exposure, fmt.Errorf("record clob imbalance event: %w", err)
		}
		events = append(events, evt)
	}
	return events, exposure, nil
}

func sumLevels(levels []domain.BookLevel) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Quantity.Mul(l.Price))
	}
	return total
}

// imbalanceRatio returns the thinner side's fraction of the thicker side,
// in [0, 1]. A balanced book is close to 1; a one-sided book approaches 0.
func imbalanceRatio(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() || b.IsZero() {
		return decimal.Zero
	}
	if a.LessThan(b) {
		return a.Div(b)
	}
	return b.Div(a)
}

func (m *LiquidityMonitor) newEvent(marketID uuid.UUID, kind domain.LiquidityEventKind, detail string, magnitude decimal.Decimal) *domain.LiquidityEvent {
	return &domain.LiquidityEvent{
		ID: uuid.New(), MarketID: marketID, Kind: kind, Detail: detail,
		Magnitude: magnitude, CreatedAt: time.Now().UTC(),
	}
}
