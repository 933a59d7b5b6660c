package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LiquidityEventRepository handles all database operations for LiquidityEvents.
type LiquidityEventRepository struct {
	db *sqlx.DB
}

// NewLiquidityEventRepository creates a new LiquidityEventRepository.
func NewLiquidityEventRepository(db *sqlx.DB) *LiquidityEventRepository {
	return &LiquidityEventRepository{db: db}
}

// Create appends an observation row outside any trading transaction — the
// monitor runs read-only against live market state and must not block or be
// blocked by it.
func (r *LiquidityEventRepository) Create(ctx context.Context, e *domain.LiquidityEvent) error {
	query := `
		INSERT INTO liquidity_events (id, market_id, kind, detail, magnitude, created_at)
		VALUES (:id, :market_id, :kind, :detail, :magnitude, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("liquidity_event_repo.Create: %w", err)
	}
	return nil
}

// ListRecent returns the most recent events for the back-office risk dashboard.
func (r *LiquidityEventRepository) ListRecent(ctx context.Context, limit int) ([]*domain.LiquidityEvent, error) {
	var events []*domain.LiquidityEvent
	err := r.db.SelectContext(ctx, &events,
		`SELECT * FROM liquidity_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("liquidity_event_repo.ListRecent: %w", err)
	}
	return events, nil
}

// ListByMarket returns a single market's observation history.
func (r *LiquidityEventRepository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.LiquidityEvent, error) {
	var events []*domain.LiquidityEvent
	err := r.db.SelectContext(ctx, &events,
		`SELECT * FROM liquidity_events WHERE market_id = $1 ORDER BY created_at DESC LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("liquidity_event_repo.ListByMarket: %w", err)
	}
	return events, nil
}
