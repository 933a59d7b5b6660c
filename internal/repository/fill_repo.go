package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FillRepository handles all database operations for TradeFills.
type FillRepository struct {
	db *sqlx.DB
}

// NewFillRepository creates a new FillRepository.
func NewFillRepository(db *sqlx.DB) *FillRepository {
	return &FillRepository{db: db}
}

// Create inserts an immutable trade-fill record inside tx.
func (r *FillRepository) Create(ctx context.Context, tx *sqlx.Tx, f *domain.TradeFill) error {
	query := `
		INSERT INTO trade_fills
			(id, market_id, buy_order_id, sell_order_id, buyer_id, seller_id,
			 price, quantity, fee, settlement_type, created_at)
		VALUES
			(:id, :market_id, :buy_order_id, :sell_order_id, :buyer_id, :seller_id,
			 :price, :quantity, :fee, :settlement_type, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("fill_repo.Create: %w", err)
	}
	return nil
}

// ListByMarket returns a market's trade tape, most recent first.
func (r *FillRepository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]*domain.TradeFill, error) {
	var fills []*domain.TradeFill
	err := r.db.SelectContext(ctx, &fills,
		`SELECT * FROM trade_fills WHERE market_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fill_repo.ListByMarket: %w", err)
	}
	return fills, nil
}

// ListByUser returns every fill in which userID was buyer or seller.
func (r *FillRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.TradeFill, error) {
	var fills []*domain.TradeFill
	err := r.db.SelectContext(ctx, &fills, `
		SELECT * FROM trade_fills
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fill_repo.ListByUser: %w", err)
	}
	return fills, nil
}
