package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// OrderRepository handles all database operations for CLOB Orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new resting order inside tx.
func (r *OrderRepository) Create(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	query := `
		INSERT INTO orders
			(id, user_id, market_id, side, price, quantity, filled_quantity,
			 status, original_intent, created_at, updated_at)
		VALUES
			(:id, :user_id, :market_id, :side, :price, :quantity, :filled_quantity,
			 :status, :original_intent, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("order_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches an order by primary key.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.db.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByID: %w", err)
	}
	return &o, nil
}

// Lock selects an order FOR UPDATE inside tx, the canonical lock order's
// order step (after user and market, before position).
func (r *OrderRepository) Lock(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := tx.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.Lock: %w", err)
	}
	return &o, nil
}

// MatchCandidates returns resting orders on the opposite side of a market at
// or better than price, in price-time priority: best price first, then
// earliest created_at. Locked FOR UPDATE SKIP LOCKED so concurrent matchers
// never block on each other's resting orders.
func (r *OrderRepository) MatchCandidates(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, side domain.OrderSide, price decimal.Decimal) ([]*domain.Order, error) {
	var orders []*domain.Order
	var query string
	if side == domain.SideBuy {
		// Incoming buy matches resting sells priced at or below it, lowest first.
		query = `
			SELECT * FROM orders
			WHERE market_id = $1 AND side = 'sell' AND price <= $2
			  AND status IN ('open','partially_filled')
			ORDER BY price ASC, created_at ASC
			FOR UPDATE SKIP LOCKED`
	} else {
		// Incoming sell matches resting buys priced at or above it, highest first.
		query = `
			SELECT * FROM orders
			WHERE market_id = $1 AND side = 'buy' AND price >= $2
			  AND status IN ('open','partially_filled')
			ORDER BY price DESC, created_at ASC
			FOR UPDATE SKIP LOCKED`
	}
	if err := tx.SelectContext(ctx, &orders, query, marketID, price); err != nil {
		return nil, fmt.Errorf("order_repo.MatchCandidates: %w", err)
	}
	return orders, nil
}

// ApplyFill increments filled_quantity and sets status accordingly inside tx.
func (r *OrderRepository) ApplyFill(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, filledDelta decimal.Decimal) error {
	var o domain.Order
	if err := tx.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, orderID); err != nil {
		return fmt.Errorf("order_repo.ApplyFill lock: %w", err)
	}
	newFilled := o.FilledQuantity.Add(filledDelta)
	status := domain.OrderPartiallyFilled
	if newFilled.GreaterThanOrEqual(o.Quantity) {
		status = domain.OrderFilled
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET filled_quantity = $1, status = $2, updated_at = now() WHERE id = $3`,
		newFilled, string(status), orderID)
	if err != nil {
		return fmt.Errorf("order_repo.ApplyFill update: %w", err)
	}
	return nil
}

// Cancel marks a single order cancelled inside tx. Only affects orders
// still open/partially_filled (idempotent against double-cancel races).
func (r *OrderRepository) Cancel(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('open','partially_filled')`, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOrderTerminal
	}
	return nil
}

// CancelAllOpenForMarket cancels every resting order in a market inside tx,
// returning the cancelled rows so the caller can release their
// reservations. Used by market resolution before paying out positions.
func (r *OrderRepository) CancelAllOpenForMarket(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	if err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1 AND status IN ('open','partially_filled')
		FOR UPDATE`, marketID); err != nil {
		return nil, fmt.Errorf("order_repo.CancelAllOpenForMarket select: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'cancelled', updated_at = now()
		WHERE market_id = $1 AND status IN ('open','partially_filled')`, marketID); err != nil {
		return nil, fmt.Errorf("order_repo.CancelAllOpenForMarket update: %w", err)
	}
	return orders, nil
}

// ListOpenByMarket returns every resting order for a market, used to
// reconstruct the order-book read model.
func (r *OrderRepository) ListOpenByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1 AND status IN ('open','partially_filled')
		ORDER BY price ASC, created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByMarket: %w", err)
	}
	return orders, nil
}

// ListByUser returns a user's orders, paginated, most recent first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListByUser: %w", err)
	}
	return orders, nil
}
