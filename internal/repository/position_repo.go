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

// PositionRepository handles all database operations for Positions.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetOrCreate returns the (user, market, outcome) position, locked FOR
// UPDATE, creating a zeroed row on first touch. The second return value is
// true only when this call created the row — callers use it to detect a
// user's first position in a market (e.g. to bump market.total_traders).
// Grounded on original_source's _get_or_create_position helper, shared by
// the AMM Trader and Order Book settlement paths.
func (r *PositionRepository) GetOrCreate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, outcome domain.Outcome) (*domain.Position, bool, error) {
	var p domain.Position
	err := tx.GetContext(ctx, &p, `
		SELECT * FROM positions
		WHERE user_id = $1 AND market_id = $2 AND outcome = $3
		FOR UPDATE`,
		userID, marketID, string(outcome))
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("position_repo.GetOrCreate select: %w", err)
	}

	p = domain.Position{
		ID:       uuid.New(),
		UserID:   userID,
		MarketID: marketID,
		Outcome:  outcome,
	}
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO positions
			(id, user_id, market_id, outcome, shares, reserved_shares, total_cost, created_at, updated_at)
		VALUES
			(:id, :user_id, :market_id, :outcome, 0, 0, 0, now(), now())
		ON CONFLICT (user_id, market_id, outcome) DO NOTHING`, &p)
	if err != nil {
		return nil, false, fmt.Errorf("position_repo.GetOrCreate insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("position_repo.GetOrCreate rows affected: %w", err)
	}
	created := rows > 0 // false means a concurrent inserter won the ON CONFLICT race

	// Re-select under the lock: either our insert won, or a concurrent
	// inserter's did and we must read theirs.
	if err := tx.GetContext(ctx, &p, `
		SELECT * FROM positions
		WHERE user_id = $1 AND market_id = $2 AND outcome = $3
		FOR UPDATE`,
		userID, marketID, string(outcome)); err != nil {
		return nil, false, fmt.Errorf("position_repo.GetOrCreate reselect: %w", err)
	}
	return &p, created, nil
}

// GetByUserAndMarket returns both outcome positions (if any) a user holds
// in a market.
func (r *PositionRepository) GetByUserAndMarket(ctx context.Context, userID, marketID uuid.UUID) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE user_id = $1 AND market_id = $2`,
		userID, marketID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.GetByUserAndMarket: %w", err)
	}
	return positions, nil
}

// ListByUser returns every position a user holds across all markets.
func (r *PositionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE user_id = $1 AND shares > 0 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByUser: %w", err)
	}
	return positions, nil
}

// ListByMarketAndOutcome returns all non-zero positions on one side of a
// market, used by market resolution to find winners/losers.
func (r *PositionRepository) ListByMarketAndOutcome(ctx context.Context, marketID uuid.UUID, outcome domain.Outcome) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE market_id = $1 AND outcome = $2 AND shares > 0`,
		marketID, string(outcome))
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByMarketAndOutcome: %w", err)
	}
	return positions, nil
}

// ListByMarket returns every non-zero position in a market, both outcomes —
// used by cancel_market to compute refunds.
func (r *PositionRepository) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE market_id = $1 AND shares > 0`, marketID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByMarket: %w", err)
	}
	return positions, nil
}

// AddShares increments shares and total_cost inside tx (buy settlement).
// Caller must hold the row lock via GetOrCreate.
func (r *PositionRepository) AddShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, shares, cost decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET shares = shares + $1, total_cost = total_cost + $2, updated_at = now()
		WHERE id = $3`,
		shares, cost, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.AddShares: %w", err)
	}
	return nil
}

// RemoveShares decrements shares and total_cost (by costRemoved, the
// proportional cost-basis share being sold off) inside tx.
func (r *PositionRepository) RemoveShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, shares, costRemoved decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET shares = shares - $1, total_cost = GREATEST(total_cost - $2, 0), updated_at = now()
		WHERE id = $3`,
		shares, costRemoved, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.RemoveShares: %w", err)
	}
	return nil
}

// ReserveShares increments reserved_shares inside tx (resting sell order
// placed). Caller must have already checked AvailableShares() >= amount.
func (r *PositionRepository) ReserveShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE positions SET reserved_shares = reserved_shares + $1, updated_at = now() WHERE id = $2`,
		amount, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ReserveShares: %w", err)
	}
	return nil
}

// ReleaseShares decrements reserved_shares inside tx (sell order filled or
// cancelled).
func (r *PositionRepository) ReleaseShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE positions SET reserved_shares = GREATEST(reserved_shares - $1, 0), updated_at = now() WHERE id = $2`,
		amount, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ReleaseShares: %w", err)
	}
	return nil
}

// ZeroOut clears shares/total_cost/reserved_shares inside tx after a
// position has been fully paid out or refunded by market resolution.
func (r *PositionRepository) ZeroOut(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET shares = 0, reserved_shares = 0, total_cost = 0, updated_at = now()
		WHERE id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ZeroOut: %w", err)
	}
	return nil
}
