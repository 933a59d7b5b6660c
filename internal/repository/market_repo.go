package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// MarketRepository handles all database operations for Markets.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Create inserts a new market row.
func (r *MarketRepository) Create(ctx context.Context, m *domain.Market) error {
	query := `
		INSERT INTO markets
			(id, question, status, mechanism, q_yes, q_no, liquidity_b,
			 last_trade_price_yes, closes_at, min_bet, max_bet,
			 total_volume, total_trades, total_traders, created_at, updated_at)
		VALUES
			(:id, :question, :status, :mechanism, :q_yes, :q_no, :liquidity_b,
			 :last_trade_price_yes, :closes_at, :min_bet, :max_bet,
			 :total_volume, :total_trades, :total_traders, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("market_repo.Create: %w", err)
	}
	return nil
}

// Update adjusts a still-open market's closing time and bet-size bounds
// inside tx. Returns ErrMarketNotOpen if the market has already moved past
// open (question/mechanism/liquidity are immutable once created).
func (r *MarketRepository) Update(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, closesAt time.Time, minBet, maxBet decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET closes_at = $2, min_bet = $3, max_bet = $4, updated_at = now()
		WHERE id = $1 AND status = 'open'`,
		marketID, closesAt, minBet, maxBet)
	if err != nil {
		return fmt.Errorf("market_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotOpen
	}
	return nil
}

// GetByID fetches a market by its primary key.
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := r.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByID: %w", err)
	}
	return &m, nil
}

// Lock selects a market FOR UPDATE inside tx, the canonical lock order's
// market step (after user, before order/position).
func (r *MarketRepository) Lock(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := tx.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.Lock: %w", err)
	}
	return &m, nil
}

// List returns a paginated slice of markets filtered by optional status.
// status="" returns all statuses.
func (r *MarketRepository) List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	var markets []*domain.Market
	var total int

	if status != "" {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM markets WHERE status = $1`, status); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM markets`); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	}
	return markets, total, nil
}

// GetExpiredOpen returns markets still status='open' whose closes_at has
// passed — due for the scheduler's close_expired_markets transition to
// trading_closed.
func (r *MarketRepository) GetExpiredOpen(ctx context.Context, now time.Time) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets WHERE status = 'open' AND closes_at <= $1 ORDER BY closes_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetExpiredOpen: %w", err)
	}
	return markets, nil
}

// UpdateLMSRState persists new q_yes/q_no after a trade inside tx. Caller
// must already hold the row lock via Lock.
func (r *MarketRepository) UpdateLMSRState(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, qYes, qNo decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE markets SET q_yes = $1, q_no = $2, updated_at = now() WHERE id = $3`,
		qYes, qNo, marketID)
	if err != nil {
		return fmt.Errorf("market_repo.UpdateLMSRState: %w", err)
	}
	return nil
}

// UpdateLastTradePrice persists the CLOB last-trade price inside tx.
func (r *MarketRepository) UpdateLastTradePrice(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, priceYes decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE markets SET last_trade_price_yes = $1, updated_at = now() WHERE id = $2`,
		priceYes, marketID)
	if err != nil {
		return fmt.Errorf("market_repo.UpdateLastTradePrice: %w", err)
	}
	return nil
}

// RecordTrade bumps total_volume/total_trades inside tx, and total_traders
// only when isNewTrader is true (caller determines this from whether the
// trader had a prior position/order in this market).
func (r *MarketRepository) RecordTrade(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, volume decimal.Decimal, isNewTrader bool) error {
	traderInc := 0
	if isNewTrader {
		traderInc = 1
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET total_volume  = total_volume + $1,
		    total_trades  = total_trades + 1,
		    total_traders = total_traders + $2,
		    updated_at    = now()
		WHERE id = $3`,
		volume, traderInc, marketID)
	if err != nil {
		return fmt.Errorf("market_repo.RecordTrade: %w", err)
	}
	return nil
}

// CloseTrading transitions status open -> trading_closed.
func (r *MarketRepository) CloseTrading(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE markets SET status = 'trading_closed', updated_at = now() WHERE id = $1 AND status = 'open'`,
		marketID)
	if err != nil {
		return fmt.Errorf("market_repo.CloseTrading: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotOpen
	}
	return nil
}

// Resolve sets status=resolved, resolution_outcome and resolved_at inside tx.
func (r *MarketRepository) Resolve(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, outcome domain.Outcome) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status             = 'resolved',
		    resolution_outcome = $1,
		    resolved_at        = now(),
		    updated_at         = now()
		WHERE id = $2 AND status IN ('open','trading_closed')`,
		string(outcome), marketID)
	if err != nil {
		return fmt.Errorf("market_repo.Resolve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}

// Cancel marks the market cancelled inside tx (refunds are the caller's job).
func (r *MarketRepository) Cancel(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE markets SET status = 'cancelled', updated_at = now() WHERE id = $1 AND status NOT IN ('resolved','cancelled')`,
		marketID)
	if err != nil {
		return fmt.Errorf("market_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}

// GetHistory returns resolved/cancelled markets in descending resolution order.
func (r *MarketRepository) GetHistory(ctx context.Context, limit, offset int) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets, `
		SELECT * FROM markets
		WHERE status IN ('resolved','cancelled')
		ORDER BY resolved_at DESC NULLS LAST
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetHistory: %w", err)
	}
	return markets, nil
}

// ExposureReport holds aggregated house-exposure figures for the back-office
// risk dashboard, adapted from the teacher's finance-report shape.
type ExposureReport struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	TotalVolume    string    `json:"total_volume"`
	TotalFees      string    `json:"total_fees"`
	OpenMarkets    int       `json:"open_markets"`
	ResolvedCount  int       `json:"resolved_count"`
}

// GetExposureReport builds the back-office exposure figures. Only the fee
// total (CLOB fill fees from trade_fills) and the resolved-market count are
// limited to [from, to); total_volume is the lifetime sum over all markets
// and open_markets is the current count of open markets.
func (r *MarketRepository) GetExposureReport(ctx context.Context, from, to time.Time) (*ExposureReport, error) {
	type row struct {
		TotalVolume string `db:"total_volume"`
		OpenCount   int    `db:"open_count"`
		ResolvedN   int    `db:"resolved_n"`
	}
	var agg row
	err := r.db.GetContext(ctx, &agg, `
		SELECT
			COALESCE(SUM(total_volume), 0)::text AS total_volume,
			COUNT(*) FILTER (WHERE status = 'open')     AS open_count,
			COUNT(*) FILTER (WHERE status = 'resolved'
			                 AND resolved_at >= $1 AND resolved_at < $2) AS resolved_n
		FROM markets`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetExposureReport markets: %w", err)
	}

	var fees string
	err = r.db.GetContext(ctx, &fees, `
		SELECT COALESCE(SUM(fee), 0)::text FROM trade_fills
		WHERE created_at >= $1 AND created_at < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetExposureReport fees: %w", err)
	}

	return &ExposureReport{
		From:          from,
		To:            to,
		TotalVolume:   agg.TotalVolume,
		TotalFees:     fees,
		OpenMarkets:   agg.OpenCount,
		ResolvedCount: agg.ResolvedN,
	}, nil
}

// CreatePriceHistory appends an LMSR price point inside tx.
func (r *MarketRepository) CreatePriceHistory(ctx context.Context, tx *sqlx.Tx, ph *domain.PriceHistory) error {
	query := `
		INSERT INTO price_history (id, market_id, price_yes, price_no, q_yes, q_no, created_at)
		VALUES (:id, :market_id, :price_yes, :price_no, :q_yes, :q_no, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, ph); err != nil {
		return fmt.Errorf("market_repo.CreatePriceHistory: %w", err)
	}
	return nil
}

// GetPriceHistory returns a market's price series, oldest first.
func (r *MarketRepository) GetPriceHistory(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.PriceHistory, error) {
	var series []*domain.PriceHistory
	err := r.db.SelectContext(ctx, &series,
		`SELECT * FROM price_history WHERE market_id = $1 ORDER BY created_at ASC LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetPriceHistory: %w", err)
	}
	return series, nil
}
