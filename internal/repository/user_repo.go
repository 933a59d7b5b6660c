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

// UserRepository handles all database operations for Users, including the
// balance/reserved_balance ledger that the teacher kept on a separate
// wallets table — here it lives directly on the user row.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users
			(id, external_id, username, role, balance, reserved_balance,
			 total_trades, win_count, refund_count, lifetime_profit, created_at, updated_at)
		VALUES
			(:id, :external_id, :username, :role, :balance, :reserved_balance,
			 :total_trades, :win_count, :refund_count, :lifetime_profit, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		if isPgUniqueViolation(err, "users_external_id_key") || isPgUniqueViolation(err, "users_username_key") {
			return domain.ErrInviteCodeCollision // reuse conflict kind; the caller does not retry
		}
		return fmt.Errorf("user_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByExternalID fetches a user by their identity-provider subject id
// (spec.md §6 — the core never verifies credentials itself).
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE external_id = $1`, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByExternalID: %w", err)
	}
	return &u, nil
}

// List returns a paginated list of all users, most-recent first.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	var users []*domain.User
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List count: %w", err)
	}
	if err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List select: %w", err)
	}
	return users, total, nil
}

// ListLeaderboard returns the top users ranked by lifetime_profit descending,
// backing the scheduler's refresh_leaderboard job read path.
func (r *UserRepository) ListLeaderboard(ctx context.Context, limit int) ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users ORDER BY lifetime_profit DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("user_repo.ListLeaderboard: %w", err)
	}
	return users, nil
}

// UpdateRole changes a user's role (back-office operation).
func (r *UserRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role domain.UserRole) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = now() WHERE id = $2`,
		string(role), userID)
	if err != nil {
		return fmt.Errorf("user_repo.UpdateRole: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Lock selects a user FOR UPDATE inside tx, establishing the canonical lock
// order's user step, and returns the locked row.
func (r *UserRepository) Lock(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.Lock: %w", err)
	}
	return &u, nil
}

// ReserveBalance increments reserved_balance by amount inside tx. Caller must
// have already locked the row via Lock and checked Available() >= amount;
// this only persists the change.
func (r *UserRepository) ReserveBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET reserved_balance = reserved_balance + $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.ReserveBalance: %w", err)
	}
	return nil
}

// ReleaseBalance decrements reserved_balance by amount inside tx (order
// cancellation or partial-fill release).
func (r *UserRepository) ReleaseBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET reserved_balance = GREATEST(reserved_balance - $1, 0), updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.ReleaseBalance: %w", err)
	}
	return nil
}

// DebitBalance subtracts amount from balance inside tx. Caller must have
// already locked the row and checked sufficiency.
func (r *UserRepository) DebitBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.DebitBalance: %w", err)
	}
	return nil
}

// CreditBalance adds amount to balance inside tx.
func (r *UserRepository) CreditBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.CreditBalance: %w", err)
	}
	return nil
}

// IncrementTotalTrades bumps total_trades by one. Called once per executed
// trade (LMSR buy, CLOB fill) — resolution never calls this, since a
// position's trades were already counted when they were placed.
func (r *UserRepository) IncrementTotalTrades(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET total_trades = total_trades + 1, updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("user_repo.IncrementTotalTrades: %w", err)
	}
	return nil
}

// RecordWin increments win_count and lifetime_profit for a position paid out
// as a winner at market resolution. Does not touch total_trades — that was
// already incremented when the position's trades were placed.
func (r *UserRepository) RecordWin(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, profit decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET win_count = win_count + 1, lifetime_profit = lifetime_profit + $1, updated_at = now() WHERE id = $2`,
		profit, userID)
	if err != nil {
		return fmt.Errorf("user_repo.RecordWin: %w", err)
	}
	return nil
}

// RecordLoss adjusts lifetime_profit (by a negative amount) for a position
// zeroed out as a loser at market resolution. Does not touch total_trades or
// win_count.
func (r *UserRepository) RecordLoss(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, profit decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET lifetime_profit = lifetime_profit + $1, updated_at = now() WHERE id = $2`,
		profit, userID)
	if err != nil {
		return fmt.Errorf("user_repo.RecordLoss: %w", err)
	}
	return nil
}

// RecordRefund increments refund_count, kept separate from win_count so
// cancelled-market refunds never inflate a user's win rate.
func (r *UserRepository) RecordRefund(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET refund_count = refund_count + 1, updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("user_repo.RecordRefund: %w", err)
	}
	return nil
}

// AdjustBalance credits (positive amount) or debits (negative amount) a
// user's balance as a manual back-office operation, recording the matching
// ledger entry in the same transaction. Used by the admin balance-adjustment
// endpoint only — normal trading flows go through ReserveBalance/DebitBalance/
// CreditBalance under a caller-owned tx.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, note string) (_ *domain.User, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("user_repo.AdjustBalance begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	user, err := r.Lock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() && user.Available().LessThan(amount.Abs()) {
		return nil, domain.ErrInsufficientBalance
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, userID); err != nil {
		return nil, fmt.Errorf("user_repo.AdjustBalance update: %w", err)
	}

	txType := domain.TxBonus
	if amount.IsNegative() {
		txType = domain.TxWithdraw
	}
	entry := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount.Abs(),
		Description: note,
		CreatedAt:   time.Now(),
	}
	query := `
		INSERT INTO transactions
			(id, user_id, market_id, type, amount, shares, outcome, price_at_trade, description, created_at)
		VALUES
			(:id, :user_id, :market_id, :type, :amount, :shares, :outcome, :price_at_trade, :description, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, entry); err != nil {
		return nil, fmt.Errorf("user_repo.AdjustBalance ledger: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("user_repo.AdjustBalance commit: %w", err)
	}
	user.Balance = user.Balance.Add(amount)
	return user, nil
}

func isPgUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	return containsStr(err.Error(), "unique constraint") && containsStr(err.Error(), constraintName)
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
