package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TransactionRepository handles the append-only wallet ledger.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a ledger entry inside tx. Every balance-moving operation
// emits at least one of these per affected user.
func (r *TransactionRepository) Create(ctx context.Context, tx *sqlx.Tx, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions
			(id, user_id, market_id, type, amount, shares, outcome, price_at_trade, description, created_at)
		VALUES
			(:id, :user_id, :market_id, :type, :amount, :shares, :outcome, :price_at_trade, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("transaction_repo.Create: %w", err)
	}
	return nil
}

// ListByUser returns a user's ledger history, paginated, most recent first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.ListByUser: %w", err)
	}
	return txns, nil
}

// ListByMarket returns every ledger entry tied to a market (audit view).
func (r *TransactionRepository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE market_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.ListByMarket: %w", err)
	}
	return txns, nil
}
