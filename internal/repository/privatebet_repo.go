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

// PrivateBetRepository handles all database operations for PrivateBets and
// their participants.
type PrivateBetRepository struct {
	db *sqlx.DB
}

// NewPrivateBetRepository creates a new PrivateBetRepository.
func NewPrivateBetRepository(db *sqlx.DB) *PrivateBetRepository {
	return &PrivateBetRepository{db: db}
}

// Create inserts a new private bet inside tx (its creator is enrolled as the
// first participant by the caller via AddParticipant in the same tx).
func (r *PrivateBetRepository) Create(ctx context.Context, tx *sqlx.Tx, b *domain.PrivateBet) error {
	query := `
		INSERT INTO private_bets
			(id, creator_id, question, stake_amount, invite_code, status,
			 closes_at, voting_deadline, yes_count, no_count, yes_votes, no_votes,
			 total_pool, resolution_outcome, created_at, resolved_at)
		VALUES
			(:id, :creator_id, :question, :stake_amount, :invite_code, :status,
			 :closes_at, :voting_deadline, :yes_count, :no_count, :yes_votes, :no_votes,
			 :total_pool, :resolution_outcome, :created_at, :resolved_at)`
	if _, err := tx.NamedExecContext(ctx, query, b); err != nil {
		if isPgUniqueViolation(err, "private_bets_invite_code_key") {
			return domain.ErrInviteCodeCollision
		}
		return fmt.Errorf("privatebet_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a private bet by primary key.
func (r *PrivateBetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PrivateBet, error) {
	var b domain.PrivateBet
	err := r.db.GetContext(ctx, &b, `SELECT * FROM private_bets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPrivateBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetByID: %w", err)
	}
	return &b, nil
}

// Lock selects a private bet FOR UPDATE inside tx.
func (r *PrivateBetRepository) Lock(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.PrivateBet, error) {
	var b domain.PrivateBet
	err := tx.GetContext(ctx, &b, `SELECT * FROM private_bets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPrivateBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.Lock: %w", err)
	}
	return &b, nil
}

// GetByInviteCode looks up a bet by its join code (case-sensitive, fixed
// alphabet per spec.md's invite-code generation rule).
func (r *PrivateBetRepository) GetByInviteCode(ctx context.Context, code string) (*domain.PrivateBet, error) {
	var b domain.PrivateBet
	err := r.db.GetContext(ctx, &b, `SELECT * FROM private_bets WHERE invite_code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPrivateBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetByInviteCode: %w", err)
	}
	return &b, nil
}

// InviteCodeExists reports whether code is already taken, used by the
// create-flow's retry loop (maxCodeRetries attempts before giving up).
func (r *PrivateBetRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM private_bets WHERE invite_code = $1)`, code)
	if err != nil {
		return false, fmt.Errorf("privatebet_repo.InviteCodeExists: %w", err)
	}
	return exists, nil
}

// AddParticipant enrolls a user on one side of the bet inside tx and bumps
// the corresponding count and total_pool.
func (r *PrivateBetRepository) AddParticipant(ctx context.Context, tx *sqlx.Tx, p *domain.PrivateBetParticipant, stake decimal.Decimal) error {
	query := `
		INSERT INTO private_bet_participants (id, bet_id, user_id, outcome, vote, payout, joined_at)
		VALUES (:id, :bet_id, :user_id, :outcome, :vote, :payout, :joined_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		if isPgUniqueViolation(err, "private_bet_participants_bet_id_user_id_key") {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("privatebet_repo.AddParticipant insert: %w", err)
	}

	var countCol string
	if p.Outcome == domain.OutcomeYes {
		countCol = "yes_count"
	} else {
		countCol = "no_count"
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE private_bets SET %s = %s + 1, total_pool = total_pool + $1 WHERE id = $2`, countCol, countCol),
		stake, p.BetID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.AddParticipant update: %w", err)
	}
	return nil
}

// GetParticipant returns a single user's participation row, if any.
func (r *PrivateBetRepository) GetParticipant(ctx context.Context, betID, userID uuid.UUID) (*domain.PrivateBetParticipant, error) {
	var p domain.PrivateBetParticipant
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM private_bet_participants WHERE bet_id = $1 AND user_id = $2`,
		betID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetParticipant: %w", err)
	}
	return &p, nil
}

// ListParticipants returns every participant in a bet.
func (r *PrivateBetRepository) ListParticipants(ctx context.Context, betID uuid.UUID) ([]*domain.PrivateBetParticipant, error) {
	var participants []*domain.PrivateBetParticipant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT * FROM private_bet_participants WHERE bet_id = $1 ORDER BY joined_at ASC`, betID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListParticipants: %w", err)
	}
	return participants, nil
}

// ListParticipantsLocked returns every participant row FOR UPDATE inside tx,
// used by resolution/cancellation to pay out or refund each one exactly once.
func (r *PrivateBetRepository) ListParticipantsLocked(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) ([]*domain.PrivateBetParticipant, error) {
	var participants []*domain.PrivateBetParticipant
	err := tx.SelectContext(ctx, &participants,
		`SELECT * FROM private_bet_participants WHERE bet_id = $1 ORDER BY joined_at ASC FOR UPDATE`, betID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListParticipantsLocked: %w", err)
	}
	return participants, nil
}

// CastVote records a participant's vote inside tx and bumps the bet's vote
// tally. Only succeeds if the participant has not already voted.
func (r *PrivateBetRepository) CastVote(ctx context.Context, tx *sqlx.Tx, betID, userID uuid.UUID, vote domain.Outcome) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE private_bet_participants SET vote = $1
		WHERE bet_id = $2 AND user_id = $3 AND vote IS NULL`,
		string(vote), betID, userID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.CastVote update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyVoted
	}

	var voteCol string
	if vote == domain.OutcomeYes {
		voteCol = "yes_votes"
	} else {
		voteCol = "no_votes"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE private_bets SET %s = %s + 1 WHERE id = $1`, voteCol, voteCol), betID); err != nil {
		return fmt.Errorf("privatebet_repo.CastVote update bet: %w", err)
	}
	return nil
}

// SetPayout records a participant's resolved payout inside tx (zero for losers).
func (r *PrivateBetRepository) SetPayout(ctx context.Context, tx *sqlx.Tx, participantID uuid.UUID, payout decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE private_bet_participants SET payout = $1 WHERE id = $2`, payout, participantID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.SetPayout: %w", err)
	}
	return nil
}

// TransitionToVoting moves open -> voting inside tx, stamping the voting
// deadline.
func (r *PrivateBetRepository) TransitionToVoting(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, deadline time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE private_bets SET status = 'voting', voting_deadline = $1 WHERE id = $2 AND status = 'open'`,
		deadline, betID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.TransitionToVoting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBetNotOpen
	}
	return nil
}

// Resolve sets status=resolved inside tx.
func (r *PrivateBetRepository) Resolve(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, outcome domain.Outcome) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE private_bets
		SET status = 'resolved', resolution_outcome = $1, resolved_at = now()
		WHERE id = $2 AND status = 'voting'`,
		string(outcome), betID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.Resolve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBetNotVoting
	}
	return nil
}

// Cancel sets status=cancelled inside tx (tie or too-few-participants refund path).
func (r *PrivateBetRepository) Cancel(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE private_bets SET status = 'cancelled', resolved_at = now()
		WHERE id = $1 AND status IN ('open','voting')`, betID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.Cancel: %w", err)
	}
	return nil
}

// ListByUser returns every private bet a user participates in ("my bets"),
// most recently created first.
func (r *PrivateBetRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PrivateBet, error) {
	var bets []*domain.PrivateBet
	err := r.db.SelectContext(ctx, &bets, `
		SELECT pb.* FROM private_bets pb
		JOIN private_bet_participants pp ON pp.bet_id = pb.id
		WHERE pp.user_id = $1
		ORDER BY pb.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListByUser: %w", err)
	}
	return bets, nil
}

// GetExpiredOpen returns open bets whose closes_at has passed, due for the
// close_expired_private_bets scheduler job to transition into voting.
func (r *PrivateBetRepository) GetExpiredOpen(ctx context.Context, now time.Time) ([]*domain.PrivateBet, error) {
	var bets []*domain.PrivateBet
	err := r.db.SelectContext(ctx, &bets,
		`SELECT * FROM private_bets WHERE status = 'open' AND closes_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.GetExpiredOpen: %w", err)
	}
	return bets, nil
}

// GetExpiredVoting returns voting-phase bets whose voting_deadline has
// passed, due for the resolve_expired_voting scheduler job to force a
// majority-so-far resolution or cancel on a tie/no-quorum.
func (r *PrivateBetRepository) GetExpiredVoting(ctx context.Context, now time.Time) ([]*domain.PrivateBet, error) {
	var bets []*domain.PrivateBet
	err := r.db.SelectContext(ctx, &bets,
		`SELECT * FROM private_bets WHERE status = 'voting' AND voting_deadline <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.GetExpiredVoting: %w", err)
	}
	return bets, nil
}
