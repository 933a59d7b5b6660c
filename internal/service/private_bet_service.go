package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/evetabi/prediction/internal/config"
	"github.com/evetabi/prediction/internal/domain"
	"github.com/evetabi/prediction/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// inviteCodeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const inviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const inviteCodeLength = 6
const maxCodeRetries = 5

// PrivateBetBroadcaster is the minimal WS interface PrivateBetService needs.
type PrivateBetBroadcaster interface {
	BroadcastPrivateBetResolved(betID uuid.UUID, outcome domain.Outcome)
	BroadcastPrivateBetCancelled(betID uuid.UUID)
}

// PrivateBetService runs the invite-coded group-wager lifecycle: create,
// join, manual/forced voting transition, vote casting with majority
// auto-resolve, and lookup/listing.
type PrivateBetService struct {
	db          *sqlx.DB
	betRepo     *repository.PrivateBetRepository
	userRepo    *repository.UserRepository
	txnRepo     *repository.TransactionRepository
	cfg         *config.Config
	broadcaster PrivateBetBroadcaster
}

// NewPrivateBetService builds a PrivateBetService.
func NewPrivateBetService(
	db *sqlx.DB,
	betRepo *repository.PrivateBetRepository,
	userRepo *repository.UserRepository,
	txnRepo *repository.TransactionRepository,
	cfg *config.Config,
) *PrivateBetService {
	return &PrivateBetService{
		db:       db,
		betRepo:  betRepo,
		userRepo: userRepo,
		txnRepo:  txnRepo,
		cfg:      cfg,
	}
}

// SetBroadcaster injects the WS hub after construction.
func (s *PrivateBetService) SetBroadcaster(b PrivateBetBroadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Create
// ──────────────────────────────────────────────────────────────────────────────

// Create opens a new private bet, staking the creator onto outcome.
func (s *PrivateBetService) Create(
	ctx context.Context, creatorID uuid.UUID, question string,
	stakeAmount decimal.Decimal, closesAt time.Time, outcome domain.Outcome,
) (*domain.PrivateBet, error) {
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if stakeAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if time.Until(closesAt) < s.cfg.PrivateBet.MinLeadTime {
		return nil, fmt.Errorf("%w: closes_at must be at least %s out", domain.ErrInvalidAmount, s.cfg.PrivateBet.MinLeadTime)
	}

	code, err := s.generateInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Create: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	user, err := s.userRepo.Lock(ctx, tx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Create: lock user: %w", err)
	}
	if user.Available().LessThan(stakeAmount) {
		return nil, domain.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	bet := &domain.PrivateBet{
		ID: uuid.New(), CreatorID: creatorID, Question: question,
		StakeAmount: stakeAmount, InviteCode: code, Status: domain.PrivateBetOpen,
		ClosesAt: closesAt, TotalPool: decimal.Zero, CreatedAt: now,
	}
	if err := s.betRepo.Create(ctx, tx, bet); err != nil {
		return nil, fmt.Errorf("private_bet_service.Create: insert bet: %w", err)
	}

	if err := s.enroll(ctx, tx, bet, creatorID, outcome, stakeAmount, now); err != nil {
		return nil, err
	}
	bet.TotalPool = bet.TotalPool.Add(stakeAmount)
	if outcome == domain.OutcomeYes {
		bet.YesCount++
	} else {
		bet.NoCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("private_bet_service.Create: commit: %w", err)
	}
	committed = true

	return bet, nil
}

// Join enrolls a user onto one side of an open bet by invite code.
func (s *PrivateBetService) Join(ctx context.Context, userID uuid.UUID, inviteCode string, outcome domain.Outcome) (*domain.PrivateBet, error) {
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}

	existing, err := s.betRepo.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Join: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bet, err := s.betRepo.Lock(ctx, tx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Join: lock bet: %w", err)
	}
	if !bet.IsOpen() {
		return nil, domain.ErrBetNotOpen
	}

	if _, err := s.betRepo.GetParticipant(ctx, bet.ID, userID); err == nil {
		return nil, domain.ErrAlreadyJoined
	} else if !domain.IsNotFound(err) {
		return nil, fmt.Errorf("private_bet_service.Join: check participant: %w", err)
	}

	user, err := s.userRepo.Lock(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Join: lock user: %w", err)
	}
	if user.Available().LessThan(bet.StakeAmount) {
		return nil, domain.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	if err := s.enroll(ctx, tx, bet, userID, outcome, bet.StakeAmount, now); err != nil {
		return nil, err
	}
	bet.TotalPool = bet.TotalPool.Add(bet.StakeAmount)
	if outcome == domain.OutcomeYes {
		bet.YesCount++
	} else {
		bet.NoCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("private_bet_service.Join: commit: %w", err)
	}
	committed = true

	return bet, nil
}

// enroll debits the stake and records the participant row + stake transaction.
func (s *PrivateBetService) enroll(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet, userID uuid.UUID, outcome domain.Outcome, stake decimal.Decimal, now time.Time) error {
	if err := s.userRepo.DebitBalance(ctx, tx, userID, stake); err != nil {
		return fmt.Errorf("private_bet_service.enroll: debit: %w", err)
	}
	p := &domain.PrivateBetParticipant{
		ID: uuid.New(), BetID: bet.ID, UserID: userID, Outcome: outcome, JoinedAt: now,
	}
	if err := s.betRepo.AddParticipant(ctx, tx, p, stake); err != nil {
		return fmt.Errorf("private_bet_service.enroll: add participant: %w", err)
	}
	txn := &domain.Transaction{
		ID: uuid.New(), UserID: userID, Type: domain.TxBetStake, Amount: stake.Neg(),
		Outcome: &outcome, Description: fmt.Sprintf("private bet %s stake", bet.InviteCode), CreatedAt: now,
	}
	if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
		return fmt.Errorf("private_bet_service.enroll: txn: %w", err)
	}
	return nil
}

// generateInviteCode produces a unique invite code, retrying up to
// maxCodeRetries times on collision before giving up.
func (s *PrivateBetService) generateInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := randomCode(inviteCodeLength)
		if err != nil {
			return "", fmt.Errorf("private_bet_service.generateInviteCode: %w", err)
		}
		exists, err := s.betRepo.InviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("private_bet_service.generateInviteCode: check: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrInviteCodeCollision
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(out), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// StartVoting
// ──────────────────────────────────────────────────────────────────────────────

// StartVoting transitions an open bet to voting. Only the creator may call
// this manually; the scheduler forces the same transition after closes_at.
func (s *PrivateBetService) StartVoting(ctx context.Context, betID, callerID uuid.UUID) (*domain.PrivateBet, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.StartVoting: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bet, err := s.betRepo.Lock(ctx, tx, betID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.StartVoting: lock bet: %w", err)
	}
	if bet.CreatorID != callerID {
		return nil, domain.ErrNotCreator
	}
	if err := s.transitionToVotingLocked(ctx, tx, bet); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("private_bet_service.StartVoting: commit: %w", err)
	}
	committed = true
	return bet, nil
}

func (s *PrivateBetService) transitionToVotingLocked(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet) error {
	if !bet.IsOpen() {
		return domain.ErrBetNotOpen
	}
	if bet.TotalParticipants() < 2 {
		return domain.ErrBetTooFewParticipants
	}
	if bet.YesCount == 0 || bet.NoCount == 0 {
		return domain.ErrBetTooFewSides
	}
	deadline := time.Now().UTC().Add(s.cfg.PrivateBet.VotingWindow)
	if err := s.betRepo.TransitionToVoting(ctx, tx, bet.ID, deadline); err != nil {
		return fmt.Errorf("private_bet_service.transitionToVotingLocked: %w", err)
	}
	bet.Status = domain.PrivateBetVoting
	bet.VotingDeadline = &deadline
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CastVote
// ──────────────────────────────────────────────────────────────────────────────

// CastVote records a participant's vote and auto-resolves the bet as soon as
// one side reaches its majority threshold — floor(N/2)+1 — per spec.md
// §4.5, rather than waiting for every participant to vote.
func (s *PrivateBetService) CastVote(ctx context.Context, betID, userID uuid.UUID, vote domain.Outcome) (*domain.PrivateBet, error) {
	if !vote.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}

	participant, err := s.betRepo.GetParticipant(ctx, betID, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasVoted() {
		return nil, domain.ErrAlreadyVoted
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.CastVote: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	bet, err := s.betRepo.Lock(ctx, tx, betID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.CastVote: lock bet: %w", err)
	}
	if !bet.IsVoting() {
		return nil, domain.ErrBetNotVoting
	}

	if err := s.betRepo.CastVote(ctx, tx, betID, userID, vote); err != nil {
		return nil, fmt.Errorf("private_bet_service.CastVote: %w", err)
	}
	if vote == domain.OutcomeYes {
		bet.YesVotes++
	} else {
		bet.NoVotes++
	}

	resolved := false
	leadingVotes := bet.YesVotes
	if bet.NoVotes > leadingVotes {
		leadingVotes = bet.NoVotes
	}
	if leadingVotes >= bet.MajorityThreshold() {
		if err := s.settleVoting(ctx, tx, bet); err != nil {
			return nil, fmt.Errorf("private_bet_service.CastVote: settle: %w", err)
		}
		resolved = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("private_bet_service.CastVote: commit: %w", err)
	}
	committed = true

	if resolved {
		go s.postSettleAsync(bet)
	}
	return bet, nil
}

// settleVoting decides the outcome from the current tally and either pays
// winners or cancels and refunds on a tie, per spec.md §4.5.
func (s *PrivateBetService) settleVoting(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet) error {
	switch {
	case bet.YesVotes > bet.NoVotes:
		return s.resolveOutcome(ctx, tx, bet, domain.OutcomeYes)
	case bet.NoVotes > bet.YesVotes:
		return s.resolveOutcome(ctx, tx, bet, domain.OutcomeNo)
	default:
		return s.cancelAndRefund(ctx, tx, bet)
	}
}

func (s *PrivateBetService) resolveOutcome(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet, outcome domain.Outcome) error {
	participants, err := s.betRepo.ListParticipantsLocked(ctx, tx, bet.ID)
	if err != nil {
		return fmt.Errorf("resolveOutcome: list participants: %w", err)
	}
	var winners []*domain.PrivateBetParticipant
	for _, p := range participants {
		if p.Outcome == outcome {
			winners = append(winners, p)
		}
	}
	if len(winners) == 0 {
		// Nobody staked the voted-for side; fall back to a full refund.
		return s.cancelAndRefundParticipants(ctx, tx, bet, participants)
	}

	fee := bet.TotalPool.Mul(decimal.NewFromFloat(s.cfg.PrivateBet.FeeRate)).Round(2)
	distributable := bet.TotalPool.Sub(fee)
	perWinner := distributable.Div(decimal.NewFromInt(int64(len(winners)))).Round(2)

	now := time.Now().UTC()
	for _, p := range winners {
		if err := s.userRepo.CreditBalance(ctx, tx, p.UserID, perWinner); err != nil {
			return fmt.Errorf("resolveOutcome: credit %s: %w", p.UserID, err)
		}
		if err := s.betRepo.SetPayout(ctx, tx, p.ID, perWinner); err != nil {
			return fmt.Errorf("resolveOutcome: set payout %s: %w", p.UserID, err)
		}
		txn := &domain.Transaction{
			ID: uuid.New(), UserID: p.UserID, Type: domain.TxBetPayout, Amount: perWinner,
			Outcome: &outcome, Description: fmt.Sprintf("private bet %s resolved %s", bet.InviteCode, outcome), CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("resolveOutcome: txn %s: %w", p.UserID, err)
		}
	}
	if err := s.betRepo.Resolve(ctx, tx, bet.ID, outcome); err != nil {
		return fmt.Errorf("resolveOutcome: %w", err)
	}
	bet.Status = domain.PrivateBetResolved
	bet.ResolutionOutcome = &outcome
	return nil
}

func (s *PrivateBetService) cancelAndRefund(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet) error {
	participants, err := s.betRepo.ListParticipantsLocked(ctx, tx, bet.ID)
	if err != nil {
		return fmt.Errorf("cancelAndRefund: list participants: %w", err)
	}
	return s.cancelAndRefundParticipants(ctx, tx, bet, participants)
}

func (s *PrivateBetService) cancelAndRefundParticipants(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet, participants []*domain.PrivateBetParticipant) error {
	now := time.Now().UTC()
	for _, p := range participants {
		if err := s.userRepo.CreditBalance(ctx, tx, p.UserID, bet.StakeAmount); err != nil {
			return fmt.Errorf("cancelAndRefundParticipants: credit %s: %w", p.UserID, err)
		}
		if err := s.userRepo.RecordRefund(ctx, tx, p.UserID); err != nil {
			return fmt.Errorf("cancelAndRefundParticipants: record refund %s: %w", p.UserID, err)
		}
		if err := s.betRepo.SetPayout(ctx, tx, p.ID, bet.StakeAmount); err != nil {
			return fmt.Errorf("cancelAndRefundParticipants: set payout %s: %w", p.UserID, err)
		}
		txn := &domain.Transaction{
			ID: uuid.New(), UserID: p.UserID, Type: domain.TxBetRefund, Amount: bet.StakeAmount,
			Description: fmt.Sprintf("private bet %s cancelled", bet.InviteCode), CreatedAt: now,
		}
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("cancelAndRefundParticipants: txn %s: %w", p.UserID, err)
		}
	}
	if err := s.betRepo.Cancel(ctx, tx, bet.ID); err != nil {
		return fmt.Errorf("cancelAndRefundParticipants: %w", err)
	}
	bet.Status = domain.PrivateBetCancelled
	return nil
}

func (s *PrivateBetService) postSettleAsync(bet *domain.PrivateBet) {
	if s.broadcaster == nil {
		return
	}
	if bet.Status == domain.PrivateBetCancelled {
		s.broadcaster.BroadcastPrivateBetCancelled(bet.ID)
		return
	}
	s.broadcaster.BroadcastPrivateBetResolved(bet.ID, *bet.ResolutionOutcome)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler-facing: force transitions on expiry
// ──────────────────────────────────────────────────────────────────────────────

// CloseExpiredOpen transitions every open bet whose closes_at has passed
// into voting, or cancels+refunds it when it never reached quorum.
func (s *PrivateBetService) CloseExpiredOpen(ctx context.Context) (int, error) {
	bets, err := s.betRepo.GetExpiredOpen(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("private_bet_service.CloseExpiredOpen: fetch: %w", err)
	}
	count := 0
	for _, b := range bets {
		if err := s.closeExpiredOne(ctx, b.ID); err != nil {
			log.Printf("[private_bet] ERROR closing expired bet %s: %v", b.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

func (s *PrivateBetService) closeExpiredOne(ctx context.Context, betID uuid.UUID) error {
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

	bet, err := s.betRepo.Lock(ctx, tx, betID)
	if err != nil {
		return fmt.Errorf("lock bet: %w", err)
	}
	if !bet.IsOpen() {
		return nil // already transitioned by a manual StartVoting call
	}

	if err := s.transitionToVotingLocked(ctx, tx, bet); err != nil {
		if domain.IsStateError(err) {
			// Too few sides/participants: refund what was staked instead.
			if cancelErr := s.cancelAndRefund(ctx, tx, bet); cancelErr != nil {
				return fmt.Errorf("cancel underfilled bet: %w", cancelErr)
			}
		} else {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// ResolveExpiredVoting force-settles every voting-phase bet whose deadline has
// passed, using the majority-so-far tally (ties and zero-quorum cancel+refund).
func (s *PrivateBetService) ResolveExpiredVoting(ctx context.Context) (int, error) {
	bets, err := s.betRepo.GetExpiredVoting(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("private_bet_service.ResolveExpiredVoting: fetch: %w", err)
	}
	count := 0
	for _, b := range bets {
		if err := s.resolveExpiredOne(ctx, b.ID); err != nil {
			log.Printf("[private_bet] ERROR resolving expired voting bet %s: %v", b.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

func (s *PrivateBetService) resolveExpiredOne(ctx context.Context, betID uuid.UUID) error {
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

	bet, err := s.betRepo.Lock(ctx, tx, betID)
	if err != nil {
		return fmt.Errorf("lock bet: %w", err)
	}
	if !bet.IsVoting() {
		return nil
	}
	if err := s.settleVoting(ctx, tx, bet); err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	go s.postSettleAsync(bet)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Read paths
// ──────────────────────────────────────────────────────────────────────────────

// Lookup resolves an invite code to its bet, used by the join flow's preview step.
func (s *PrivateBetService) Lookup(ctx context.Context, inviteCode string) (*domain.PrivateBet, error) {
	bet, err := s.betRepo.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.Lookup: %w", err)
	}
	return bet, nil
}

// Detail returns a bet and its participant roster.
func (s *PrivateBetService) Detail(ctx context.Context, betID uuid.UUID) (*domain.PrivateBet, []*domain.PrivateBetParticipant, error) {
	bet, err := s.betRepo.GetByID(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("private_bet_service.Detail: get bet: %w", err)
	}
	participants, err := s.betRepo.ListParticipants(ctx, betID)
	if err != nil {
		return nil, nil, fmt.Errorf("private_bet_service.Detail: list participants: %w", err)
	}
	return bet, participants, nil
}

// MyBets returns every private bet a user participates in.
func (s *PrivateBetService) MyBets(ctx context.Context, userID uuid.UUID) ([]*domain.PrivateBet, error) {
	bets, err := s.betRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("private_bet_service.MyBets: %w", err)
	}
	return bets, nil
}
