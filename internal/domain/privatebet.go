package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PrivateBetStatus tracks the lifecycle: open -> voting -> {resolved,cancelled}
// and open -> cancelled.
type PrivateBetStatus string

const (
	PrivateBetOpen      PrivateBetStatus = "open"
	PrivateBetVoting    PrivateBetStatus = "voting"
	PrivateBetResolved  PrivateBetStatus = "resolved"
	PrivateBetCancelled PrivateBetStatus = "cancelled"
)

// PrivateBetFeeRate is the platform cut taken from the pool on resolution (2%).
var PrivateBetFeeRate = decimal.NewFromFloat(0.02)

// PrivateBet is an invite-coded, fixed-stake group wager resolved by
// majority vote of its participants.
type PrivateBet struct {
	ID             uuid.UUID        `json:"id"              db:"id"`
	CreatorID      uuid.UUID        `json:"creator_id"      db:"creator_id"`
	Question       string           `json:"question"        db:"question"`
	StakeAmount    decimal.Decimal  `json:"stake_amount"    db:"stake_amount"`
	InviteCode     string           `json:"invite_code"     db:"invite_code"`
	Status         PrivateBetStatus `json:"status"          db:"status"`
	ClosesAt       time.Time        `json:"closes_at"       db:"closes_at"`
	VotingDeadline *time.Time       `json:"voting_deadline" db:"voting_deadline"`

	YesCount int64 `json:"yes_count" db:"yes_count"` // stakes on yes
	NoCount  int64 `json:"no_count"  db:"no_count"`  // stakes on no
	YesVotes int64 `json:"yes_votes" db:"yes_votes"`
	NoVotes  int64 `json:"no_votes"  db:"no_votes"`

	TotalPool         decimal.Decimal `json:"total_pool"         db:"total_pool"`
	ResolutionOutcome *Outcome        `json:"resolution_outcome" db:"resolution_outcome"`

	CreatedAt  time.Time  `json:"created_at"  db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at" db:"resolved_at"`
}

// TotalParticipants returns the number of participants (count of both sides).
func (b *PrivateBet) TotalParticipants() int64 {
	return b.YesCount + b.NoCount
}

// TotalVotes returns the number of votes cast so far.
func (b *PrivateBet) TotalVotes() int64 {
	return b.YesVotes + b.NoVotes
}

// MajorityThreshold returns floor(N/2)+1, the vote count needed to
// auto-resolve per spec.md §4.5.
func (b *PrivateBet) MajorityThreshold() int64 {
	n := b.TotalParticipants()
	return n/2 + 1
}

// IsOpen returns true while the bet accepts joins.
func (b *PrivateBet) IsOpen() bool {
	return b.Status == PrivateBetOpen
}

// IsVoting returns true while the bet is in its voting phase.
func (b *PrivateBet) IsVoting() bool {
	return b.Status == PrivateBetVoting
}

// PrivateBetParticipant is a single user's stake and vote within a bet.
// Unique per (bet, user).
type PrivateBetParticipant struct {
	ID       uuid.UUID        `json:"id"        db:"id"`
	BetID    uuid.UUID        `json:"bet_id"    db:"bet_id"`
	UserID   uuid.UUID        `json:"user_id"   db:"user_id"`
	Outcome  Outcome          `json:"outcome"   db:"outcome"`
	Vote     *Outcome         `json:"vote"      db:"vote"`
	Payout   *decimal.Decimal `json:"payout"    db:"payout"`
	JoinedAt time.Time        `json:"joined_at" db:"joined_at"`
}

// HasVoted reports whether the participant has already cast a vote.
func (p *PrivateBetParticipant) HasVoted() bool {
	return p.Vote != nil
}
