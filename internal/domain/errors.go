package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Validation errors (4xx)
var (
	ErrInvalidOutcome    = errors.New("invalid outcome: must be yes or no")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidPrice      = errors.New("price must be within [0.01, 0.99]")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrAmountOutOfRange  = errors.New("amount is outside the market's min_bet/max_bet range")
	ErrInvalidIntent     = errors.New("invalid order intent")
	ErrInvalidInviteCode = errors.New("invite code must be 6-8 alphanumeric characters")
)

// Not-found errors (404)
var (
	ErrMarketNotFound      = errors.New("market not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrPositionNotFound    = errors.New("position not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPrivateBetNotFound  = errors.New("private bet not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Authorization errors (403)
var (
	ErrForbidden          = errors.New("forbidden: caller does not own this resource")
	ErrNotCreator         = errors.New("only the bet creator may perform this action")
	ErrNotParticipant     = errors.New("caller is not a participant in this bet")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// State errors (400) — operation not valid given current entity state
var (
	ErrMarketNotOpen        = errors.New("market is not open")
	ErrMarketNotTradingClosed = errors.New("market is not in trading_closed state")
	ErrMarketAlreadyResolved  = errors.New("market is already resolved")
	ErrWrongMechanism       = errors.New("operation not valid for this market's mechanism")
	ErrOrderTerminal        = errors.New("order is already filled or cancelled")
	ErrBetNotOpen           = errors.New("private bet is not open")
	ErrBetNotVoting         = errors.New("private bet is not in voting state")
	ErrAlreadyJoined        = errors.New("user has already joined this bet")
	ErrAlreadyVoted         = errors.New("user has already voted")
	ErrBetTooFewSides       = errors.New("private bet requires participants on both sides before voting can start")
	ErrBetTooFewParticipants = errors.New("private bet requires at least 2 participants")
)

// Insufficient-resource errors (400)
var (
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientShares        = errors.New("insufficient shares")
	ErrInsufficientReservation   = errors.New("insufficient reserved balance or shares")
)

// Conflict errors (500, rare)
var (
	ErrInviteCodeCollision = errors.New("could not generate a unique invite code")
)

// Market-maker / liquidity-monitor errors
var (
	ErrReserveBelowMinimum = errors.New("house reserve is below the configured minimum")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates — used to translate domain errors into stable HTTP codes
// per SPEC_FULL.md §6.1 / spec.md §7.
// ──────────────────────────────────────────────────────────────────────────────

var notFoundErrors = []error{
	ErrMarketNotFound,
	ErrOrderNotFound,
	ErrPositionNotFound,
	ErrUserNotFound,
	ErrPrivateBetNotFound,
	ErrParticipantNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" sentinels.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var authzErrors = []error{
	ErrForbidden,
	ErrNotCreator,
	ErrNotParticipant,
	ErrUnauthorized,
	ErrTokenExpired,
	ErrTokenInvalid,
	ErrInvalidCredentials,
}

// IsAuthzError returns true for authentication/authorization failures.
func IsAuthzError(err error) bool {
	for _, target := range authzErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var stateErrors = []error{
	ErrMarketNotOpen,
	ErrMarketNotTradingClosed,
	ErrMarketAlreadyResolved,
	ErrWrongMechanism,
	ErrOrderTerminal,
	ErrBetNotOpen,
	ErrBetNotVoting,
	ErrAlreadyJoined,
	ErrAlreadyVoted,
	ErrBetTooFewSides,
	ErrBetTooFewParticipants,
}

// IsStateError returns true when the operation was rejected because the
// target entity is in the wrong lifecycle state.
func IsStateError(err error) bool {
	for _, target := range stateErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var insufficientResourceErrors = []error{
	ErrInsufficientBalance,
	ErrInsufficientShares,
	ErrInsufficientReservation,
}

// IsInsufficientResources returns true when the caller lacks the balance,
// shares, or reservation required to complete the operation.
func IsInsufficientResources(err error) bool {
	for _, target := range insufficientResourceErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var conflictErrors = []error{
	ErrInviteCodeCollision,
}

// IsConflict returns true for rare conflict states (e.g. invite-code
// collision after exhausting retries).
func IsConflict(err error) bool {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
