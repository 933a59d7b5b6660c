package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole controls access levels in the back-office.
type UserRole string

const (
	RoleUser     UserRole = "user"     // standard trader
	RoleAdmin    UserRole = "admin"    // full back-office access
	RoleRisk     UserRole = "risk"     // risk management view
	RoleFinance  UserRole = "finance"  // financial reports, withdrawals
	RoleOps      UserRole = "ops"      // operations: market management
	RoleReadOnly UserRole = "readonly" // read-only back-office access
)

// CanAccessBackoffice returns true for all non-standard roles.
func (r UserRole) CanAccessBackoffice() bool {
	return r != RoleUser
}

// IsAdmin returns true only for the full admin role.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ──────────────────────────────────────────────────────────────────────────────
// User
// ──────────────────────────────────────────────────────────────────────────────

// User is the Ledger's account entity. ExternalID identifies the account
// against the external identity provider (spec.md §6 Identity verifier
// collaborator); the core never verifies signatures itself.
type User struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Username   string    `json:"username"    db:"username"`
	Role       UserRole  `json:"role"        db:"role"`

	Balance         decimal.Decimal `json:"balance"          db:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance" db:"reserved_balance"`

	TotalTrades    int64           `json:"total_trades"    db:"total_trades"`
	WinCount       int64           `json:"win_count"       db:"win_count"`
	RefundCount    int64           `json:"refund_count"    db:"refund_count"`
	LifetimeProfit decimal.Decimal `json:"lifetime_profit" db:"lifetime_profit"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available returns the balance free to spend (not reserved for resting
// orders). Invariant: balance >= reserved_balance at all times.
func (u *User) Available() decimal.Decimal {
	return u.Balance.Sub(u.ReservedBalance)
}

// WinRate returns 100 * WinCount / TotalTrades, or zero when there have been
// no trades. RefundCount is tracked separately so cancelled-market refunds
// never inflate this figure (SPEC_FULL.md §9 Open Question 4 decision).
func (u *User) WinRate() decimal.Decimal {
	if u.TotalTrades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(u.WinCount).
		Div(decimal.NewFromInt(u.TotalTrades)).
		Mul(decimal.NewFromInt(100))
}

// PublicProfile returns a user view safe to expose via API.
type PublicProfile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     UserRole  `json:"role"`
}

// ToPublicProfile converts a User to its public-safe representation.
func (u *User) ToPublicProfile() PublicProfile {
	return PublicProfile{ID: u.ID, Username: u.Username, Role: u.Role}
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdraw
// ──────────────────────────────────────────────────────────────────────────────

// WithdrawStatus represents the lifecycle of a withdrawal request.
type WithdrawStatus string

const (
	WithdrawPending   WithdrawStatus = "pending"
	WithdrawApproved  WithdrawStatus = "approved"
	WithdrawRejected  WithdrawStatus = "rejected"
	WithdrawCompleted WithdrawStatus = "completed"
)

// WithdrawRequest is submitted by a user who wants to redeem PRC (ambient
// HTTP-surface feature, not part of the trading core proper).
type WithdrawRequest struct {
	ID          uuid.UUID       `json:"id"           db:"id"`
	UserID      uuid.UUID       `json:"user_id"      db:"user_id"`
	Amount      decimal.Decimal `json:"amount"       db:"amount"`
	Status      WithdrawStatus  `json:"status"       db:"status"`
	Note        string          `json:"note"         db:"note"`
	ReviewedBy  *uuid.UUID      `json:"reviewed_by"  db:"reviewed_by"`
	ReviewNote  string          `json:"review_note"  db:"review_note"`
	RequestedAt time.Time       `json:"requested_at" db:"requested_at"`
	ReviewedAt  *time.Time      `json:"reviewed_at"  db:"reviewed_at"`
}
