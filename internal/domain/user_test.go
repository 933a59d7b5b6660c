package domain_test

import (
	"testing"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/shopspring/decimal"
)

func TestUser_Available(t *testing.T) {
	u := &domain.User{
		Balance:         decimal.NewFromInt(1000),
		ReservedBalance: decimal.NewFromInt(300),
	}
	want := decimal.NewFromInt(700)
	if !u.Available().Equal(want) {
		t.Errorf("Available() = %s, want %s", u.Available(), want)
	}
}

func TestUser_WinRate(t *testing.T) {
	u := &domain.User{TotalTrades: 40, WinCount: 25}
	want := decimal.NewFromInt(25).Div(decimal.NewFromInt(40)).Mul(decimal.NewFromInt(100))
	if !u.WinRate().Equal(want) {
		t.Errorf("WinRate() = %s, want %s", u.WinRate(), want)
	}
}

func TestUser_WinRate_NoTrades(t *testing.T) {
	u := &domain.User{TotalTrades: 0, WinCount: 0}
	if !u.WinRate().IsZero() {
		t.Errorf("WinRate() with no trades should be zero, got %s", u.WinRate())
	}
}

func TestUser_WinRate_IgnoresRefunds(t *testing.T) {
	withRefunds := &domain.User{TotalTrades: 10, WinCount: 5, RefundCount: 20}
	without := &domain.User{TotalTrades: 10, WinCount: 5}
	if !withRefunds.WinRate().Equal(without.WinRate()) {
		t.Errorf("RefundCount should not affect WinRate: %s vs %s", withRefunds.WinRate(), without.WinRate())
	}
}

func TestUserRole_CanAccessBackoffice(t *testing.T) {
	if domain.RoleUser.CanAccessBackoffice() {
		t.Error("standard user role should not access back-office")
	}
	for _, r := range []domain.UserRole{domain.RoleAdmin, domain.RoleRisk, domain.RoleFinance, domain.RoleOps, domain.RoleReadOnly} {
		if !r.CanAccessBackoffice() {
			t.Errorf("role %s should access back-office", r)
		}
	}
}

func TestUserRole_IsAdmin(t *testing.T) {
	if !domain.RoleAdmin.IsAdmin() {
		t.Error("RoleAdmin should be admin")
	}
	if domain.RoleOps.IsAdmin() {
		t.Error("RoleOps should not be admin")
	}
}

func TestUser_ToPublicProfile(t *testing.T) {
	u := &domain.User{Username: "trader1", Role: domain.RoleUser}
	pub := u.ToPublicProfile()
	if pub.Username != "trader1" || pub.Role != domain.RoleUser {
		t.Errorf("ToPublicProfile() = %+v, want username=trader1 role=user", pub)
	}
}
