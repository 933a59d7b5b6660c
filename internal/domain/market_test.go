package domain_test

import (
	"testing"

	"github.com/evetabi/prediction/internal/domain"
	"github.com/shopspring/decimal"
)

// ── Outcome ───────────────────────────────────────────────────────────────────

func TestOutcome_IsValid(t *testing.T) {
	if !domain.OutcomeYes.IsValid() {
		t.Error("OutcomeYes should be valid")
	}
	if !domain.OutcomeNo.IsValid() {
		t.Error("OutcomeNo should be valid")
	}
	if domain.Outcome("maybe").IsValid() {
		t.Error("\"maybe\" should not be valid")
	}
}

func TestOutcome_Opposite(t *testing.T) {
	if domain.OutcomeYes.Opposite() != domain.OutcomeNo {
		t.Error("Opposite(yes) should be no")
	}
	if domain.OutcomeNo.Opposite() != domain.OutcomeYes {
		t.Error("Opposite(no) should be yes")
	}
}

// ── Market lifecycle ──────────────────────────────────────────────────────────

func TestMarket_IsOpen(t *testing.T) {
	m := &domain.Market{Status: domain.MarketOpen}
	if !m.IsOpen() {
		t.Error("expected market to be open")
	}
	m.Status = domain.MarketResolved
	if m.IsOpen() {
		t.Error("resolved market should not be open")
	}
}

func TestMarket_IsResolved(t *testing.T) {
	m := &domain.Market{Status: domain.MarketResolved}
	if !m.IsResolved() {
		t.Error("expected market to be resolved")
	}
	m.Status = domain.MarketTradingClosed
	if m.IsResolved() {
		t.Error("trading_closed market should not be resolved")
	}
}

func TestMarket_IsTerminal(t *testing.T) {
	for _, s := range []domain.MarketStatus{domain.MarketResolved, domain.MarketCancelled} {
		m := &domain.Market{Status: s}
		if !m.IsTerminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range []domain.MarketStatus{domain.MarketOpen, domain.MarketTradingClosed} {
		m := &domain.Market{Status: s}
		if m.IsTerminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}

func TestMarket_LMSRState(t *testing.T) {
	m := &domain.Market{
		QYes:       decimal.NewFromFloat(49.245),
		QNo:        decimal.Zero,
		LiquidityB: decimal.NewFromInt(100),
	}
	qy, qn, b := m.LMSRState()
	if qy != 49.245 {
		t.Errorf("qYes = %v, want 49.245", qy)
	}
	if qn != 0 {
		t.Errorf("qNo = %v, want 0", qn)
	}
	if b != 100 {
		t.Errorf("b = %v, want 100", b)
	}
}

// ── Order ─────────────────────────────────────────────────────────────────────

func TestOrder_Remaining(t *testing.T) {
	o := &domain.Order{
		Quantity:       decimal.NewFromInt(100),
		FilledQuantity: decimal.NewFromInt(30),
	}
	want := decimal.NewFromInt(70)
	if !o.Remaining().Equal(want) {
		t.Errorf("Remaining() = %s, want %s", o.Remaining(), want)
	}
}

func TestOrder_IsTerminal(t *testing.T) {
	for _, s := range []domain.OrderStatus{domain.OrderFilled, domain.OrderCancelled} {
		o := &domain.Order{Status: s}
		if !o.IsTerminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range []domain.OrderStatus{domain.OrderOpen, domain.OrderPartiallyFilled} {
		o := &domain.Order{Status: s}
		if o.IsTerminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}

func TestOrder_ReservationPrice(t *testing.T) {
	o := &domain.Order{OriginalIntent: domain.IntentBuyYes, Price: decimal.NewFromFloat(0.62)}
	if !o.ReservationPrice().Equal(decimal.NewFromFloat(0.62)) {
		t.Errorf("buy_yes ReservationPrice() = %s, want 0.62", o.ReservationPrice())
	}

	o2 := &domain.Order{OriginalIntent: domain.IntentBuyNo, Price: decimal.NewFromFloat(0.62)}
	want := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(0.62))
	if !o2.ReservationPrice().Equal(want) {
		t.Errorf("buy_no ReservationPrice() = %s, want %s", o2.ReservationPrice(), want)
	}
}

func TestOrder_ReservesBalance(t *testing.T) {
	buy := &domain.Order{OriginalIntent: domain.IntentBuyYes}
	if !buy.ReservesBalance() {
		t.Error("buy_yes should reserve balance")
	}
	sell := &domain.Order{OriginalIntent: domain.IntentSellYes}
	if sell.ReservesBalance() {
		t.Error("sell_yes should reserve shares, not balance")
	}
}

func TestOrder_ReservedOutcome(t *testing.T) {
	sellYes := &domain.Order{OriginalIntent: domain.IntentSellYes}
	if sellYes.ReservedOutcome() != domain.OutcomeYes {
		t.Error("sell_yes should reserve yes shares")
	}
	sellNo := &domain.Order{OriginalIntent: domain.IntentSellNo}
	if sellNo.ReservedOutcome() != domain.OutcomeNo {
		t.Error("sell_no should reserve no shares")
	}
}

func TestTranslateIntent(t *testing.T) {
	priceYes := decimal.NewFromFloat(0.62)
	one := decimal.NewFromInt(1)

	cases := []struct {
		intent    domain.Intent
		wantSide  domain.OrderSide
		wantPrice decimal.Decimal
	}{
		{domain.IntentBuyYes, domain.SideBuy, priceYes},
		{domain.IntentSellYes, domain.SideSell, priceYes},
		{domain.IntentBuyNo, domain.SideSell, one.Sub(priceYes)},
		{domain.IntentSellNo, domain.SideBuy, one.Sub(priceYes)},
	}
	for _, c := range cases {
		side, price := domain.TranslateIntent(c.intent, priceYes)
		if side != c.wantSide {
			t.Errorf("TranslateIntent(%s) side = %s, want %s", c.intent, side, c.wantSide)
		}
		if !price.Equal(c.wantPrice) {
			t.Errorf("TranslateIntent(%s) price = %s, want %s", c.intent, price, c.wantPrice)
		}
	}
}

// ── Position ──────────────────────────────────────────────────────────────────

func TestPosition_AvgPrice(t *testing.T) {
	p := &domain.Position{
		Shares:    decimal.NewFromInt(50),
		TotalCost: decimal.NewFromInt(31),
	}
	want := decimal.NewFromFloat(0.62)
	if !p.AvgPrice().Equal(want) {
		t.Errorf("AvgPrice() = %s, want %s", p.AvgPrice(), want)
	}
}

func TestPosition_AvgPrice_ZeroShares(t *testing.T) {
	p := &domain.Position{Shares: decimal.Zero, TotalCost: decimal.Zero}
	if !p.AvgPrice().IsZero() {
		t.Errorf("AvgPrice() with zero shares should be zero, got %s", p.AvgPrice())
	}
}

func TestPosition_AvailableShares(t *testing.T) {
	p := &domain.Position{
		Shares:         decimal.NewFromInt(100),
		ReservedShares: decimal.NewFromInt(40),
	}
	want := decimal.NewFromInt(60)
	if !p.AvailableShares().Equal(want) {
		t.Errorf("AvailableShares() = %s, want %s", p.AvailableShares(), want)
	}
}
