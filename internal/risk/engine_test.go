package risk

import (
	"strings"
	"testing"
	"time"

	"riskdesk/internal/logger"
	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

func newTestEngine(st store.Store) *Engine {
	return NewEngine(3.0, 0.6, 500.0, 300*time.Second, st, logger.Nop())
}

func TestCheckConstraints_SmallOrderAllowed(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	// Empty book: equity floors to 1, so only a small notional clears the
	// leverage and margin gates.
	allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper")
	if !allowed {
		t.Fatalf("small order blocked: %v", reasons)
	}
}

func TestCheckConstraints_LeverageBlocked(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	positions := []model.Position{
		{Venue: "hyperliquid", Market: "SOL-PERP", Size: 1, EntryPrice: 150, Margin: 100},
	}
	// 150 existing + 600 proposed = 750 notional on 100 equity: 7.5x.
	allowed, reasons := e.CheckConstraints(positions, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 4, Price: 150,
	}, "paper")
	if allowed {
		t.Fatal("7.5x projected leverage should be blocked")
	}
	if !hasPrefix(reasons, "Leverage limit exceeded") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestCheckConstraints_ReducingAlwaysAllowed(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	e.ActivateThrottle("news shock")
	e.RecordPnL(-10000) // way past the daily loss limit

	positions := []model.Position{
		{Venue: "hyperliquid", Market: "SOL-PERP", Size: 10, EntryPrice: 150, Margin: 100},
	}
	// Selling against a long reduces, so every gate steps aside.
	allowed, reasons := e.CheckConstraints(positions, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "sell", Size: 5, Price: 150,
	}, "live")
	if !allowed {
		t.Fatalf("reducing order blocked: %v", reasons)
	}
}

func TestCheckConstraints_ShortCoverIsReducing(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	e.ActivateThrottle("stress")
	positions := []model.Position{
		{Venue: "drift", Market: "SOL-PERP", Size: -10, EntryPrice: 150, Margin: 100},
	}
	allowed, reasons := e.CheckConstraints(positions, model.OrderRequest{
		Venue: "drift", Market: "SOL-PERP", Side: "buy", Size: 5, Price: 150,
	}, "paper")
	if !allowed {
		t.Fatalf("buy against a short should reduce: %v", reasons)
	}
}

func TestCheckConstraints_ThrottleBlocksNewExposure(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	e.ActivateThrottle("shock score 2.4")

	allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper")
	if allowed {
		t.Fatal("throttle must block non-reducing actions")
	}
	if !hasPrefix(reasons, "Throttle active") {
		t.Errorf("reasons = %v", reasons)
	}

	e.DeactivateThrottle()
	if allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper"); !allowed {
		t.Fatalf("deactivated throttle still blocking: %v", reasons)
	}
}

func TestCheckConstraints_ThrottleSharedThroughStore(t *testing.T) {
	st := store.NewMemory()
	if err := store.SetRiskThrottle(st, true, "set by another process", 0); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(st)
	allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper")
	if allowed {
		t.Fatal("store-level throttle must block")
	}
	if !hasPrefix(reasons, "Throttle active: set by another process") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestCheckConstraints_DailyLossLimit(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	e.RecordPnL(-501)

	allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper")
	if allowed {
		t.Fatal("daily loss past the limit must block new exposure")
	}
	if !hasPrefix(reasons, "Daily loss limit breached") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestCheckConstraints_DailyLossResetsNextDay(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	day1 := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return day1 }
	e.RecordPnL(-501)

	e.now = func() time.Time { return day1.Add(2 * time.Hour) } // next UTC day
	allowed, reasons := e.CheckConstraints(nil, model.OrderRequest{
		Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150,
	}, "paper")
	if !allowed {
		t.Fatalf("new UTC day should reset the daily total: %v", reasons)
	}
	if got := e.Status().DailyPnL; got != 0 {
		t.Errorf("daily pnl = %v, want 0 after reset", got)
	}
}

func TestCheckConstraints_CooldownLiveOnly(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	req := model.OrderRequest{Venue: "hyperliquid", Market: "SOL-PERP", Side: "buy", Size: 0.01, Price: 150}

	if allowed, reasons := e.CheckConstraints(nil, req, "live"); !allowed {
		t.Fatalf("first live order blocked: %v", reasons)
	}

	e.now = func() time.Time { return base.Add(100 * time.Second) }
	allowed, reasons := e.CheckConstraints(nil, req, "live")
	if allowed {
		t.Fatal("second live order inside the cooldown must block")
	}
	if !hasPrefix(reasons, "Cooldown active: 200s remaining") {
		t.Errorf("reasons = %v", reasons)
	}

	// Paper mode never waits.
	if allowed, reasons := e.CheckConstraints(nil, req, "paper"); !allowed {
		t.Fatalf("paper order blocked by cooldown: %v", reasons)
	}

	e.now = func() time.Time { return base.Add(400 * time.Second) }
	if allowed, reasons := e.CheckConstraints(nil, req, "live"); !allowed {
		t.Fatalf("expired cooldown still blocking: %v", reasons)
	}
}

func TestCheckConstraints_MarginUsage(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	positions := []model.Position{
		{Venue: "hyperliquid", Market: "SOL-PERP", Size: 1, EntryPrice: 150, Margin: 100},
	}
	// Explicit margin 80 on equity 100 projects 180% usage.
	allowed, reasons := e.CheckConstraints(positions, model.OrderRequest{
		Venue: "drift", Market: "SOL-PERP", Side: "buy", Size: 0.5, Price: 150, Margin: 80,
	}, "paper")
	if allowed {
		t.Fatal("margin usage past the cap must block")
	}
	if !hasPrefix(reasons, "Margin usage exceeded") {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestStatus_Snapshot(t *testing.T) {
	e := newTestEngine(store.NewMemory())
	e.ActivateThrottle("stress")
	e.RecordPnL(-50)

	s := e.Status()
	if !s.ThrottleActive || s.ThrottleReason != "stress" {
		t.Errorf("throttle state = %+v", s)
	}
	if s.MaxLeverage != 3.0 || s.MaxMarginPct != 0.6 || s.MaxDailyLoss != 500.0 {
		t.Errorf("limits = %+v", s)
	}
	if s.CooldownSeconds != 300 {
		t.Errorf("cooldown = %d", s.CooldownSeconds)
	}
	if s.DailyPnL != -50 {
		t.Errorf("daily pnl = %v", s.DailyPnL)
	}
}

func hasPrefix(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
