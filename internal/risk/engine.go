// Package risk enforces the desk's guardrails: leverage and margin caps,
// daily loss limit, the risk throttle, and the live-trading cooldown.
//
// Reducing actions always pass: a book that is over its limits must still be
// allowed to shrink.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

// Guardrail defaults.
const (
	DefaultMaxLeverage  = 3.0
	DefaultMaxMarginPct = 0.6
	DefaultMaxDailyLoss = 500.0
	DefaultCooldown     = 300 * time.Second
)

// Status is the engine's current guardrail state.
type Status struct {
	ThrottleActive  bool      `json:"throttle_active"`
	ThrottleReason  string    `json:"throttle_reason"`
	MaxLeverage     float64   `json:"max_leverage"`
	MaxMarginPct    float64   `json:"max_margin_pct"`
	MaxDailyLoss    float64   `json:"max_daily_loss"`
	CooldownSeconds int       `json:"cooldown_seconds"`
	DailyPnL        float64   `json:"daily_pnl"`
	TS              time.Time `json:"ts"`
}

// Engine checks proposed orders against the book. The throttle flag is
// mirrored into the store (when one is attached) so other processes and a
// restart see the same state.
type Engine struct {
	maxLeverage  float64
	maxMarginPct float64
	maxDailyLoss float64
	cooldown     time.Duration

	store store.Store
	log   zerolog.Logger
	now   func() time.Time

	mu             sync.Mutex
	throttleActive bool
	throttleReason string
	lastActionTS   time.Time
	dailyPnL       float64
	dailyResetDate string
}

// NewEngine builds an engine with the given limits. Zero or negative limits
// fall back to the defaults. The store may be nil.
func NewEngine(maxLeverage, maxMarginPct, maxDailyLoss float64, cooldown time.Duration, st store.Store, log zerolog.Logger) *Engine {
	if maxLeverage <= 0 {
		maxLeverage = DefaultMaxLeverage
	}
	if maxMarginPct <= 0 {
		maxMarginPct = DefaultMaxMarginPct
	}
	if maxDailyLoss <= 0 {
		maxDailyLoss = DefaultMaxDailyLoss
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{
		maxLeverage:  maxLeverage,
		maxMarginPct: maxMarginPct,
		maxDailyLoss: maxDailyLoss,
		cooldown:     cooldown,
		store:        st,
		log:          log,
		now:          model.NowUTC,
	}
}

// isReducing reports whether the action shrinks an existing position on the
// same venue:market.
func isReducing(positions []model.Position, action model.OrderRequest) bool {
	key := action.Venue + ":" + action.Market
	for i := range positions {
		p := &positions[i]
		if p.Key() != key {
			continue
		}
		if (p.Size > 0 && action.Side == "sell") || (p.Size < 0 && action.Side == "buy") {
			return true
		}
	}
	return false
}

// CheckConstraints evaluates every guardrail against the proposed action.
// It returns allowed=true with no reasons, or allowed=false with one reason
// per violated constraint. An allowed action arms the live cooldown.
func (e *Engine) CheckConstraints(positions []model.Position, action model.OrderRequest, executionMode string) (bool, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var reasons []string
	reducing := isReducing(positions, action)

	if e.throttledLocked() && !reducing {
		reasons = append(reasons, "Throttle active: "+e.throttleReason)
	}

	var totalNotional, totalMargin float64
	for i := range positions {
		totalNotional += positions[i].Notional()
		totalMargin += positions[i].Margin
	}
	totalEquity := totalMargin
	if totalEquity <= 0 {
		totalEquity = 1.0
	}

	actionNotional := math.Abs(action.Size * action.Price)

	projectedNotional := totalNotional + actionNotional
	if reducing {
		projectedNotional = math.Max(0, totalNotional-actionNotional)
	}
	projectedLeverage := projectedNotional / totalEquity

	if !reducing && projectedLeverage > e.maxLeverage {
		reasons = append(reasons, fmt.Sprintf(
			"Leverage limit exceeded: projected %.2f > max %.2f", projectedLeverage, e.maxLeverage))
	}

	if !reducing {
		actionMargin := action.Margin
		if actionMargin == 0 {
			actionMargin = actionNotional / e.maxLeverage
		}
		projectedMarginUsage := (totalMargin + actionMargin) / totalEquity
		if projectedMarginUsage > e.maxMarginPct {
			reasons = append(reasons, fmt.Sprintf(
				"Margin usage exceeded: projected %.2f%% > max %.2f%%",
				projectedMarginUsage*100, e.maxMarginPct*100))
		}
	}

	e.resetDailyPnLLocked()
	if e.dailyPnL < -e.maxDailyLoss && !reducing {
		reasons = append(reasons, fmt.Sprintf(
			"Daily loss limit breached: %.2f < -%.2f", e.dailyPnL, e.maxDailyLoss))
	}

	// The cooldown applies only to live trading; paper fills are free.
	if executionMode == "live" && !reducing && !e.lastActionTS.IsZero() {
		elapsed := e.now().Sub(e.lastActionTS)
		if elapsed < e.cooldown {
			remaining := e.cooldown - elapsed
			reasons = append(reasons, fmt.Sprintf("Cooldown active: %.0fs remaining", remaining.Seconds()))
		}
	}

	allowed := len(reasons) == 0
	if allowed {
		e.lastActionTS = e.now()
	} else {
		e.log.Debug().
			Str("venue", action.Venue).
			Str("market", action.Market).
			Strs("reasons", reasons).
			Msg("action blocked")
	}
	return allowed, reasons
}

// ActivateThrottle blocks all non-reducing actions and records why. The flag
// is mirrored into the store with a bounded lifetime.
func (e *Engine) ActivateThrottle(reason string) {
	e.mu.Lock()
	e.throttleActive = true
	e.throttleReason = reason
	e.mu.Unlock()

	if e.store != nil {
		if err := store.SetRiskThrottle(e.store, true, reason, 0); err != nil {
			e.log.Warn().Err(err).Msg("throttle state not persisted")
		}
	}
	e.log.Warn().Str("reason", reason).Msg("risk throttle activated")
}

// DeactivateThrottle clears the throttle locally and in the store.
func (e *Engine) DeactivateThrottle() {
	e.mu.Lock()
	e.throttleActive = false
	e.throttleReason = ""
	e.mu.Unlock()

	if e.store != nil {
		if err := store.SetRiskThrottle(e.store, false, "", 0); err != nil {
			e.log.Warn().Err(err).Msg("throttle state not cleared")
		}
	}
	e.log.Info().Msg("risk throttle deactivated")
}

// throttledLocked folds in store state so a throttle set by another process
// is honored here too. Caller holds e.mu.
func (e *Engine) throttledLocked() bool {
	if e.throttleActive {
		return true
	}
	if e.store == nil {
		return false
	}
	st := store.GetRiskThrottle(e.store)
	if st.Active {
		e.throttleReason = st.Reason
	}
	return st.Active
}

// RecordPnL accumulates realized PnL into the daily total.
func (e *Engine) RecordPnL(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyPnLLocked()
	e.dailyPnL += pnl
}

// resetDailyPnLLocked zeroes the daily total on the first touch of a new UTC
// day. Caller holds e.mu.
func (e *Engine) resetDailyPnLLocked() {
	today := e.now().Format("2006-01-02")
	if e.dailyResetDate != today {
		e.dailyPnL = 0
		e.dailyResetDate = today
	}
}

// Status reports the current guardrail state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		ThrottleActive:  e.throttledLocked(),
		ThrottleReason:  e.throttleReason,
		MaxLeverage:     e.maxLeverage,
		MaxMarginPct:    e.maxMarginPct,
		MaxDailyLoss:    e.maxDailyLoss,
		CooldownSeconds: int(e.cooldown / time.Second),
		DailyPnL:        e.dailyPnL,
		TS:              e.now(),
	}
}
