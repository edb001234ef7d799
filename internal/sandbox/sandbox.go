// Package sandbox runs two strategy configurations side by side through the
// rules engine against a shared market state and compares the simulated
// outcomes.
package sandbox

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/analytics"
	"riskdesk/internal/model"
	"riskdesk/internal/rules"
)

const maxHistory = 50

// Emitter is the slice of the event bus the sandbox needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// Config is one strategy parameterization under comparison.
type Config struct {
	Name                   string  `json:"name"`
	TariffShockThreshold   float64 `json:"tariff_shock_threshold"`
	DivergenceThresholdBPS float64 `json:"divergence_threshold_bps"`
	FundingFlipThreshold   float64 `json:"funding_flip_threshold"`
	VolScaleFactor         float64 `json:"vol_scale_factor"`
	StableRotationTrigger  float64 `json:"stable_rotation_trigger"`
}

// DefaultConfigA is the production baseline.
func DefaultConfigA() Config {
	return Config{
		Name:                   "Config A (Default)",
		TariffShockThreshold:   60.0,
		DivergenceThresholdBPS: 30.0,
		FundingFlipThreshold:   0.0,
		VolScaleFactor:         1.0,
		StableRotationTrigger:  0.5,
	}
}

// DefaultConfigB trades earlier and sizes larger.
func DefaultConfigB() Config {
	return Config{
		Name:                   "Config B (Aggressive)",
		TariffShockThreshold:   40.0,
		DivergenceThresholdBPS: 20.0,
		FundingFlipThreshold:   -0.01,
		VolScaleFactor:         1.5,
		StableRotationTrigger:  0.3,
	}
}

// MarketState is the shared condition snapshot both configs run against.
type MarketState struct {
	rules.Context

	CurrentPrice   float64 `json:"current_price"`
	PriceChangePct float64 `json:"price_change_pct"`
	Volatility     float64 `json:"volatility"`
	SpreadBPS      float64 `json:"spread_bps"`
}

// SimDecision is one triggered rule with its simulated outcome.
type SimDecision struct {
	Rule         string  `json:"rule"`
	Action       string  `json:"action"`
	Size         float64 `json:"size"`
	SimulatedPnL float64 `json:"simulated_pnl"`
}

// StrategyResult is one config's simulated performance.
type StrategyResult struct {
	ConfigName        string                     `json:"config_name"`
	Config            Config                     `json:"config"`
	Decisions         []SimDecision              `json:"decisions"`
	TradeCount        int                        `json:"trade_count"`
	TotalPnL          float64                    `json:"total_pnl"`
	MaxDrawdown       float64                    `json:"max_drawdown"`
	HitRate           float64                    `json:"hit_rate"`
	VaR95             float64                    `json:"var_95"`
	CVaR95            float64                    `json:"cvar_95"`
	Turnover          int                        `json:"turnover"`
	AvgSlippageEstBPS float64                    `json:"avg_slippage_est_bps"`
	MonteCarlo        *analytics.MonteCarloResult `json:"monte_carlo,omitempty"`
}

// Comparison is the outcome of one A/B run.
type Comparison struct {
	StrategyA     StrategyResult `json:"strategy_a"`
	StrategyB     StrategyResult `json:"strategy_b"`
	Winner        string         `json:"winner"` // A or B
	PnLDifference float64        `json:"pnl_difference"`
	Highlights    []string       `json:"highlights"`
	MarketState   MarketState    `json:"market_state_used"`
	TS            time.Time      `json:"ts"`
}

// Engine runs A/B comparisons and keeps a bounded history of results.
type Engine struct {
	rules *rules.Engine
	mc    *analytics.MonteCarloEngine
	bus   Emitter
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.Mutex
	latest  *Comparison
	history []Comparison
}

func NewEngine(bus Emitter, log zerolog.Logger) *Engine {
	return &Engine{
		rules: rules.NewEngine(),
		mc:    analytics.NewMonteCarloEngine(),
		bus:   bus,
		log:   log,
		now:   model.NowUTC,
	}
}

// Latest returns the most recent comparison, or nil.
func (e *Engine) Latest() *Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// History returns past comparisons, oldest first.
func (e *Engine) History() []Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Comparison, len(e.history))
	copy(out, e.history)
	return out
}

// Run compares the two configs against the market state. Zero-valued config
// fields fall back to the defaults; an unset price defaults to 100.
func (e *Engine) Run(cfgA, cfgB Config, state MarketState) Comparison {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfgA = withDefaults(cfgA, DefaultConfigA())
	cfgB = withDefaults(cfgB, DefaultConfigB())
	if state.CurrentPrice <= 0 {
		state.CurrentPrice = 100.0
	}

	resultA := e.simulate(cfgA, state)
	resultB := e.simulate(cfgB, state)

	winner := "A"
	if resultB.TotalPnL > resultA.TotalPnL {
		winner = "B"
	}

	cmp := Comparison{
		StrategyA:     resultA,
		StrategyB:     resultB,
		Winner:        winner,
		PnLDifference: round6(math.Abs(resultA.TotalPnL - resultB.TotalPnL)),
		Highlights:    highlights(resultA, resultB),
		MarketState:   state,
		TS:            e.now(),
	}

	e.latest = &cmp
	e.history = append(e.history, cmp)
	if len(e.history) > maxHistory {
		e.history = e.history[1:]
	}

	if e.bus != nil {
		e.bus.Emit(model.EventSandboxComparison, "strategy_sandbox", map[string]interface{}{
			"winner":         cmp.Winner,
			"pnl_difference": cmp.PnLDifference,
			"trades_a":       resultA.TradeCount,
			"trades_b":       resultB.TradeCount,
		})
	}
	e.log.Info().
		Str("winner", cmp.Winner).
		Float64("pnl_diff", cmp.PnLDifference).
		Msg("sandbox comparison completed")
	return cmp
}

// simulate runs one config through the rules engine and scores the triggered
// actions against the observed price move.
func (e *Engine) simulate(cfg Config, state MarketState) StrategyResult {
	actions := e.rules.Evaluate(state.Context)

	var (
		decisions []SimDecision
		pnl       float64
	)
	for _, action := range actions {
		size := action.Size
		if size == 0 {
			size = 0.1
		}
		size *= cfg.VolScaleFactor
		simPnL := size * state.PriceChangePct / 100.0
		pnl += simPnL
		decisions = append(decisions, SimDecision{
			Rule:         action.RuleName,
			Action:       action.ActionType,
			Size:         round4(size),
			SimulatedPnL: round4(simPnL),
		})
	}

	vol := state.Volatility
	if vol <= 0 {
		vol = 0.03
	}
	mc := e.mc.Run(analytics.MonteCarloParams{
		CurrentPrice: state.CurrentPrice,
		PositionSize: 1.0,
		Volatility:   vol,
		HorizonHours: 24,
		NPaths:       1000,
	})

	maxDrawdown := 0.0
	if pnl < 0 {
		maxDrawdown = -pnl
	}
	wins := 0
	for _, d := range decisions {
		if d.SimulatedPnL > 0 {
			wins++
		}
	}
	denom := len(decisions)
	if denom < 1 {
		denom = 1
	}
	spread := state.SpreadBPS
	if spread <= 0 {
		spread = 5.0
	}

	return StrategyResult{
		ConfigName:        cfg.Name,
		Config:            cfg,
		Decisions:         decisions,
		TradeCount:        len(decisions),
		TotalPnL:          round6(pnl),
		MaxDrawdown:       round6(maxDrawdown),
		HitRate:           round4(float64(wins) / float64(denom)),
		VaR95:             round4(mc.VaR95),
		CVaR95:            round4(mc.CVaR95),
		Turnover:          len(decisions),
		AvgSlippageEstBPS: round2(spread * 0.5),
		MonteCarlo:        &mc,
	}
}

func highlights(a, b StrategyResult) []string {
	var out []string
	if a.HitRate > b.HitRate {
		out = append(out, fmt.Sprintf("Config A has higher hit rate (%.0f%% vs %.0f%%)", a.HitRate*100, b.HitRate*100))
	} else if b.HitRate > a.HitRate {
		out = append(out, fmt.Sprintf("Config B has higher hit rate (%.0f%% vs %.0f%%)", b.HitRate*100, a.HitRate*100))
	}
	if a.MaxDrawdown < b.MaxDrawdown {
		out = append(out, "Config A has lower drawdown")
	} else if b.MaxDrawdown < a.MaxDrawdown {
		out = append(out, "Config B has lower drawdown")
	}
	if a.TradeCount != b.TradeCount {
		out = append(out, fmt.Sprintf("Trade count: A=%d vs B=%d", a.TradeCount, b.TradeCount))
	}
	return out
}

// withDefaults fills zero-valued fields from the default config.
func withDefaults(cfg, def Config) Config {
	if cfg == (Config{}) {
		return def
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.TariffShockThreshold == 0 {
		cfg.TariffShockThreshold = def.TariffShockThreshold
	}
	if cfg.DivergenceThresholdBPS == 0 {
		cfg.DivergenceThresholdBPS = def.DivergenceThresholdBPS
	}
	if cfg.VolScaleFactor == 0 {
		cfg.VolScaleFactor = def.VolScaleFactor
	}
	if cfg.StableRotationTrigger == 0 {
		cfg.StableRotationTrigger = def.StableRotationTrigger
	}
	return cfg
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
func round6(x float64) float64 { return math.Round(x*1000000) / 1000000 }
