package analytics

import (
	"fmt"
	"math"
	"time"

	"riskdesk/internal/model"
)

// Stress scenario names.
const (
	ScenarioTariffShock = "tariff_shock"
	ScenarioSolCrash    = "sol_crash"
	ScenarioVolSpike    = "vol_spike"
)

// StressParams tune a scenario. Zero values fall back to scenario defaults.
type StressParams struct {
	ShockPct       float64
	CrashPct       float64
	Sensitivity    float64
	VolMultiplier  float64
	BaseMarginRate float64
}

// VenueStress is the per-venue breakdown inside a stress result.
type VenueStress struct {
	Notional           float64  `json:"notional"`
	PnLImpact          float64  `json:"pnl_impact"`
	StressedPrice      float64  `json:"stressed_price,omitempty"`
	CurrentMargin      float64  `json:"current_margin,omitempty"`
	RequiredMargin     float64  `json:"required_margin,omitempty"`
	MarginIncrease     float64  `json:"margin_increase,omitempty"`
	LiqDistancePct     float64  `json:"liquidation_distance_pct,omitempty"`
	HasLiqDistance     bool     `json:"has_liquidation_distance"`
}

// StressResult is the outcome of one scenario run against the book.
type StressScenarioResult struct {
	Scenario        string                 `json:"scenario"`
	PriceShockPct   float64                `json:"price_shock_pct"`
	ProjectedPnL    float64                `json:"projected_pnl"`
	ProjectedMargin float64                `json:"projected_margin"`
	WouldLiquidate  bool                   `json:"would_liquidate"`
	DrawdownPct     float64                `json:"drawdown_projected"`
	MarginShortfall float64                `json:"margin_shortfall,omitempty"`
	VolMultiplier   float64                `json:"vol_multiplier,omitempty"`
	VenueDetails    map[string]VenueStress `json:"liquidation_distances"`
	Err             string                 `json:"error,omitempty"`
	TS              time.Time              `json:"ts"`
}

// StressTestRunner replays canned shock scenarios against current positions.
type StressTestRunner struct {
	maintenanceMarginPct float64
}

func NewStressTestRunner(maintenanceMarginPct float64) *StressTestRunner {
	if maintenanceMarginPct <= 0 {
		maintenanceMarginPct = 0.05
	}
	return &StressTestRunner{maintenanceMarginPct: maintenanceMarginPct}
}

// Scenarios lists the runnable scenario names.
func (r *StressTestRunner) Scenarios() []string {
	return []string{ScenarioTariffShock, ScenarioSolCrash, ScenarioVolSpike}
}

// RunScenario dispatches by name. Unknown scenarios return a result with an
// error marker.
func (r *StressTestRunner) RunScenario(name string, positions []model.Position, params StressParams) StressScenarioResult {
	switch name {
	case ScenarioTariffShock:
		return r.tariffShock(positions, params)
	case ScenarioSolCrash:
		return r.solCrash(positions, params)
	case ScenarioVolSpike:
		return r.volSpike(positions, params)
	default:
		return StressScenarioResult{
			Scenario: name,
			Err:      fmt.Sprintf("Unknown scenario: %s", name),
			TS:       model.NowUTC(),
		}
	}
}

// tariffShock applies a macro shock damped by a sensitivity factor; longs
// lose, shorts gain.
func (r *StressTestRunner) tariffShock(positions []model.Position, params StressParams) StressScenarioResult {
	shockPct := params.ShockPct
	if shockPct == 0 {
		shockPct = 10.0
	}
	sensitivity := params.Sensitivity
	if sensitivity == 0 {
		sensitivity = 0.3
	}
	shock := shockPct / 100.0

	var totalMargin, pnlImpact float64
	details := make(map[string]VenueStress)

	for _, pos := range positions {
		notional := math.Abs(pos.Size * pos.EntryPrice)
		totalMargin += pos.Margin

		sign := 1.0
		if pos.Size < 0 {
			sign = -1.0
		}
		posPnL := -notional * shock * sensitivity * sign
		pnlImpact += posPnL

		stressedPrice := pos.EntryPrice * (1 - shock*sensitivity)
		vs := VenueStress{
			Notional:      notional,
			PnLImpact:     round2(posPnL),
			StressedPrice: round4(stressedPrice),
		}
		if pos.LiqPrice != nil && stressedPrice != 0 {
			vs.LiqDistancePct = round2((stressedPrice - *pos.LiqPrice) / stressedPrice * 100.0)
			vs.HasLiqDistance = true
		}
		details[pos.Venue] = vs
	}

	return r.finishPnLScenario(ScenarioTariffShock, shockPct, totalMargin, pnlImpact, details)
}

// solCrash drops the SOL price outright.
func (r *StressTestRunner) solCrash(positions []model.Position, params StressParams) StressScenarioResult {
	crashPct := params.CrashPct
	if crashPct == 0 {
		crashPct = 8.0
	}
	crash := crashPct / 100.0

	var totalMargin, pnlImpact float64
	details := make(map[string]VenueStress)

	for _, pos := range positions {
		notional := math.Abs(pos.Size * pos.EntryPrice)
		totalMargin += pos.Margin

		priceChange := -crash
		if pos.Size < 0 {
			priceChange = crash
		}
		posPnL := pos.Size * pos.EntryPrice * priceChange
		pnlImpact += posPnL

		stressedPrice := pos.EntryPrice * (1 - crash)
		vs := VenueStress{
			Notional:      notional,
			PnLImpact:     round2(posPnL),
			StressedPrice: round4(stressedPrice),
		}
		if pos.LiqPrice != nil && stressedPrice != 0 {
			vs.LiqDistancePct = round2((stressedPrice - *pos.LiqPrice) / stressedPrice * 100.0)
			vs.HasLiqDistance = true
		}
		details[pos.Venue] = vs
	}

	return r.finishPnLScenario(ScenarioSolCrash, crashPct, totalMargin, pnlImpact, details)
}

// volSpike raises margin requirements without moving price; liquidation here
// means required margin exceeds posted margin.
func (r *StressTestRunner) volSpike(positions []model.Position, params StressParams) StressScenarioResult {
	volMultiplier := params.VolMultiplier
	if volMultiplier == 0 {
		volMultiplier = 2.0
	}
	baseMarginRate := params.BaseMarginRate
	if baseMarginRate == 0 {
		baseMarginRate = 0.05
	}

	var totalMarginCurrent, totalNotional float64
	details := make(map[string]VenueStress)

	for _, pos := range positions {
		notional := math.Abs(pos.Size * pos.EntryPrice)
		totalNotional += notional
		totalMarginCurrent += pos.Margin

		requiredMargin := notional * baseMarginRate * volMultiplier
		vs := VenueStress{
			Notional:       notional,
			CurrentMargin:  round2(pos.Margin),
			RequiredMargin: round2(requiredMargin),
			MarginIncrease: round2(requiredMargin - pos.Margin),
		}
		if pos.LiqPrice != nil && pos.EntryPrice != 0 {
			vs.LiqDistancePct = round2((pos.EntryPrice - *pos.LiqPrice) / pos.EntryPrice * 100.0)
			vs.HasLiqDistance = true
		}
		details[pos.Venue] = vs
	}

	totalRequired := totalNotional * baseMarginRate * volMultiplier
	marginUsage := 1.0
	if totalMarginCurrent > 0 {
		marginUsage = totalRequired / totalMarginCurrent
	}
	shortfall := math.Max(totalRequired-totalMarginCurrent, 0)

	return StressScenarioResult{
		Scenario:        ScenarioVolSpike,
		ProjectedMargin: round4(marginUsage),
		WouldLiquidate:  marginUsage > 1.0,
		MarginShortfall: round2(shortfall),
		VolMultiplier:   volMultiplier,
		VenueDetails:    details,
		TS:              model.NowUTC(),
	}
}

func (r *StressTestRunner) finishPnLScenario(name string, shockPct, totalMargin, pnlImpact float64, details map[string]VenueStress) StressScenarioResult {
	equity := totalMargin + pnlImpact
	marginUsage := 1.0
	if equity > 0 {
		marginUsage = totalMargin / equity
	}
	var drawdown float64
	if totalMargin > 0 {
		drawdown = pnlImpact / totalMargin * 100.0
	}

	return StressScenarioResult{
		Scenario:        name,
		PriceShockPct:   shockPct,
		ProjectedPnL:    round2(pnlImpact),
		ProjectedMargin: round4(marginUsage),
		WouldLiquidate:  marginUsage > 1.0-r.maintenanceMarginPct,
		DrawdownPct:     round2(drawdown),
		VenueDetails:    details,
		TS:              model.NowUTC(),
	}
}
