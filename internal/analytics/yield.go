package analytics

import (
	"time"

	"riskdesk/internal/model"
)

// NetCarryResult breaks annualized carry down into gross, cost and
// risk-adjusted components.
type NetCarryResult struct {
	GrossCarryAnnual    float64   `json:"gross_carry_annual"`
	NetCarryAnnual      float64   `json:"net_carry_annual"`
	RiskAdjustedCarry   float64   `json:"risk_adjusted_carry"`
	EntryExitCostAnnual float64   `json:"entry_exit_cost_annual"`
	RiskFactor          float64   `json:"risk_factor"`
	TS                  time.Time `json:"ts"`
}

// StableYieldCalculator turns funding rates into annualized carry net of
// round-trip trading costs.
type StableYieldCalculator struct{}

func NewStableYieldCalculator() *StableYieldCalculator {
	return &StableYieldCalculator{}
}

// AnnualizedCarry scales a per-period funding rate to a yearly rate.
func (c *StableYieldCalculator) AnnualizedCarry(fundingRate float64, periodsPerDay int) float64 {
	if periodsPerDay <= 0 {
		periodsPerDay = 3
	}
	return fundingRate * float64(periodsPerDay) * 365.0
}

// NetCarry nets out entry/exit costs assuming a monthly round trip, then
// discounts by a risk factor that shrinks as the gross carry gets extreme.
func (c *StableYieldCalculator) NetCarry(fundingRate, spreadBPS, feeBPS float64, periodsPerDay int) NetCarryResult {
	gross := c.AnnualizedCarry(fundingRate, periodsPerDay)

	slippageCost := spreadBPS / 10000.0 * 2.0
	feeCost := feeBPS / 10000.0 * 2.0
	entryExitAnnual := (slippageCost + feeCost) * 12.0
	net := gross - entryExitAnnual

	absGross := gross
	if absGross < 0 {
		absGross = -absGross
	}
	riskFactor := 1.0 - absGross*0.5
	if riskFactor < 0.3 {
		riskFactor = 0.3
	}

	return NetCarryResult{
		GrossCarryAnnual:    round6(gross),
		NetCarryAnnual:      round6(net),
		RiskAdjustedCarry:   round6(net * riskFactor),
		EntryExitCostAnnual: round6(entryExitAnnual),
		RiskFactor:          round4(riskFactor),
		TS:                  model.NowUTC(),
	}
}

// CarryScores computes net carry per venue. Venues without a known spread
// assume 5bps.
func (c *StableYieldCalculator) CarryScores(fundingRates, spreads map[string]float64) map[string]NetCarryResult {
	out := make(map[string]NetCarryResult, len(fundingRates))
	for venue, rate := range fundingRates {
		spread, ok := spreads[venue]
		if !ok {
			spread = 5.0
		}
		out[venue] = c.NetCarry(rate, spread, 1.0, 3)
	}
	return out
}

// DetectCarryRegimeFlip reports a sign change in carry, counting zero as
// non-positive.
func (c *StableYieldCalculator) DetectCarryRegimeFlip(currentCarry, previousCarry float64) bool {
	return (currentCarry > 0 && previousCarry <= 0) || (currentCarry <= 0 && previousCarry > 0)
}
