package analytics

import (
	"fmt"
	"math"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// Risk-on/off labels from stablecoin flow.
const (
	FlowRiskOn  = "risk_on"
	FlowRiskOff = "risk_off"
	FlowNeutral = "neutral"
)

// StableFlowInput feeds one flow-momentum computation. Prices and volumes
// are keyed by lowercase symbol (usdt, usdc, dai).
type StableFlowInput struct {
	StablePrices   map[string]float64
	StableVolumes  map[string]float64
	TotalMarketCap float64
}

// StableFlowResult scores where stablecoin capital is headed.
type StableFlowResult struct {
	Momentum          float64            `json:"stable_flow_momentum"`
	RiskIndicator     string             `json:"risk_on_off_indicator"`
	Drivers           []string           `json:"drivers"`
	PegDeviations     map[string]float64 `json:"peg_deviations"`
	TotalStableVolume float64            `json:"total_stable_volume"`
	TS                time.Time          `json:"ts"`
}

// StableFlowAnalyzer reads stablecoin peg pressure, dominance and flow share
// as a risk-on/risk-off gauge in [-1, 1].
type StableFlowAnalyzer struct {
	history *ringbuf.Ring[StableFlowResult]
}

func NewStableFlowAnalyzer() *StableFlowAnalyzer {
	return &StableFlowAnalyzer{history: ringbuf.New[StableFlowResult](200)}
}

// Compute scores the current flow state and appends it to history.
func (a *StableFlowAnalyzer) Compute(in StableFlowInput) StableFlowResult {
	var drivers []string
	var momentum float64

	price := func(sym string) float64 {
		if p, ok := in.StablePrices[sym]; ok {
			return p
		}
		return 1.0
	}
	pegDev := map[string]float64{
		"usdt": math.Abs(price("usdt") - 1.0),
		"usdc": math.Abs(price("usdc") - 1.0),
		"dai":  math.Abs(price("dai") - 1.0),
	}
	avgPegDev := (pegDev["usdt"] + pegDev["usdc"] + pegDev["dai"]) / 3.0

	switch {
	case avgPegDev > 0.005:
		momentum -= 0.3
		drivers = append(drivers, fmt.Sprintf("peg_stress: avg_deviation=%.4f", avgPegDev))
	case avgPegDev > 0.002:
		momentum -= 0.1
		drivers = append(drivers, fmt.Sprintf("mild_peg_pressure: avg_deviation=%.4f", avgPegDev))
	default:
		drivers = append(drivers, fmt.Sprintf("peg_healthy: avg_deviation=%.4f", avgPegDev))
	}

	usdtVol := in.StableVolumes["usdt"]
	usdcVol := in.StableVolumes["usdc"]
	daiVol := in.StableVolumes["dai"]
	totalVol := usdtVol + usdcVol + daiVol

	if in.TotalMarketCap > 0 && totalVol > 0 {
		ratio := totalVol / in.TotalMarketCap
		switch {
		case ratio > 0.05:
			momentum -= 0.3
			drivers = append(drivers, fmt.Sprintf("high_stable_dominance: ratio=%.4f", ratio))
		case ratio > 0.02:
			momentum -= 0.1
			drivers = append(drivers, fmt.Sprintf("moderate_stable_dominance: ratio=%.4f", ratio))
		default:
			momentum += 0.2
			drivers = append(drivers, fmt.Sprintf("low_stable_dominance: ratio=%.4f", ratio))
		}
	} else if totalVol > 0 {
		drivers = append(drivers, "market_cap_unavailable: using volume signals only")
	}

	if totalVol > 0 {
		usdcShare := usdcVol / totalVol
		switch {
		case usdcShare > 0.5:
			momentum += 0.15
			drivers = append(drivers, fmt.Sprintf("usdc_inflow_dominant: share=%.2f", usdcShare))
		case usdcShare < 0.2:
			momentum -= 0.1
			drivers = append(drivers, fmt.Sprintf("usdc_outflow_signal: share=%.2f", usdcShare))
		}
	}

	// Large momentum swings get accelerated: flows tend to continue.
	if a.history.Len() >= 2 {
		if prev, ok := a.history.Newest(); ok {
			delta := momentum - prev.Momentum
			if math.Abs(delta) > 0.3 {
				momentum += delta * 0.2
				drivers = append(drivers, fmt.Sprintf("momentum_acceleration: delta=%.3f", delta))
			}
		}
	}

	momentum = math.Max(-1.0, math.Min(1.0, momentum))

	indicator := FlowNeutral
	switch {
	case momentum > 0.15:
		indicator = FlowRiskOn
	case momentum < -0.15:
		indicator = FlowRiskOff
	}

	roundedDev := make(map[string]float64, len(pegDev))
	for k, v := range pegDev {
		roundedDev[k] = round6(v)
	}
	res := StableFlowResult{
		Momentum:          round4(momentum),
		RiskIndicator:     indicator,
		Drivers:           drivers,
		PegDeviations:     roundedDev,
		TotalStableVolume: totalVol,
		TS:                model.NowUTC(),
	}
	a.history.Push(res)
	return res
}

// History returns recent flow results, newest first.
func (a *StableFlowAnalyzer) History(limit int) []StableFlowResult {
	items := a.history.Last(limit)
	out := make([]StableFlowResult, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out
}
