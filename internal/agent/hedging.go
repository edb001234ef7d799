package agent

import (
	"fmt"
	"math"
	"strings"

	"riskdesk/internal/model"
)

// HedgeLeg is one leg of a hedge proposal.
type HedgeLeg struct {
	Venue  string `json:"venue"`
	Action string `json:"action"`
	Sizing string `json:"sizing"`
}

// HedgeDetail carries the quantitative targets behind a hedge proposal.
type HedgeDetail struct {
	TargetBeta      float64    `json:"target_beta"`
	TargetDelta     float64    `json:"target_delta"`
	Urgency         string     `json:"urgency"`
	HedgeLegs       []HedgeLeg `json:"hedge_legs"`
	AllActions      []string   `json:"all_proposed_actions"`
	CurrentExposure float64    `json:"current_exposure"`
}

// HedgingAgent folds shock, vol regime, predictor tilt, depeg, margin,
// funding carry, and tariff level into a single position-aware hedge
// proposal.
type HedgingAgent struct {
	HighShockThreshold  float64
	DepegWarnBPS        float64
	MarginWarnThreshold float64
	ConfidenceFloor     float64
}

func NewHedgingAgent() *HedgingAgent {
	return &HedgingAgent{
		HighShockThreshold:  60.0,
		DepegWarnBPS:        30.0,
		MarginWarnThreshold: 0.6,
		ConfidenceFloor:     0.70,
	}
}

func (a *HedgingAgent) Name() string { return "hedging_agent" }

func (a *HedgingAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()

	highVol := st.VolRegime == "high" || st.VolRegime == "extreme"

	maxDepeg := 0.0
	for _, depeg := range st.StableDepegBPS {
		if depeg > maxDepeg {
			maxDepeg = depeg
		}
	}

	exposure := 0.0
	for _, p := range st.Positions {
		exposure += absFloat(p.Size * p.EntryPrice)
	}

	targetBeta := 1.0
	targetDelta := 0.0
	urgency := SeverityLow
	var reasoning []string
	var proposed []string

	if st.ShockScore > a.HighShockThreshold {
		reduction := minFloat((st.ShockScore-a.HighShockThreshold)/100.0, 0.5)
		targetBeta -= reduction
		reasoning = append(reasoning, fmt.Sprintf("Shock score %.1f elevated - reduce beta by %.2f", st.ShockScore, reduction))
		proposed = append(proposed, "reduce_exposure")
		urgency = SeverityMedium
	}

	if highVol {
		targetBeta *= 0.7
		reasoning = append(reasoning, fmt.Sprintf("Vol regime '%s' - scale to 70%% target beta", st.VolRegime))
		proposed = append(proposed, "scale_down_risk")
		if st.VolRegime == "extreme" {
			urgency = SeverityHigh
		} else {
			urgency = maxSeverity(urgency, SeverityMedium)
		}
	}

	if st.PredictorProb < 0.35 {
		targetDelta = -0.15
		reasoning = append(reasoning, fmt.Sprintf("Macro predictor bearish (%.2f) - tilt short delta", st.PredictorProb))
		proposed = append(proposed, "hedge_via_hl_short")
	} else if st.PredictorProb > 0.65 {
		targetDelta = 0.10
		reasoning = append(reasoning, fmt.Sprintf("Macro predictor bullish (%.2f) - allow long delta", st.PredictorProb))
	}

	if maxDepeg > a.DepegWarnBPS {
		targetBeta *= 0.8
		reasoning = append(reasoning, fmt.Sprintf("Stablecoin depeg %.0fbps - reduce exposure + rotate to safer stables", maxDepeg))
		proposed = append(proposed, "stable_rotation")
		urgency = SeverityHigh
	}

	if st.MarginUsage > a.MarginWarnThreshold {
		targetBeta *= 0.6
		reasoning = append(reasoning, fmt.Sprintf("Margin usage %.0f%% high - deleverage urgently", st.MarginUsage*100))
		proposed = append(proposed, "deleverage")
		urgency = SeverityHigh
	}

	if st.FundingRegime == "negative" && st.CarryScore < -0.05 {
		reasoning = append(reasoning, fmt.Sprintf("Negative funding regime (carry %.3f) - consider reducing HL longs or hedging via Drift", st.CarryScore))
		proposed = append(proposed, "hedge_funding_via_drift")
	}

	if st.TariffIndex > 70 {
		targetBeta *= 0.85
		reasoning = append(reasoning, fmt.Sprintf("Tariff index %.1f elevated - macro headwind, reduce risk", st.TariffIndex))
		proposed = append(proposed, "reduce_exposure")
	}

	if len(reasoning) == 0 {
		return nil
	}

	targetBeta = math.Max(round3(targetBeta), 0.0)
	targetDelta = round3(targetDelta)

	var legs []HedgeLeg
	if containsString(proposed, "hedge_via_hl_short") || containsString(proposed, "reduce_exposure") {
		legs = append(legs, HedgeLeg{Venue: "hyperliquid", Action: "short_perp", Sizing: "proportional_to_beta_gap"})
	}
	if containsString(proposed, "hedge_funding_via_drift") {
		legs = append(legs, HedgeLeg{Venue: "drift", Action: "long_perp", Sizing: "carry_neutral"})
	}
	if containsString(proposed, "stable_rotation") {
		legs = append(legs, HedgeLeg{Venue: "jupiter", Action: "swap_to_usdc", Sizing: "excess_stable_allocation"})
	}

	var factors float64
	if st.ShockScore > 0 {
		factors += minFloat(st.ShockScore/100.0, 0.3)
	}
	if highVol {
		factors += 0.15
	}
	if st.MarginUsage > a.MarginWarnThreshold {
		factors += 0.10
	}
	if maxDepeg > a.DepegWarnBPS {
		factors += 0.10
	}
	confidence := round2(minFloat(a.ConfidenceFloor+factors, 0.95))

	direction := "neutral"
	if targetDelta < 0 {
		direction = "bearish"
	} else if targetDelta > 0 {
		direction = "bullish"
	}

	proposal := newSignal(a.Name(), "HEDGE_PROPOSAL", strings.Join(reasoning, "; "), urgency, confidence, st, now)
	proposal.Direction = direction
	proposal.ProposedAction = proposed[0]
	proposal.HedgeDetail = &HedgeDetail{
		TargetBeta:      targetBeta,
		TargetDelta:     targetDelta,
		Urgency:         urgency,
		HedgeLegs:       legs,
		AllActions:      proposed,
		CurrentExposure: round2(exposure),
	}
	signals := []Signal{proposal}

	if urgency == SeverityHigh && len(proposed) >= 2 {
		s := newSignal(a.Name(), "HEDGE_REBALANCE_SUGGESTED",
			fmt.Sprintf("Multiple hedge triggers active (%d actions) - rebalance recommended", len(proposed)),
			SeverityHigh, confidence, st, now)
		s.Direction = "neutral"
		s.ProposedAction = "rebalance"
		signals = append(signals, s)
	}

	if st.MarginUsage > 0.8 {
		s := newSignal(a.Name(), "HEDGE_THROTTLE_RECOMMENDED",
			fmt.Sprintf("Margin usage %.0f%% critical - throttle new positions until deleveraged", st.MarginUsage*100),
			SeverityHigh, 0.90, st, now)
		s.Direction = "neutral"
		s.ProposedAction = "throttle"
		signals = append(signals, s)
	}

	return signals
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

func containsString(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
