package agent

import (
	"fmt"

	"riskdesk/internal/model"
)

// RiskAgent watches liquidation distance, shock/vol coincidence, and margin
// headroom.
type RiskAgent struct {
	LiqDistanceWarnPct float64
}

func NewRiskAgent() *RiskAgent {
	return &RiskAgent{LiqDistanceWarnPct: 8.0}
}

func (a *RiskAgent) Name() string { return "risk_agent" }

func (a *RiskAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	for _, pos := range st.Positions {
		if pos.LiqPrice == nil {
			continue
		}
		current := st.CurrentPrice
		if current == 0 {
			current = pos.EntryPrice
		}
		if current <= 0 {
			continue
		}
		distancePct := absFloat(current-*pos.LiqPrice) / current * 100.0
		if distancePct < a.LiqDistanceWarnPct {
			signals = append(signals, newSignal(a.Name(), "RISK_WARNING",
				fmt.Sprintf("Liquidation distance %.1f%% < %g%% for %s", distancePct, a.LiqDistanceWarnPct, pos.Market),
				SeverityHigh, 0.95, st, now))
		}
	}

	if st.ShockScore > 1.5 && (st.VolRegime == "high" || st.VolRegime == "extreme") {
		signals = append(signals, newSignal(a.Name(), "THROTTLE_RECOMMENDED",
			fmt.Sprintf("High shock (%.2f) + %s vol regime -> throttle recommended", st.ShockScore, st.VolRegime),
			SeverityHigh, 0.85, st, now))
	}

	if st.MarginUsage > 0.5 {
		signals = append(signals, newSignal(a.Name(), "MARGIN_WARNING",
			fmt.Sprintf("Margin usage %.0f%% approaching limit", st.MarginUsage*100),
			SeverityMedium, 0.90, st, now))
	}

	return signals
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
