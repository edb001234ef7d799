package agent

import (
	"fmt"

	"riskdesk/internal/model"
)

// MacroAgent reads the tariff index for acceleration, shock, and regime
// signals. Acceleration and shock signals carry weight adjustments the
// adaptive layer can fold into the composite index.
type MacroAgent struct{}

func NewMacroAgent() *MacroAgent { return &MacroAgent{} }

func (a *MacroAgent) Name() string { return "macro_agent" }

func (a *MacroAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	if st.TariffMomentum > 5.0 {
		s := newSignal(a.Name(), "TARIFF_ACCELERATION",
			fmt.Sprintf("Tariff momentum %.2f - rapid policy tightening detected", st.TariffMomentum),
			SeverityMedium, 0.75, st, now)
		s.WeightAdjustment = map[string]float64{"shock_score": 1.3, "tariff_momentum": 1.5}
		signals = append(signals, s)
	}

	if st.ShockScore > 2.0 {
		s := newSignal(a.Name(), "NEWS_SHOCK_HIGH",
			fmt.Sprintf("Shock score %.2f - significant geopolitical event detected", st.ShockScore),
			SeverityHigh, 0.80, st, now)
		s.WeightAdjustment = map[string]float64{"shock_score": 1.5}
		signals = append(signals, s)
	}

	if st.TariffIndex > 70 {
		signals = append(signals, newSignal(a.Name(), "HIGH_TARIFF_REGIME",
			fmt.Sprintf("Tariff index at %.1f - elevated trade risk environment", st.TariffIndex),
			SeverityMedium, 0.70, st, now))
	}

	return signals
}
