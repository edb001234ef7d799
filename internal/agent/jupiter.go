package agent

import (
	"fmt"
	"strings"

	"riskdesk/internal/analytics"
	"riskdesk/internal/model"
)

// JupiterAgent watches swap routing conditions on Solana: quote freshness,
// route complexity, price impact, effective spread, chain congestion, and
// overall execution quality.
type JupiterAgent struct {
	QuoteStaleSeconds   float64
	RouteComplexityWarn int
	PriceImpactWarnBPS  float64
	SlippageHighBPS     float64
}

func NewJupiterAgent() *JupiterAgent {
	return &JupiterAgent{
		QuoteStaleSeconds:   30.0,
		RouteComplexityWarn: 3,
		PriceImpactWarnBPS:  50.0,
		SlippageHighBPS:     80.0,
	}
}

func (a *JupiterAgent) Name() string { return "jupiter_agent" }

func (a *JupiterAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	if st.QuoteAgeSeconds > a.QuoteStaleSeconds {
		stalenessRatio := minFloat(st.QuoteAgeSeconds/a.QuoteStaleSeconds, 3.0)
		severity := SeverityMedium
		if st.QuoteAgeSeconds > a.QuoteStaleSeconds*2 {
			severity = SeverityHigh
		}
		s := newSignal(a.Name(), "JUPITER_QUOTE_STALE",
			fmt.Sprintf("Jupiter quote age %.0fs exceeds %.0fs threshold - re-quote before execution", st.QuoteAgeSeconds, a.QuoteStaleSeconds),
			severity, round2(minFloat(0.70+stalenessRatio*0.08, 0.95)), st, now)
		s.Direction = "neutral"
		s.ProposedAction = "block_execution"
		signals = append(signals, s)
	}

	if st.RouteHops >= a.RouteComplexityWarn {
		severity := SeverityMedium
		if st.RouteHops > 4 {
			severity = SeverityHigh
		}
		s := newSignal(a.Name(), "JUPITER_ROUTE_COMPLEX",
			fmt.Sprintf("Route uses %d hops - increased slippage and failure risk", st.RouteHops),
			severity, round2(minFloat(0.70+float64(st.RouteHops-a.RouteComplexityWarn)*0.10, 0.95)), st, now)
		s.Direction = "neutral"
		s.ProposedAction = "reduce_size"
		signals = append(signals, s)
	}

	if st.PriceImpactBPS > a.PriceImpactWarnBPS {
		ratio := minFloat(st.PriceImpactBPS/a.PriceImpactWarnBPS, 4.0)
		severity := SeverityMedium
		action := "reduce_size"
		if st.PriceImpactBPS > a.PriceImpactWarnBPS*2 {
			severity = SeverityHigh
			action = "block_execution"
		}
		s := newSignal(a.Name(), "JUPITER_PRICE_IMPACT_HIGH",
			fmt.Sprintf("Price impact %.1fbps exceeds %.0fbps warn level", st.PriceImpactBPS, a.PriceImpactWarnBPS),
			severity, round2(minFloat(0.70+ratio*0.06, 0.95)), st, now)
		s.Direction = "bearish"
		s.ProposedAction = action
		signals = append(signals, s)
	}

	if st.SpreadBPS > a.SlippageHighBPS {
		ratio := minFloat(st.SpreadBPS/a.SlippageHighBPS, 4.0)
		severity := SeverityMedium
		if st.SpreadBPS > a.SlippageHighBPS*2 {
			severity = SeverityHigh
		}
		s := newSignal(a.Name(), "JUPITER_SLIPPAGE_SPIKE",
			fmt.Sprintf("Effective spread %.1fbps indicates high slippage environment", st.SpreadBPS),
			severity, round2(minFloat(0.70+ratio*0.06, 0.95)), st, now)
		s.Direction = "neutral"
		s.ProposedAction = "delay_execution"
		signals = append(signals, s)
	}

	if st.RPCLatencyMS > 0 || st.SlotDelta > 0 {
		congestion := analytics.AssessCongestion(st.RPCLatencyMS, st.SlotDelta)
		if congestion.Congested {
			confidence := 0.75
			if congestion.Severity == SeverityHigh {
				confidence = 0.85
			}
			s := newSignal(a.Name(), "SOLANA_CONGESTION_WARNING",
				"Solana congestion detected: "+strings.Join(congestion.Reasons, "; "),
				congestion.Severity, confidence, st, now)
			s.Direction = "neutral"
			s.ProposedAction = congestion.RecommendedAction
			signals = append(signals, s)
		}
	}

	if st.SpreadBPS > 0 || st.PriceImpactBPS > 0 || st.RPCLatencyMS > 0 {
		quality := analytics.ComputeSolanaQuality(analytics.SolanaQualityInputs{
			SpreadBPS:      st.SpreadBPS,
			PriceImpactBPS: st.PriceImpactBPS,
			RPCLatencyMS:   st.RPCLatencyMS,
			OBDepth:        st.OBDepth,
		})
		if quality.ExecutionQualityScore < 40.0 {
			severity := SeverityMedium
			action := "reduce_size"
			if quality.ExecutionQualityScore < 20 {
				severity = SeverityHigh
				action = "block_execution"
			}
			s := newSignal(a.Name(), "JUPITER_LOW_QUALITY",
				fmt.Sprintf("Execution quality score %.0f/100 - poor conditions for swap", quality.ExecutionQualityScore),
				severity, round2(minFloat(0.70+(40.0-quality.ExecutionQualityScore)/40.0*0.25, 0.95)), st, now)
			s.Direction = "neutral"
			s.ProposedAction = action
			s.ExecutionQuality = &quality
			signals = append(signals, s)
		}
	}

	return signals
}
