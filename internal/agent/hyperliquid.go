package agent

import (
	"fmt"

	"riskdesk/internal/model"
)

// HyperliquidAgent reads orderbook microstructure for directional edges and
// liquidity thinning.
type HyperliquidAgent struct {
	ImbalanceThreshold     float64
	SpreadCompressBPS      float64
	AggressionThreshold    float64
	ThinningDepthThreshold float64
}

func NewHyperliquidAgent() *HyperliquidAgent {
	return &HyperliquidAgent{
		ImbalanceThreshold:     0.4,
		SpreadCompressBPS:      5.0,
		AggressionThreshold:    0.6,
		ThinningDepthThreshold: 50000.0,
	}
}

func (a *HyperliquidAgent) Name() string { return "hyperliquid_agent" }

func (a *HyperliquidAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	if absFloat(st.OrderbookImbalance) > a.ImbalanceThreshold {
		direction := "bearish"
		if st.OrderbookImbalance > 0 {
			direction = "bullish"
		}
		s := newSignal(a.Name(), "MICROSTRUCTURE_SIGNAL",
			fmt.Sprintf("Orderbook imbalance %.2f suggests %s pressure", st.OrderbookImbalance, direction),
			SeverityMedium, round2(minFloat(0.70+absFloat(st.OrderbookImbalance)*0.25, 0.95)), st, now)
		s.Direction = direction
		signals = append(signals, s)
	}

	if st.SpreadBPS > 0 && st.SpreadBPS <= a.SpreadCompressBPS {
		confidence := minFloat(0.70+(a.SpreadCompressBPS-st.SpreadBPS)/a.SpreadCompressBPS*0.20, 0.95)
		s := newSignal(a.Name(), "MICROSTRUCTURE_SIGNAL",
			fmt.Sprintf("Spread compressed to %.1fbps - high liquidity regime", st.SpreadBPS),
			SeverityLow, round2(confidence), st, now)
		s.Direction = "neutral"
		signals = append(signals, s)
	}

	if absFloat(st.TradeAggression) > a.AggressionThreshold {
		direction := "bearish"
		if st.TradeAggression > 0 {
			direction = "bullish"
		}
		s := newSignal(a.Name(), "MICROSTRUCTURE_SIGNAL",
			fmt.Sprintf("Trade aggression %.2f indicates %s momentum", st.TradeAggression, direction),
			SeverityMedium, round2(minFloat(0.70+absFloat(st.TradeAggression)*0.20, 0.95)), st, now)
		s.Direction = direction
		signals = append(signals, s)
	}

	totalDepth := st.BidDepth + st.AskDepth
	if totalDepth > 0 && totalDepth < a.ThinningDepthThreshold {
		thinningRatio := totalDepth / a.ThinningDepthThreshold
		s := newSignal(a.Name(), "LIQUIDITY_THINNING_WARNING",
			fmt.Sprintf("Total depth $%.0f below $%.0f threshold", totalDepth, a.ThinningDepthThreshold),
			SeverityHigh, round2(minFloat(0.70+(1.0-thinningRatio)*0.25, 0.95)), st, now)
		s.Direction = "neutral"
		signals = append(signals, s)
	}

	return signals
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
