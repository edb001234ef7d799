package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdesk/internal/model"
)

func quietState() State {
	return State{
		VolRegime:      "normal",
		FundingRegime:  "neutral",
		PriceIntegrity: "OK",
		PredictorProb:  0.5,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestRiskAgentQuiet(t *testing.T) {
	assert.Empty(t, NewRiskAgent().Evaluate(quietState()))
}

func TestRiskAgentLiquidationDistance(t *testing.T) {
	st := quietState()
	st.CurrentPrice = 100.0
	st.Positions = []model.Position{
		{Venue: "drift", Market: "SOL-PERP", Size: 1, EntryPrice: 100, LiqPrice: floatPtr(95)},
		{Venue: "drift", Market: "BTC-PERP", Size: 1, EntryPrice: 100, LiqPrice: floatPtr(50)},
		{Venue: "drift", Market: "ETH-PERP", Size: 1, EntryPrice: 100}, // no liq price
	}

	signals := NewRiskAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "RISK_WARNING", signals[0].Signal)
	assert.Equal(t, SeverityHigh, signals[0].Severity)
	assert.Equal(t, 0.95, signals[0].Confidence)
	assert.Equal(t, "Liquidation distance 5.0% < 8% for SOL-PERP", signals[0].Reason)
}

func TestRiskAgentThrottleRecommendation(t *testing.T) {
	st := quietState()
	st.ShockScore = 2.0
	st.VolRegime = "high"

	signals := NewRiskAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "THROTTLE_RECOMMENDED", signals[0].Signal)

	// Shock alone, calm vol: no recommendation.
	st.VolRegime = "normal"
	assert.Empty(t, NewRiskAgent().Evaluate(st))
}

func TestRiskAgentMarginWarning(t *testing.T) {
	st := quietState()
	st.MarginUsage = 0.6

	signals := NewRiskAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "MARGIN_WARNING", signals[0].Signal)
	assert.Equal(t, SeverityMedium, signals[0].Severity)
	assert.Equal(t, "Margin usage 60% approaching limit", signals[0].Reason)
}

func TestMacroAgentAllTriggers(t *testing.T) {
	st := quietState()
	st.TariffMomentum = 6.0
	st.ShockScore = 2.5
	st.TariffIndex = 75.0

	signals := NewMacroAgent().Evaluate(st)
	require.Len(t, signals, 3)
	assert.Equal(t, "TARIFF_ACCELERATION", signals[0].Signal)
	assert.Equal(t, map[string]float64{"shock_score": 1.3, "tariff_momentum": 1.5}, signals[0].WeightAdjustment)
	assert.Equal(t, "NEWS_SHOCK_HIGH", signals[1].Signal)
	assert.Equal(t, SeverityHigh, signals[1].Severity)
	assert.Equal(t, "HIGH_TARIFF_REGIME", signals[2].Signal)
}

func TestMacroAgentQuiet(t *testing.T) {
	assert.Empty(t, NewMacroAgent().Evaluate(quietState()))
}

func TestExecutionAgentPreTradeCheck(t *testing.T) {
	a := NewExecutionAgent()
	order := model.OrderRequest{Venue: "drift", Market: "SOL-PERP", Side: "buy", Size: 1}

	ok, reasons := a.PreTradeCheck(order, map[string]interface{}{
		"spread_bps":      10.0,
		"liquidity_depth": 5000.0,
		"price_integrity": "OK",
	})
	assert.True(t, ok)
	assert.Empty(t, reasons)

	ok, reasons = a.PreTradeCheck(order, map[string]interface{}{
		"spread_bps":      80.0,
		"liquidity_depth": 10.0,
		"price_integrity": "WARNING",
	})
	assert.False(t, ok)
	require.Len(t, reasons, 3)
	assert.Equal(t, "Spread 80bps exceeds max 50bps", reasons[0])
	assert.Equal(t, "Liquidity depth 10 below minimum 50", reasons[1])

	// Zero depth means unknown, not thin.
	ok, _ = a.PreTradeCheck(order, map[string]interface{}{"liquidity_depth": 0.0})
	assert.True(t, ok)
}

func TestExecutionAgentEvaluate(t *testing.T) {
	st := quietState()
	st.PriceIntegrity = "WARNING"
	st.SpreadBPS = 60.0

	signals := NewExecutionAgent().Evaluate(st)
	require.Len(t, signals, 2)
	assert.Equal(t, "PRICE_INTEGRITY_WARNING", signals[0].Signal)
	assert.Equal(t, "HIGH_SLIPPAGE_WARNING", signals[1].Signal)
}

func TestLiquidityAgentTriggers(t *testing.T) {
	st := quietState()
	st.StableDepegBPS = map[string]float64{"USDT": 80.0, "USDC": 10.0}
	st.OrderbookImbalance = 0.7
	st.SpreadBPS = 40.0

	signals := NewLiquidityAgent().Evaluate(st)
	require.Len(t, signals, 3)
	assert.Equal(t, "STABLE_DEPEG_DETECTED", signals[0].Signal)
	assert.Contains(t, signals[0].Reason, "USDT depeg at 80bps")
	assert.Equal(t, "EXTREME_IMBALANCE", signals[1].Signal)
	assert.Contains(t, signals[1].Reason, "buy-heavy")
	assert.Equal(t, "WIDE_SPREAD", signals[2].Signal)
}

func TestLiquidityAgentSellHeavy(t *testing.T) {
	st := quietState()
	st.OrderbookImbalance = -0.8

	signals := NewLiquidityAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0].Reason, "sell-heavy")
}

func TestHyperliquidAgentImbalance(t *testing.T) {
	st := quietState()
	st.OrderbookImbalance = 0.5

	signals := NewHyperliquidAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "MICROSTRUCTURE_SIGNAL", signals[0].Signal)
	assert.Equal(t, "bullish", signals[0].Direction)
	assert.InDelta(t, 0.825, signals[0].Confidence, 0.01)
}

func TestHyperliquidAgentSpreadCompression(t *testing.T) {
	st := quietState()
	st.SpreadBPS = 2.0

	signals := NewHyperliquidAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "neutral", signals[0].Direction)
	assert.Equal(t, SeverityLow, signals[0].Severity)
	assert.InDelta(t, 0.82, signals[0].Confidence, 0.01)
}

func TestHyperliquidAgentAggressionAndThinning(t *testing.T) {
	st := quietState()
	st.TradeAggression = -0.8
	st.BidDepth = 12000
	st.AskDepth = 8000

	signals := NewHyperliquidAgent().Evaluate(st)
	require.Len(t, signals, 2)
	assert.Equal(t, "bearish", signals[0].Direction)
	assert.Equal(t, "LIQUIDITY_THINNING_WARNING", signals[1].Signal)
	assert.Equal(t, SeverityHigh, signals[1].Severity)
	assert.InDelta(t, 0.85, signals[1].Confidence, 0.01)
}

func TestJupiterAgentQuoteStale(t *testing.T) {
	st := quietState()
	st.QuoteAgeSeconds = 70.0

	signals := NewJupiterAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "JUPITER_QUOTE_STALE", signals[0].Signal)
	assert.Equal(t, SeverityHigh, signals[0].Severity)
	assert.Equal(t, "block_execution", signals[0].ProposedAction)
}

func TestJupiterAgentRouteAndImpact(t *testing.T) {
	st := quietState()
	st.RouteHops = 5
	st.PriceImpactBPS = 120.0

	signals := NewJupiterAgent().Evaluate(st)
	// Impact > 0 also triggers the quality check; 120bps impact alone keeps
	// the quality score above the warning line.
	require.GreaterOrEqual(t, len(signals), 2)
	assert.Equal(t, "JUPITER_ROUTE_COMPLEX", signals[0].Signal)
	assert.Equal(t, SeverityHigh, signals[0].Severity)
	assert.Equal(t, "JUPITER_PRICE_IMPACT_HIGH", signals[1].Signal)
	assert.Equal(t, "block_execution", signals[1].ProposedAction)
}

func TestJupiterAgentCongestion(t *testing.T) {
	st := quietState()
	st.RPCLatencyMS = 1600.0
	st.SlotDelta = 12

	signals := NewJupiterAgent().Evaluate(st)
	var congestion *Signal
	for i := range signals {
		if signals[i].Signal == "SOLANA_CONGESTION_WARNING" {
			congestion = &signals[i]
		}
	}
	require.NotNil(t, congestion)
	assert.Equal(t, SeverityHigh, congestion.Severity)
	assert.Equal(t, 0.85, congestion.Confidence)
	assert.Equal(t, "delay_execution", congestion.ProposedAction)
}

func TestJupiterAgentLowQuality(t *testing.T) {
	st := quietState()
	st.SpreadBPS = 60.0
	st.PriceImpactBPS = 150.0
	st.RPCLatencyMS = 2500.0
	st.OBDepth = 1000.0

	signals := NewJupiterAgent().Evaluate(st)
	var quality *Signal
	for i := range signals {
		if signals[i].Signal == "JUPITER_LOW_QUALITY" {
			quality = &signals[i]
		}
	}
	require.NotNil(t, quality)
	assert.Equal(t, SeverityHigh, quality.Severity)
	assert.Equal(t, "block_execution", quality.ProposedAction)
	require.NotNil(t, quality.ExecutionQuality)
	assert.Less(t, quality.ExecutionQuality.ExecutionQualityScore, 20.0)
}

func TestHedgingAgentQuiet(t *testing.T) {
	assert.Empty(t, NewHedgingAgent().Evaluate(quietState()))
}

func TestHedgingAgentBearishTilt(t *testing.T) {
	st := quietState()
	st.PredictorProb = 0.2

	signals := NewHedgingAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, "HEDGE_PROPOSAL", signals[0].Signal)
	assert.Equal(t, "bearish", signals[0].Direction)
	require.NotNil(t, signals[0].HedgeDetail)
	assert.Equal(t, -0.15, signals[0].HedgeDetail.TargetDelta)
	require.Len(t, signals[0].HedgeDetail.HedgeLegs, 1)
	assert.Equal(t, "hyperliquid", signals[0].HedgeDetail.HedgeLegs[0].Venue)
}

func TestHedgingAgentFullStress(t *testing.T) {
	st := quietState()
	st.ShockScore = 80.0
	st.VolRegime = "extreme"
	st.PredictorProb = 0.2
	st.MarginUsage = 0.85
	st.StableDepegBPS = map[string]float64{"USDT": 40.0}
	st.FundingRegime = "negative"
	st.CarryScore = -0.10
	st.TariffIndex = 80.0
	st.Positions = []model.Position{{Venue: "drift", Market: "SOL-PERP", Size: 10, EntryPrice: 150}}

	signals := NewHedgingAgent().Evaluate(st)
	require.Len(t, signals, 3)

	proposal := signals[0]
	assert.Equal(t, "HEDGE_PROPOSAL", proposal.Signal)
	assert.Equal(t, "bearish", proposal.Direction)
	assert.Equal(t, SeverityHigh, proposal.Severity)
	assert.Equal(t, 0.95, proposal.Confidence)
	require.NotNil(t, proposal.HedgeDetail)
	// 1.0 - 0.2, then scaled by 0.7, 0.8, 0.6, 0.85.
	assert.InDelta(t, 0.228, proposal.HedgeDetail.TargetBeta, 1e-9)
	assert.Equal(t, -0.15, proposal.HedgeDetail.TargetDelta)
	assert.Len(t, proposal.HedgeDetail.HedgeLegs, 3)
	assert.Equal(t, 1500.0, proposal.HedgeDetail.CurrentExposure)
	assert.Equal(t, "reduce_exposure", proposal.ProposedAction)

	assert.Equal(t, "HEDGE_REBALANCE_SUGGESTED", signals[1].Signal)
	assert.Equal(t, "rebalance", signals[1].ProposedAction)

	assert.Equal(t, "HEDGE_THROTTLE_RECOMMENDED", signals[2].Signal)
	assert.Equal(t, 0.90, signals[2].Confidence)
}

func TestHedgingAgentHighVolOnly(t *testing.T) {
	st := quietState()
	st.VolRegime = "high"

	signals := NewHedgingAgent().Evaluate(st)
	require.Len(t, signals, 1)
	assert.Equal(t, SeverityMedium, signals[0].Severity)
	assert.Equal(t, 0.7, signals[0].HedgeDetail.TargetBeta)
	assert.Equal(t, "neutral", signals[0].Direction)
	assert.Equal(t, "scale_down_risk", signals[0].ProposedAction)
	// No reduce_exposure or short legs proposed: no hedge legs.
	assert.Empty(t, signals[0].HedgeDetail.HedgeLegs)
}
