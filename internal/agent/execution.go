package agent

import (
	"fmt"

	"riskdesk/internal/model"
)

// ExecutionAgent watches execution conditions and doubles as the router's
// live pre-trade gate.
type ExecutionAgent struct {
	MaxSlippageBPS    float64
	MinLiquidityDepth float64
}

func NewExecutionAgent() *ExecutionAgent {
	return &ExecutionAgent{MaxSlippageBPS: 50.0, MinLiquidityDepth: 50.0}
}

func (a *ExecutionAgent) Name() string { return "execution_agent" }

// PreTradeCheck gates one order on current market conditions. The market
// state carries spread_bps, liquidity_depth, and price_integrity.
func (a *ExecutionAgent) PreTradeCheck(_ model.OrderRequest, marketState map[string]interface{}) (bool, []string) {
	var reasons []string
	allowed := true

	spreadBPS := numField(marketState, "spread_bps")
	if spreadBPS > a.MaxSlippageBPS {
		reasons = append(reasons, fmt.Sprintf("Spread %.0fbps exceeds max %.0fbps", spreadBPS, a.MaxSlippageBPS))
		allowed = false
	}

	depth := numField(marketState, "liquidity_depth")
	if depth > 0 && depth < a.MinLiquidityDepth {
		reasons = append(reasons, fmt.Sprintf("Liquidity depth %.0f below minimum %.0f", depth, a.MinLiquidityDepth))
		allowed = false
	}

	if integrity, _ := marketState["price_integrity"].(string); integrity == "WARNING" {
		reasons = append(reasons, "Price integrity WARNING - cross-venue deviation detected")
		allowed = false
	}

	return allowed, reasons
}

func (a *ExecutionAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	if st.PriceIntegrity == "WARNING" {
		signals = append(signals, newSignal(a.Name(), "PRICE_INTEGRITY_WARNING",
			"Price integrity compromised - execution should be paused",
			SeverityHigh, 0.95, st, now))
	}

	if st.SpreadBPS > a.MaxSlippageBPS {
		signals = append(signals, newSignal(a.Name(), "HIGH_SLIPPAGE_WARNING",
			fmt.Sprintf("Spread %.0fbps exceeds safe threshold %.0fbps", st.SpreadBPS, a.MaxSlippageBPS),
			SeverityMedium, 0.90, st, now))
	}

	return signals
}

func numField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
