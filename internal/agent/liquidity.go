package agent

import (
	"fmt"
	"sort"

	"riskdesk/internal/model"
)

// LiquidityAgent watches stablecoin pegs, orderbook balance, and spread.
type LiquidityAgent struct{}

func NewLiquidityAgent() *LiquidityAgent { return &LiquidityAgent{} }

func (a *LiquidityAgent) Name() string { return "liquidity_agent" }

func (a *LiquidityAgent) Evaluate(st State) []Signal {
	now := model.NowUTC()
	var signals []Signal

	symbols := make([]string, 0, len(st.StableDepegBPS))
	for sym := range st.StableDepegBPS {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		depeg := st.StableDepegBPS[sym]
		if depeg > 50 {
			signals = append(signals, newSignal(a.Name(), "STABLE_DEPEG_DETECTED",
				fmt.Sprintf("%s depeg at %.0fbps - monitor peg health", sym, depeg),
				SeverityHigh, 0.90, st, now))
		}
	}

	if absFloat(st.OrderbookImbalance) > 0.5 {
		direction := "sell-heavy"
		if st.OrderbookImbalance > 0 {
			direction = "buy-heavy"
		}
		signals = append(signals, newSignal(a.Name(), "EXTREME_IMBALANCE",
			fmt.Sprintf("Orderbook heavily %s (imbalance=%.2f)", direction, st.OrderbookImbalance),
			SeverityMedium, 0.75, st, now))
	}

	if st.SpreadBPS > 30 {
		signals = append(signals, newSignal(a.Name(), "WIDE_SPREAD",
			fmt.Sprintf("Spread %.0fbps - liquidity thinning", st.SpreadBPS),
			SeverityMedium, 0.80, st, now))
	}

	return signals
}
