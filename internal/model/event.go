package model

import (
	"time"
)

// EventType identifies one of the closed set of event names carried on the
// bus. Names are wire-stable: they appear verbatim in the durable log and in
// payloads consumed by downstream subscribers.
type EventType string

const (
	EventIndexUpdate          EventType = "INDEX_UPDATE"
	EventShockSpike           EventType = "SHOCK_SPIKE"
	EventDivergenceAlert      EventType = "DIVERGENCE_ALERT"
	EventFundingRegimeFlip    EventType = "FUNDING_REGIME_FLIP"
	EventRiskThrottleOn       EventType = "RISK_THROTTLE_ON"
	EventRiskThrottleOff      EventType = "RISK_THROTTLE_OFF"
	EventRuleActionProposed   EventType = "RULE_ACTION_PROPOSED"
	EventOrderSent            EventType = "ORDER_SENT"
	EventOrderFilled          EventType = "ORDER_FILLED"
	EventSwapQuoted           EventType = "SWAP_QUOTED"
	EventSwapSent             EventType = "SWAP_SENT"
	EventError                EventType = "ERROR"
	EventStableDepegAlert     EventType = "STABLE_DEPEG_ALERT"
	EventStableDepegWarning   EventType = "STABLE_DEPEG_WARNING"
	EventStableVolumeSpike    EventType = "STABLE_VOLUME_SPIKE"
	EventStableFundingSpike   EventType = "STABLE_FUNDING_SPIKE"
	EventStableStressAlert    EventType = "STABLE_STRESS_ALERT"
	EventPegBreakProbUpdate   EventType = "PEG_BREAK_PROB_UPDATE"
	EventPredictionUpdate     EventType = "PREDICTION_UPDATE"
	EventPredictionConfLow    EventType = "PREDICTION_CONFIDENCE_LOW"
	EventMonteCarloRun        EventType = "MONTE_CARLO_RUN"
	EventRiskVaRBreach        EventType = "RISK_VAR_BREACH"
	EventMicrostructureSignal EventType = "MICROSTRUCTURE_SIGNAL"
	EventDislocationAlert     EventType = "DISLOCATION_ALERT"
	EventCarryUpdate          EventType = "CARRY_UPDATE"
	EventCarryRegimeFlip      EventType = "CARRY_REGIME_FLIP"
	EventAgentSignal          EventType = "AGENT_SIGNAL"
	EventAgentActionProposed  EventType = "AGENT_ACTION_PROPOSED"
	EventAgentBlocked         EventType = "AGENT_BLOCKED"
	EventMacroTerminalUpdate  EventType = "MACRO_TERMINAL_UPDATE"
	EventPriceDislocation     EventType = "PRICE_DISLOCATION_ALERT"
	EventPnLAttribution       EventType = "PNL_ATTRIBUTION_UPDATE"
	EventRegimeMemoryUpdate   EventType = "REGIME_MEMORY_UPDATE"
	EventExecMetricsUpdate    EventType = "EXECUTION_METRICS_UPDATE"
	EventSlippageAnomaly      EventType = "SLIPPAGE_ANOMALY_ALERT"
	EventSolanaCongestion     EventType = "SOLANA_CONGESTION_WARNING"
	EventJupiterRouteRisk     EventType = "JUPITER_ROUTE_RISK"
	EventExecutionThrottle    EventType = "EXECUTION_THROTTLE"
	EventFundingArbOpp        EventType = "FUNDING_ARB_OPPORTUNITY"
	EventFundingArbRegimeFlip EventType = "FUNDING_ARB_REGIME_FLIP"
	EventBasisUpdate          EventType = "BASIS_UPDATE"
	EventBasisOpportunity     EventType = "BASIS_OPPORTUNITY"
	EventBasisFeasibilityLow  EventType = "BASIS_FEASIBILITY_LOW"
	EventLiquidityThinning    EventType = "LIQUIDITY_THINNING_WARNING"
	EventStableFlowUpdate     EventType = "STABLE_FLOW_UPDATE"
	EventAdaptiveWeights      EventType = "ADAPTIVE_WEIGHTS_UPDATE"
	EventRegimeAnalogMatch    EventType = "REGIME_ANALOG_MATCH"
	EventPortfolioProposal    EventType = "PORTFOLIO_PROPOSAL"
	EventLiquidationHeatmap   EventType = "LIQUIDATION_HEATMAP_UPDATE"
	EventJupiterQuoteStale    EventType = "JUPITER_QUOTE_STALE"
	EventJupiterSlippage      EventType = "JUPITER_SLIPPAGE_SPIKE"
	EventHedgeProposal        EventType = "HEDGE_PROPOSAL"
	EventHedgeRebalance       EventType = "HEDGE_REBALANCE_SUGGESTED"
	EventHedgeThrottle        EventType = "HEDGE_THROTTLE_RECOMMENDED"
	EventSandboxComparison    EventType = "SANDBOX_COMPARISON_RUN"
	EventReplayCompleted      EventType = "REPLAY_COMPLETED"
	EventSlippageModelUpdate  EventType = "SLIPPAGE_MODEL_UPDATE"
	EventSafeSizeWarning      EventType = "SAFE_SIZE_WARNING"
	EventHedgeRatioUpdate     EventType = "HEDGE_RATIO_UPDATE"
	EventPlaybookTriggered    EventType = "STABLECOIN_PLAYBOOK_TRIGGERED"
	EventTradeBlockedStale    EventType = "TRADE_BLOCKED_STALE_DATA"
	EventTradeDegradedData    EventType = "TRADE_DEGRADED_DATA"
)

// allEventTypes is the closed enumeration. Emitting any type outside this set
// is an invariant violation.
var allEventTypes = map[EventType]struct{}{
	EventIndexUpdate: {}, EventShockSpike: {}, EventDivergenceAlert: {},
	EventFundingRegimeFlip: {}, EventRiskThrottleOn: {}, EventRiskThrottleOff: {},
	EventRuleActionProposed: {}, EventOrderSent: {}, EventOrderFilled: {},
	EventSwapQuoted: {}, EventSwapSent: {}, EventError: {},
	EventStableDepegAlert: {}, EventStableDepegWarning: {},
	EventStableVolumeSpike: {}, EventStableFundingSpike: {},
	EventStableStressAlert: {}, EventPegBreakProbUpdate: {}, EventPredictionUpdate: {},
	EventPredictionConfLow: {}, EventMonteCarloRun: {}, EventRiskVaRBreach: {},
	EventMicrostructureSignal: {}, EventDislocationAlert: {}, EventCarryUpdate: {},
	EventCarryRegimeFlip: {}, EventAgentSignal: {}, EventAgentActionProposed: {},
	EventAgentBlocked: {}, EventMacroTerminalUpdate: {}, EventPriceDislocation: {},
	EventPnLAttribution: {}, EventRegimeMemoryUpdate: {}, EventExecMetricsUpdate: {},
	EventSlippageAnomaly: {}, EventSolanaCongestion: {}, EventJupiterRouteRisk: {},
	EventExecutionThrottle: {}, EventFundingArbOpp: {}, EventFundingArbRegimeFlip: {},
	EventBasisUpdate: {}, EventBasisOpportunity: {}, EventBasisFeasibilityLow: {},
	EventLiquidityThinning: {}, EventStableFlowUpdate: {}, EventAdaptiveWeights: {},
	EventRegimeAnalogMatch: {}, EventPortfolioProposal: {}, EventLiquidationHeatmap: {},
	EventJupiterQuoteStale: {}, EventJupiterSlippage: {}, EventHedgeProposal: {},
	EventHedgeRebalance: {}, EventHedgeThrottle: {}, EventSandboxComparison: {},
	EventReplayCompleted: {}, EventSlippageModelUpdate: {}, EventSafeSizeWarning: {},
	EventHedgeRatioUpdate: {}, EventPlaybookTriggered: {}, EventTradeBlockedStale: {},
	EventTradeDegradedData: {},
}

// Valid reports whether t belongs to the closed enumeration.
func (t EventType) Valid() bool {
	_, ok := allEventTypes[t]
	return ok
}

// Event is a single entry on the bus. IDs are unique; timestamps are
// monotonic per source (the bus assigns both at emit time).
type Event struct {
	ID        string                 `json:"id" db:"id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	Source    string                 `json:"source" db:"source"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	TS        time.Time              `json:"ts" db:"ts"`
}
