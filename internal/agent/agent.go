// Package agent holds the desk's signal agents: stateless evaluators that
// read a snapshot-derived market state and emit typed advisory signals. The
// execution agent additionally gates live orders pre-trade.
package agent

import (
	"math"
	"time"

	"riskdesk/internal/analytics"
	"riskdesk/internal/model"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Signal is one agent observation. Type is always AGENT_SIGNAL; the payload
// shape is wire-stable.
type Signal struct {
	Type             string                   `json:"type"`
	Agent            string                   `json:"agent"`
	Signal           string                   `json:"signal"`
	Direction        string                   `json:"direction,omitempty"`
	Reason           string                   `json:"reason"`
	Severity         string                   `json:"severity"`
	Confidence       float64                  `json:"confidence"`
	DataTSUsed       time.Time                `json:"data_ts_used"`
	TS               time.Time                `json:"ts"`
	ProposedAction   string                   `json:"proposed_action,omitempty"`
	WeightAdjustment map[string]float64       `json:"weight_adjustment,omitempty"`
	HedgeDetail      *HedgeDetail             `json:"hedge_detail,omitempty"`
	ExecutionQuality *analytics.SolanaQuality `json:"execution_quality,omitempty"`
}

// State is the snapshot-derived view every agent evaluates. Absent inputs
// keep their zero values (VolRegime "normal", FundingRegime "neutral",
// PriceIntegrity "OK", PredictorProb 0.5 are filled by the coordinator).
type State struct {
	DataTS time.Time

	TariffIndex    float64
	TariffMomentum float64
	ShockScore     float64

	VolRegime     string
	FundingRegime string

	MarginUsage   float64
	Positions     []model.Position
	CurrentPrice  float64
	PredictorProb float64
	CarryScore    float64

	// Per-symbol depeg in bps from the stablecoin health snapshot.
	StableDepegBPS map[string]float64

	OrderbookImbalance float64
	SpreadBPS          float64
	TradeAggression    float64
	BidDepth           float64
	AskDepth           float64

	PriceIntegrity string

	QuoteAgeSeconds float64
	RouteHops       int
	PriceImpactBPS  float64
	RPCLatencyMS    float64
	SlotDelta       int
	OBDepth         float64

	// Extra preserves forward-compatible fields not enumerated above.
	Extra map[string]interface{}
}

// Agent is one stateless evaluator.
type Agent interface {
	Name() string
	Evaluate(st State) []Signal
}

func newSignal(agent, signal, reason, severity string, confidence float64, st State, now time.Time) Signal {
	dataTS := st.DataTS
	if dataTS.IsZero() {
		dataTS = now
	}
	return Signal{
		Type:       string(model.EventAgentSignal),
		Agent:      agent,
		Signal:     signal,
		Reason:     reason,
		Severity:   severity,
		Confidence: confidence,
		DataTSUsed: dataTS,
		TS:         now,
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

var severityRank = map[string]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}

func maxSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}
