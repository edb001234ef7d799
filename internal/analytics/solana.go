package analytics

import (
	"fmt"
	"time"

	"riskdesk/internal/model"
)

// Solana execution quality thresholds.
const (
	SpreadThreshHighBPS    = 50.0
	SpreadThreshMedBPS     = 20.0
	ImpactThreshHighBPS    = 100.0
	ImpactThreshMedBPS     = 30.0
	RPCLatencyThreshHighMS = 2000.0
	OBDepthThreshLow       = 5000.0
	OBDepthThreshMed       = 50000.0
	CongestionRPCThreshMS  = 1500.0
	CongestionSlotDelta    = 10
)

// SolanaQualityInputs feed one execution quality score.
type SolanaQualityInputs struct {
	SpreadBPS      float64 `json:"spread_bps"`
	PriceImpactBPS float64 `json:"price_impact_bps"`
	RPCLatencyMS   float64 `json:"rpc_latency_ms"`
	OBDepth        float64 `json:"ob_depth"`
}

// SolanaQuality is a 0-100 venue execution quality score with component
// breakdown.
type SolanaQuality struct {
	ExecutionQualityScore float64             `json:"execution_quality_score"`
	CongestionWarning     bool                `json:"congestion_warning"`
	SlippageRisk          string              `json:"slippage_risk"` // low | medium | high
	Components            map[string]float64  `json:"components"`
	Inputs                SolanaQualityInputs `json:"inputs"`
	TS                    time.Time           `json:"ts"`
}

// CongestionAssessment reads Solana chain health from RPC latency and slot
// lag.
type CongestionAssessment struct {
	Congested         bool      `json:"congested"`
	Severity          string    `json:"severity"` // low | medium | high
	Reasons           []string  `json:"reasons"`
	RecommendedAction string    `json:"recommended_action"` // proceed | reduce_size | delay_execution
	RPCLatencyMS      float64   `json:"rpc_latency_ms"`
	SlotDelta         int       `json:"slot_delta"`
	TS                time.Time `json:"ts"`
}

// JupiterRouteEstimate is a rough pre-quote impact and route estimate.
type JupiterRouteEstimate struct {
	InputMint              string    `json:"input_mint"`
	OutputMint             string    `json:"output_mint"`
	AmountUSD              float64   `json:"amount_usd"`
	EstimatedImpactBPS     float64   `json:"estimated_price_impact_bps"`
	EstimatedHops          int       `json:"estimated_hops"`
	RiskLevel              string    `json:"risk_level"`
	DepthAvailable         float64   `json:"depth_available"`
	TS                     time.Time `json:"ts"`
}

// ComputeSolanaQuality scores execution quality from spread, impact, RPC
// latency and book depth. Weights: spread 30%, impact 25%, latency 25%,
// depth 20%.
func ComputeSolanaQuality(in SolanaQualityInputs) SolanaQuality {
	spreadScore := maxFloat(0, 100.0-in.SpreadBPS/SpreadThreshHighBPS*100.0)
	impactScore := maxFloat(0, 100.0-in.PriceImpactBPS/ImpactThreshHighBPS*100.0)
	latencyScore := maxFloat(0, 100.0-in.RPCLatencyMS/RPCLatencyThreshHighMS*100.0)

	var depthScore float64
	switch {
	case in.OBDepth >= OBDepthThreshMed:
		depthScore = 100.0
	case in.OBDepth >= OBDepthThreshLow:
		depthScore = 50.0 + 50.0*((in.OBDepth-OBDepthThreshLow)/(OBDepthThreshMed-OBDepthThreshLow))
	default:
		depthScore = maxFloat(0, 50.0*in.OBDepth/OBDepthThreshLow)
	}

	score := clampFloat(round2(0.30*spreadScore+0.25*impactScore+0.25*latencyScore+0.20*depthScore), 0, 100)

	risk := "low"
	switch {
	case in.SpreadBPS >= SpreadThreshHighBPS || in.PriceImpactBPS >= ImpactThreshHighBPS:
		risk = "high"
	case in.SpreadBPS >= SpreadThreshMedBPS || in.PriceImpactBPS >= ImpactThreshMedBPS:
		risk = "medium"
	}

	return SolanaQuality{
		ExecutionQualityScore: score,
		CongestionWarning:     in.RPCLatencyMS >= CongestionRPCThreshMS,
		SlippageRisk:          risk,
		Components: map[string]float64{
			"spread_score":  round2(spreadScore),
			"impact_score":  round2(impactScore),
			"latency_score": round2(latencyScore),
			"depth_score":   round2(depthScore),
		},
		Inputs: in,
		TS:     model.NowUTC(),
	}
}

// AssessCongestion classifies chain congestion. Both signals tripping reads
// high; either alone reads medium.
func AssessCongestion(rpcLatencyMS float64, slotDelta int) CongestionAssessment {
	latencyHit := rpcLatencyMS >= CongestionRPCThreshMS
	slotHit := slotDelta >= CongestionSlotDelta

	severity := "low"
	switch {
	case latencyHit && slotHit:
		severity = "high"
	case latencyHit || slotHit:
		severity = "medium"
	}

	var reasons []string
	if latencyHit {
		reasons = append(reasons, fmt.Sprintf("RPC latency %.0fms exceeds %.0fms threshold", rpcLatencyMS, CongestionRPCThreshMS))
	}
	if slotHit {
		reasons = append(reasons, fmt.Sprintf("Slot delta %d exceeds %d threshold", slotDelta, CongestionSlotDelta))
	}

	action := "proceed"
	switch severity {
	case "high":
		action = "delay_execution"
	case "medium":
		action = "reduce_size"
	}

	return CongestionAssessment{
		Congested:         latencyHit || slotHit,
		Severity:          severity,
		Reasons:           reasons,
		RecommendedAction: action,
		RPCLatencyMS:      rpcLatencyMS,
		SlotDelta:         slotDelta,
		TS:                model.NowUTC(),
	}
}

// EstimateJupiterRoute scales cached impact by the trade's depth share and
// guesses route complexity from size.
func EstimateJupiterRoute(inputMint, outputMint string, amountUSD, cachedDepth, cachedImpactBPS float64) JupiterRouteEstimate {
	estimatedImpact := 10.0
	if cachedDepth > 0 {
		denom := cachedDepth
		if denom < 1.0 {
			denom = 1.0
		}
		estimatedImpact = cachedImpactBPS * (amountUSD / denom)
	}

	hops := 1
	switch {
	case amountUSD > 10000:
		hops = 3
	case amountUSD > 1000:
		hops = 2
	}

	risk := "low"
	switch {
	case estimatedImpact > 100:
		risk = "high"
	case estimatedImpact > 30:
		risk = "medium"
	}

	return JupiterRouteEstimate{
		InputMint:          inputMint,
		OutputMint:         outputMint,
		AmountUSD:          amountUSD,
		EstimatedImpactBPS: round2(estimatedImpact),
		EstimatedHops:      hops,
		RiskLevel:          risk,
		DepthAvailable:     cachedDepth,
		TS:                 model.NowUTC(),
	}
}
