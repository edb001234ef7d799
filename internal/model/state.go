package model

import "time"

// StableHealth is the per-symbol slice of stablecoin health consumed by
// agents and the hedging logic.
type StableHealth struct {
	Symbol       string  `json:"symbol"`
	DepegBPS     float64 `json:"depeg_bps"`
	Status       string  `json:"status"` // ok, warning, alert
	StressScore  float64 `json:"stress_score"`
	PegBreakProb float64 `json:"peg_break_prob"`
}

// MarketState is the snapshot-derived view handed to the rules engine and
// the agent layer. Every field an evaluator reads is enumerated here;
// Extra preserves payload fields this struct does not model. Zero values
// match the defaults evaluators assume for missing data.
type MarketState struct {
	DataTS time.Time `json:"data_ts"`

	// Macro / index
	TariffIndex        float64 `json:"tariff_index"`
	TariffMomentum     float64 `json:"tariff_momentum"`
	TariffRateOfChange float64 `json:"tariff_rate_of_change"`
	ShockScore         float64 `json:"shock_score"`

	// Regimes
	VolRegime            string `json:"vol_regime"`     // low, normal, high, extreme
	FundingRegime        string `json:"funding_regime"` // contango, neutral, backwardation, negative
	FundingRegimeFlipped bool   `json:"funding_regime_flipped"`

	// Signals
	DivergenceAlertActive bool    `json:"divergence_alert_active"`
	CarryScore            float64 `json:"carry_score"`
	PredictorProb         float64 `json:"predictor_prob"`

	// Prices / microstructure
	CurrentPrice       float64 `json:"current_price"`
	SpreadBPS          float64 `json:"spread_bps"`
	LiquidityDepth     float64 `json:"liquidity_depth"`
	OrderbookImbalance float64 `json:"orderbook_imbalance"`
	TradeAggression    float64 `json:"trade_aggression"` // optional; zero when no feed populates it
	BidDepth           float64 `json:"bid_depth"`
	AskDepth           float64 `json:"ask_depth"`
	OBDepth            float64 `json:"ob_depth"`
	PriceIntegrity     string  `json:"price_integrity"` // OK or WARNING

	// Portfolio
	Positions   []Position `json:"positions,omitempty"`
	MarginUsage float64    `json:"margin_usage"`

	// Stablecoins
	StablecoinHealth map[string]StableHealth `json:"stablecoin_health,omitempty"`

	// Solana / Jupiter route context
	QuoteAgeSeconds float64 `json:"quote_age_seconds"`
	RouteHops       int     `json:"route_hops"`
	PriceImpactBPS  float64 `json:"price_impact_bps"`
	RPCLatencyMS    float64 `json:"rpc_latency_ms"`
	SlotDelta       int     `json:"slot_delta"`

	// Routing hints for proposals
	Venue         string  `json:"venue,omitempty"`
	Market        string  `json:"market,omitempty"`
	SuggestedSize float64 `json:"suggested_size,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}
