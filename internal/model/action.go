package model

import "time"

// Side of an order.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// TradeAction is a trade proposal produced by the rules engine or an agent.
type TradeAction struct {
	RuleName   string    `json:"rule_name,omitempty"`
	ActionType string    `json:"action_type"`
	Venue      string    `json:"venue"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	Reason     string    `json:"reason"`
	TS         time.Time `json:"ts"`
}

// OrderRequest is the router's input: a concrete order against one venue.
type OrderRequest struct {
	Venue  string  `json:"venue"`
	Market string  `json:"market"`
	Side   string  `json:"side"`
	Size   float64 `json:"size"`
	Price  float64 `json:"price"`  // 0 = no limit price supplied
	Margin float64 `json:"margin"` // 0 = derive from notional / max leverage
}

// Order statuses returned by the router. The router never errors out of band;
// every outcome is one of these.
const (
	StatusPaperFilled   = "paper_filled"
	StatusBlocked       = "blocked"
	StatusAgentBlocked  = "agent_blocked"
	StatusError         = "error"
	StatusPaperFallback = "paper_fallback"
	StatusLiveOK        = "live_ok"
	StatusCancelled     = "cancelled"
	StatusNotFound      = "not_found"
)

// OrderResult is the structured outcome of routing one order.
type OrderResult struct {
	OrderID       string      `json:"order_id,omitempty"`
	Status        string      `json:"status"`
	Reasons       []string    `json:"reasons,omitempty"`
	FillPrice     float64     `json:"fill_price,omitempty"`
	Venue         string      `json:"venue,omitempty"`
	Market        string      `json:"market,omitempty"`
	Side          string      `json:"side,omitempty"`
	Size          float64     `json:"size,omitempty"`
	ExecutionMode string      `json:"execution_mode,omitempty"`
	DataContext   DataContext `json:"data_context"`
	TS            time.Time   `json:"ts"`
}

// DataContext records the market data a routing decision was made against:
// provenance (sources, ages) plus the condition values themselves, so fills
// can be audited and decisions re-derived later from the event alone.
type DataContext struct {
	ExecutionMode   string    `json:"execution_mode"`
	TariffTS        time.Time `json:"tariff_ts"`
	ShockTS         time.Time `json:"shock_ts"`
	PriceTS         time.Time `json:"price_ts"`
	PriceSource     string    `json:"price_source"`
	DataAgeMS       int64     `json:"data_age_ms"`
	IntegrityStatus string    `json:"integrity_status"` // OK or WARNING
	DataQuality     string    `json:"data_quality"`     // OK or DEGRADED

	// Condition snapshot at decision time.
	Price              float64 `json:"price"`
	TariffRateOfChange float64 `json:"tariff_rate_of_change"`
	ShockScore         float64 `json:"shock_score"`
	VolRegime          string  `json:"vol_regime"`
	FundingRegime      string  `json:"funding_regime"`
	CarryScore         float64 `json:"carry_score"`
}

// Payload flattens the context into an event payload map.
func (c DataContext) Payload() map[string]interface{} {
	return map[string]interface{}{
		"execution_mode":        c.ExecutionMode,
		"tariff_ts":             c.TariffTS,
		"shock_ts":              c.ShockTS,
		"price_ts":              c.PriceTS,
		"price_source":          c.PriceSource,
		"data_age_ms":           c.DataAgeMS,
		"integrity_status":      c.IntegrityStatus,
		"data_quality":          c.DataQuality,
		"price":                 c.Price,
		"tariff_rate_of_change": c.TariffRateOfChange,
		"shock_score":           c.ShockScore,
		"vol_regime":            c.VolRegime,
		"funding_regime":        c.FundingRegime,
		"carry_score":           c.CarryScore,
	}
}
