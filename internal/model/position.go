package model

import "math"

// Position represents a tracked position at one venue/market.
// Size is signed: positive = long, negative = short. A zero-size position is
// never stored; absence from the book means flat.
type Position struct {
	Venue      string   `json:"venue"`
	Market     string   `json:"market"`
	Size       float64  `json:"size"`
	EntryPrice float64  `json:"entry_price"`
	PnL        float64  `json:"pnl"`
	Margin     float64  `json:"margin"`
	LiqPrice   *float64 `json:"liq_price,omitempty"`
}

// Key returns the unique book key for this position: "venue:market".
func (p *Position) Key() string {
	return p.Venue + ":" + p.Market
}

// Notional returns |size| * entry_price.
func (p *Position) Notional() float64 {
	return math.Abs(p.Size * p.EntryPrice)
}

// Side returns "long", "short", or "flat".
func (p *Position) Side() string {
	switch {
	case p.Size > 0:
		return "long"
	case p.Size < 0:
		return "short"
	default:
		return "flat"
	}
}
