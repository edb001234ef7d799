// Package model defines the shared value types that flow between ingestors,
// the snapshot store, analytics, and the execution path.
package model

import "time"

// PriceTick is a normalized price observation from one venue.
// Immutable once produced.
type PriceTick struct {
	Symbol     string    `json:"symbol"`
	Venue      string    `json:"venue"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"` // [0,1]; 1 = fully trusted feed
	TS         time.Time `json:"ts"`
}

// FundingTick is a per-period funding rate observation. Venues modeled here
// pay funding every 8 hours, so annualization uses 3*365 periods.
type FundingTick struct {
	Venue       string    `json:"venue"`
	Market      string    `json:"market"`
	FundingRate float64   `json:"funding_rate"`
	TS          time.Time `json:"ts"`
}

// PriceLevel is one (price, qty) rung of an orderbook side.
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderbookSnap is a point-in-time orderbook: bids descending, asks ascending.
type OrderbookSnap struct {
	Venue  string       `json:"venue"`
	Market string       `json:"market"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	TS     time.Time    `json:"ts"`
}

// IndexTick carries the tariff index and its derived shock reading.
type IndexTick struct {
	TariffIndex  float64            `json:"tariff_index"` // normalized to [0,100]
	ShockScore   float64            `json:"shock_score"`
	RateOfChange float64            `json:"rate_of_change"`
	Components   map[string]float64 `json:"components,omitempty"`
	TS           time.Time          `json:"ts"`
}
