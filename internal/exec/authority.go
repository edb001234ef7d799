package exec

import (
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

// Venue priority for price resolution. Pyth is the reference feed.
var venuePriority = []string{"pyth", "kraken", "coingecko"}

const priceTTL = 120 * time.Second

// PriceReading is one resolved price with its provenance.
type PriceReading struct {
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	TS         time.Time `json:"ts"`
	Found      bool      `json:"found"`
}

// PriceAuthority resolves the best available price for a symbol from the
// snapshot store, walking venues in priority order.
type PriceAuthority struct {
	store store.Store
	now   func() time.Time
}

func NewPriceAuthority(st store.Store) *PriceAuthority {
	return &PriceAuthority{store: st, now: model.NowUTC}
}

// SymbolKey normalizes a symbol for the price cache ("sol/usd" -> "SOL_USD").
func SymbolKey(symbol string) string {
	return store.SymbolKey(symbol)
}

// GetPrice returns the first venue snapshot with a positive price, in
// priority order. Found=false means no venue had one.
func (a *PriceAuthority) GetPrice(symbol string) PriceReading {
	key := SymbolKey(symbol)
	for _, venue := range venuePriority {
		snap, ok := a.store.Get(store.PriceKey(venue, key))
		if !ok {
			continue
		}
		price := floatField(snap, "price")
		if price <= 0 {
			continue
		}
		confidence := 0.5
		if c, ok := snap["confidence"]; ok {
			confidence = toFloat(c)
		}
		return PriceReading{
			Price:      price,
			Confidence: confidence,
			Source:     venue,
			TS:         tsField(snap, a.now()),
			Found:      true,
		}
	}
	return PriceReading{Source: "none"}
}

// GetPriceWithin prefers the highest-priority venue whose reading is younger
// than maxAge; when no venue is fresh it falls back to the best stale
// reading so the caller can decide how to degrade.
func (a *PriceAuthority) GetPriceWithin(symbol string, maxAge time.Duration) PriceReading {
	now := a.now()
	var fallback PriceReading
	for _, r := range a.AllVenues(symbol) {
		if now.Sub(r.TS) <= maxAge {
			return r
		}
		if !fallback.Found {
			fallback = r
		}
	}
	if !fallback.Found {
		fallback.Source = "none"
	}
	return fallback
}

// SetPrice caches one venue price with a bounded lifetime, so a dead feed
// ages out instead of serving stale prices forever.
func (a *PriceAuthority) SetPrice(symbol, venue string, price, confidence float64) error {
	key := SymbolKey(symbol)
	return a.store.Set(store.PriceKey(venue, key), map[string]interface{}{
		"price":      price,
		"confidence": confidence,
		"symbol":     symbol,
		"venue":      venue,
		"ts":         a.now().Format(time.RFC3339Nano),
	}, priceTTL)
}

// AllVenues returns every venue's live reading for the symbol, in priority
// order.
func (a *PriceAuthority) AllVenues(symbol string) []PriceReading {
	key := SymbolKey(symbol)
	var out []PriceReading
	for _, venue := range venuePriority {
		snap, ok := a.store.Get(store.PriceKey(venue, key))
		if !ok {
			continue
		}
		price := floatField(snap, "price")
		if price <= 0 {
			continue
		}
		confidence := 0.5
		if c, ok := snap["confidence"]; ok {
			confidence = toFloat(c)
		}
		out = append(out, PriceReading{
			Price:      price,
			Confidence: confidence,
			Source:     venue,
			TS:         tsField(snap, a.now()),
			Found:      true,
		})
	}
	return out
}

func floatField(snap map[string]interface{}, key string) float64 {
	v, ok := snap[key]
	if !ok {
		return 0
	}
	return toFloat(v)
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

// tsField parses the snapshot timestamp; unparseable or absent timestamps
// fall back to now.
func tsField(snap map[string]interface{}, fallback time.Time) time.Time {
	raw, ok := snap["ts"]
	if !ok {
		return fallback
	}
	switch x := raw.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return ts
		}
	case float64:
		return time.Unix(int64(x), 0).UTC()
	case time.Time:
		return x
	}
	return fallback
}
