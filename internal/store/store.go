// Package store provides the keyed snapshot store shared by ingestors,
// analytics, and the execution path. Values are stored as JSON objects under
// colon-delimited keys with optional TTLs; expiry is lazy on read.
package store

import (
	"strings"
	"time"
)

// Well-known snapshot keys. Keys are part of the contract between ingestors,
// analytics, and the router.
const (
	KeyIndexLatest    = "index:latest"
	KeyRegimeLatest   = "regime:latest"
	KeyMicroLatest    = "microstructure:latest"
	KeyPriceIntegrity = "price:integrity"
	KeyStableHealth   = "stablecoin:health"
	KeyCarryLatest    = "carry:latest"
	KeyWeightsLatest  = "weights:latest"
	KeyAgentSignals   = "agents:signals"
	KeySolanaRPC      = "solana:rpc_latency"
	KeyRiskThrottle   = "risk:throttle"

	idemPrefix     = "idem:"
	throttlePrefix = "alert:"
)

// PriceKey builds the snapshot key for a venue price: "price:<venue>:<symbol>".
func PriceKey(venue, symbol string) string {
	return "price:" + venue + ":" + symbol
}

// SymbolKey normalizes a symbol for price keys: uppercase with separators
// folded to underscores ("sol/usd" -> "SOL_USD"). Writers and readers must
// agree on this form.
func SymbolKey(symbol string) string {
	k := strings.ToUpper(symbol)
	k = strings.ReplaceAll(k, "/", "_")
	k = strings.ReplaceAll(k, "-", "_")
	return k
}

// FundingKey builds the snapshot key for venue funding: "funding:<venue>".
func FundingKey(venue string) string {
	return "funding:" + venue
}

// PredictionKey builds the snapshot key for a symbol prediction.
func PredictionKey(symbol string) string {
	return "prediction:" + symbol
}

// TariffKey builds the snapshot key for one reporter/partner/product tariff
// slice: "wits:tariff:<reporter>:<partner>:<product>".
func TariffKey(reporter, partner, product string) string {
	return "wits:tariff:" + reporter + ":" + partner + ":" + product
}

// Store is the snapshot store contract. Implementations must hand readers a
// value the writer can no longer mutate.
type Store interface {
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(key string, value map[string]interface{}, ttl time.Duration) error

	// Get returns the value for key, or ok=false when absent or expired.
	Get(key string) (map[string]interface{}, bool)

	// Delete removes key.
	Delete(key string) error

	// SetIfAbsent arms key for ttl iff it is not currently set. Returns true
	// exactly once per TTL window; used for order idempotency.
	SetIfAbsent(key string, ttl time.Duration) bool

	// CheckThrottle returns true and arms the named cooldown iff no alert of
	// this name fired within the window.
	CheckThrottle(name string, cooldown time.Duration) bool
}

// ThrottleState is the stored risk throttle snapshot under KeyRiskThrottle.
type ThrottleState struct {
	Active bool      `json:"active"`
	Reason string    `json:"reason"`
	TS     time.Time `json:"ts"`
}

// SetRiskThrottle writes (or clears) the throttle flag with a bounded
// lifetime, so a crashed controller can never leave the desk throttled
// forever.
func SetRiskThrottle(s Store, on bool, reason string, expiry time.Duration) error {
	if !on {
		return s.Delete(KeyRiskThrottle)
	}
	if expiry <= 0 {
		expiry = 300 * time.Second
	}
	return s.Set(KeyRiskThrottle, map[string]interface{}{
		"active": true,
		"reason": reason,
		"ts":     time.Now().UTC(),
	}, expiry)
}

// GetRiskThrottle reads the throttle flag; an absent or expired key means
// not throttled.
func GetRiskThrottle(s Store) ThrottleState {
	snap, ok := s.Get(KeyRiskThrottle)
	if !ok {
		return ThrottleState{}
	}
	st := ThrottleState{}
	if v, ok := snap["active"].(bool); ok {
		st.Active = v
	}
	if v, ok := snap["reason"].(string); ok {
		st.Reason = v
	}
	return st
}

// IdemKey namespaces an idempotency key.
func IdemKey(key string) string {
	return idemPrefix + key
}
