package analytics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

// Integrity statuses.
const (
	IntegrityOK      = "OK"
	IntegrityWarning = "WARNING"
)

const dislocationAlertCooldown = 60 * time.Second

// Emitter is the slice of the bus the validator needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// IntegrityResult is one cross-venue price integrity check.
type IntegrityResult struct {
	Status      string             `json:"integrity_status"`
	Reason      string             `json:"reason"`
	Deviations  map[string]float64 `json:"deviation_bps"`
	Prices      map[string]float64 `json:"prices"`
	LastAlertTS time.Time          `json:"last_alert_ts,omitempty"`
	TS          time.Time          `json:"ts"`
}

// PriceValidator compares venue prices pairwise and flags dislocations.
// Pyth is the reference feed; the Kraken/CoinGecko pair is only checked when
// Pyth is absent. Alerts are throttled through the store.
type PriceValidator struct {
	thresholdBPS float64
	store        store.Store
	bus          Emitter

	mu          sync.Mutex
	status      string
	reason      string
	deviations  map[string]float64
	lastAlertTS time.Time
}

func NewPriceValidator(thresholdBPS float64, st store.Store, bus Emitter) *PriceValidator {
	if thresholdBPS <= 0 {
		thresholdBPS = 50.0
	}
	return &PriceValidator{
		thresholdBPS: thresholdBPS,
		store:        st,
		bus:          bus,
		status:       IntegrityOK,
	}
}

// Validate checks the venue prices keyed by venue name (pyth, kraken,
// coingecko). A deviation past the threshold marks integrity WARNING and
// emits a throttled dislocation alert.
func (v *PriceValidator) Validate(prices map[string]float64) IntegrityResult {
	pyth := prices["pyth"]
	kraken := prices["kraken"]
	coingecko := prices["coingecko"]

	deviations := make(map[string]float64)
	var warnings []string

	check := func(key string, a, b float64, label string) {
		dev := math.Abs(a-b) / b * 10000.0
		deviations[key] = round2(dev)
		if dev > v.thresholdBPS {
			warnings = append(warnings, fmt.Sprintf("%s deviation %.0fbps", label, dev))
		}
	}

	if pyth > 0 && kraken > 0 {
		check("pyth_vs_kraken", pyth, kraken, "Pyth vs Kraken")
	}
	if pyth > 0 && coingecko > 0 {
		check("pyth_vs_coingecko", pyth, coingecko, "Pyth vs CoinGecko")
	}
	if kraken > 0 && coingecko > 0 && pyth == 0 {
		check("kraken_vs_coingecko", kraken, coingecko, "Kraken vs CoinGecko")
	}

	status := IntegrityOK
	if len(warnings) > 0 {
		status = IntegrityWarning
	}
	reason := strings.Join(warnings, "; ")

	now := model.NowUTC()

	v.mu.Lock()
	v.status = status
	v.reason = reason
	v.deviations = deviations
	if len(warnings) > 0 {
		v.emitThrottledLocked(reason, deviations, now)
	}
	lastAlert := v.lastAlertTS
	v.mu.Unlock()

	cleanPrices := make(map[string]float64)
	for venue, p := range prices {
		if p > 0 {
			cleanPrices[venue] = round4(p)
		}
	}

	return IntegrityResult{
		Status:      status,
		Reason:      reason,
		Deviations:  deviations,
		Prices:      cleanPrices,
		LastAlertTS: lastAlert,
		TS:          now,
	}
}

func (v *PriceValidator) emitThrottledLocked(reason string, deviations map[string]float64, now time.Time) {
	if v.store != nil && !v.store.CheckThrottle("price_dislocation_alert", dislocationAlertCooldown) {
		return
	}
	v.lastAlertTS = now
	if v.bus == nil {
		return
	}
	devPayload := make(map[string]interface{}, len(deviations))
	for k, d := range deviations {
		devPayload[k] = d
	}
	v.bus.Emit(model.EventPriceDislocation, "price_validator", map[string]interface{}{
		"message":       reason,
		"deviations":    devPayload,
		"threshold_bps": v.thresholdBPS,
	})
}

// Status returns the latest integrity status.
func (v *PriceValidator) Status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// IsSafe reports whether the last validation passed.
func (v *PriceValidator) IsSafe() bool {
	return v.Status() == IntegrityOK
}
