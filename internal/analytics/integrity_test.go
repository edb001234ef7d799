package analytics

import (
	"testing"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

type captureEmitter struct {
	events   []model.EventType
	payloads []map[string]interface{}
}

func (c *captureEmitter) Emit(t model.EventType, source string, payload map[string]interface{}) string {
	c.events = append(c.events, t)
	c.payloads = append(c.payloads, payload)
	return "evt"
}

func TestValidator_AlignedFeedsAreOK(t *testing.T) {
	v := NewPriceValidator(50, store.NewMemory(), &captureEmitter{})
	res := v.Validate(map[string]float64{"pyth": 150.0, "kraken": 150.05, "coingecko": 149.9})

	if res.Status != IntegrityOK {
		t.Fatalf("status = %s (%s), want OK", res.Status, res.Reason)
	}
	if !v.IsSafe() {
		t.Error("IsSafe should track the latest OK result")
	}
	if len(res.Deviations) != 2 {
		t.Errorf("deviations = %v, want pyth_vs_kraken and pyth_vs_coingecko only", res.Deviations)
	}
	if _, ok := res.Deviations["kraken_vs_coingecko"]; ok {
		t.Error("kraken/coingecko pair must be skipped while pyth is live")
	}
}

func TestValidator_DislocationWarnsAndEmits(t *testing.T) {
	emitter := &captureEmitter{}
	v := NewPriceValidator(50, store.NewMemory(), emitter)

	// 150 vs 152 is ~132bps off the reference.
	res := v.Validate(map[string]float64{"pyth": 152.0, "kraken": 150.0})

	if res.Status != IntegrityWarning {
		t.Fatalf("status = %s, want WARNING", res.Status)
	}
	if res.Reason == "" {
		t.Error("warning must carry a reason")
	}
	if v.IsSafe() {
		t.Error("IsSafe must be false after a dislocation")
	}
	if len(emitter.events) != 1 || emitter.events[0] != model.EventPriceDislocation {
		t.Fatalf("emitted = %v, want one PRICE_DISLOCATION", emitter.events)
	}
	if emitter.payloads[0]["threshold_bps"] != 50.0 {
		t.Errorf("payload threshold = %v", emitter.payloads[0]["threshold_bps"])
	}
}

func TestValidator_AlertThrottled(t *testing.T) {
	emitter := &captureEmitter{}
	v := NewPriceValidator(50, store.NewMemory(), emitter)

	prices := map[string]float64{"pyth": 152.0, "kraken": 150.0}
	v.Validate(prices)
	v.Validate(prices)
	v.Validate(prices)

	if len(emitter.events) != 1 {
		t.Errorf("emits = %d, want 1 within the cooldown window", len(emitter.events))
	}
	// Status still reports WARNING even when the alert is suppressed.
	if v.Status() != IntegrityWarning {
		t.Errorf("status = %s, want WARNING", v.Status())
	}
}

func TestValidator_FallbackPairWithoutPyth(t *testing.T) {
	v := NewPriceValidator(50, store.NewMemory(), &captureEmitter{})
	res := v.Validate(map[string]float64{"kraken": 152.0, "coingecko": 150.0})

	if _, ok := res.Deviations["kraken_vs_coingecko"]; !ok {
		t.Fatal("without pyth the kraken/coingecko pair must be checked")
	}
	if res.Status != IntegrityWarning {
		t.Errorf("status = %s, want WARNING at ~133bps", res.Status)
	}
}

func TestValidator_SingleFeedIsOK(t *testing.T) {
	v := NewPriceValidator(50, store.NewMemory(), &captureEmitter{})
	res := v.Validate(map[string]float64{"pyth": 150.0})
	if res.Status != IntegrityOK || len(res.Deviations) != 0 {
		t.Errorf("single feed = %+v, want clean OK", res)
	}
}
