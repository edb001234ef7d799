package desk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

type recordBus struct {
	events []model.Event
}

func (b *recordBus) Emit(t model.EventType, source string, payload map[string]interface{}) string {
	id := fmt.Sprintf("ev-%d", len(b.events))
	b.events = append(b.events, model.Event{ID: id, EventType: t, Source: source, Payload: payload})
	return id
}

func (b *recordBus) ofType(t model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range b.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

func newLoop() (*Loop, store.Store, *recordBus) {
	st := store.NewMemory()
	bus := &recordBus{}
	return NewLoop(st, bus, []string{"CHN"}, []string{"total"}, "paper", false, zerolog.Nop()), st, bus
}

func seedPrice(t *testing.T, st store.Store, venue, symbol string, price float64) {
	t.Helper()
	require.NoError(t, st.Set(store.PriceKey(venue, store.SymbolKey(symbol)), map[string]interface{}{
		"symbol": symbol,
		"venue":  venue,
		"price":  price,
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
	}, 0))
}

func seedTariff(t *testing.T, st store.Store, rows []interface{}) {
	t.Helper()
	require.NoError(t, st.Set(store.TariffKey("840", "CHN", "TOTAL"), map[string]interface{}{
		"reporter": "840",
		"partner":  "CHN",
		"product":  "TOTAL",
		"records":  rows,
	}, 0))
}

func tariffRow(partner, product string, rate, tradeValue float64) map[string]interface{} {
	return map[string]interface{}{
		"partner":     partner,
		"product":     product,
		"tariff_rate": rate,
		"trade_value": tradeValue,
	}
}

func TestTickWritesIndexSnapshot(t *testing.T) {
	l, st, bus := newLoop()

	seedTariff(t, st, []interface{}{
		tariffRow("CHN", "TOTAL", 20.0, 300),
		tariffRow("CHN", "Capital", 10.0, 100),
	})
	require.NoError(t, st.Set(gdeltKey, map[string]interface{}{
		"article_count": 12.0,
		"shock_score":   2.5,
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
	}, 0))

	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyIndexLatest)
	require.True(t, ok)
	// (20*300 + 10*100) / 400
	assert.InDelta(t, 17.5, snap["tariff_index"], 1e-9)
	assert.InDelta(t, 2.5, snap["shock_score"], 1e-9)
	assert.Equal(t, 0.0, snap["rate_of_change"])

	updates := bus.ofType(model.EventIndexUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "compute_loop", updates[0].Source)
}

func TestTickIndexRateOfChange(t *testing.T) {
	l, st, _ := newLoop()

	seedTariff(t, st, []interface{}{tariffRow("CHN", "TOTAL", 17.5, 100)})
	require.NoError(t, l.Tick(context.Background()))

	seedTariff(t, st, []interface{}{tariffRow("CHN", "TOTAL", 21.0, 100)})
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyIndexLatest)
	require.True(t, ok)
	assert.InDelta(t, 20.0, snap["rate_of_change"], 1e-9)
}

func TestTickRegimeSnapshotAndFundingFlip(t *testing.T) {
	l, st, bus := newLoop()

	require.NoError(t, st.Set(store.FundingKey("drift"), map[string]interface{}{
		"venue":        "drift",
		"market":       "SOL-PERP",
		"funding_rate": 0.001,
	}, 0))
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyRegimeLatest)
	require.True(t, ok)
	assert.Equal(t, "normal", snap["vol_regime"])
	assert.Equal(t, "contango", snap["funding_regime"])
	assert.Empty(t, bus.ofType(model.EventFundingRegimeFlip))

	// A strong negative print drags the average into backwardation.
	require.NoError(t, st.Set(store.FundingKey("drift"), map[string]interface{}{
		"funding_rate": -0.01,
	}, 0))
	require.NoError(t, l.Tick(context.Background()))

	snap, _ = st.Get(store.KeyRegimeLatest)
	assert.Equal(t, "backwardation", snap["funding_regime"])
	assert.Equal(t, true, snap["funding_flipped"])
	assert.Len(t, bus.ofType(model.EventFundingRegimeFlip), 1)
}

func TestTickMicrostructureSnapshot(t *testing.T) {
	l, st, bus := newLoop()

	require.NoError(t, st.Set(orderbookKey, map[string]interface{}{
		"venue":  "hyperliquid",
		"market": "SOL",
		"bids": []interface{}{
			map[string]interface{}{"price": 149.9, "qty": 60.0},
			map[string]interface{}{"price": 149.8, "qty": 50.0},
		},
		"asks": []interface{}{
			map[string]interface{}{"price": 150.1, "qty": 40.0},
		},
	}, 0))
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyMicroLatest)
	require.True(t, ok)
	assert.InDelta(t, 110.0, snap["bid_depth"], 1e-9)
	assert.InDelta(t, 40.0, snap["ask_depth"], 1e-9)
	assert.InDelta(t, 150.0, snap["liquidity_depth"], 1e-9)
	// (110-40)/150 rounded to 4 places.
	assert.InDelta(t, 0.4667, snap["imbalance"], 1e-9)
	assert.Equal(t, "bullish", snap["bias"])
	// 0.2 wide around a 150 mid.
	assert.InDelta(t, 13.3333, snap["spread_bps"], 1e-3)
	assert.Equal(t, false, snap["liquidity_thin"])

	signals := bus.ofType(model.EventMicrostructureSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, "bullish", signals[0].Payload["bias"])
}

func TestTickIntegrityWarning(t *testing.T) {
	l, st, bus := newLoop()

	seedPrice(t, st, "pyth", "SOL/USD", 150.0)
	seedPrice(t, st, "kraken", "SOL/USD", 151.0)
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyPriceIntegrity)
	require.True(t, ok)
	assert.Equal(t, "WARNING", snap["integrity_status"])
	assert.Contains(t, snap["reason"], "Pyth vs Kraken")
	require.Len(t, bus.ofType(model.EventPriceDislocation), 1)
}

func TestTickIntegrityOK(t *testing.T) {
	l, st, _ := newLoop()

	seedPrice(t, st, "pyth", "SOL/USD", 150.0)
	seedPrice(t, st, "kraken", "SOL/USD", 150.1)
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyPriceIntegrity)
	require.True(t, ok)
	assert.Equal(t, "OK", snap["integrity_status"])
}

func TestTickCarrySnapshot(t *testing.T) {
	l, st, bus := newLoop()

	require.NoError(t, st.Set(store.FundingKey("drift"), map[string]interface{}{
		"market":       "SOL-PERP",
		"funding_rate": 0.0005,
	}, 0))
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyCarryLatest)
	require.True(t, ok)
	scores, ok := snap["scores"].([]interface{})
	require.True(t, ok)
	require.Len(t, scores, 1)
	first := scores[0].(map[string]interface{})
	assert.Equal(t, "SOL-PERP", first["market"])
	// 0.0005 * 365 * 3
	assert.InDelta(t, 0.5475, first["annualized_carry"], 1e-9)
	assert.Len(t, bus.ofType(model.EventCarryUpdate), 1)

	// Sign change flags a carry regime flip.
	require.NoError(t, st.Set(store.FundingKey("drift"), map[string]interface{}{
		"market":       "SOL-PERP",
		"funding_rate": -0.0005,
	}, 0))
	require.NoError(t, l.Tick(context.Background()))
	assert.Len(t, bus.ofType(model.EventCarryRegimeFlip), 1)
}

func TestTickStableHealthAlert(t *testing.T) {
	l, st, bus := newLoop()

	seedPrice(t, st, "coingecko", "USDC/USD", 0.994)
	seedPrice(t, st, "coingecko", "USDT/USD", 1.0001)
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyStableHealth)
	require.True(t, ok)
	usdc, ok := snap["USDC"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 60.0, usdc["depeg_bps"], 0.01)
	assert.Equal(t, "alert", usdc["status"])
	usdt, ok := snap["USDT"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", usdt["status"])

	alerts := bus.ofType(model.EventStableDepegAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "USDC", alerts[0].Payload["symbol"])
}

func TestTickDivergenceAlert(t *testing.T) {
	l, st, bus := newLoop()

	seedPrice(t, st, "hyperliquid", "SOL/USD", 151.0)
	seedPrice(t, st, "kraken", "SOL/USD", 150.0)
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(divergenceKey)
	require.True(t, ok)
	assert.Equal(t, true, snap["active"])
	assert.InDelta(t, 66.67, snap["basis_bps"], 0.01)
	require.Len(t, bus.ofType(model.EventDivergenceAlert), 1)
}

func TestTickRuleProposalsCarryDataContext(t *testing.T) {
	l, st, bus := newLoop()

	require.NoError(t, st.Set(gdeltKey, map[string]interface{}{
		"shock_score": 3.0,
	}, 0))
	seedPrice(t, st, "pyth", "SOL/USD", 150.0)
	require.NoError(t, l.Tick(context.Background()))

	// shock 3.0 trips the throttle rule and the stable rotation rule.
	proposals := bus.ofType(model.EventRuleActionProposed)
	require.Len(t, proposals, 2)
	assert.Equal(t, "rules_engine", proposals[0].Source)

	dc, ok := proposals[0].Payload["data_context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, dc["shock_score"])
	assert.Equal(t, "paper", dc["execution_mode"])
	assert.Equal(t, 150.0, dc["price"])
}

func TestTickEmptyStoreStillDerives(t *testing.T) {
	l, st, _ := newLoop()

	require.NoError(t, l.Tick(context.Background()))

	_, ok := st.Get(store.KeyIndexLatest)
	assert.True(t, ok)
	reg, ok := st.Get(store.KeyRegimeLatest)
	require.True(t, ok)
	assert.Equal(t, "normal", reg["vol_regime"])
	assert.Equal(t, "neutral", reg["funding_regime"])

	pred, ok := st.Get(store.PredictionKey("latest"))
	require.True(t, ok)
	up := pred["probability_up"].(float64)
	assert.Greater(t, up, 0.0)
	assert.Less(t, up, 1.0)
}

func TestTickMicrostructureSignalThrottled(t *testing.T) {
	l, st, bus := newLoop()

	require.NoError(t, st.Set(orderbookKey, map[string]interface{}{
		"bids": []interface{}{map[string]interface{}{"price": 149.9, "qty": 90.0}},
		"asks": []interface{}{map[string]interface{}{"price": 150.1, "qty": 20.0}},
	}, 0))
	require.NoError(t, l.Tick(context.Background()))
	require.NoError(t, l.Tick(context.Background()))

	// Cooldown suppresses the second signal.
	assert.Len(t, bus.ofType(model.EventMicrostructureSignal), 1)
}

func TestTickWeightsStaticWhenAdaptiveOff(t *testing.T) {
	l, st, bus := newLoop()
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyWeightsLatest)
	require.True(t, ok)
	assert.Equal(t, false, snap["adaptive_enabled"])

	weights, ok := snap["weights"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.25, weights["macro"])
	assert.Equal(t, 0.25, weights["carry"])
	assert.Empty(t, bus.ofType(model.EventAdaptiveWeights))
}

func TestTickAdaptiveWeightsTiltOnShock(t *testing.T) {
	st := store.NewMemory()
	bus := &recordBus{}
	l := NewLoop(st, bus, []string{"CHN"}, []string{"total"}, "paper", true, zerolog.Nop())

	require.NoError(t, st.Set(gdeltKey, map[string]interface{}{
		"shock_score": 80.0,
	}, 0))
	require.NoError(t, l.Tick(context.Background()))

	snap, ok := st.Get(store.KeyWeightsLatest)
	require.True(t, ok)
	assert.Equal(t, true, snap["adaptive_enabled"])

	// shock 80 bumps macro by 0.10 before renormalization: 0.35/1.10.
	weights, ok := snap["weights"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 0.3182, weights["macro"].(float64), 1e-3)
	assert.Len(t, bus.ofType(model.EventAdaptiveWeights), 1)
}
