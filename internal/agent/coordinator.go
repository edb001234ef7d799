package agent

import (
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

const signalsTTL = 30 * time.Second

// Emitter is the slice of the event bus the coordinator needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// Coordinator assembles the shared agent state from the snapshot store, runs
// every agent with per-agent isolation, caches the combined signal set under
// agents:signals, and emits each signal on the bus.
type Coordinator struct {
	agents []Agent
	store  store.Store
	bus    Emitter
	log    zerolog.Logger
	now    func() time.Time
}

func NewCoordinator(st store.Store, bus Emitter, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		agents: []Agent{
			NewRiskAgent(),
			NewMacroAgent(),
			NewExecutionAgent(),
			NewLiquidityAgent(),
			NewHyperliquidAgent(),
			NewJupiterAgent(),
			NewHedgingAgent(),
		},
		store: st,
		bus:   bus,
		log:   log,
		now:   model.NowUTC,
	}
}

// Agents returns the registered agents in evaluation order.
func (c *Coordinator) Agents() []Agent { return c.agents }

// Evaluate runs every agent against the current snapshot state. One failing
// agent never suppresses the others.
func (c *Coordinator) Evaluate() []Signal {
	st := c.BuildState()

	var signals []Signal
	for _, a := range c.agents {
		signals = append(signals, c.evaluateOne(a, st)...)
	}

	payloads := make([]interface{}, 0, len(signals))
	for _, s := range signals {
		payloads = append(payloads, s)
	}
	if err := c.store.Set(store.KeyAgentSignals, map[string]interface{}{
		"signals": payloads,
		"ts":      c.now(),
	}, signalsTTL); err != nil {
		c.log.Warn().Err(err).Msg("agent signals cache write failed")
	}

	if c.bus != nil {
		for _, s := range signals {
			c.bus.Emit(model.EventAgentSignal, s.Agent, signalPayload(s))
		}
	}
	return signals
}

func (c *Coordinator) evaluateOne(a Agent, st State) (out []Signal) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("agent", a.Name()).Msg("agent evaluation panicked")
			out = nil
		}
	}()
	return a.Evaluate(st)
}

// BuildState reads every snapshot the agents consume. Missing snapshots
// leave their defaults in place.
func (c *Coordinator) BuildState() State {
	now := c.now()
	st := State{
		DataTS:         now,
		VolRegime:      "normal",
		FundingRegime:  "neutral",
		PriceIntegrity: "OK",
		PredictorProb:  0.5,
	}

	if idx, ok := c.store.Get(store.KeyIndexLatest); ok {
		st.TariffIndex = snapFloat(idx, "tariff_index")
		st.TariffMomentum = snapFloat(idx, "rate_of_change")
		st.ShockScore = snapFloat(idx, "shock_score")
		st.DataTS = snapTime(idx, "ts", now)
	}

	if regime, ok := c.store.Get(store.KeyRegimeLatest); ok {
		if v, ok := regime["vol_regime"].(string); ok && v != "" {
			st.VolRegime = v
		}
		if v, ok := regime["funding_regime"].(string); ok && v != "" {
			st.FundingRegime = v
		}
	}

	if risk, ok := c.store.Get("risk:status"); ok {
		st.MarginUsage = snapFloat(risk, "margin_usage")
	}

	if stable, ok := c.store.Get(store.KeyStableHealth); ok {
		depegs := make(map[string]float64)
		for sym, raw := range stable {
			info, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if _, has := info["depeg_bps"]; has {
				depegs[sym] = snapFloat(info, "depeg_bps")
			}
		}
		if len(depegs) > 0 {
			st.StableDepegBPS = depegs
		}
	}

	if micro, ok := c.store.Get(store.KeyMicroLatest); ok {
		st.OrderbookImbalance = snapFloat(micro, "imbalance")
		st.SpreadBPS = snapFloat(micro, "spread_bps")
		st.TradeAggression = snapFloat(micro, "trade_aggression")
		st.BidDepth = snapFloat(micro, "bid_depth")
		st.AskDepth = snapFloat(micro, "ask_depth")
	}

	if integ, ok := c.store.Get(store.KeyPriceIntegrity); ok {
		if v, ok := integ["integrity_status"].(string); ok && v != "" {
			st.PriceIntegrity = v
		}
	}

	if price, ok := c.store.Get(store.PriceKey("pyth", "SOL_USD")); ok {
		st.CurrentPrice = snapFloat(price, "price")
	}

	if pred, ok := c.store.Get(store.PredictionKey("latest")); ok {
		st.PredictorProb = snapFloat(pred, "probability_up")
	}

	if rpc, ok := c.store.Get(store.KeySolanaRPC); ok {
		st.RPCLatencyMS = snapFloat(rpc, "latency_ms")
		st.SlotDelta = int(snapFloat(rpc, "slot_delta"))
	}

	if carry, ok := c.store.Get(store.KeyCarryLatest); ok {
		if scores, ok := carry["scores"].([]interface{}); ok && len(scores) > 0 {
			if first, ok := scores[0].(map[string]interface{}); ok {
				st.CarryScore = snapFloat(first, "annualized_carry")
			}
		}
	}

	return st
}

func signalPayload(s Signal) map[string]interface{} {
	payload := map[string]interface{}{
		"type":         s.Type,
		"agent":        s.Agent,
		"signal":       s.Signal,
		"reason":       s.Reason,
		"severity":     s.Severity,
		"confidence":   s.Confidence,
		"data_ts_used": s.DataTSUsed,
	}
	if s.Direction != "" {
		payload["direction"] = s.Direction
	}
	if s.ProposedAction != "" {
		payload["proposed_action"] = s.ProposedAction
	}
	if s.WeightAdjustment != nil {
		payload["weight_adjustment"] = s.WeightAdjustment
	}
	if s.HedgeDetail != nil {
		payload["hedge_detail"] = s.HedgeDetail
	}
	return payload
}

func snapFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func snapTime(m map[string]interface{}, key string, fallback time.Time) time.Time {
	raw, ok := m[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts
		}
	case time.Time:
		return v
	}
	return fallback
}
