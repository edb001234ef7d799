// Package desk runs the compute pass: it reads raw ingest snapshots, drives
// the analytics bank, and persists the derived snapshots the router, rules
// and agents consume. Analyzers stay pure; all store and bus traffic happens
// here.
package desk

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/analytics"
	"riskdesk/internal/ingest"
	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
	"riskdesk/internal/rules"
	"riskdesk/internal/store"
)

const (
	priceHistorySize   = 288
	fundingHistorySize = 48

	derivedTTL = 10 * time.Minute
	microTTL   = 2 * time.Minute

	divergenceThresholdBPS = 30.0
	lowConfidenceThreshold = 0.1
	defaultRuleSize        = 0.1

	divergenceCooldown  = 5 * time.Minute
	thinBookCooldown    = 5 * time.Minute
	microSignalCooldown = 5 * time.Minute
	lowConfCooldown     = 10 * time.Minute

	gdeltKey      = "gdelt:latest"
	orderbookKey  = "orderbook:hyperliquid:SOL"
	divergenceKey = "divergence:latest"
)

// Emitter is the slice of the event bus the loop needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// Loop is the periodic compute pass. Tick satisfies the scheduler's job
// contract, so the loop runs alongside the ingest pollers.
type Loop struct {
	st   store.Store
	bus  Emitter
	log  zerolog.Logger
	now  func() time.Time
	mode string

	partners []string
	products []string

	index     *analytics.TariffIndexCalculator
	regimes   *analytics.RegimeClassifier
	micro     *analytics.MicrostructureAnalyzer
	validator *analytics.PriceValidator
	stables   *analytics.StablecoinHealthMonitor
	predictor *analytics.MacroPredictor
	yield     *analytics.StableYieldCalculator
	weighter  *analytics.AdaptiveWeighter
	rules     *rules.Engine

	priceHist   *ringbuf.Ring[float64]
	fundingHist *ringbuf.Ring[float64]

	prevCarry    float64
	hasPrevCarry bool
}

// NewLoop wires the analytics bank against the snapshot store. partners and
// products define the tariff slices to fold into the index; mode tags the
// data context on proposed rule actions; adaptive enables regime-driven
// signal weight tilts.
func NewLoop(st store.Store, bus Emitter, partners, products []string, mode string, adaptive bool, log zerolog.Logger) *Loop {
	return &Loop{
		st:   st,
		bus:  bus,
		log:  log,
		now:  model.NowUTC,
		mode: mode,

		partners: partners,
		products: products,

		index:     analytics.NewTariffIndexCalculator(),
		regimes:   analytics.NewRegimeClassifier(),
		micro:     analytics.NewMicrostructureAnalyzer(),
		validator: analytics.NewPriceValidator(0, st, bus),
		stables:   analytics.NewStablecoinHealthMonitor(),
		predictor: analytics.NewMacroPredictor(),
		yield:     analytics.NewStableYieldCalculator(),
		weighter:  analytics.NewAdaptiveWeighter(adaptive),
		rules:     rules.NewEngine(),

		priceHist:   ringbuf.New[float64](priceHistorySize),
		fundingHist: ringbuf.New[float64](fundingHistorySize),
	}
}

// tickState carries one pass's derived values between stages.
type tickState struct {
	index        analytics.TariffIndexResult
	shock        float64
	shockTS      time.Time
	volRegime    analytics.VolRegimeResult
	fundRegime   analytics.FundingRegimeResult
	imbalance    analytics.ImbalanceResult
	spreadBPS    float64
	integrity    analytics.IntegrityResult
	carryScore   float64
	stableHealth float64
	divergence   bool
	price        float64
	priceTS      time.Time
}

// Tick runs one full compute pass. Stage failures are logged and the pass
// continues; the first store-write error is returned for job accounting.
func (l *Loop) Tick(ctx context.Context) error {
	_ = ctx

	var firstErr error
	record := func(stage string, err error) {
		if err == nil {
			return
		}
		l.log.Warn().Err(err).Str("stage", stage).Msg("compute stage failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	st := &tickState{stableHealth: 1.0}

	l.readPrice(st)
	record("index", l.computeIndex(st))
	record("regime", l.computeRegimes(st))
	record("microstructure", l.computeMicrostructure(st))
	record("integrity", l.computeIntegrity(st))
	record("carry", l.computeCarry(st))
	record("stablecoin", l.computeStableHealth(st))
	record("divergence", l.computeDivergence(st))
	record("prediction", l.computePrediction(st))
	record("weights", l.computeWeights(st))
	l.evaluateRules(st)

	return firstErr
}

func (l *Loop) readPrice(st *tickState) {
	snap, ok := l.st.Get(store.PriceKey("pyth", "SOL_USD"))
	if !ok {
		return
	}
	st.price = floatField(snap, "price")
	st.priceTS = tsField(snap, l.now())
	if st.price > 0 {
		l.priceHist.Push(st.price)
	}
}

// computeIndex folds the stored tariff slices into the composite index,
// weighted by bilateral trade value, and joins the latest news shock score.
func (l *Loop) computeIndex(st *tickState) error {
	var obs []analytics.TariffObservation
	for _, partner := range l.partners {
		for _, product := range l.products {
			snap, ok := l.st.Get(store.TariffKey(ingest.WITSReporter, partner, strings.ToUpper(product)))
			if !ok {
				continue
			}
			rows, ok := snap["records"].([]interface{})
			if !ok {
				continue
			}
			for _, raw := range rows {
				row, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				weight := floatField(row, "trade_value")
				if weight <= 0 {
					weight = 1.0
				}
				obs = append(obs, analytics.TariffObservation{
					Country:       strField(row, "partner"),
					Product:       strField(row, "product"),
					Rate:          floatField(row, "tariff_rate"),
					CountryWeight: weight,
				})
			}
		}
	}
	st.index = l.index.Compute(obs)

	st.shockTS = st.index.TS
	if gdelt, ok := l.st.Get(gdeltKey); ok {
		st.shock = floatField(gdelt, "shock_score")
		st.shockTS = tsField(gdelt, st.index.TS)
	}

	components := make(map[string]interface{}, len(st.index.Components))
	for k, v := range st.index.Components {
		components[k] = v
	}
	err := l.st.Set(store.KeyIndexLatest, map[string]interface{}{
		"tariff_index":   st.index.Index,
		"raw":            st.index.Raw,
		"rate_of_change": st.index.RateOfChange,
		"shock_score":    st.shock,
		"components":     components,
		"ts":             st.index.TS.Format(time.RFC3339Nano),
	}, derivedTTL)
	if err != nil {
		return err
	}

	l.bus.Emit(model.EventIndexUpdate, "compute_loop", map[string]interface{}{
		"tariff_index":   st.index.Index,
		"rate_of_change": st.index.RateOfChange,
		"shock_score":    st.shock,
		"observations":   len(obs),
	})
	return nil
}

// computeRegimes classifies volatility from the rolling price history and
// funding from the drift funding feed.
func (l *Loop) computeRegimes(st *tickState) error {
	st.volRegime = l.regimes.ClassifyVol(returns(l.priceHist.Values()))

	if funding, ok := l.st.Get(store.FundingKey("drift")); ok {
		l.fundingHist.Push(floatField(funding, "funding_rate"))
	}
	st.fundRegime = l.regimes.ClassifyFunding(l.fundingHist.Values())

	if st.fundRegime.Flipped {
		l.bus.Emit(model.EventFundingRegimeFlip, "compute_loop", map[string]interface{}{
			"regime":      st.fundRegime.Regime,
			"avg_funding": st.fundRegime.AvgFunding,
		})
	}

	return l.st.Set(store.KeyRegimeLatest, map[string]interface{}{
		"vol_regime":      st.volRegime.Regime,
		"annualized_vol":  st.volRegime.AnnualizedVol,
		"funding_regime":  st.fundRegime.Regime,
		"avg_funding":     st.fundRegime.AvgFunding,
		"funding_flipped": st.fundRegime.Flipped,
		"ts":              l.now().Format(time.RFC3339Nano),
	}, derivedTTL)
}

// computeMicrostructure reads the Hyperliquid book snapshot and derives
// depth, imbalance and spread.
func (l *Loop) computeMicrostructure(st *tickState) error {
	book, ok := l.st.Get(orderbookKey)
	if !ok {
		return nil
	}
	bids := levels(book["bids"])
	asks := levels(book["asks"])

	st.imbalance = l.micro.ComputeImbalance(bids, asks, 10)
	if len(bids) > 0 && len(asks) > 0 {
		mid := (bids[0].Price + asks[0].Price) / 2
		if mid > 0 {
			st.spreadBPS = (asks[0].Price - bids[0].Price) / mid * 10000.0
		}
	}

	if st.imbalance.LiquidityThin && l.st.CheckThrottle("liquidity_thinning", thinBookCooldown) {
		l.bus.Emit(model.EventLiquidityThinning, "compute_loop", map[string]interface{}{
			"bid_depth": st.imbalance.BidVolume,
			"ask_depth": st.imbalance.AskVolume,
		})
	}
	if st.imbalance.Bias != analytics.BiasNeutral && l.st.CheckThrottle("microstructure_signal", microSignalCooldown) {
		l.bus.Emit(model.EventMicrostructureSignal, "compute_loop", map[string]interface{}{
			"bias":      st.imbalance.Bias,
			"imbalance": st.imbalance.Imbalance,
		})
	}

	return l.st.Set(store.KeyMicroLatest, map[string]interface{}{
		"imbalance":        st.imbalance.Imbalance,
		"bias":             st.imbalance.Bias,
		"bid_depth":        st.imbalance.BidVolume,
		"ask_depth":        st.imbalance.AskVolume,
		"liquidity_depth":  st.imbalance.BidVolume + st.imbalance.AskVolume,
		"liquidity_thin":   st.imbalance.LiquidityThin,
		"spread_bps":       st.spreadBPS,
		"trade_aggression": 0.0,
		"ts":               st.imbalance.TS.Format(time.RFC3339Nano),
	}, microTTL)
}

// computeIntegrity cross-checks the three spot feeds and persists the
// verdict the router's live gate reads.
func (l *Loop) computeIntegrity(st *tickState) error {
	prices := make(map[string]float64)
	for _, venue := range []string{"pyth", "kraken", "coingecko"} {
		if snap, ok := l.st.Get(store.PriceKey(venue, "SOL_USD")); ok {
			prices[venue] = floatField(snap, "price")
		}
	}
	st.integrity = l.validator.Validate(prices)

	deviations := make(map[string]interface{}, len(st.integrity.Deviations))
	for k, v := range st.integrity.Deviations {
		deviations[k] = v
	}
	return l.st.Set(store.KeyPriceIntegrity, map[string]interface{}{
		"integrity_status": st.integrity.Status,
		"reason":           st.integrity.Reason,
		"deviations":       deviations,
		"ts":               st.integrity.TS.Format(time.RFC3339Nano),
	}, derivedTTL)
}

// computeCarry annualizes the drift funding rate into a carry score and
// flags regime flips against the previous pass.
func (l *Loop) computeCarry(st *tickState) error {
	funding, ok := l.st.Get(store.FundingKey("drift"))
	if !ok {
		return nil
	}
	rate := floatField(funding, "funding_rate")
	st.carryScore = analytics.ComputeCarryScore(rate)

	if l.hasPrevCarry && l.yield.DetectCarryRegimeFlip(st.carryScore, l.prevCarry) {
		l.bus.Emit(model.EventCarryRegimeFlip, "compute_loop", map[string]interface{}{
			"previous": l.prevCarry,
			"current":  st.carryScore,
		})
	}
	l.prevCarry = st.carryScore
	l.hasPrevCarry = true

	err := l.st.Set(store.KeyCarryLatest, map[string]interface{}{
		"scores": []interface{}{
			map[string]interface{}{
				"market":           strField(funding, "market"),
				"funding_rate":     rate,
				"annualized_carry": st.carryScore,
			},
		},
		"ts": l.now().Format(time.RFC3339Nano),
	}, derivedTTL)
	if err != nil {
		return err
	}

	l.bus.Emit(model.EventCarryUpdate, "compute_loop", map[string]interface{}{
		"market":           strField(funding, "market"),
		"funding_rate":     rate,
		"annualized_carry": st.carryScore,
	})
	return nil
}

// computeStableHealth checks monitored stablecoin pegs against the CoinGecko
// feed and persists per-symbol entries.
func (l *Loop) computeStableHealth(st *tickState) error {
	prices := make(map[string]float64)
	for _, sym := range analytics.StableSymbols {
		if snap, ok := l.st.Get(store.PriceKey("coingecko", sym+"_USD")); ok {
			if p := floatField(snap, "price"); p > 0 {
				prices[sym] = p
			}
		}
	}
	if len(prices) == 0 {
		return nil
	}

	health := l.stables.ComputeHealth(prices, 1.0)

	var worstDepeg float64
	snapshot := make(map[string]interface{}, len(health)+1)
	for sym, entry := range health {
		worstDepeg = math.Max(worstDepeg, entry.DepegBPS)
		snapshot[sym] = map[string]interface{}{
			"price":     entry.Price,
			"peg":       entry.Peg,
			"depeg_bps": entry.DepegBPS,
			"status":    entry.Status,
			"ts":        entry.TS.Format(time.RFC3339Nano),
		}
	}
	snapshot["ts"] = l.now().Format(time.RFC3339Nano)
	st.stableHealth = math.Max(0, 1.0-worstDepeg/100.0)

	for _, alert := range l.stables.Alerts(health) {
		if !l.st.CheckThrottle("stable_depeg:"+alert.Symbol, divergenceCooldown) {
			continue
		}
		l.bus.Emit(alert.Type, "compute_loop", map[string]interface{}{
			"symbol":    alert.Symbol,
			"depeg_bps": alert.DepegBPS,
			"price":     alert.Price,
		})
	}

	return l.st.Set(store.KeyStableHealth, snapshot, derivedTTL)
}

// computeDivergence compares the Hyperliquid perp mid against Kraken spot.
// A basis past the threshold arms the divergence rule.
func (l *Loop) computeDivergence(st *tickState) error {
	perpSnap, ok := l.st.Get(store.PriceKey("hyperliquid", "SOL_USD"))
	if !ok {
		return nil
	}
	spotSnap, ok := l.st.Get(store.PriceKey("kraken", "SOL_USD"))
	if !ok {
		return nil
	}
	perp := floatField(perpSnap, "price")
	spot := floatField(spotSnap, "price")
	if perp <= 0 || spot <= 0 {
		return nil
	}

	basisBPS := (perp - spot) / spot * 10000.0
	st.divergence = math.Abs(basisBPS) > divergenceThresholdBPS

	if st.divergence && l.st.CheckThrottle("divergence_alert", divergenceCooldown) {
		l.bus.Emit(model.EventDivergenceAlert, "compute_loop", map[string]interface{}{
			"basis_bps":  basisBPS,
			"perp_price": perp,
			"spot_price": spot,
			"threshold":  divergenceThresholdBPS,
		})
	}

	return l.st.Set(divergenceKey, map[string]interface{}{
		"basis_bps":  basisBPS,
		"active":     st.divergence,
		"perp_price": perp,
		"spot_price": spot,
		"ts":         l.now().Format(time.RFC3339Nano),
	}, microTTL)
}

// computePrediction runs the macro direction model over this pass's derived
// values.
func (l *Loop) computePrediction(st *tickState) error {
	pred := l.predictor.Predict(analytics.PredictorFeatures{
		TariffMomentum:      st.index.RateOfChange,
		ShockScore:          st.shock,
		FundingRegimeScore:  analytics.EncodeFundingRegime(st.fundRegime.Regime),
		VolRegimeScore:      analytics.EncodeVolRegime(st.volRegime.Regime),
		CrossVenueSpreadBPS: maxDeviation(st.integrity.Deviations),
		StablecoinHealth:    st.stableHealth,
		OrderbookImbalance:  st.imbalance.Imbalance,
	})

	contributions := make(map[string]interface{}, len(pred.Contributions))
	for k, v := range pred.Contributions {
		contributions[k] = v
	}
	err := l.st.Set(store.PredictionKey("latest"), map[string]interface{}{
		"probability_up":   pred.ProbUpNext4H,
		"probability_down": pred.ProbDownNext4H,
		"confidence":       pred.Confidence,
		"raw_score":        pred.RawScore,
		"contributions":    contributions,
		"ts":               pred.TS.Format(time.RFC3339Nano),
	}, derivedTTL)
	if err != nil {
		return err
	}

	l.bus.Emit(model.EventPredictionUpdate, "compute_loop", map[string]interface{}{
		"probability_up": pred.ProbUpNext4H,
		"confidence":     pred.Confidence,
	})
	if pred.Confidence < lowConfidenceThreshold && l.st.CheckThrottle("prediction_low_conf", lowConfCooldown) {
		l.bus.Emit(model.EventPredictionConfLow, "compute_loop", map[string]interface{}{
			"confidence": pred.Confidence,
			"threshold":  lowConfidenceThreshold,
		})
	}
	return nil
}

// computeWeights tilts the signal-family weights toward the regime this
// pass observed. With adaptive mode off the static split is written.
func (l *Loop) computeWeights(st *tickState) error {
	res := l.weighter.Compute(analytics.WeightInputs{
		ShockScore:  st.shock,
		FundingSkew: st.fundRegime.AvgFunding,
		VolRegime:   st.volRegime.Regime,
		TariffIndex: st.index.Index,
	})

	weights := make(map[string]interface{}, len(res.Weights))
	for k, v := range res.Weights {
		weights[k] = v
	}
	adjustments := make([]interface{}, 0, len(res.Adjustments))
	for _, a := range res.Adjustments {
		adjustments = append(adjustments, a)
	}

	if res.AdaptiveEnabled && len(res.Adjustments) > 0 {
		l.bus.Emit(model.EventAdaptiveWeights, "compute_loop", map[string]interface{}{
			"weights":     weights,
			"adjustments": adjustments,
		})
	}

	return l.st.Set(store.KeyWeightsLatest, map[string]interface{}{
		"weights":          weights,
		"adaptive_enabled": res.AdaptiveEnabled,
		"adjustments":      adjustments,
		"ts":               res.TS.Format(time.RFC3339Nano),
	}, derivedTTL)
}

// evaluateRules runs the desk rule set against this pass and proposes the
// triggered actions on the bus, tagged with a replayable data context.
func (l *Loop) evaluateRules(st *tickState) {
	ctx := rules.Context{
		TariffRateOfChange:    st.index.RateOfChange,
		ShockScore:            st.shock,
		VolRegime:             st.volRegime.Regime,
		CarryScore:            st.carryScore,
		DivergenceAlertActive: st.divergence,
		FundingRegimeFlipped:  st.fundRegime.Flipped,
		Venue:                 "hyperliquid",
		Market:                "SOL-PERP",
		SuggestedSize:         defaultRuleSize,
	}

	dc := model.DataContext{
		ExecutionMode:      l.mode,
		TariffTS:           st.index.TS,
		ShockTS:            st.shockTS,
		PriceTS:            st.priceTS,
		PriceSource:        "pyth",
		IntegrityStatus:    st.integrity.Status,
		DataQuality:        "OK",
		Price:              st.price,
		TariffRateOfChange: st.index.RateOfChange,
		ShockScore:         st.shock,
		VolRegime:          st.volRegime.Regime,
		FundingRegime:      st.fundRegime.Regime,
		CarryScore:         st.carryScore,
	}
	if st.integrity.Status != analytics.IntegrityOK {
		dc.DataQuality = "DEGRADED"
	}

	for _, action := range l.rules.Evaluate(ctx) {
		l.bus.Emit(model.EventRuleActionProposed, "rules_engine", map[string]interface{}{
			"rule_name":    action.RuleName,
			"action":       action.ActionType,
			"venue":        action.Venue,
			"market":       action.Market,
			"side":         action.Side,
			"size":         action.Size,
			"reason":       action.Reason,
			"data_context": dc.Payload(),
		})
		l.log.Info().
			Str("rule", action.RuleName).
			Str("action", action.ActionType).
			Msg("rule action proposed")
	}
}

// returns converts a price series into simple period returns.
func returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		out = append(out, prices[i]/prices[i-1]-1)
	}
	return out
}

// levels decodes a stored orderbook side back into price levels.
func levels(raw interface{}) []model.PriceLevel {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]model.PriceLevel, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, model.PriceLevel{
			Price: floatField(m, "price"),
			Qty:   floatField(m, "qty"),
		})
	}
	return out
}

func maxDeviation(devs map[string]float64) float64 {
	var max float64
	for _, d := range devs {
		max = math.Max(max, d)
	}
	return max
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func strField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func tsField(m map[string]interface{}, fallback time.Time) time.Time {
	if s, ok := m["ts"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return fallback
}
