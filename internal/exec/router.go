package exec

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

// RouterConfig wires the router's gates.
type RouterConfig struct {
	Mode               string // paper or live
	RefSymbol          string // symbol resolved through the price authority
	FreshnessThreshold time.Duration
	IntegrityBlockLive bool
}

// Router is the execution gateway: every order passes the data freshness,
// integrity, risk, and (live) agent gates before reaching an executor.
type Router struct {
	cfg       RouterConfig
	bus       Emitter
	risk      RiskChecker
	agent     PreTradeChecker
	authority *PriceAuthority
	store     store.Store
	paper     *PaperExecutor
	live      map[string]Executor
	journal   *Journal
	log       zerolog.Logger
	now       func() time.Time

	// OnRoute is an optional metrics hook called after every routing
	// decision with the outcome status and decision latency.
	OnRoute func(status string, elapsed time.Duration)
}

// NewRouter builds the gateway. agent and journal may be nil; live executors
// are registered with RegisterLive.
func NewRouter(cfg RouterConfig, bus Emitter, risk RiskChecker, agent PreTradeChecker, st store.Store, paper *PaperExecutor, journal *Journal, log zerolog.Logger) *Router {
	if cfg.Mode != "live" {
		cfg.Mode = "paper"
	}
	if cfg.RefSymbol == "" {
		cfg.RefSymbol = "SOL/USD"
	}
	if cfg.FreshnessThreshold <= 0 {
		cfg.FreshnessThreshold = 60 * time.Second
	}
	return &Router{
		cfg:       cfg,
		bus:       bus,
		risk:      risk,
		agent:     agent,
		authority: NewPriceAuthority(st),
		store:     st,
		paper:     paper,
		live:      make(map[string]Executor),
		journal:   journal,
		log:       log,
		now:       model.NowUTC,
	}
}

// RegisterLive attaches a live venue executor.
func (r *Router) RegisterLive(venue string, ex Executor) {
	r.live[strings.ToLower(venue)] = ex
}

// RouteOrder runs the full decision procedure for one order. It never
// returns an out-of-band error; every outcome is an OrderResult status.
func (r *Router) RouteOrder(ctx context.Context, req model.OrderRequest) (res model.OrderResult) {
	start := time.Now()
	if r.OnRoute != nil {
		defer func() { r.OnRoute(res.Status, time.Since(start)) }()
	}

	now := r.now()
	reading := r.authority.GetPriceWithin(r.cfg.RefSymbol, r.cfg.FreshnessThreshold)
	dataCtx := r.buildDataContext(reading, now)

	// Gate 1: price presence and freshness.
	if !reading.Found {
		r.emitGate(model.EventTradeBlockedStale, req, dataCtx, "No price data")
		return r.blocked(req, dataCtx, now, "No price data")
	}
	age := now.Sub(reading.TS)
	if age > r.cfg.FreshnessThreshold {
		if r.cfg.Mode == "live" {
			reason := "Price data stale: " + age.Truncate(time.Second).String()
			r.emitGate(model.EventTradeBlockedStale, req, dataCtx, reason)
			return r.blocked(req, dataCtx, now, reason)
		}
		dataCtx.DataQuality = "DEGRADED"
		r.emitGate(model.EventTradeDegradedData, req, dataCtx, "Proceeding on stale price data (paper mode)")
	}

	// Gate 2: price integrity.
	if dataCtx.IntegrityStatus == "WARNING" {
		if r.cfg.Mode == "live" && r.cfg.IntegrityBlockLive {
			reason := "Price integrity WARNING"
			r.emitGate(model.EventTradeBlockedStale, req, dataCtx, reason)
			return r.blocked(req, dataCtx, now, reason)
		}
		dataCtx.DataQuality = "DEGRADED"
	}

	// Gate 3: risk constraints against the paper book.
	positions := r.paper.Positions()
	allowed, reasons := r.risk.CheckConstraints(positions, req, r.cfg.Mode)
	if !allowed {
		payload := map[string]interface{}{
			"data_context": dataCtx.Payload(),
			"reasons":      reasons,
			"proposed":     proposedPayload(req),
		}
		r.bus.Emit(model.EventRiskThrottleOn, "execution_router", payload)
		r.log.Warn().Strs("reasons", reasons).Msg("order blocked by risk engine")
		return model.OrderResult{
			Status:      model.StatusBlocked,
			Reasons:     reasons,
			DataContext: dataCtx,
			TS:          now,
		}
	}

	// Gate 4: execution agent, live mode only.
	if r.cfg.Mode == "live" && r.agent != nil {
		ok, agentReasons := r.agent.PreTradeCheck(req, r.marketState())
		if !ok {
			payload := map[string]interface{}{
				"data_context": dataCtx.Payload(),
				"reasons":      agentReasons,
				"proposed":     proposedPayload(req),
				"message":      "Trade blocked by execution agent: " + strings.Join(agentReasons, "; "),
			}
			r.bus.Emit(model.EventAgentBlocked, "execution_agent", payload)
			r.log.Warn().Strs("reasons", agentReasons).Msg("order blocked by execution agent")
			return model.OrderResult{
				Status:      model.StatusAgentBlocked,
				Reasons:     agentReasons,
				DataContext: dataCtx,
				TS:          now,
			}
		}
	}

	if r.cfg.Mode == "paper" {
		return r.placePaper(ctx, req, dataCtx, "paper")
	}

	ex, ok := r.live[strings.ToLower(req.Venue)]
	if !ok || !ex.Enabled() {
		r.log.Warn().Str("venue", req.Venue).Msg("no live executor, falling back to paper")
		return r.placePaper(ctx, req, dataCtx, model.StatusPaperFallback)
	}

	res, err := ex.PlaceOrder(ctx, req, dataCtx)
	if err != nil {
		r.log.Error().Err(err).Str("venue", req.Venue).Msg("live execution failed, falling back to paper")
		return r.placePaper(ctx, req, dataCtx, model.StatusPaperFallback)
	}
	res.ExecutionMode = "live"
	res.DataContext = dataCtx
	return res
}

// CancelOrder cancels against the paper book (live cancels go through the
// venue adapters directly).
func (r *Router) CancelOrder(orderID string) model.OrderResult {
	return r.paper.CancelOrder(orderID)
}

// AllPositions merges the paper book with every enabled live venue's book.
func (r *Router) AllPositions() []model.Position {
	positions := r.paper.Positions()
	if r.cfg.Mode != "live" {
		return positions
	}
	for venue, ex := range r.live {
		if !ex.Enabled() {
			continue
		}
		ps := ex.Positions()
		if len(ps) == 0 {
			r.log.Debug().Str("venue", venue).Msg("no live positions")
		}
		positions = append(positions, ps...)
	}
	return positions
}

// Status reports the router's execution surface.
func (r *Router) Status() map[string]interface{} {
	st := map[string]interface{}{
		"execution_mode": r.cfg.Mode,
		"paper_enabled":  true,
	}
	for venue, ex := range r.live {
		st[venue+"_enabled"] = ex.Enabled()
	}
	return st
}

func (r *Router) placePaper(ctx context.Context, req model.OrderRequest, dataCtx model.DataContext, mode string) model.OrderResult {
	res, _ := r.paper.PlaceOrder(ctx, req, dataCtx)
	res.ExecutionMode = mode
	if r.journal != nil {
		if err := r.journal.RecordFill(res); err != nil {
			r.log.Warn().Err(err).Msg("journal write failed")
		}
	}
	return res
}

func (r *Router) blocked(req model.OrderRequest, dataCtx model.DataContext, now time.Time, reason string) model.OrderResult {
	return model.OrderResult{
		Status:      model.StatusBlocked,
		Reasons:     []string{reason},
		Venue:       req.Venue,
		Market:      req.Market,
		DataContext: dataCtx,
		TS:          now,
	}
}

func (r *Router) emitGate(t model.EventType, req model.OrderRequest, dataCtx model.DataContext, message string) {
	payload := map[string]interface{}{
		"data_context": dataCtx.Payload(),
		"proposed":     proposedPayload(req),
		"message":      message,
	}
	r.bus.Emit(t, "execution_router", payload)
}

// buildDataContext snapshots the provenance and condition values this
// decision sees, so the resulting events can be audited and replayed.
func (r *Router) buildDataContext(reading PriceReading, now time.Time) model.DataContext {
	ctx := model.DataContext{
		ExecutionMode:   r.cfg.Mode,
		TariffTS:        now,
		ShockTS:         now,
		PriceTS:         now,
		PriceSource:     reading.Source,
		IntegrityStatus: "OK",
		DataQuality:     "OK",
		VolRegime:       "normal",
		FundingRegime:   "neutral",
	}

	if idx, ok := r.store.Get(store.KeyIndexLatest); ok {
		ts := tsField(idx, now)
		ctx.TariffTS = ts
		ctx.ShockTS = ts
		ctx.TariffRateOfChange = floatField(idx, "rate_of_change")
		ctx.ShockScore = floatField(idx, "shock_score")
	}
	if reg, ok := r.store.Get(store.KeyRegimeLatest); ok {
		if s, ok := reg["vol_regime"].(string); ok && s != "" {
			ctx.VolRegime = s
		}
		if s, ok := reg["funding_regime"].(string); ok && s != "" {
			ctx.FundingRegime = s
		}
	}
	if carry, ok := r.store.Get(store.KeyCarryLatest); ok {
		if scores, ok := carry["scores"].([]interface{}); ok && len(scores) > 0 {
			if first, ok := scores[0].(map[string]interface{}); ok {
				ctx.CarryScore = floatField(first, "annualized_carry")
			}
		}
	}
	if reading.Found {
		ctx.Price = reading.Price
		ctx.PriceTS = reading.TS
		ctx.DataAgeMS = now.Sub(reading.TS).Milliseconds()
	}
	if integ, ok := r.store.Get(store.KeyPriceIntegrity); ok {
		if s, ok := integ["integrity_status"].(string); ok && s != "" {
			ctx.IntegrityStatus = s
		}
	}
	return ctx
}

// marketState assembles the snapshot view the execution agent checks.
func (r *Router) marketState() map[string]interface{} {
	ms := map[string]interface{}{"price_integrity": "OK"}
	if micro, ok := r.store.Get(store.KeyMicroLatest); ok {
		ms["spread_bps"] = floatField(micro, "spread_bps")
		ms["liquidity_depth"] = floatField(micro, "liquidity_depth")
	}
	if integ, ok := r.store.Get(store.KeyPriceIntegrity); ok {
		if s, ok := integ["integrity_status"].(string); ok && s != "" {
			ms["price_integrity"] = s
		}
	}
	return ms
}

func proposedPayload(req model.OrderRequest) map[string]interface{} {
	return map[string]interface{}{
		"venue":  req.Venue,
		"market": req.Market,
		"side":   req.Side,
		"size":   req.Size,
		"price":  req.Price,
	}
}
