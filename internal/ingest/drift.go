package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

const (
	driftDataBase  = "https://mainnet-beta.api.drift.trade"
	driftMarket    = "SOL-PERP"
	fundingSnapTTL = 300 * time.Second
)

// DriftPoller reads the SOL-PERP mark price and current funding rate from the
// Drift data API.
type DriftPoller struct {
	client *pollerClient
	store  store.Store
	market string
	log    zerolog.Logger
}

func NewDriftPoller(st store.Store, log zerolog.Logger) *DriftPoller {
	return &DriftPoller{
		client: newPollerClient("drift", driftDataBase, 10*time.Second, 2*time.Second),
		store:  st,
		market: driftMarket,
		log:    log,
	}
}

func (p *DriftPoller) Poll(ctx context.Context) error {
	if err := p.pollMark(ctx); err != nil {
		return err
	}
	// Funding is best effort; a mark price alone is still a useful snapshot.
	if err := p.pollFunding(ctx); err != nil {
		p.log.Warn().Err(err).Msg("drift funding fetch failed")
	}
	return nil
}

func (p *DriftPoller) pollMark(ctx context.Context) error {
	var raw interface{}
	if err := p.client.get(ctx, "/markets", nil, &raw); err != nil {
		return fmt.Errorf("drift markets fetch: %w", err)
	}

	market, ok := findDriftMarket(raw, p.market)
	if !ok {
		return fmt.Errorf("drift: market %s not found", p.market)
	}
	price, ok := driftMarketPrice(market)
	if !ok {
		return fmt.Errorf("drift: no price field for %s", p.market)
	}
	tick, err := NormalizeDriftMark(p.market, price)
	if err != nil {
		return err
	}
	if err := storeTick(p.store, tick, priceSnapTTL); err != nil {
		return err
	}
	p.log.Debug().Float64("price", tick.Price).Msg("drift mark stored")
	return nil
}

func (p *DriftPoller) pollFunding(ctx context.Context) error {
	var raw interface{}
	err := p.client.get(ctx, "/fundingRates", map[string]string{"marketName": p.market}, &raw)
	if err != nil {
		return fmt.Errorf("drift funding fetch: %w", err)
	}

	entries := driftList(raw)
	if len(entries) == 0 {
		return fmt.Errorf("drift: empty funding response")
	}
	entry, ok := entries[0].(map[string]interface{})
	if !ok {
		return fmt.Errorf("drift: malformed funding entry")
	}
	rate, ok := flexFloat(entry["fundingRate"])
	if !ok {
		rate, ok = flexFloat(entry["rate"])
	}
	if !ok {
		return fmt.Errorf("drift: no funding rate field")
	}

	tick := model.FundingTick{
		Venue:       "drift",
		Market:      p.market,
		FundingRate: rate,
		TS:          model.NowUTC(),
	}
	return p.store.Set(store.FundingKey("drift"), map[string]interface{}{
		"venue":        tick.Venue,
		"market":       tick.Market,
		"funding_rate": tick.FundingRate,
		"ts":           tick.TS.Format(time.RFC3339Nano),
	}, fundingSnapTTL)
}

// findDriftMarket walks the markets payload, which has shipped both as a bare
// list and wrapped under "markets" or "data", matching on marketName/symbol.
func findDriftMarket(raw interface{}, want string) (map[string]interface{}, bool) {
	target := normalizeMarketName(want)
	for _, item := range driftList(raw) {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range []string{"marketName", "symbol", "name"} {
			if s, ok := m[field].(string); ok && normalizeMarketName(s) == target {
				return m, true
			}
		}
	}
	return nil, false
}

func driftMarketPrice(m map[string]interface{}) (float64, bool) {
	for _, field := range []string{"markPrice", "oraclePrice", "price"} {
		if v, ok := flexFloat(m[field]); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func driftList(raw interface{}) []interface{} {
	switch v := raw.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, field := range []string{"markets", "data", "fundingRates"} {
			if list, ok := v[field].([]interface{}); ok {
				return list
			}
		}
	}
	return nil
}

func normalizeMarketName(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// flexFloat accepts a number or numeric string, as venue APIs use both.
func flexFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
