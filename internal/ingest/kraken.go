package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/store"
)

const krakenAPIBase = "https://api.kraken.com"

// KrakenPoller reads the last trade price from Kraken's public ticker.
type KrakenPoller struct {
	client *pollerClient
	store  store.Store
	pair   string
	symbol string
	log    zerolog.Logger
}

func NewKrakenPoller(st store.Store, log zerolog.Logger) *KrakenPoller {
	return &KrakenPoller{
		client: newPollerClient("kraken", krakenAPIBase, 10*time.Second, time.Second),
		store:  st,
		pair:   "SOLUSD",
		symbol: "SOL/USD",
		log:    log,
	}
}

func (p *KrakenPoller) Poll(ctx context.Context) error {
	var out struct {
		Error  []string                          `json:"error"`
		Result map[string]map[string]interface{} `json:"result"`
	}
	if err := p.client.get(ctx, "/0/public/Ticker", map[string]string{"pair": p.pair}, &out); err != nil {
		return fmt.Errorf("kraken fetch: %w", err)
	}
	if len(out.Error) > 0 {
		return fmt.Errorf("kraken api: %s", strings.Join(out.Error, "; "))
	}
	if len(out.Result) == 0 {
		return fmt.Errorf("kraken: empty result for pair %s", p.pair)
	}

	for _, ticker := range out.Result {
		tick, err := NormalizeKrakenTicker(p.symbol, ticker)
		if err != nil {
			return err
		}
		if err := storeTick(p.store, tick, priceSnapTTL); err != nil {
			return err
		}
		p.log.Debug().Float64("price", tick.Price).Msg("kraken tick stored")
		return nil
	}
	return nil
}
