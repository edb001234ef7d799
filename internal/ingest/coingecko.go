package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/store"
)

const coingeckoAPIBase = "https://api.coingecko.com"

// coingeckoCoins maps CoinGecko coin ids to desk symbols. SOL is the traded
// asset; the stables feed the peg-health monitor.
var coingeckoCoins = map[string]string{
	"solana":   "SOL/USD",
	"usd-coin": "USDC/USD",
	"tether":   "USDT/USD",
	"dai":      "DAI/USD",
}

// CoinGeckoPoller reads spot prices from the simple-price endpoint in one
// batched call.
type CoinGeckoPoller struct {
	client     *pollerClient
	store      store.Store
	coins      map[string]string
	vsCurrency string
	log        zerolog.Logger
}

func NewCoinGeckoPoller(st store.Store, log zerolog.Logger) *CoinGeckoPoller {
	return &CoinGeckoPoller{
		client:     newPollerClient("coingecko", coingeckoAPIBase, 10*time.Second, 2*time.Second),
		store:      st,
		coins:      coingeckoCoins,
		vsCurrency: "usd",
		log:        log,
	}
}

func (p *CoinGeckoPoller) Poll(ctx context.Context) error {
	ids := make([]string, 0, len(p.coins))
	for id := range p.coins {
		ids = append(ids, id)
	}

	var out map[string]map[string]float64
	err := p.client.get(ctx, "/api/v3/simple/price", map[string]string{
		"ids":                     strings.Join(ids, ","),
		"vs_currencies":           p.vsCurrency,
		"include_last_updated_at": "true",
	}, &out)
	if err != nil {
		return fmt.Errorf("coingecko fetch: %w", err)
	}

	stored := 0
	for id, symbol := range p.coins {
		coin, ok := out[id]
		if !ok {
			continue
		}
		tick, err := NormalizeCoinGecko(symbol, coin[p.vsCurrency])
		if err != nil {
			p.log.Warn().Err(err).Str("coin", id).Msg("coingecko tick rejected")
			continue
		}
		if err := storeTick(p.store, tick, priceSnapTTL); err != nil {
			return err
		}
		stored++
	}
	if stored == 0 {
		return fmt.Errorf("coingecko: no usable prices in response")
	}
	p.log.Debug().Int("coins", stored).Msg("coingecko ticks stored")
	return nil
}
