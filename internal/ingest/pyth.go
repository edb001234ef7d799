package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/store"
)

const (
	pythHermesBase = "https://hermes.pyth.network"
	solUSDFeedID   = "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
	priceSnapTTL   = 120 * time.Second
)

type pythResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// PythPoller reads the SOL/USD oracle price from the Hermes API.
type PythPoller struct {
	client *pollerClient
	store  store.Store
	symbol string
	feedID string
	log    zerolog.Logger
}

func NewPythPoller(st store.Store, log zerolog.Logger) *PythPoller {
	return &PythPoller{
		client: newPollerClient("pyth", pythHermesBase, 10*time.Second, time.Second),
		store:  st,
		symbol: "SOL/USD",
		feedID: solUSDFeedID,
		log:    log,
	}
}

func (p *PythPoller) Poll(ctx context.Context) error {
	var out pythResponse
	err := p.client.get(ctx, "/v2/updates/price/latest", map[string]string{"ids[]": p.feedID}, &out)
	if err != nil {
		return fmt.Errorf("pyth fetch: %w", err)
	}
	if len(out.Parsed) == 0 {
		return fmt.Errorf("pyth: no parsed price for feed %s", p.feedID[:10])
	}

	raw := out.Parsed[0].Price
	tick, err := NormalizePyth(p.symbol, raw.Price, raw.Conf, raw.Expo, raw.PublishTime)
	if err != nil {
		return err
	}
	if err := storeTick(p.store, tick, priceSnapTTL); err != nil {
		return err
	}
	p.log.Debug().Float64("price", tick.Price).Float64("confidence", tick.Confidence).Msg("pyth tick stored")
	return nil
}
