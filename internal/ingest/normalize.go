package ingest

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"riskdesk/internal/model"
	"riskdesk/internal/store"
)

// Venue trust levels for feeds that publish no confidence interval of their
// own.
const (
	krakenConfidence    = 0.95
	coingeckoConfidence = 0.85
	driftConfidence     = 0.90
	hlConfidence        = 0.90
)

// NormalizePyth converts a raw Hermes price update (fixed-point mantissa +
// exponent, confidence interval in the same scale) into a tick. Confidence
// shrinks toward 0 as the interval widens relative to the price.
func NormalizePyth(symbol, priceRaw, confRaw string, expo int32, publishTime int64) (model.PriceTick, error) {
	mantissa, err := strconv.ParseFloat(priceRaw, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("pyth price %q: %w", priceRaw, err)
	}
	scale := math.Pow(10, float64(expo))
	price := mantissa * scale
	if price <= 0 {
		return model.PriceTick{}, fmt.Errorf("pyth price %g not positive", price)
	}

	confidence := 0.5
	if confMantissa, err := strconv.ParseFloat(confRaw, 64); err == nil {
		rel := confMantissa * scale / price
		confidence = clamp01(1.0 - rel)
	}

	return model.PriceTick{
		Symbol:     symbol,
		Venue:      "pyth",
		Price:      price,
		Confidence: confidence,
		TS:         NormalizeTimestamp(publishTime),
	}, nil
}

// NormalizeKrakenTicker reads the last-trade price (c[0]) from one Kraken
// ticker entry.
func NormalizeKrakenTicker(symbol string, ticker map[string]interface{}) (model.PriceTick, error) {
	closes, ok := ticker["c"].([]interface{})
	if !ok || len(closes) == 0 {
		return model.PriceTick{}, fmt.Errorf("kraken ticker missing close array")
	}
	raw, ok := closes[0].(string)
	if !ok {
		return model.PriceTick{}, fmt.Errorf("kraken close price not a string")
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return model.PriceTick{}, fmt.Errorf("kraken close price %q: %w", raw, err)
	}
	if price <= 0 {
		return model.PriceTick{}, fmt.Errorf("kraken price %g not positive", price)
	}
	return model.PriceTick{
		Symbol:     symbol,
		Venue:      "kraken",
		Price:      price,
		Confidence: krakenConfidence,
		TS:         model.NowUTC(),
	}, nil
}

// NormalizeCoinGecko builds a tick from a simple-price response value.
func NormalizeCoinGecko(symbol string, price float64) (model.PriceTick, error) {
	if price <= 0 {
		return model.PriceTick{}, fmt.Errorf("coingecko price %g not positive", price)
	}
	return model.PriceTick{
		Symbol:     symbol,
		Venue:      "coingecko",
		Price:      price,
		Confidence: coingeckoConfidence,
		TS:         model.NowUTC(),
	}, nil
}

// NormalizeDriftMark builds a tick from a Drift market's mark price.
func NormalizeDriftMark(market string, markPrice float64) (model.PriceTick, error) {
	if markPrice <= 0 {
		return model.PriceTick{}, fmt.Errorf("drift mark price %g not positive", markPrice)
	}
	return model.PriceTick{
		Symbol:     market,
		Venue:      "drift",
		Price:      markPrice,
		Confidence: driftConfidence,
		TS:         model.NowUTC(),
	}, nil
}

// NormalizeTimestamp interprets a venue timestamp as unix seconds or
// milliseconds (values past ~2001-09 in ms are > 1e12). Zero means now.
func NormalizeTimestamp(raw int64) time.Time {
	switch {
	case raw > 1e12:
		return time.UnixMilli(raw).UTC()
	case raw > 0:
		return time.Unix(raw, 0).UTC()
	}
	return model.NowUTC()
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// tickSnapshot is the stored form of a price tick.
func tickSnapshot(t model.PriceTick) map[string]interface{} {
	return map[string]interface{}{
		"symbol":     t.Symbol,
		"venue":      t.Venue,
		"price":      t.Price,
		"confidence": t.Confidence,
		"ts":         t.TS.Format(time.RFC3339Nano),
	}
}

func storeTick(st store.Store, t model.PriceTick, ttl time.Duration) error {
	return st.Set(store.PriceKey(t.Venue, store.SymbolKey(t.Symbol)), tickSnapshot(t), ttl)
}
