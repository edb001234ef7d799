// Package analytics holds the compute bank: each analyzer is a small
// stateless-or-ring-buffered struct that turns raw snapshots into derived
// signals. Analyzers never talk to the network; ingest feeds them and the
// desk loop persists their output.
package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
)

// TariffObservation is one country/product tariff reading.
type TariffObservation struct {
	Country       string
	Product       string
	Rate          float64
	CountryWeight float64
	ProductWeight float64
}

// TariffIndexResult is the weighted composite tariff index.
type TariffIndexResult struct {
	Raw          float64            `json:"raw"`
	Index        float64            `json:"tariff_index"`
	RateOfChange float64            `json:"rate_of_change"`
	Components   map[string]float64 `json:"components"`
	TS           time.Time          `json:"ts"`
}

// TariffIndexCalculator folds tariff observations into a 0-100 composite
// index and tracks the rate of change between consecutive computations.
type TariffIndexCalculator struct {
	prevIndex float64
	hasPrev   bool
}

func NewTariffIndexCalculator() *TariffIndexCalculator {
	return &TariffIndexCalculator{}
}

// Compute builds the weighted index. Observations with both a country and a
// product weight use the product of the two; otherwise the larger nonzero
// weight applies.
func (c *TariffIndexCalculator) Compute(obs []TariffObservation) TariffIndexResult {
	res := TariffIndexResult{
		Components: make(map[string]float64),
		TS:         model.NowUTC(),
	}
	if len(obs) == 0 {
		res.RateOfChange = c.rateOfChange(0)
		return res
	}

	var weightedSum, totalWeight float64
	for _, o := range obs {
		w := combinedWeight(o.CountryWeight, o.ProductWeight)
		if w <= 0 {
			continue
		}
		weightedSum += o.Rate * w
		totalWeight += w
		res.Components[o.Country+":"+o.Product] = o.Rate
	}
	if totalWeight > 0 {
		res.Raw = weightedSum / totalWeight
	}
	res.Index = normalizeIndex(res.Raw)
	res.RateOfChange = c.rateOfChange(res.Index)
	return res
}

func combinedWeight(cw, pw float64) float64 {
	if cw != 0 && pw != 0 {
		return cw * pw
	}
	return math.Max(cw, pw)
}

// normalizeIndex clips the raw rate into [0, 100].
func normalizeIndex(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}

// rateOfChange is the percent change against the previous index. A previous
// value of zero yields 100 when the current is positive, else 0.
func (c *TariffIndexCalculator) rateOfChange(cur float64) float64 {
	defer func() {
		c.prevIndex = cur
		c.hasPrev = true
	}()

	if !c.hasPrev {
		return 0
	}
	if c.prevIndex > 0 {
		return ((cur - c.prevIndex) / c.prevIndex) * 100.0
	}
	if cur > 0 {
		return 100.0
	}
	return 0
}
