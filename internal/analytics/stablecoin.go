package analytics

import (
	"fmt"
	"math"
	"time"

	"riskdesk/internal/model"
)

// Stablecoin thresholds.
const (
	DepegWarnBPS  = 20.0
	DepegAlertBPS = 50.0
	VolumeSpikeZ  = 2.0
)

// StableSymbols are the monitored stablecoins.
var StableSymbols = []string{"USDC", "USDT", "DAI"}

// StableHealthEntry is one stablecoin's peg reading.
type StableHealthEntry struct {
	Price    float64   `json:"price"`
	Peg      float64   `json:"peg"`
	DepegBPS float64   `json:"depeg_bps"`
	Status   string    `json:"status"` // ok | warning | alert
	TS       time.Time `json:"ts"`
}

// StableDepthResult summarizes a stable pair's top-of-book liquidity.
type StableDepthResult struct {
	BidDepth   float64 `json:"bid_depth"`
	AskDepth   float64 `json:"ask_depth"`
	MidPrice   float64 `json:"mid_price"`
	SpreadBPS  float64 `json:"spread_bps"`
	TotalDepth float64 `json:"total_depth"`
}

// StressResult scores how stressed a stablecoin looks.
type StressResult struct {
	StressScore float64  `json:"stress_score"`
	IsStressed  bool     `json:"is_stressed"`
	Factors     []string `json:"factors"`
}

// StableAlert is a depeg warning or alert for one symbol.
type StableAlert struct {
	Type     model.EventType `json:"type"`
	Symbol   string          `json:"symbol"`
	DepegBPS float64         `json:"depeg_bps"`
	Price    float64         `json:"price"`
	TS       time.Time       `json:"ts"`
}

// StablecoinHealthMonitor watches stablecoin pegs, depth and stress.
type StablecoinHealthMonitor struct{}

func NewStablecoinHealthMonitor() *StablecoinHealthMonitor {
	return &StablecoinHealthMonitor{}
}

// ComputeDepegBPS is the absolute peg deviation in basis points.
func (m *StablecoinHealthMonitor) ComputeDepegBPS(price, peg float64) float64 {
	if peg == 0 {
		return 0
	}
	return math.Abs(price-peg) / peg * 10000.0
}

// ComputeHealth classifies each symbol: ok under 20bps, warning to 50bps,
// alert beyond.
func (m *StablecoinHealthMonitor) ComputeHealth(prices map[string]float64, peg float64) map[string]StableHealthEntry {
	if peg == 0 {
		peg = 1.0
	}
	out := make(map[string]StableHealthEntry, len(prices))
	for symbol, price := range prices {
		depeg := m.ComputeDepegBPS(price, peg)
		status := "ok"
		switch {
		case depeg > DepegAlertBPS:
			status = "alert"
		case depeg > DepegWarnBPS:
			status = "warning"
		}
		out[symbol] = StableHealthEntry{
			Price:    price,
			Peg:      peg,
			DepegBPS: round2(depeg),
			Status:   status,
			TS:       model.NowUTC(),
		}
	}
	return out
}

// ComputeLiquidityDepth sums top-10 depth per side and measures the spread.
func (m *StablecoinHealthMonitor) ComputeLiquidityDepth(bids, asks []model.PriceLevel) StableDepthResult {
	res := StableDepthResult{
		BidDepth: round2(sumDepth(bids, 10)),
		AskDepth: round2(sumDepth(asks, 10)),
	}
	res.TotalDepth = round2(res.BidDepth + res.AskDepth)

	if len(bids) > 0 && len(asks) > 0 {
		bestBid := bids[0].Price
		bestAsk := asks[0].Price
		mid := (bestBid + bestAsk) / 2.0
		res.MidPrice = round6(mid)
		if mid > 0 {
			res.SpreadBPS = round2((bestAsk - bestBid) / mid * 10000.0)
		}
	}
	return res
}

// DetectStress combines depeg, volume spike and spread into a 0-1 stress
// score; above 0.5 the symbol is stressed.
func (m *StablecoinHealthMonitor) DetectStress(depegBPS, volumeZ, spreadBPS float64) StressResult {
	var score float64
	var factors []string

	switch {
	case depegBPS > DepegAlertBPS:
		score += 0.4
		factors = append(factors, fmt.Sprintf("depeg %.0fbps", depegBPS))
	case depegBPS > DepegWarnBPS:
		score += 0.2
		factors = append(factors, fmt.Sprintf("depeg %.0fbps", depegBPS))
	}

	if volumeZ > VolumeSpikeZ {
		score += 0.3
		factors = append(factors, fmt.Sprintf("volume z=%.1f", volumeZ))
	}
	if spreadBPS > 30 {
		score += 0.3
		factors = append(factors, fmt.Sprintf("spread %.0fbps", spreadBPS))
	}

	return StressResult{
		StressScore: math.Round(math.Min(score, 1.0)*1000) / 1000,
		IsStressed:  score > 0.5,
		Factors:     factors,
	}
}

// PegBreakProbability estimates the chance of a full peg break. With enough
// history it z-scores the current depeg; otherwise it falls back to linear
// scaling with a hard cap.
func (m *StablecoinHealthMonitor) PegBreakProbability(depegBPS float64, depegHistory []float64) float64 {
	if len(depegHistory) < 5 {
		if depegBPS > DepegAlertBPS {
			return math.Min(depegBPS/200.0, 0.95)
		}
		return math.Min(depegBPS/500.0, 0.3)
	}

	std := math.Max(populationStd(depegHistory), 0.01)
	z := (depegBPS - mean(depegHistory)) / std
	prob := 1.0 / (1.0 + math.Exp(-0.5*(z-2.0)))
	return round4(math.Min(math.Max(prob, 0.0), 1.0))
}

// Alerts turns health entries into depeg alert records.
func (m *StablecoinHealthMonitor) Alerts(health map[string]StableHealthEntry) []StableAlert {
	var alerts []StableAlert
	for _, symbol := range sortedKeys(health) {
		data := health[symbol]
		var t model.EventType
		switch data.Status {
		case "alert":
			t = model.EventStableDepegAlert
		case "warning":
			t = model.EventStableDepegWarning
		default:
			continue
		}
		alerts = append(alerts, StableAlert{
			Type:     t,
			Symbol:   symbol,
			DepegBPS: data.DepegBPS,
			Price:    data.Price,
			TS:       data.TS,
		})
	}
	return alerts
}
