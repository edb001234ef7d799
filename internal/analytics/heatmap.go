package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
)

// Heatmap axes.
var (
	HeatmapLeverageLevels = []int{1, 2, 3, 5, 7, 10}
	HeatmapPriceDropsPct  = []float64{5, 10, 15, 20, 25, 30, 35, 40, 45, 50}
)

// Heatmap is the liquidation probability surface over leverage and price
// drop. Grid[i][j] is the probability at leverage level i, drop j;
// probabilities are monotone along both axes.
type Heatmap struct {
	CurrentPrice   float64     `json:"current_price"`
	LeverageLevels []int       `json:"leverage_levels"`
	PriceDropsPct  []float64   `json:"price_drops_pct"`
	Grid           [][]float64 `json:"grid"`
	VolUsed        float64     `json:"vol_used"`
	MarginUsage    float64     `json:"margin_usage"`
	TotalNotional  float64     `json:"total_notional"`
	PositionsCount int         `json:"positions_count"`
	TS             time.Time   `json:"ts"`
}

// ComputeHeatmap builds the liquidation surface for the current book state.
// Inputs are clamped rather than rejected so a partially-populated snapshot
// still renders.
func ComputeHeatmap(currentPrice float64, positions []model.Position, vol, marginUsage float64) Heatmap {
	if vol < 0 {
		vol = 0
	}
	marginUsage = math.Max(0, math.Min(marginUsage, 1))
	if currentPrice < 0.01 {
		currentPrice = 0.01
	}

	grid := make([][]float64, len(HeatmapLeverageLevels))
	for i, lev := range HeatmapLeverageLevels {
		row := make([]float64, len(HeatmapPriceDropsPct))
		prev := 0.0
		for j, drop := range HeatmapPriceDropsPct {
			p := liquidationProbability(lev, drop, vol, marginUsage)
			if p < prev {
				p = prev
			}
			row[j] = p
			prev = p
		}
		grid[i] = row
	}

	// Monotone along the leverage axis too: more leverage never reads safer.
	for j := range HeatmapPriceDropsPct {
		prev := 0.0
		for i := range HeatmapLeverageLevels {
			if grid[i][j] < prev {
				grid[i][j] = prev
			}
			prev = grid[i][j]
		}
	}

	var totalNotional float64
	for _, pos := range positions {
		price := pos.EntryPrice
		if price == 0 {
			price = currentPrice
		}
		totalNotional += math.Abs(pos.Size) * price
	}

	return Heatmap{
		CurrentPrice:   currentPrice,
		LeverageLevels: HeatmapLeverageLevels,
		PriceDropsPct:  HeatmapPriceDropsPct,
		Grid:           grid,
		VolUsed:        round4(vol),
		MarginUsage:    round4(marginUsage),
		TotalNotional:  round2(totalNotional),
		PositionsCount: len(positions),
		TS:             model.NowUTC(),
	}
}

func liquidationProbability(leverage int, dropPct, vol, marginUsage float64) float64 {
	maintenanceMargin := 1.0 / float64(leverage)
	lossFraction := dropPct / 100.0
	effectiveLoss := lossFraction * float64(leverage)

	if effectiveLoss >= 1.0 {
		return 1.0
	}

	volAnnual := math.Max(vol, 0.01)
	volDaily := volAnnual / math.Sqrt(365)

	z := lossFraction / volDaily
	probFromVol := 1.0
	if z > 0 {
		probFromVol = math.Min(1.0, math.Exp(-0.5*z*z))
	}

	marginFactor := 0.5 + 0.5*math.Min(marginUsage, 1.0)

	var baseProb float64
	if effectiveLoss >= 1.0-maintenanceMargin {
		baseProb = math.Min(1.0, effectiveLoss/(1.0-maintenanceMargin+0.001))
	} else {
		baseProb = effectiveLoss / math.Max(1.0-maintenanceMargin, 0.01)
	}

	combined := baseProb * marginFactor * (0.6 + 0.4*probFromVol)
	return round4(math.Min(1.0, math.Max(0.0, combined)))
}
