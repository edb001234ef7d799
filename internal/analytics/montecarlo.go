package analytics

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"riskdesk/internal/model"
)

// Monte Carlo path limits.
const (
	DefaultMonteCarloPaths = 2000
	MaxMonteCarloPaths     = 10000
)

// MonteCarloParams configures one simulation run.
type MonteCarloParams struct {
	CurrentPrice    float64
	PositionSize    float64
	Volatility      float64 // annualized
	HorizonHours    float64
	NPaths          int
	Drift           float64
	FundingRate     float64
	ShockAdjustment float64
	LiqPrice        *float64
}

// MonteCarloResult summarizes the simulated PnL distribution.
type MonteCarloResult struct {
	CurrentPrice    float64   `json:"current_price"`
	PositionSize    float64   `json:"position_size"`
	Volatility      float64   `json:"volatility"`
	HorizonHours    float64   `json:"horizon_hours"`
	NPaths          int       `json:"n_paths"`
	VaR95           float64   `json:"var_95"`
	VaR99           float64   `json:"var_99"`
	CVaR95          float64   `json:"cvar_95"`
	CVaR99          float64   `json:"cvar_99"`
	ExpectedPnL     float64   `json:"expected_pnl"`
	MedianPnL       float64   `json:"median_pnl"`
	StdPnL          float64   `json:"std_pnl"`
	ProbLoss5Pct    float64   `json:"prob_loss_5pct"`
	ProbLoss10Pct   float64   `json:"prob_loss_10pct"`
	ProbLiquidation float64   `json:"prob_liquidation"`
	HistCounts      []int     `json:"hist_counts"`
	HistEdges       []float64 `json:"hist_edges"`
	TS              time.Time `json:"ts"`
}

// MonteCarloEngine simulates single-step GBM terminal prices for a position
// and reports tail risk. Funding accrues per 8-hour period over the horizon.
type MonteCarloEngine struct {
	rng *rand.Rand
}

// NewMonteCarloEngine seeds from the clock; pass a fixed seed in tests via
// NewMonteCarloEngineSeeded.
func NewMonteCarloEngine() *MonteCarloEngine {
	return NewMonteCarloEngineSeeded(time.Now().UnixNano())
}

func NewMonteCarloEngineSeeded(seed int64) *MonteCarloEngine {
	return &MonteCarloEngine{rng: rand.New(rand.NewSource(seed))}
}

// Run simulates the PnL distribution. Shock adjustment scales volatility up
// under stressed news conditions.
func (e *MonteCarloEngine) Run(p MonteCarloParams) MonteCarloResult {
	nPaths := p.NPaths
	if nPaths == 0 {
		nPaths = DefaultMonteCarloPaths
	}
	if nPaths < 100 {
		nPaths = 100
	}
	if nPaths > MaxMonteCarloPaths {
		nPaths = MaxMonteCarloPaths
	}

	volAdj := p.Volatility * (1.0 + p.ShockAdjustment)
	dt := p.HorizonHours / (365.25 * 24.0)
	sqrtDT := math.Sqrt(dt)

	fundingCost := math.Abs(p.PositionSize) * p.CurrentPrice * p.FundingRate * (p.HorizonHours / 8.0)
	notional := math.Abs(p.PositionSize * p.CurrentPrice)

	pnl := make([]float64, nPaths)
	endPrices := make([]float64, nPaths)
	for i := 0; i < nPaths; i++ {
		z := e.rng.NormFloat64()
		logRet := (p.Drift-0.5*volAdj*volAdj)*dt + volAdj*sqrtDT*z
		endPrices[i] = p.CurrentPrice * math.Exp(logRet)
		pnl[i] = p.PositionSize*(endPrices[i]-p.CurrentPrice) - fundingCost
	}

	sorted := append([]float64(nil), pnl...)
	sort.Float64s(sorted)

	res := MonteCarloResult{
		CurrentPrice: p.CurrentPrice,
		PositionSize: p.PositionSize,
		Volatility:   p.Volatility,
		HorizonHours: p.HorizonHours,
		NPaths:       nPaths,
		VaR95:        round2(-percentile(sorted, 5)),
		VaR99:        round2(-percentile(sorted, 1)),
		CVaR95:       round2(-tailMean(sorted, 0.05)),
		CVaR99:       round2(-tailMean(sorted, 0.01)),
		ExpectedPnL:  round2(mean(pnl)),
		MedianPnL:    round2(percentile(sorted, 50)),
		StdPnL:       round2(populationStd(pnl)),
		TS:           model.NowUTC(),
	}
	res.ProbLoss5Pct = round4(fractionBelow(pnl, -notional*0.05))
	res.ProbLoss10Pct = round4(fractionBelow(pnl, -notional*0.10))

	if p.LiqPrice != nil && p.PositionSize != 0 {
		var hit int
		for _, ep := range endPrices {
			if (p.PositionSize > 0 && ep <= *p.LiqPrice) ||
				(p.PositionSize < 0 && ep >= *p.LiqPrice) {
				hit++
			}
		}
		res.ProbLiquidation = round4(float64(hit) / float64(nPaths))
	}

	res.HistCounts, res.HistEdges = histogram(pnl, 50)
	return res
}

// percentile interpolates linearly on a sorted slice, numpy-style.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// tailMean averages the worst fraction of the sorted PnL.
func tailMean(sorted []float64, frac float64) float64 {
	n := int(frac * float64(len(sorted)))
	if n < 1 {
		n = 1
	}
	return mean(sorted[:n])
}

func fractionBelow(xs []float64, threshold float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var n int
	for _, x := range xs {
		if x < threshold {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

func populationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func histogram(xs []float64, bins int) ([]int, []float64) {
	counts := make([]int, bins)
	edges := make([]float64, bins+1)
	if len(xs) == 0 {
		return counts, edges
	}

	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = round2(lo + float64(i)*width)
	}
	for _, x := range xs {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return counts, edges
}
