package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskdesk/internal/model"
)

// Hedge regression defaults.
const (
	DefaultHedgeWindow   = 30
	MinHedgeObservations = 5
)

// Correlation is one pairwise correlation estimate.
type Correlation struct {
	Correlation float64 `json:"correlation"`
	HasValue    bool    `json:"has_value"`
	SampleSize  int     `json:"sample_size"`
	Window      int     `json:"window"`
	Note        string  `json:"note,omitempty"`
}

// HedgeRatio is the OLS beta of an asset against a hedge instrument.
type HedgeRatio struct {
	Beta           float64   `json:"hedge_ratio"`
	RSquared       float64   `json:"r_squared"`
	Effectiveness  float64   `json:"hedge_effectiveness"`
	Confidence     float64   `json:"confidence"`
	SampleSize     int       `json:"sample_size"`
	Window         int       `json:"window"`
	RecommendedLeg string    `json:"recommended_hedge_leg,omitempty"`
	Note           string    `json:"note,omitempty"`
	HasValue       bool      `json:"has_value"`
	TS             time.Time `json:"ts"`
}

// HedgeAnalysis is the full correlation/hedge report for the book.
type HedgeAnalysis struct {
	Correlations          map[string]Correlation `json:"correlations"`
	HedgeRatios           map[string]HedgeRatio  `json:"hedge_ratios"`
	MacroCorrelations     map[string]Correlation `json:"macro_correlations"`
	BestHedge             string                 `json:"best_hedge,omitempty"`
	BestHedgeEffectiveness float64               `json:"best_hedge_effectiveness"`
	Window                int                    `json:"window"`
	Assets                []string               `json:"assets"`
	TS                    time.Time              `json:"ts"`
}

// HedgeAnalyzer estimates rolling correlations and hedge ratios over return
// series.
type HedgeAnalyzer struct{}

func NewHedgeAnalyzer() *HedgeAnalyzer {
	return &HedgeAnalyzer{}
}

// RollingCorrelations computes pairwise Pearson correlation over the last
// window observations of each asset pair.
func (h *HedgeAnalyzer) RollingCorrelations(returns map[string][]float64, window int) map[string]Correlation {
	if window <= 0 {
		window = DefaultHedgeWindow
	}
	assets := sortedKeys(returns)

	out := make(map[string]Correlation)
	for i, a1 := range assets {
		for _, a2 := range assets[i+1:] {
			r1, r2 := returns[a1], returns[a2]
			n := minInt(minInt(len(r1), len(r2)), window)
			key := a1 + "_vs_" + a2
			if n < MinHedgeObservations {
				out[key] = Correlation{
					SampleSize: n,
					Window:     window,
					Note:       fmt.Sprintf("Insufficient data (%d < %d)", n, MinHedgeObservations),
				}
				continue
			}
			corr, ok := pearson(r1[len(r1)-n:], r2[len(r2)-n:])
			out[key] = Correlation{
				Correlation: round4(corr),
				HasValue:    ok,
				SampleSize:  n,
				Window:      window,
			}
		}
	}
	return out
}

// ComputeHedgeRatio regresses asset returns on hedge returns over the
// trailing window. Beta is the recommended hedge size per unit of exposure.
func (h *HedgeAnalyzer) ComputeHedgeRatio(assetReturns, hedgeReturns []float64, window int) HedgeRatio {
	if window <= 0 {
		window = DefaultHedgeWindow
	}
	now := model.NowUTC()
	n := minInt(minInt(len(assetReturns), len(hedgeReturns)), window)
	if n < MinHedgeObservations {
		return HedgeRatio{
			SampleSize: n,
			Window:     window,
			Note:       fmt.Sprintf("Insufficient data (%d < %d)", n, MinHedgeObservations),
			TS:         now,
		}
	}

	y := assetReturns[len(assetReturns)-n:]
	x := hedgeReturns[len(hedgeReturns)-n:]

	varX := popVariance(x)
	if varX < 1e-12 {
		return HedgeRatio{
			HasValue:   true,
			SampleSize: n,
			Window:     window,
			Note:       "Zero variance in hedge instrument",
			TS:         now,
		}
	}

	beta := popCovariance(y, x) / varX

	var rSquared float64
	if popVariance(y) >= 1e-12 {
		if corr, ok := pearson(y, x); ok {
			rSquared = corr * corr
		}
	}

	return HedgeRatio{
		Beta:           round4(beta),
		RSquared:       round4(rSquared),
		Effectiveness:  round4(rSquared),
		Confidence:     round4(math.Min(0.95, 0.4+float64(n)/float64(window)*0.3+rSquared*0.25)),
		SampleSize:     n,
		Window:         window,
		RecommendedLeg: recommendLeg(beta),
		HasValue:       true,
		TS:             now,
	}
}

// FullAnalysis hedges SOL against every other asset in the book and against
// the macro shock series, picking the most effective hedge.
func (h *HedgeAnalyzer) FullAnalysis(returns map[string][]float64, macroShock []float64, window int) HedgeAnalysis {
	if window <= 0 {
		window = DefaultHedgeWindow
	}
	res := HedgeAnalysis{
		Correlations:      h.RollingCorrelations(returns, window),
		HedgeRatios:       make(map[string]HedgeRatio),
		MacroCorrelations: make(map[string]Correlation),
		Window:            window,
		Assets:            sortedKeys(returns),
		TS:                model.NowUTC(),
	}

	const primary = "SOL"
	if _, ok := returns[primary]; ok {
		for _, hedgeAsset := range res.Assets {
			if hedgeAsset == primary {
				continue
			}
			hr := h.ComputeHedgeRatio(returns[primary], returns[hedgeAsset], window)
			res.HedgeRatios[primary+"_hedged_by_"+hedgeAsset] = hr
		}
	}

	if len(macroShock) >= MinHedgeObservations {
		for _, asset := range res.Assets {
			r := returns[asset]
			n := minInt(minInt(len(r), len(macroShock)), window)
			if n < MinHedgeObservations {
				continue
			}
			corr, ok := pearson(r[len(r)-n:], macroShock[len(macroShock)-n:])
			res.MacroCorrelations[asset] = Correlation{
				Correlation: round4(corr),
				HasValue:    ok,
				SampleSize:  n,
				Window:      window,
			}
		}
	}

	for name, hr := range res.HedgeRatios {
		if hr.Effectiveness > res.BestHedgeEffectiveness {
			res.BestHedgeEffectiveness = hr.Effectiveness
			res.BestHedge = name
		}
	}
	res.BestHedgeEffectiveness = round4(res.BestHedgeEffectiveness)
	return res
}

func recommendLeg(beta float64) string {
	switch {
	case beta > 0.5:
		return "short_hl_perp"
	case beta < -0.5:
		return "long_hl_perp"
	case math.Abs(beta) < 0.2:
		return "spot_reduction"
	default:
		return "drift_perp_hedge"
	}
}

// popVariance and popCovariance use the population (n) denominator.
func popVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

func popCovariance(x, y []float64) float64 {
	n := minInt(len(x), len(y))
	if n < 2 {
		return 0
	}
	mx := mean(x[:n])
	my := mean(y[:n])
	var sum float64
	for i := 0; i < n; i++ {
		sum += (x[i] - mx) * (y[i] - my)
	}
	return sum / float64(n)
}

func pearson(x, y []float64) (float64, bool) {
	n := minInt(len(x), len(y))
	if n < 2 {
		return 0, false
	}
	sx := math.Sqrt(popVariance(x[:n]))
	sy := math.Sqrt(popVariance(y[:n]))
	if sx < 1e-12 || sy < 1e-12 {
		return 0, false
	}
	return popCovariance(x[:n], y[:n]) / (sx * sy), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
