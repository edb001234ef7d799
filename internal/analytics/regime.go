package analytics

import (
	"math"
	"time"

	"riskdesk/internal/model"
)

// Funding regime labels.
const (
	RegimeContango      = "contango"
	RegimeBackwardation = "backwardation"
	RegimeNeutral       = "neutral"
)

// Volatility regime labels.
const (
	VolLow     = "low"
	VolNormal  = "normal"
	VolHigh    = "high"
	VolExtreme = "extreme"
)

const fundingRegimeEpsilon = 0.0001

// FundingRegimeResult classifies the funding environment and flags flips
// against the previous classification.
type FundingRegimeResult struct {
	Regime     string    `json:"regime"`
	AvgFunding float64   `json:"avg_funding"`
	Flipped    bool      `json:"flipped"`
	TS         time.Time `json:"ts"`
}

// VolRegimeResult buckets annualized volatility.
type VolRegimeResult struct {
	Regime        string    `json:"regime"`
	AnnualizedVol float64   `json:"annualized_vol"`
	TS            time.Time `json:"ts"`
}

// RegimeClassifier tracks funding and volatility regimes over time.
type RegimeClassifier struct {
	prevFunding string
	hasPrev     bool
}

func NewRegimeClassifier() *RegimeClassifier {
	return &RegimeClassifier{}
}

// ClassifyFunding averages recent funding rates: sustained positive funding
// is contango, sustained negative is backwardation, the band between is
// neutral. A flip is any change from the previous classification.
func (r *RegimeClassifier) ClassifyFunding(rates []float64) FundingRegimeResult {
	avg := mean(rates)

	regime := RegimeNeutral
	switch {
	case avg > fundingRegimeEpsilon:
		regime = RegimeContango
	case avg < -fundingRegimeEpsilon:
		regime = RegimeBackwardation
	}

	flipped := r.hasPrev && regime != r.prevFunding
	r.prevFunding = regime
	r.hasPrev = true

	return FundingRegimeResult{
		Regime:     regime,
		AvgFunding: avg,
		Flipped:    flipped,
		TS:         model.NowUTC(),
	}
}

// ClassifyVol annualizes the sample stddev of daily returns (sqrt(252)) and
// buckets it. Fewer than two samples reads as normal.
func (r *RegimeClassifier) ClassifyVol(returns []float64) VolRegimeResult {
	res := VolRegimeResult{Regime: VolNormal, TS: model.NowUTC()}
	if len(returns) < 2 {
		return res
	}

	res.AnnualizedVol = stddev(returns) * math.Sqrt(252)
	switch {
	case res.AnnualizedVol < 0.15:
		res.Regime = VolLow
	case res.AnnualizedVol < 0.50:
		res.Regime = VolNormal
	case res.AnnualizedVol < 1.00:
		res.Regime = VolHigh
	default:
		res.Regime = VolExtreme
	}
	return res
}
