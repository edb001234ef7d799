package analytics

import (
	"fmt"
	"time"

	"riskdesk/internal/model"
)

// Slippage model grids.
var (
	SlippageSizeBuckets   = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	SlippageThresholdsBPS = []float64{10, 25, 50}
)

// SlippageInputs parameterize the impact model for one venue.
type SlippageInputs struct {
	OBDepth           float64 `json:"ob_depth"`
	SpreadBPS         float64 `json:"spread_bps"`
	Volatility        float64 `json:"volatility"`
	RecentSlippageBPS float64 `json:"recent_slippage_bps"`
}

// SlippagePoint is expected impact at one order size.
type SlippagePoint struct {
	SizeUSD             float64 `json:"size_usd"`
	ExpectedSlippageBPS float64 `json:"expected_slippage_bps"`
}

// SlippageDataQuality grades how much real data backs the estimates.
type SlippageDataQuality struct {
	Score           int    `json:"score"`
	Quality         string `json:"quality"` // good | fair | sparse
	DataSourcesUsed int    `json:"data_sources_used"`
}

// SlippageCurve is the impact curve for one venue.
type SlippageCurve struct {
	Venue       string              `json:"venue"`
	Curve       []SlippagePoint     `json:"curve"`
	Inputs      SlippageInputs      `json:"inputs"`
	DataQuality SlippageDataQuality `json:"data_quality"`
	TS          time.Time           `json:"ts"`
}

// SafeSizeReport gives the largest order size under each slippage budget.
type SafeSizeReport struct {
	Venue         string              `json:"venue"`
	MaxSafeSizes  map[string]float64  `json:"max_safe_sizes"`
	ThresholdsBPS []float64           `json:"thresholds_bps"`
	SlippageCurve []SlippagePoint     `json:"slippage_curve"`
	DataQuality   SlippageDataQuality `json:"data_quality"`
	Notes         []string            `json:"notes"`
	TS            time.Time           `json:"ts"`
}

// EstimateSlippageCurve models expected impact across size buckets. Base
// impact starts from half the spread, blends in observed slippage when
// available, and scales with depth consumption and volatility.
func EstimateSlippageCurve(in SlippageInputs, venue string) SlippageCurve {
	depth := in.OBDepth
	if depth < 1000 {
		depth = 1000
	}

	baseSlip := in.SpreadBPS * 0.5
	if baseSlip < 0.5 {
		baseSlip = 0.5
	}
	if in.RecentSlippageBPS > 0 {
		baseSlip = (baseSlip + in.RecentSlippageBPS) / 2.0
	}

	volMultiplier := 1.0 + in.Volatility*10.0

	curve := make([]SlippagePoint, 0, len(SlippageSizeBuckets))
	for _, size := range SlippageSizeBuckets {
		impact := baseSlip + size/depth*50.0*volMultiplier
		curve = append(curve, SlippagePoint{SizeUSD: size, ExpectedSlippageBPS: round2(impact)})
	}

	return SlippageCurve{
		Venue:       venue,
		Curve:       curve,
		Inputs:      in,
		DataQuality: slippageDataQuality(in),
		TS:          model.NowUTC(),
	}
}

// ComputeMaxSafeSizes walks the impact curve and reports the largest bucket
// under each threshold. The walk stops at the first bucket over budget so a
// non-monotone spot cannot unlock a larger size.
func ComputeMaxSafeSizes(in SlippageInputs, venue string) SafeSizeReport {
	curveData := EstimateSlippageCurve(in, venue)

	safeSizes := make(map[string]float64, len(SlippageThresholdsBPS))
	for _, threshold := range SlippageThresholdsBPS {
		var maxSize float64
		for _, point := range curveData.Curve {
			if point.ExpectedSlippageBPS > threshold {
				break
			}
			maxSize = point.SizeUSD
		}
		safeSizes[fmt.Sprintf("%.0fbps", threshold)] = maxSize
	}

	var notes []string
	if in.OBDepth == 0 {
		notes = append(notes, "No orderbook depth data, estimates based on spread only")
	}
	if in.RecentSlippageBPS == 0 {
		notes = append(notes, "No recent slippage data, using model estimates only")
	}
	if in.Volatility > 0.05 {
		notes = append(notes, "High volatility environment, actual slippage may exceed estimates")
	}

	return SafeSizeReport{
		Venue:         venue,
		MaxSafeSizes:  safeSizes,
		ThresholdsBPS: SlippageThresholdsBPS,
		SlippageCurve: curveData.Curve,
		DataQuality:   curveData.DataQuality,
		Notes:         notes,
		TS:            model.NowUTC(),
	}
}

// MultiVenueSlippage runs the safe-size model per venue.
func MultiVenueSlippage(venueData map[string]SlippageInputs) map[string]SafeSizeReport {
	out := make(map[string]SafeSizeReport, len(venueData))
	for venue, in := range venueData {
		out[venue] = ComputeMaxSafeSizes(in, venue)
	}
	return out
}

func slippageDataQuality(in SlippageInputs) SlippageDataQuality {
	score := 30
	sources := 0
	if in.OBDepth > 0 {
		score += 30
		sources++
	}
	if in.SpreadBPS > 0 {
		score += 20
		sources++
	}
	if in.RecentSlippageBPS > 0 {
		score += 20
		sources++
	}

	quality := "sparse"
	switch {
	case score >= 70:
		quality = "good"
	case score >= 50:
		quality = "fair"
	}
	return SlippageDataQuality{Score: score, Quality: quality, DataSourcesUsed: sources}
}
