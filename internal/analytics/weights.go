package analytics

import (
	"fmt"
	"math"
	"time"

	"riskdesk/internal/model"
)

// Signal families the adaptive weighting covers.
var defaultSignalWeights = map[string]float64{
	"macro": 0.25, "carry": 0.25, "microstructure": 0.25, "momentum": 0.25,
}

// WeightInputs are the regime observations that tilt the signal weights.
type WeightInputs struct {
	ShockScore  float64
	FundingSkew float64
	VolRegime   string
	TariffIndex float64
}

// WeightResult is a normalized signal weighting with the applied tilts.
type WeightResult struct {
	Weights         map[string]float64 `json:"weights"`
	RegimeInputs    WeightInputs       `json:"regime_inputs"`
	AdaptiveEnabled bool               `json:"adaptive_enabled"`
	Adjustments     []string           `json:"adjustments"`
	TS              time.Time          `json:"ts"`
}

// AdaptiveWeighter tilts signal-family weights toward whichever family the
// current regime favors. Disabled, it returns the static default split.
type AdaptiveWeighter struct {
	enabled bool
}

func NewAdaptiveWeighter(enabled bool) *AdaptiveWeighter {
	return &AdaptiveWeighter{enabled: enabled}
}

// Compute derives the weighting for the current regime. Output weights sum
// to 1.
func (w *AdaptiveWeighter) Compute(in WeightInputs) WeightResult {
	if !w.enabled {
		return WeightResult{
			Weights:      copyWeights(defaultSignalWeights),
			RegimeInputs: in,
			Adjustments:  []string{},
			TS:           model.NowUTC(),
		}
	}

	weights := copyWeights(defaultSignalWeights)
	adjustments := []string{}

	switch {
	case in.ShockScore > 70:
		bump := math.Min((in.ShockScore-70)/100, 0.15)
		weights["macro"] += bump
		adjustments = append(adjustments, fmt.Sprintf("macro +%.3f (shock_score=%.1f)", bump, in.ShockScore))
	case in.ShockScore > 50:
		bump := math.Min((in.ShockScore-50)/200, 0.07)
		weights["macro"] += bump
		adjustments = append(adjustments, fmt.Sprintf("macro +%.3f (moderate shock=%.1f)", bump, in.ShockScore))
	}

	absSkew := math.Abs(in.FundingSkew)
	switch {
	case absSkew > 0.05:
		bump := math.Min(absSkew, 0.15)
		weights["carry"] += bump
		adjustments = append(adjustments, fmt.Sprintf("carry +%.3f (funding_skew=%.4f)", bump, in.FundingSkew))
	case absSkew > 0.02:
		bump := math.Min(absSkew*0.5, 0.07)
		weights["carry"] += bump
		adjustments = append(adjustments, fmt.Sprintf("carry +%.3f (moderate skew=%.4f)", bump, in.FundingSkew))
	}

	switch in.VolRegime {
	case VolHigh:
		weights["microstructure"] += 0.10
		adjustments = append(adjustments, "microstructure +0.100 (vol_regime=high)")
	case VolExtreme:
		weights["microstructure"] += 0.15
		adjustments = append(adjustments, "microstructure +0.150 (vol_regime=extreme)")
	}

	if in.TariffIndex > 75 {
		bump := math.Min((in.TariffIndex-75)/200, 0.10)
		weights["macro"] += bump
		weights["momentum"] += bump * 0.5
		adjustments = append(adjustments, fmt.Sprintf("macro +%.3f, momentum +%.3f (tariff_index=%.1f)", bump, bump*0.5, in.TariffIndex))
	}

	var total float64
	for _, v := range weights {
		total += v
	}
	if total > 0 {
		for k, v := range weights {
			weights[k] = round4(v / total)
		}
	}

	return WeightResult{
		Weights:         weights,
		RegimeInputs:    in,
		AdaptiveEnabled: true,
		Adjustments:     adjustments,
		TS:              model.NowUTC(),
	}
}
