package analytics

import (
	"fmt"
	"math"
	"time"

	"riskdesk/internal/model"
)

// Asset classes the optimizer allocates across.
var AssetClasses = []string{"hl_perps", "drift_perps", "spot_jupiter", "stablecoins"}

var (
	defaultAllocation = map[string]float64{
		"hl_perps": 0.25, "drift_perps": 0.25, "spot_jupiter": 0.25, "stablecoins": 0.25,
	}
	allocationCaps = map[string]float64{
		"hl_perps": 0.50, "drift_perps": 0.50, "spot_jupiter": 0.50, "stablecoins": 0.80,
	}
	allocationFloors = map[string]float64{
		"hl_perps": 0.0, "drift_perps": 0.0, "spot_jupiter": 0.0, "stablecoins": 0.05,
	}
)

// Optimizer methods.
const (
	MethodRiskParity   = "risk_parity"
	MethodMeanVariance = "mean_variance"
	MethodKelly        = "kelly"
)

// OptimizerInputs steer one allocation proposal.
type OptimizerInputs struct {
	RiskLimit         float64
	PredictorProb     float64
	CarryScore        float64
	MacroRegime       string
	StableRotationPref float64
	Method            string
}

// AllocationProposal is a suggested target allocation. Proposal only, never
// auto-traded.
type AllocationProposal struct {
	Allocation map[string]float64 `json:"allocation"`
	Method     string             `json:"method"`
	Reasoning  []string           `json:"reasoning"`
	InputsEcho OptimizerInputs    `json:"inputs_echo"`
	TS         time.Time          `json:"ts"`
}

// RiskParity allocates inversely to each venue's volatility.
func RiskParity(volHL, volDrift, volSpot, volStable float64) map[string]float64 {
	inv := map[string]float64{
		"hl_perps":     1.0 / math.Max(volHL, 0.01),
		"drift_perps":  1.0 / math.Max(volDrift, 0.01),
		"spot_jupiter": 1.0 / math.Max(volSpot, 0.01),
		"stablecoins":  1.0 / math.Max(volStable, 0.001),
	}
	return normalizeWeights(inv)
}

// MeanVariance scores each class by expected return less a quadratic risk
// penalty.
func MeanVariance(expectedReturns, vols map[string]float64, riskAversion float64) map[string]float64 {
	scores := make(map[string]float64, len(AssetClasses))
	for _, k := range AssetClasses {
		mu := expectedReturns[k]
		sigma := math.Max(vols[k], 0.01)
		scores[k] = math.Max(mu-0.5*riskAversion*sigma*sigma, 0.001)
	}
	return normalizeWeights(scores)
}

// ScaledKelly sizes each class with fractional Kelly. Negative-edge classes
// get zero before scaling.
func ScaledKelly(edge, odds map[string]float64, kellyFraction float64) map[string]float64 {
	raw := make(map[string]float64, len(AssetClasses))
	var total float64
	for _, k := range AssetClasses {
		e := edge[k]
		o := math.Max(odds[k], 0.01)
		p := clampFloat(0.5+e/(2.0*o), 0.0, 1.0)
		q := 1.0 - p
		var kelly float64
		if o*p-q > 0 {
			kelly = (o*p - q) / o
		}
		raw[k] = math.Max(kelly*kellyFraction, 0.0)
		total += raw[k]
	}
	if total <= 0 {
		return copyWeights(defaultAllocation)
	}
	return normalizeWeights(raw)
}

// Optimize builds an allocation proposal from the requested method, then
// tilts it for the macro regime, stable-rotation preference and risk limit.
// Output always sums to 1 with caps and floors respected.
func Optimize(in OptimizerInputs) AllocationProposal {
	in.RiskLimit = clampFloat(in.RiskLimit, 0.0, 1.0)
	in.PredictorProb = clampFloat(in.PredictorProb, 0.0, 1.0)
	in.StableRotationPref = clampFloat(in.StableRotationPref, -1.0, 1.0)
	if in.MacroRegime == "" {
		in.MacroRegime = "neutral"
	}
	if in.Method == "" {
		in.Method = MethodRiskParity
	}

	var weights map[string]float64
	var reasoning []string

	switch in.Method {
	case MethodMeanVariance:
		er := map[string]float64{
			"hl_perps":     in.CarryScore*0.5 + in.PredictorProb*0.1,
			"drift_perps":  in.CarryScore*0.4 + in.PredictorProb*0.1,
			"spot_jupiter": in.PredictorProb * 0.15,
			"stablecoins":  0.04,
		}
		vols := map[string]float64{
			"hl_perps": 0.35, "drift_perps": 0.35, "spot_jupiter": 0.28, "stablecoins": 0.02,
		}
		weights = MeanVariance(er, vols, 2.0)
		reasoning = append(reasoning, "mean_variance: weights derived from expected returns vs vol")
	case MethodKelly:
		edge := map[string]float64{
			"hl_perps":     in.CarryScore * 0.3,
			"drift_perps":  in.CarryScore * 0.25,
			"spot_jupiter": in.PredictorProb*0.2 - 0.05,
			"stablecoins":  0.02,
		}
		odds := map[string]float64{
			"hl_perps": 1.0, "drift_perps": 1.0, "spot_jupiter": 1.0, "stablecoins": 1.0,
		}
		weights = ScaledKelly(edge, odds, 0.25)
		reasoning = append(reasoning, "scaled_kelly: fractional Kelly sizing with 0.25x scaling")
	default:
		weights = RiskParity(0.30, 0.30, 0.25, 0.02)
		reasoning = append(reasoning, "risk_parity: inverse-vol allocation across venues")
	}

	switch in.MacroRegime {
	case "risk_off", "crisis":
		const shift = 0.15
		weights["stablecoins"] += shift
		weights["hl_perps"] -= shift * 0.4
		weights["drift_perps"] -= shift * 0.3
		weights["spot_jupiter"] -= shift * 0.3
		reasoning = append(reasoning, fmt.Sprintf("macro_regime=%s: shifted toward stablecoins", in.MacroRegime))
	case "risk_on":
		const shift = 0.10
		weights["stablecoins"] -= shift
		weights["hl_perps"] += shift * 0.4
		weights["drift_perps"] += shift * 0.3
		weights["spot_jupiter"] += shift * 0.3
		reasoning = append(reasoning, "macro_regime=risk_on: shifted toward risk assets")
	}

	switch {
	case in.StableRotationPref > 0.3:
		bonus := in.StableRotationPref * 0.10
		weights["stablecoins"] += bonus
		reasoning = append(reasoning, fmt.Sprintf("stable_rotation_pref=%.2f: boosted stablecoins", in.StableRotationPref))
	case in.StableRotationPref < -0.3:
		penalty := math.Abs(in.StableRotationPref) * 0.08
		weights["stablecoins"] -= penalty
		reasoning = append(reasoning, fmt.Sprintf("stable_rotation_pref=%.2f: reduced stablecoins", in.StableRotationPref))
	}

	if in.RiskLimit < 0.3 {
		factor := in.RiskLimit / 0.3
		for _, k := range []string{"hl_perps", "drift_perps", "spot_jupiter"} {
			weights[k] *= factor
		}
		weights["stablecoins"] += (1.0 - factor) * 0.3
		reasoning = append(reasoning, fmt.Sprintf("risk_limit=%.2f: scaled down risky allocations", in.RiskLimit))
	}

	for _, k := range AssetClasses {
		weights[k] = math.Max(weights[k], 0.0)
	}
	weights = applyCaps(weights)

	var total float64
	for _, k := range AssetClasses {
		total += weights[k]
	}
	if math.Abs(total-1.0) > 1e-9 {
		weights = normalizeWeights(weights)
	}

	reasoning = append(reasoning, "proposal only, no auto-trade")

	alloc := make(map[string]float64, len(AssetClasses))
	for _, k := range AssetClasses {
		alloc[k] = round6(weights[k])
	}
	return AllocationProposal{
		Allocation: alloc,
		Method:     in.Method,
		Reasoning:  reasoning,
		InputsEcho: in,
		TS:         model.NowUTC(),
	}
}

func applyCaps(weights map[string]float64) map[string]float64 {
	capped := make(map[string]float64, len(AssetClasses))
	for _, k := range AssetClasses {
		capped[k] = clampFloat(weights[k], allocationFloors[k], allocationCaps[k])
	}
	return normalizeWeights(capped)
}

func normalizeWeights(weights map[string]float64) map[string]float64 {
	var total float64
	for _, v := range weights {
		total += v
	}
	if total <= 0 {
		return copyWeights(defaultAllocation)
	}
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v / total
	}
	return out
}

func copyWeights(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
