package analytics

import (
	"math"
	"testing"
)

func sumAllocation(t *testing.T, alloc map[string]float64) float64 {
	t.Helper()
	var total float64
	for _, k := range AssetClasses {
		w, ok := alloc[k]
		if !ok {
			t.Fatalf("allocation missing %s", k)
		}
		if w < 0 {
			t.Fatalf("negative weight for %s: %v", k, w)
		}
		total += w
	}
	return total
}

func TestOptimize_SumsToOne(t *testing.T) {
	cases := []OptimizerInputs{
		{Method: MethodRiskParity, RiskLimit: 0.5, PredictorProb: 0.5},
		{Method: MethodMeanVariance, RiskLimit: 0.5, PredictorProb: 0.7, CarryScore: 0.2},
		{Method: MethodKelly, RiskLimit: 0.5, PredictorProb: 0.6, CarryScore: 0.1},
		{Method: MethodRiskParity, RiskLimit: 0.1, MacroRegime: "risk_off", StableRotationPref: 0.8},
		{Method: MethodKelly, RiskLimit: 1.0, MacroRegime: "risk_on", StableRotationPref: -0.9, CarryScore: -0.3},
	}
	for _, in := range cases {
		res := Optimize(in)
		if total := sumAllocation(t, res.Allocation); math.Abs(total-1.0) > 1e-6 {
			t.Errorf("method=%s allocation sums to %v, want 1", in.Method, total)
		}
	}
}

func TestOptimize_RespectsFloorAndCap(t *testing.T) {
	// Risk-on with a strong anti-stable preference still keeps the floor.
	res := Optimize(OptimizerInputs{
		Method: MethodRiskParity, RiskLimit: 1.0,
		MacroRegime: "risk_on", StableRotationPref: -1.0,
	})
	if res.Allocation["stablecoins"] < allocationFloors["stablecoins"]-1e-9 {
		t.Errorf("stablecoins %v below floor", res.Allocation["stablecoins"])
	}
	for _, k := range AssetClasses {
		// Caps hold before the final renormalization, which can only shrink
		// an at-cap weight, never inflate it past 1.
		if res.Allocation[k] > 1.0 {
			t.Errorf("%s = %v out of range", k, res.Allocation[k])
		}
	}
}

func TestOptimize_RiskOffShiftsToStables(t *testing.T) {
	neutral := Optimize(OptimizerInputs{Method: MethodRiskParity, RiskLimit: 0.5})
	riskOff := Optimize(OptimizerInputs{Method: MethodRiskParity, RiskLimit: 0.5, MacroRegime: "risk_off"})
	if riskOff.Allocation["stablecoins"] <= neutral.Allocation["stablecoins"] {
		t.Errorf("risk_off stables %v should exceed neutral %v",
			riskOff.Allocation["stablecoins"], neutral.Allocation["stablecoins"])
	}
}

func TestOptimize_LowRiskLimitScalesDown(t *testing.T) {
	tight := Optimize(OptimizerInputs{Method: MethodRiskParity, RiskLimit: 0.1})
	loose := Optimize(OptimizerInputs{Method: MethodRiskParity, RiskLimit: 0.9})
	if tight.Allocation["hl_perps"] >= loose.Allocation["hl_perps"] {
		t.Errorf("tight risk limit hl_perps %v should be below loose %v",
			tight.Allocation["hl_perps"], loose.Allocation["hl_perps"])
	}
}

func TestRiskParity_InverseVolOrdering(t *testing.T) {
	w := RiskParity(0.40, 0.30, 0.25, 0.02)
	if w["stablecoins"] <= w["hl_perps"] {
		t.Errorf("lowest-vol class should get the largest weight: %v vs %v",
			w["stablecoins"], w["hl_perps"])
	}
	if w["hl_perps"] >= w["drift_perps"] {
		t.Errorf("higher vol should get less: hl %v vs drift %v", w["hl_perps"], w["drift_perps"])
	}
}

func TestScaledKelly_NegativeEdgeZeroed(t *testing.T) {
	w := ScaledKelly(
		map[string]float64{"hl_perps": -0.5, "drift_perps": 0.2, "spot_jupiter": 0.2, "stablecoins": 0.02},
		map[string]float64{"hl_perps": 1, "drift_perps": 1, "spot_jupiter": 1, "stablecoins": 1},
		0.25,
	)
	if w["hl_perps"] != 0 {
		t.Errorf("negative edge should zero out, got %v", w["hl_perps"])
	}
}

func TestScaledKelly_AllNegativeFallsBackToDefault(t *testing.T) {
	w := ScaledKelly(
		map[string]float64{"hl_perps": -1, "drift_perps": -1, "spot_jupiter": -1, "stablecoins": -1},
		map[string]float64{"hl_perps": 1, "drift_perps": 1, "spot_jupiter": 1, "stablecoins": 1},
		0.25,
	)
	for _, k := range AssetClasses {
		if w[k] != 0.25 {
			t.Errorf("fallback weight %s = %v, want 0.25", k, w[k])
		}
	}
}

func TestAdaptiveWeights_SumToOne(t *testing.T) {
	w := NewAdaptiveWeighter(true)
	cases := []WeightInputs{
		{},
		{ShockScore: 80, FundingSkew: 0.08, VolRegime: VolExtreme, TariffIndex: 90},
		{ShockScore: 55, FundingSkew: 0.03, VolRegime: VolHigh, TariffIndex: 60},
	}
	for _, in := range cases {
		res := w.Compute(in)
		var total float64
		for _, v := range res.Weights {
			total += v
		}
		if math.Abs(total-1.0) > 0.001 {
			t.Errorf("weights sum to %v for %+v", total, in)
		}
	}
}

func TestAdaptiveWeights_ShockTiltsMacro(t *testing.T) {
	w := NewAdaptiveWeighter(true)
	calm := w.Compute(WeightInputs{})
	shocked := w.Compute(WeightInputs{ShockScore: 90})
	if shocked.Weights["macro"] <= calm.Weights["macro"] {
		t.Errorf("shock should tilt macro up: %v vs %v", shocked.Weights["macro"], calm.Weights["macro"])
	}
	if len(shocked.Adjustments) == 0 {
		t.Error("tilt must be recorded in adjustments")
	}
}

func TestAdaptiveWeights_DisabledReturnsDefaults(t *testing.T) {
	w := NewAdaptiveWeighter(false)
	res := w.Compute(WeightInputs{ShockScore: 99, VolRegime: VolExtreme})
	if res.AdaptiveEnabled {
		t.Error("adaptive_enabled should be false")
	}
	for k, v := range res.Weights {
		if v != 0.25 {
			t.Errorf("disabled weight %s = %v, want 0.25", k, v)
		}
	}
	if len(res.Adjustments) != 0 {
		t.Errorf("disabled run should carry no adjustments, got %v", res.Adjustments)
	}
}
