package rules

import (
	"testing"
)

func actionTypes(t *testing.T, e *Engine, ctx Context) []string {
	t.Helper()
	var out []string
	for _, a := range e.Evaluate(ctx) {
		out = append(out, a.ActionType)
	}
	return out
}

func TestEvaluate_QuietContextIsEmpty(t *testing.T) {
	e := NewEngine()
	if got := e.Evaluate(Context{VolRegime: "normal"}); len(got) != 0 {
		t.Errorf("quiet context triggered %v", got)
	}
}

func TestEvaluate_TariffVolReduce(t *testing.T) {
	e := NewEngine()

	got := actionTypes(t, e, Context{TariffRateOfChange: 6.0, VolRegime: "high"})
	if len(got) != 1 || got[0] != ActionReduceExposure {
		t.Errorf("got %v, want [reduce_exposure]", got)
	}

	// Both legs must hold.
	if got := actionTypes(t, e, Context{TariffRateOfChange: 6.0, VolRegime: "normal"}); len(got) != 0 {
		t.Errorf("normal vol should not trigger, got %v", got)
	}
	if got := actionTypes(t, e, Context{TariffRateOfChange: 4.0, VolRegime: "extreme"}); len(got) != 0 {
		t.Errorf("low RoC should not trigger, got %v", got)
	}
}

func TestEvaluate_ShockTriggersThrottleAndRotation(t *testing.T) {
	e := NewEngine()
	got := actionTypes(t, e, Context{ShockScore: 2.5, VolRegime: "normal"})

	// shock > 2.0 trips the throttle, and > 1.5 also trips stable rotation,
	// in rule order.
	if len(got) != 2 {
		t.Fatalf("got %v, want throttle + rotation", got)
	}
	if got[0] != ActionEnableRiskThrottle || got[1] != ActionRotateToStables {
		t.Errorf("order = %v", got)
	}
}

func TestEvaluate_StableRotationOnTariffAlone(t *testing.T) {
	e := NewEngine()
	got := actionTypes(t, e, Context{TariffRateOfChange: 9.0, VolRegime: "normal"})
	if len(got) != 1 || got[0] != ActionRotateToStables {
		t.Errorf("got %v, want [rotate_to_stables]", got)
	}
}

func TestEvaluate_DivergenceHedgeNeedsBothFlags(t *testing.T) {
	e := NewEngine()

	if got := actionTypes(t, e, Context{DivergenceAlertActive: true}); len(got) != 0 {
		t.Errorf("divergence alone should not hedge, got %v", got)
	}
	if got := actionTypes(t, e, Context{FundingRegimeFlipped: true}); len(got) != 0 {
		t.Errorf("flip alone should not hedge, got %v", got)
	}
	got := actionTypes(t, e, Context{DivergenceAlertActive: true, FundingRegimeFlipped: true})
	if len(got) != 1 || got[0] != ActionHedge {
		t.Errorf("got %v, want [hedge]", got)
	}
}

func TestEvaluate_NegativeCarry(t *testing.T) {
	e := NewEngine()
	if got := actionTypes(t, e, Context{CarryScore: -0.05}); len(got) != 0 {
		t.Errorf("mildly negative carry should not trigger, got %v", got)
	}
	got := actionTypes(t, e, Context{CarryScore: -0.2})
	if len(got) != 1 || got[0] != ActionReduceLongPerp {
		t.Errorf("got %v, want [reduce_long_perp]", got)
	}
}

func TestEvaluate_ActionCarriesContext(t *testing.T) {
	e := NewEngine()
	actions := e.Evaluate(Context{
		ShockScore:    3.0,
		Venue:         "hyperliquid",
		Market:        "SOL-PERP",
		SuggestedSize: 1.5,
	})
	if len(actions) == 0 {
		t.Fatal("expected actions")
	}
	a := actions[0]
	if a.Venue != "hyperliquid" || a.Market != "SOL-PERP" || a.Size != 1.5 {
		t.Errorf("context not carried: %+v", a)
	}
	if a.RuleName != "shock_throttle" {
		t.Errorf("rule_name = %s", a.RuleName)
	}
	if a.Reason == "" || a.TS.IsZero() {
		t.Errorf("reason/ts missing: %+v", a)
	}
}

func TestInferSide(t *testing.T) {
	tests := map[string]string{
		ActionReduceExposure:     "sell",
		ActionReduceLongPerp:     "sell",
		ActionRotateToStables:    "sell",
		ActionHedge:              "sell",
		ActionEnableRiskThrottle: "none",
	}
	for action, want := range tests {
		if got := inferSide(action); got != want {
			t.Errorf("inferSide(%s) = %s, want %s", action, got, want)
		}
	}
}
