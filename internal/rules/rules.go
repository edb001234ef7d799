// Package rules maps market conditions onto defensive trade actions.
//
// The engine evaluates a fixed, ordered rule set against a Context snapshot
// and returns one TradeAction per triggered rule. Rules are declarative and
// side-effect free; acting on the output is the caller's job.
package rules

import (
	"riskdesk/internal/model"
)

// Action types emitted by the rule set.
const (
	ActionReduceExposure     = "reduce_exposure"
	ActionEnableRiskThrottle = "enable_risk_throttle"
	ActionHedge              = "hedge"
	ActionReduceLongPerp     = "reduce_long_perp"
	ActionRotateToStables    = "rotate_to_stables"
)

// Context is the condition snapshot one evaluation runs against.
type Context struct {
	TariffRateOfChange    float64 `json:"tariff_rate_of_change"`
	ShockScore            float64 `json:"shock_score"`
	VolRegime             string  `json:"vol_regime"`
	CarryScore            float64 `json:"carry_score"`
	DivergenceAlertActive bool    `json:"divergence_alert_active"`
	FundingRegimeFlipped  bool    `json:"funding_regime_flipped"`

	Venue         string  `json:"venue"`
	Market        string  `json:"market"`
	SuggestedSize float64 `json:"suggested_size"`
}

// Rule is one named condition with the action it triggers.
type Rule struct {
	Name        string
	Condition   func(Context) bool
	ActionType  string
	Explanation string
}

// Engine evaluates the rule set in registration order.
type Engine struct {
	rules []Rule
}

// NewEngine builds the engine with the standard desk rule set.
func NewEngine() *Engine {
	return &Engine{rules: []Rule{
		{
			Name: "tariff_vol_reduce",
			Condition: func(c Context) bool {
				return c.TariffRateOfChange > 5.0 && (c.VolRegime == "high" || c.VolRegime == "extreme")
			},
			ActionType:  ActionReduceExposure,
			Explanation: "Tariff index rate_of_change > 5 and vol regime is high -> reduce exposure",
		},
		{
			Name: "shock_throttle",
			Condition: func(c Context) bool {
				return c.ShockScore > 2.0
			},
			ActionType:  ActionEnableRiskThrottle,
			Explanation: "Shock score > 2.0 -> enable risk throttle",
		},
		{
			Name: "divergence_hedge",
			Condition: func(c Context) bool {
				return c.DivergenceAlertActive && c.FundingRegimeFlipped
			},
			ActionType:  ActionHedge,
			Explanation: "Divergence alert active and funding regime flipped -> hedge",
		},
		{
			Name: "negative_carry_reduce",
			Condition: func(c Context) bool {
				return c.CarryScore < -0.10
			},
			ActionType:  ActionReduceLongPerp,
			Explanation: "Carry score very negative -> reduce long perp",
		},
		{
			Name: "stable_rotation",
			Condition: func(c Context) bool {
				return c.ShockScore > 1.5 || c.TariffRateOfChange > 8.0
			},
			ActionType:  ActionRotateToStables,
			Explanation: "Tariff shock high -> rotate to 80% stables, reduce beta to 0.2",
		},
	}}
}

// Rules returns the registered rule set in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against the context. Each triggered rule yields
// one action carrying the context's venue, market and suggested size.
func (e *Engine) Evaluate(ctx Context) []model.TradeAction {
	var actions []model.TradeAction
	now := model.NowUTC()
	for _, r := range e.rules {
		if !r.Condition(ctx) {
			continue
		}
		actions = append(actions, model.TradeAction{
			RuleName:   r.Name,
			ActionType: r.ActionType,
			Venue:      ctx.Venue,
			Market:     ctx.Market,
			Side:       inferSide(r.ActionType),
			Size:       ctx.SuggestedSize,
			Reason:     r.Explanation,
			TS:         now,
		})
	}
	return actions
}

// inferSide maps action types onto an order side. Every defensive action is
// a sell; pure state changes carry no side.
func inferSide(actionType string) string {
	switch actionType {
	case ActionReduceExposure, ActionReduceLongPerp, ActionRotateToStables, ActionHedge:
		return "sell"
	default:
		return "none"
	}
}
