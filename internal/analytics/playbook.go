package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskdesk/internal/model"
)

// Playbook trigger thresholds.
const (
	PlaybookDepegWarnBPS     = 30.0
	PlaybookDepegAlertBPS    = 50.0
	PlaybookStressThreshold  = 0.5
	PlaybookPegBreakProbMin  = 0.3
)

// PlaybookInputs are the stablecoin risk observations the playbook reads.
type PlaybookInputs struct {
	DepegBPS           float64
	StressScore        float64
	PegBreakProb       float64
	MarginUsage        float64
	VolRegime          string
	StableAllocationPct float64
	CurrentLeverage    float64
}

// PlaybookAction is one recommended defensive step, lower priority first.
type PlaybookAction struct {
	Action   string `json:"action"`
	Detail   string `json:"detail"`
	Priority int    `json:"priority"`
}

// PlaybookResult is the stablecoin defense plan for the current conditions.
type PlaybookResult struct {
	Triggered  bool             `json:"triggered"`
	Urgency    string           `json:"urgency"` // none | medium | high
	Actions    []PlaybookAction `json:"actions"`
	Reasoning  []string         `json:"reasoning"`
	Confidence float64          `json:"confidence"`
	Inputs     PlaybookInputs   `json:"inputs"`
	TS         time.Time        `json:"ts"`
}

// EvaluatePlaybook maps stablecoin stress readings onto a prioritized action
// list. Untriggered conditions return confidence zero.
func EvaluatePlaybook(in PlaybookInputs) PlaybookResult {
	res := PlaybookResult{
		Urgency: "none",
		Inputs:  in,
		TS:      model.NowUTC(),
	}
	var confidence float64

	switch {
	case in.DepegBPS > PlaybookDepegAlertBPS:
		res.Triggered = true
		res.Urgency = "high"
		confidence += 0.3
		res.Actions = append(res.Actions,
			PlaybookAction{
				Action:   "reduce_leverage",
				Detail:   fmt.Sprintf("Reduce leverage from %.1fx, depeg %.0fbps is critical", in.CurrentLeverage, in.DepegBPS),
				Priority: 1,
			},
			PlaybookAction{
				Action:   "diversify_stables",
				Detail:   "Rotate away from depegging stable to USDC/DAI",
				Priority: 2,
			})
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Depeg %.0fbps exceeds alert threshold (%.0fbps)", in.DepegBPS, PlaybookDepegAlertBPS))
	case in.DepegBPS > PlaybookDepegWarnBPS:
		res.Triggered = true
		res.Urgency = "medium"
		confidence += 0.2
		res.Actions = append(res.Actions, PlaybookAction{
			Action:   "monitor_closely",
			Detail:   fmt.Sprintf("Depeg %.0fbps approaching alert level, prepare rotation plan", in.DepegBPS),
			Priority: 3,
		})
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Depeg %.0fbps exceeds warning threshold (%.0fbps)", in.DepegBPS, PlaybookDepegWarnBPS))
	}

	if in.StressScore > PlaybookStressThreshold {
		res.Triggered = true
		if res.Urgency != "high" {
			if in.StressScore > 0.7 {
				res.Urgency = "high"
			} else {
				res.Urgency = "medium"
			}
		}
		confidence += 0.2
		res.Actions = append(res.Actions, PlaybookAction{
			Action:   "hedge_risk_assets",
			Detail:   fmt.Sprintf("Stress score %.2f elevated, hedge directional exposure via HL/Drift shorts", in.StressScore),
			Priority: 2,
		})
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Stress score %.2f exceeds threshold (%.1f)", in.StressScore, PlaybookStressThreshold))
	}

	if in.PegBreakProb > PlaybookPegBreakProbMin {
		res.Triggered = true
		res.Urgency = "high"
		confidence += 0.25
		res.Actions = append(res.Actions,
			PlaybookAction{
				Action:   "defensive_rotation",
				Detail:   fmt.Sprintf("Peg break probability %.0f%%, emergency rotation to safer stables", in.PegBreakProb*100),
				Priority: 1,
			},
			PlaybookAction{
				Action:   "risk_throttle",
				Detail:   "Activate risk throttle, block new positions until peg stabilizes",
				Priority: 1,
			})
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Peg break probability %.0f%% exceeds threshold (%.0f%%)", in.PegBreakProb*100, PlaybookPegBreakProbMin*100))
	}

	if res.Triggered && in.MarginUsage > 0.5 {
		res.Actions = append(res.Actions, PlaybookAction{
			Action:   "reduce_leverage",
			Detail:   fmt.Sprintf("Margin usage %.0f%% elevated during stablecoin stress, deleverage", in.MarginUsage*100),
			Priority: 1,
		})
		confidence += 0.1
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("High margin usage (%.0f%%) compounds stablecoin risk", in.MarginUsage*100))
	}

	if res.Triggered && (in.VolRegime == VolHigh || in.VolRegime == VolExtreme) {
		res.Actions = append(res.Actions, PlaybookAction{
			Action:   "reduce_position_sizes",
			Detail:   fmt.Sprintf("Vol regime '%s' + stablecoin stress, reduce all position sizes by 30-50%%", in.VolRegime),
			Priority: 2,
		})
		confidence += 0.1
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("Vol regime '%s' amplifies stablecoin risk", in.VolRegime))
	}

	sort.SliceStable(res.Actions, func(i, j int) bool {
		return res.Actions[i].Priority < res.Actions[j].Priority
	})

	if res.Triggered {
		res.Confidence = math.Min(math.Round((0.50+confidence)*100)/100, 0.95)
	}
	return res
}
