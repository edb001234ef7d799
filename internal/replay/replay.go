// Package replay re-runs recorded event sequences through the rules engine
// to measure how faithfully past decisions can be re-derived from the data
// context each event carried.
package replay

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/rules"
)

// maxSteps caps the per-step detail kept in a report; the aggregate counters
// still cover the full sequence.
const maxSteps = 500

// Emitter is the slice of the event bus the engine needs.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// Options select the event window and the strategy overlay applied on top of
// each event's recorded data context.
type Options struct {
	StrategyOverlay map[string]interface{}
	Start           time.Time // zero = unbounded
	End             time.Time // zero = unbounded
}

// Decision is the rules-engine output re-derived for one event.
type Decision struct {
	Actions     []model.TradeAction `json:"actions,omitempty"`
	ActionCount int                 `json:"action_count"`
	Note        string              `json:"note,omitempty"`
}

// Step is the replay outcome for one event.
type Step struct {
	Step            int                    `json:"step"`
	EventID         string                 `json:"event_id"`
	EventType       model.EventType        `json:"event_type"`
	OriginalTS      time.Time              `json:"original_ts"`
	Replayable      bool                   `json:"replayable"`
	Reason          string                 `json:"reason,omitempty"`
	Decision        *Decision              `json:"decision,omitempty"`
	MatchesOriginal *bool                  `json:"matches_original,omitempty"`
	MismatchDetail  map[string]interface{} `json:"mismatch_detail,omitempty"`
}

// Report summarizes one replay run.
type Report struct {
	Status             string                 `json:"status"`
	EventCount         int                    `json:"event_count"`
	TotalEvents        int                    `json:"total_events_available"`
	DecisionsGenerated int                    `json:"decisions_generated"`
	Mismatches         int                    `json:"mismatches"`
	NonReplayable      int                    `json:"non_replayable"`
	DurationSeconds    float64                `json:"replay_duration_seconds"`
	Steps              []Step                 `json:"steps"`
	Truncated          bool                   `json:"truncated"`
	StrategyOverlay    map[string]interface{} `json:"strategy_config"`
	TotalSteps         int                    `json:"total_steps"`
	ReplayableSteps    int                    `json:"replayable_steps"`
	MismatchRate       float64                `json:"mismatch_rate"`
	FidelityScore      float64                `json:"fidelity_score"`
	TS                 time.Time              `json:"ts"`
}

// Engine replays event sequences. The latest report is retained for
// inspection; runs serialize against each other.
type Engine struct {
	rules *rules.Engine
	bus   Emitter
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	latest *Report
}

func NewEngine(bus Emitter, log zerolog.Logger) *Engine {
	return &Engine{
		rules: rules.NewEngine(),
		bus:   bus,
		log:   log,
		now:   model.NowUTC,
	}
}

// Latest returns the most recent report, or nil if none has run.
func (e *Engine) Latest() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// Run replays events through the rules engine under the strategy overlay.
func (e *Engine) Run(events []model.Event, opts Options) Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	filtered := filterWindow(events, opts.Start, opts.End)

	var (
		steps         []Step
		decisions     int
		mismatches    int
		nonReplayable int
	)

	for i, ev := range filtered {
		step := Step{
			Step:       i + 1,
			EventID:    ev.ID,
			EventType:  ev.EventType,
			OriginalTS: ev.TS,
			Replayable: true,
		}

		switch ev.EventType {
		case model.EventOrderSent, model.EventOrderFilled, model.EventRuleActionProposed:
			dc, ok := dataContext(ev.Payload)
			if !ok {
				step.Replayable = false
				step.Reason = "Missing data_context for deterministic replay"
				nonReplayable++
				break
			}

			ctx := contextFrom(dc)
			applyOverlay(&ctx, opts.StrategyOverlay)
			actions := e.rules.Evaluate(ctx)
			decisions++
			step.Decision = &Decision{Actions: actions, ActionCount: len(actions)}

			original := originalAction(ev.Payload)
			if original != "" {
				replayed := "none"
				if len(actions) > 0 {
					replayed = actions[0].ActionType
				}
				match := original == replayed
				step.MatchesOriginal = &match
				if !match {
					mismatches++
					step.MismatchDetail = map[string]interface{}{
						"original": original,
						"replayed": replayed,
					}
				}
			}

		case model.EventAgentSignal, model.EventAgentActionProposed:
			step.Decision = &Decision{Note: "Agent signal recorded but not re-evaluated in replay"}
		default:
			step.Decision = &Decision{Note: "Event type " + string(ev.EventType) + " passed through"}
		}

		steps = append(steps, step)
	}

	totalSteps := len(steps)
	kept := steps
	if len(kept) > maxSteps {
		kept = kept[:maxSteps]
	}

	denom := float64(decisions)
	if denom < 1 {
		denom = 1
	}
	report := Report{
		Status:             "completed",
		EventCount:         len(filtered),
		TotalEvents:        len(events),
		DecisionsGenerated: decisions,
		Mismatches:         mismatches,
		NonReplayable:      nonReplayable,
		DurationSeconds:    round3(e.now().Sub(started).Seconds()),
		Steps:              kept,
		Truncated:          totalSteps > maxSteps,
		StrategyOverlay:    opts.StrategyOverlay,
		TotalSteps:         totalSteps,
		ReplayableSteps:    totalSteps - nonReplayable,
		MismatchRate:       round4(float64(mismatches) / denom),
		FidelityScore:      round4(1.0 - float64(mismatches)/denom),
		TS:                 e.now(),
	}
	e.latest = &report

	if e.bus != nil {
		e.bus.Emit(model.EventReplayCompleted, "replay_engine", map[string]interface{}{
			"event_count":         report.EventCount,
			"decisions_generated": report.DecisionsGenerated,
			"mismatches":          report.Mismatches,
			"non_replayable":      report.NonReplayable,
			"fidelity_score":      report.FidelityScore,
		})
	}
	e.log.Info().
		Int("events", report.EventCount).
		Int("mismatches", report.Mismatches).
		Float64("fidelity", report.FidelityScore).
		Msg("replay completed")
	return report
}

func filterWindow(events []model.Event, start, end time.Time) []model.Event {
	if start.IsZero() && end.IsZero() {
		return events
	}
	var out []model.Event
	for _, ev := range events {
		if !start.IsZero() && ev.TS.Before(start) {
			continue
		}
		if !end.IsZero() && ev.TS.After(end) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func dataContext(payload map[string]interface{}) (map[string]interface{}, bool) {
	dc, ok := payload["data_context"].(map[string]interface{})
	if !ok || len(dc) == 0 {
		return nil, false
	}
	return dc, true
}

// contextFrom rebuilds the rules context the original decision saw.
func contextFrom(dc map[string]interface{}) rules.Context {
	ctx := rules.Context{
		TariffRateOfChange: numField(dc, "tariff_rate_of_change"),
		ShockScore:         numField(dc, "shock_score"),
		CarryScore:         numField(dc, "carry_score"),
		VolRegime:          strField(dc, "vol_regime", "normal"),
	}
	ctx.FundingRegimeFlipped = strField(dc, "funding_regime", "neutral") == "flipped"
	if b, ok := dc["divergence_alert_active"].(bool); ok {
		ctx.DivergenceAlertActive = b
	}
	return ctx
}

// applyOverlay overrides context fields from the strategy overlay, keyed by
// the context's wire names.
func applyOverlay(ctx *rules.Context, overlay map[string]interface{}) {
	for key, val := range overlay {
		switch key {
		case "tariff_rate_of_change":
			ctx.TariffRateOfChange = toFloat(val)
		case "shock_score":
			ctx.ShockScore = toFloat(val)
		case "carry_score":
			ctx.CarryScore = toFloat(val)
		case "vol_regime":
			if s, ok := val.(string); ok {
				ctx.VolRegime = s
			}
		case "divergence_alert_active":
			if b, ok := val.(bool); ok {
				ctx.DivergenceAlertActive = b
			}
		case "funding_regime_flipped":
			if b, ok := val.(bool); ok {
				ctx.FundingRegimeFlipped = b
			}
		case "suggested_size":
			ctx.SuggestedSize = toFloat(val)
		}
	}
}

// originalAction recovers the action recorded on the event, falling back to
// the order side for fill events.
func originalAction(payload map[string]interface{}) string {
	for _, key := range []string{"action", "action_type", "side"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numField(m map[string]interface{}, key string) float64 {
	return toFloat(m[key])
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

func strField(m map[string]interface{}, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
