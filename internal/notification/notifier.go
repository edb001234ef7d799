// Package notification forwards high-severity desk events to external
// channels (Telegram, generic webhooks). Delivery is best-effort: a failing
// channel is logged and skipped, never retried, and never blocks the bus.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"riskdesk/internal/bus"
	"riskdesk/internal/model"
)

// AlertLevel is the severity of an outbound alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

const sendTimeout = 10 * time.Second

// Alert is one notification to deliver.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TS      time.Time  `json:"ts"`
}

// Notifier delivers alerts to one external channel.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// alertEvents maps bus event types worth paging on to their severity.
var alertEvents = map[model.EventType]AlertLevel{
	model.EventShockSpike:         AlertWarning,
	model.EventDivergenceAlert:    AlertWarning,
	model.EventLiquidityThinning:  AlertWarning,
	model.EventPriceDislocation:   AlertCritical,
	model.EventStableDepegWarning: AlertWarning,
	model.EventStableDepegAlert:   AlertCritical,
	model.EventRiskThrottleOn:     AlertCritical,
	model.EventRiskThrottleOff:    AlertInfo,
	model.EventAgentBlocked:       AlertWarning,
	model.EventTradeBlockedStale:  AlertWarning,
}

// AlertTypes returns the event types the dispatcher reacts to, for use as a
// bus subscription filter.
func AlertTypes() []model.EventType {
	out := make([]model.EventType, 0, len(alertEvents))
	for t := range alertEvents {
		out = append(out, t)
	}
	return out
}

// Dispatcher consumes alert-worthy bus events and fans them out to the
// configured channels.
type Dispatcher struct {
	notifiers []Notifier
	log       zerolog.Logger
}

func NewDispatcher(log zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, log: log}
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool { return len(d.notifiers) > 0 }

// Run consumes the subscription until ctx ends or the bus closes.
func (d *Dispatcher) Run(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev model.Event) {
	level, ok := alertEvents[ev.EventType]
	if !ok {
		return
	}
	alert := Alert{
		Level:   level,
		Title:   string(ev.EventType),
		Message: alertMessage(ev),
		TS:      ev.TS,
	}
	for _, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if err := n.Send(sendCtx, alert); err != nil {
			d.log.Warn().Err(err).Str("event_type", string(ev.EventType)).Msg("alert delivery failed")
		}
		cancel()
	}
}

// alertMessage prefers the event's human-readable fields and falls back to
// the raw payload.
func alertMessage(ev model.Event) string {
	for _, key := range []string{"message", "reason"} {
		if s, ok := ev.Payload[key].(string); ok && s != "" {
			return s
		}
	}
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return ev.Source
	}
	return string(raw)
}
