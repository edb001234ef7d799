// Package bus implements the event spine: typed events are assigned ids and
// monotonic per-source timestamps, appended to a durable log, kept in an
// in-memory ring for recovery reads, and fanned out best-effort to live
// subscribers.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"riskdesk/internal/model"
	"riskdesk/internal/ringbuf"
)

// Log is the durable event log behind the bus. Appends are at-least-once;
// consumers dedupe on event id.
type Log interface {
	Append(ev model.Event) error
	Recent(limit int) ([]model.Event, error)
}

// Bus accepts typed events and distributes them. Construct one per process
// and thread it into components explicitly.
type Bus struct {
	mu      sync.Mutex
	lastTS  map[string]time.Time // per-source monotonic clock
	ring    *ringbuf.Ring[model.Event]
	fan     *FanOut
	log     zerolog.Logger
	durable Log // nil when no database is configured

	// OnEmit is an optional metrics hook called after every emit.
	OnEmit func(ev model.Event)
}

// New creates a bus with the given ring capacity for Recent reads. durable
// may be nil; Recent then serves from the ring only.
func New(ringCap int, durable Log, log zerolog.Logger) *Bus {
	if ringCap <= 0 {
		ringCap = 1000
	}
	return &Bus{
		lastTS:  make(map[string]time.Time),
		ring:    ringbuf.New[model.Event](ringCap),
		fan:     NewFanOut(64),
		log:     log,
		durable: durable,
	}
}

// Emit assigns an id and timestamp to the event, appends it to the durable
// log, and fans it out. Returns the event id. Timestamps are strictly
// monotonic per source.
func (b *Bus) Emit(eventType model.EventType, source string, payload map[string]interface{}) string {
	if !eventType.Valid() {
		b.log.Error().Str("event_type", string(eventType)).Str("source", source).
			Msg("emit of unknown event type dropped")
		return ""
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	ev := model.Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		Source:    source,
		Payload:   payload,
		TS:        b.nextTS(source),
	}

	if b.durable != nil {
		if err := b.durable.Append(ev); err != nil {
			b.log.Warn().Err(err).Str("event_type", string(eventType)).
				Msg("durable append failed")
		}
	}

	b.ring.Push(ev)
	b.fan.Publish(ev)

	if b.OnEmit != nil {
		b.OnEmit(ev)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("source", source).
		Str("id", ev.ID).
		Msg("event emitted")
	return ev.ID
}

// nextTS returns a UTC timestamp strictly greater than the last one handed
// to this source.
func (b *Bus) nextTS(source string) time.Time {
	now := time.Now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.lastTS[source]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	b.lastTS[source] = now
	return now
}

// Subscribe registers a live subscriber. With no types given, every event is
// delivered. Delivery is best-effort: a full subscriber buffer drops the
// event for that subscriber, never blocking the bus.
func (b *Bus) Subscribe(types ...model.EventType) *Subscription {
	return b.fan.Subscribe(types...)
}

// Recent returns up to limit recent events, oldest-first. The durable log is
// preferred; the in-memory ring serves when the log is unavailable.
func (b *Bus) Recent(limit int) []model.Event {
	if limit <= 0 {
		limit = 50
	}
	if b.durable != nil {
		evs, err := b.durable.Recent(limit)
		if err == nil {
			return evs
		}
		b.log.Warn().Err(err).Msg("durable recent failed, serving from ring")
	}
	return b.ring.Last(limit)
}

// Close tears down all live subscriptions.
func (b *Bus) Close() {
	b.fan.CloseAll()
}
