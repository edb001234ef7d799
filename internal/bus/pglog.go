package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"riskdesk/internal/model"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL,
	payload JSONB DEFAULT '{}',
	ts TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts DESC);
`

type eventRow struct {
	ID        string    `db:"id"`
	EventType string    `db:"event_type"`
	Source    string    `db:"source"`
	Payload   []byte    `db:"payload"`
	TS        time.Time `db:"ts"`
}

// PGLog is the postgres-backed durable event log. Inserts run through a
// circuit breaker; while the database is unavailable events queue in a
// bounded pending buffer (oldest dropped first) and flush on recovery, so a
// short outage loses nothing.
type PGLog struct {
	db  *sqlx.DB
	cb  *gobreaker.CircuitBreaker
	log zerolog.Logger

	mu      sync.Mutex
	pending []model.Event
	maxPend int
}

// NewPGLog connects to databaseURL and ensures the events table exists.
func NewPGLog(databaseURL string, log zerolog.Logger) (*PGLog, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pglog: connect: %w", err)
	}
	if _, err := db.Exec(eventsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pglog: ensure table: %w", err)
	}

	l := &PGLog{
		db:      db,
		log:     log,
		maxPend: 10000,
	}
	l.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pg-event-log",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("event log circuit breaker state change")
			if to == gobreaker.StateClosed {
				go l.flush()
			}
		},
	})
	return l, nil
}

// Append persists one event. On failure the event is buffered for the next
// flush rather than lost.
func (l *PGLog) Append(ev model.Event) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.insert(ev)
	})
	if err != nil {
		l.buffer(ev)
		return err
	}
	l.flush()
	return nil
}

func (l *PGLog) insert(ev model.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("pglog: marshal payload: %w", err)
	}
	// ON CONFLICT keeps replayed appends idempotent on event id.
	_, err = l.db.Exec(
		`INSERT INTO events (id, event_type, source, payload, ts)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.EventType), ev.Source, payload, ev.TS,
	)
	return err
}

func (l *PGLog) buffer(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) >= l.maxPend {
		l.pending = l.pending[1:]
	}
	l.pending = append(l.pending, ev)
}

// flush drains the pending buffer through the breaker. Events that still
// fail go back on the queue.
func (l *PGLog) flush() {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	toFlush := l.pending
	l.pending = nil
	l.mu.Unlock()

	flushed := 0
	for i, ev := range toFlush {
		_, err := l.cb.Execute(func() (interface{}, error) {
			return nil, l.insert(ev)
		})
		if err != nil {
			l.mu.Lock()
			l.pending = append(toFlush[i:], l.pending...)
			l.mu.Unlock()
			break
		}
		flushed++
	}
	if flushed > 0 {
		l.log.Info().Int("count", flushed).Msg("flushed buffered events")
	}
}

// Recent returns the latest events, oldest-first.
func (l *PGLog) Recent(limit int) ([]model.Event, error) {
	var rows []eventRow
	err := l.db.Select(&rows,
		`SELECT id, event_type, source, payload, ts
		 FROM events ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pglog: recent: %w", err)
	}

	out := make([]model.Event, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		ev := model.Event{
			ID:        r.ID,
			EventType: model.EventType(r.EventType),
			Source:    r.Source,
			TS:        r.TS,
		}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &ev.Payload); err != nil {
				l.log.Warn().Err(err).Str("id", r.ID).Msg("payload decode failed")
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// PendingCount returns the number of buffered events awaiting flush.
func (l *PGLog) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close closes the database handle.
func (l *PGLog) Close() error {
	return l.db.Close()
}

var _ Log = (*PGLog)(nil)
