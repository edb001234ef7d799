package bus

import (
	"sync"

	"riskdesk/internal/model"
)

// Subscription is one live consumer of the bus. Events arrive on C; Close
// unregisters the subscriber and closes C.
type Subscription struct {
	C <-chan model.Event

	ch     chan model.Event
	types  map[model.EventType]struct{} // nil = all types
	cancel func()
	once   sync.Once
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

func (s *Subscription) wants(t model.EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// FanOut broadcasts events to N subscribers. If a subscriber's channel is
// full the event is dropped for that consumer, so a slow subscriber never
// blocks the bus.
type FanOut struct {
	mu      sync.Mutex
	subs    map[int]*Subscription
	nextID  int
	bufSize int

	// OnDrop is called when an event is dropped for a subscriber.
	OnDrop func(subscriberID int)
}

// NewFanOut creates a FanOut with the given per-subscriber buffer size.
func NewFanOut(bufSize int) *FanOut {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &FanOut{
		subs:    make(map[int]*Subscription),
		bufSize: bufSize,
	}
}

// Subscribe registers a consumer for the given event types (all when empty).
func (f *FanOut) Subscribe(types ...model.EventType) *Subscription {
	ch := make(chan model.Event, f.bufSize)
	sub := &Subscription{C: ch, ch: ch}
	if len(types) > 0 {
		sub.types = make(map[model.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	sub.cancel = func() {
		f.mu.Lock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
		f.mu.Unlock()
	}
	return sub
}

// Publish delivers ev to every matching subscriber, dropping on full buffers.
func (f *FanOut) Publish(ev model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, sub := range f.subs {
		if !sub.wants(ev.EventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if f.OnDrop != nil {
				f.OnDrop(id)
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (f *FanOut) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// CloseAll unregisters every subscriber and closes their channels.
func (f *FanOut) CloseAll() {
	f.mu.Lock()
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
	f.mu.Unlock()
}
