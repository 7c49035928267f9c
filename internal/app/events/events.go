// Package events provides the entity-change event bus. The transition engine
// publishes creation and transition events here; the counter maintainer and
// the live feed consume them independently and asynchronously, so a slow
// consumer never blocks the caller of submit or transition.
//
// Delivery is at-least-once from the publisher's point of view and bounded
// per consumer: each subscriber owns a buffered queue drained by its own
// goroutine, and events are dropped (and counted) when that queue is full.
// Consumers that need exactness recover through reconciliation, not through
// the bus.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
)

// Type classifies an entity-change event.
type Type string

const (
	TypeApplicationCreated      Type = "application.created"
	TypeApplicationTransitioned Type = "application.transitioned"
	TypeJobPosted               Type = "job.posted"
	TypeJobViewed               Type = "job.viewed"
	TypeCandidateRegistered     Type = "candidate.registered"
)

// Event is a single entity change. Fields that do not apply to the event type
// are left zero.
type Event struct {
	ID          string             `json:"id"`
	Type        Type               `json:"type"`
	Application string             `json:"application_id,omitempty"`
	Job         string             `json:"job_id,omitempty"`
	Candidate   string             `json:"candidate_id,omitempty"`
	Employer    string             `json:"employer_id,omitempty"`
	From        application.Status `json:"from,omitempty"`
	To          application.Status `json:"to,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Handler processes events on the subscriber's own goroutine.
type Handler func(Event)

// Filter decides whether an event is delivered to a subscriber.
type Filter func(Event) bool

const (
	defaultRetention = 256
	defaultQueue     = 128
)

type subscriber struct {
	id     int64
	filter Filter
	queue  chan Event
	done   chan struct{}
}

// Bus fans entity-change events out to subscribers. It also retains a small
// ring of recent events for introspection.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	nextID int64
	closed bool

	ring []Event
	head int
	size int

	seq     int64
	dropped uint64
}

// NewBus creates a bus retaining the given number of recent events; zero or
// negative means the default retention.
func NewBus(retention int) *Bus {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Bus{ring: make([]Event, retention)}
}

// Publish delivers the event to every matching subscriber without blocking.
// A subscriber whose queue is full loses the event.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.ID == "" {
		b.seq++
		ev.ID = fmt.Sprintf("ev-%d", b.seq)
	}

	b.ring[b.head] = ev
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}

	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// Subscribe registers a handler for all events and returns its unsubscribe
// function. Unsubscribing stops the consumer goroutine and never affects
// other subscribers.
func (b *Bus) Subscribe(handler Handler) func() {
	return b.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler for events accepted by the filter.
func (b *Bus) SubscribeFiltered(filter Filter, handler Handler) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		filter: filter,
		queue:  make(chan Event, defaultQueue),
		done:   make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.queue:
				handler(ev)
			case <-sub.done:
				// Drain what is already queued before stopping.
				for {
					select {
					case ev := <-sub.queue:
						handler(ev)
					default:
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s.id == sub.id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Recent returns the most recent n events, newest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}
	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + len(b.ring)) % len(b.ring)
		result[i] = b.ring[idx]
	}
	return result
}

// Dropped returns the number of events lost to full subscriber queues.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Close detaches all subscribers. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
