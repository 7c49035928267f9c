// Package feed delivers a bounded, time-ordered activity feed to dashboard
// consumers. It consumes the same entity-change events as the counter
// maintainer but is best-effort by design: entries beyond the cap are
// dropped oldest-first, delivery to a slow consumer is at-most-once, and
// nothing downstream ever derives counters from it.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hireloop/hireloop/internal/app/events"
	appmetrics "github.com/hireloop/hireloop/internal/app/metrics"
	"github.com/hireloop/hireloop/internal/app/system"
	"github.com/hireloop/hireloop/pkg/logger"
)

// DefaultCapacity is the bounded window consumers see.
const DefaultCapacity = 50

var _ system.Service = (*Feed)(nil)

// ActivityType classifies a feed entry.
type ActivityType string

const (
	ActivitySignup      ActivityType = "signup"
	ActivityApplication ActivityType = "application"
	ActivityJobPost     ActivityType = "job_post"
	ActivityHire        ActivityType = "hire"
)

// Activity is one human-readable feed entry.
type Activity struct {
	Type        ActivityType `json:"type"`
	Message     string       `json:"message"`
	CandidateID string       `json:"candidate_id,omitempty"`
	EmployerID  string       `json:"employer_id,omitempty"`
	JobID       string       `json:"job_id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Scope restricts which activities a subscriber receives. The zero value
// receives everything.
type Scope struct {
	EmployerID  string
	CandidateID string
}

func (s Scope) matches(a Activity) bool {
	if s.EmployerID != "" && a.EmployerID != s.EmployerID {
		return false
	}
	if s.CandidateID != "" && a.CandidateID != s.CandidateID {
		return false
	}
	return true
}

type consumer struct {
	id    int64
	scope Scope
	ch    chan Activity
}

// Feed is the live activity fan-out.
type Feed struct {
	bus *events.Bus
	log *logger.Logger

	mu        sync.RWMutex
	ring      []Activity
	head      int
	size      int
	consumers map[int64]*consumer
	nextID    int64

	unsubscribe func()
	running     bool
}

// New creates a feed with the given window capacity; zero or negative means
// DefaultCapacity.
func New(bus *events.Bus, capacity int, log *logger.Logger) *Feed {
	if log == nil {
		log = logger.NewDefault("feed")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		bus:       bus,
		log:       log,
		ring:      make([]Activity, capacity),
		consumers: make(map[int64]*consumer),
	}
}

func (f *Feed) Name() string { return "live-feed" }

// Start attaches the feed to the event bus.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}

	f.unsubscribe = f.bus.SubscribeFiltered(func(ev events.Event) bool {
		switch ev.Type {
		case events.TypeApplicationCreated, events.TypeJobPosted, events.TypeCandidateRegistered:
			return true
		case events.TypeApplicationTransitioned:
			return ev.To == "hired"
		}
		return false
	}, f.handle)

	f.running = true
	f.log.Info("live feed started")
	return nil
}

// Stop detaches from the bus and closes all consumer channels.
func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}

	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
	for id, c := range f.consumers {
		close(c.ch)
		delete(f.consumers, id)
	}

	f.running = false
	f.log.Info("live feed stopped")
	return nil
}

// handle runs on the bus subscriber goroutine: events arrive in publish
// order, so the ring preserves event-arrival order.
func (f *Feed) handle(ev events.Event) {
	activity, ok := render(ev)
	if !ok {
		return
	}

	f.mu.Lock()
	f.ring[f.head] = activity
	f.head = (f.head + 1) % len(f.ring)
	if f.size < len(f.ring) {
		f.size++
	}
	f.mu.Unlock()

	// Sends happen under the read lock; channels are only closed under the
	// write lock, so a send can never race a close.
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.consumers {
		if !c.scope.matches(activity) {
			continue
		}
		select {
		case c.ch <- activity:
		default:
			// Best-effort feed: a slow consumer loses the entry. Counters
			// are maintained independently, so nothing desynchronizes.
			appmetrics.RecordFeedDrop()
		}
	}
}

// render turns a raw entity event into a human-readable activity.
func render(ev events.Event) (Activity, bool) {
	base := Activity{
		CandidateID: ev.Candidate,
		EmployerID:  ev.Employer,
		JobID:       ev.Job,
		Timestamp:   ev.Timestamp,
	}
	switch ev.Type {
	case events.TypeCandidateRegistered:
		base.Type = ActivitySignup
		base.Message = "A new candidate joined the platform"
	case events.TypeApplicationCreated:
		base.Type = ActivityApplication
		base.Message = fmt.Sprintf("New application received for job %s", ev.Job)
	case events.TypeJobPosted:
		base.Type = ActivityJobPost
		base.Message = fmt.Sprintf("A new job %s was posted", ev.Job)
	case events.TypeApplicationTransitioned:
		base.Type = ActivityHire
		base.Message = fmt.Sprintf("A candidate was hired for job %s", ev.Job)
	default:
		return Activity{}, false
	}
	return base, true
}

// Recent returns up to n activities, newest first.
func (f *Feed) Recent(n int) []Activity {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || f.size == 0 {
		return nil
	}
	if n > f.size {
		n = f.size
	}
	result := make([]Activity, n)
	for i := 0; i < n; i++ {
		idx := (f.head - 1 - i + len(f.ring)) % len(f.ring)
		result[i] = f.ring[idx]
	}
	return result
}

// Subscribe registers a consumer for live activities within the scope and
// returns its channel plus an unsubscribe function. Unsubscribing closes
// the channel and never affects other consumers or the publisher.
func (f *Feed) Subscribe(scope Scope) (<-chan Activity, func()) {
	f.mu.Lock()
	f.nextID++
	c := &consumer{
		id:    f.nextID,
		scope: scope,
		ch:    make(chan Activity, DefaultCapacity),
	}
	f.consumers[c.id] = c
	f.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.consumers[c.id]; ok {
				delete(f.consumers, c.id)
				close(c.ch)
			}
			f.mu.Unlock()
		})
	}
	return c.ch, unsubscribe
}
