package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/app/events"
)

func startFeed(t *testing.T, capacity int) (*events.Bus, *Feed) {
	t.Helper()
	bus := events.NewBus(0)
	f := New(bus, capacity, nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("start feed: %v", err)
	}
	t.Cleanup(func() {
		f.Stop(context.Background())
		bus.Close()
	})
	return bus, f
}

func waitForSize(t *testing.T, f *Feed, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.Recent(n+1)) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("feed never reached %d entries", n)
}

func TestRecentOrderAndCap(t *testing.T) {
	bus, f := startFeed(t, 3)

	for i := 0; i < 5; i++ {
		bus.Publish(events.Event{
			Type: events.TypeJobPosted,
			Job:  fmt.Sprintf("job-%d", i),
		})
	}

	waitForSize(t, f, 3)
	recent := f.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected cap of 3 entries, got %d", len(recent))
	}
	// Oldest entries are dropped; newest first.
	want := []string{"job-4", "job-3", "job-2"}
	for i, a := range recent {
		if a.JobID != want[i] {
			t.Fatalf("recent[%d].JobID = %s, want %s", i, a.JobID, want[i])
		}
	}
}

func TestRenderedMessages(t *testing.T) {
	bus, f := startFeed(t, 0)

	bus.Publish(events.Event{Type: events.TypeCandidateRegistered, Candidate: "c1"})
	bus.Publish(events.Event{Type: events.TypeApplicationCreated, Job: "j1", Candidate: "c1"})
	bus.Publish(events.Event{Type: events.TypeApplicationTransitioned, Job: "j1", From: "offered", To: "hired"})
	// Non-hire transitions never reach the feed.
	bus.Publish(events.Event{Type: events.TypeApplicationTransitioned, Job: "j1", From: "pending", To: "reviewing"})

	waitForSize(t, f, 3)
	time.Sleep(20 * time.Millisecond)

	recent := f.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(recent))
	}
	if recent[0].Type != ActivityHire {
		t.Fatalf("newest activity = %s, want hire", recent[0].Type)
	}
	if recent[2].Type != ActivitySignup {
		t.Fatalf("oldest activity = %s, want signup", recent[2].Type)
	}
}

func TestSubscribeScoped(t *testing.T) {
	bus, f := startFeed(t, 0)

	ch, unsubscribe := f.Subscribe(Scope{EmployerID: "e1"})
	defer unsubscribe()

	bus.Publish(events.Event{Type: events.TypeJobPosted, Job: "j1", Employer: "e2"})
	bus.Publish(events.Event{Type: events.TypeJobPosted, Job: "j2", Employer: "e1"})

	select {
	case a := <-ch:
		if a.JobID != "j2" {
			t.Fatalf("scoped consumer received %s", a.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scoped activity not delivered")
	}

	select {
	case a := <-ch:
		t.Fatalf("out-of-scope activity delivered: %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeLeavesOthers(t *testing.T) {
	bus, f := startFeed(t, 0)

	chA, unsubA := f.Subscribe(Scope{})
	chB, unsubB := f.Subscribe(Scope{})
	defer unsubB()

	unsubA()
	unsubA()

	if _, open := <-chA; open {
		t.Fatalf("unsubscribed channel still open")
	}

	bus.Publish(events.Event{Type: events.TypeJobPosted, Job: "j1"})

	select {
	case a := <-chB:
		if a.JobID != "j1" {
			t.Fatalf("unexpected activity %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("surviving consumer starved")
	}
}

func TestStopClosesConsumers(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()
	f := New(bus, 0, nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch, _ := f.Subscribe(Scope{})
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, open := <-ch; open {
		t.Fatalf("consumer channel not closed on stop")
	}
}
