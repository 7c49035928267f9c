package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	var (
		mu       sync.Mutex
		received []Event
	)
	done := make(chan struct{})
	unsubscribe := bus.Subscribe(func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		if len(received) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	bus.Publish(Event{Type: TypeApplicationCreated, Application: "a1"})
	bus.Publish(Event{Type: TypeJobViewed, Job: "j1"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if received[0].Type != TypeApplicationCreated || received[1].Type != TypeJobViewed {
		t.Fatalf("unexpected delivery order: %v", received)
	}
	if received[0].ID == "" || received[0].Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned")
	}
}

func TestSubscribeFiltered(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	got := make(chan Event, 8)
	unsubscribe := bus.SubscribeFiltered(func(ev Event) bool {
		return ev.Type == TypeJobViewed
	}, func(ev Event) {
		got <- ev
	})
	defer unsubscribe()

	bus.Publish(Event{Type: TypeApplicationCreated})
	bus.Publish(Event{Type: TypeJobViewed, Job: "j1"})

	select {
	case ev := <-got:
		if ev.Type != TypeJobViewed {
			t.Fatalf("filter let through %s", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("filtered event not delivered")
	}

	select {
	case ev := <-got:
		t.Fatalf("unexpected extra event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeIsolation(t *testing.T) {
	bus := NewBus(0)
	defer bus.Close()

	first := make(chan Event, 8)
	second := make(chan Event, 8)
	unsubFirst := bus.Subscribe(func(ev Event) { first <- ev })
	unsubSecond := bus.Subscribe(func(ev Event) { second <- ev })
	defer unsubSecond()

	unsubFirst()
	// Unsubscribing twice must be harmless.
	unsubFirst()

	bus.Publish(Event{Type: TypeJobPosted, Job: "j1"})

	select {
	case ev := <-second:
		if ev.Job != "j1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remaining subscriber starved after unsubscribe")
	}

	select {
	case <-first:
		t.Fatalf("unsubscribed handler still receiving")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecentNewestFirst(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		bus.Publish(Event{ID: id, Type: TypeJobViewed})
	}

	recent := bus.Recent(10)
	if len(recent) != 4 {
		t.Fatalf("expected retention-bounded 4 events, got %d", len(recent))
	}
	want := []string{"e", "d", "c", "b"}
	for i, ev := range recent {
		if ev.ID != want[i] {
			t.Fatalf("recent[%d] = %s, want %s", i, ev.ID, want[i])
		}
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus(0)
	got := make(chan Event, 1)
	bus.Subscribe(func(ev Event) { got <- ev })

	bus.Close()
	bus.Publish(Event{Type: TypeJobViewed})

	select {
	case <-got:
		t.Fatalf("publish after close delivered an event")
	case <-time.After(50 * time.Millisecond):
	}
}
