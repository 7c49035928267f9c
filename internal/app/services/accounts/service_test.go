package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/events"
	"github.com/hireloop/hireloop/internal/app/storage/memory"
)

func TestRegisterCandidatePublishesSignup(t *testing.T) {
	store := memory.New()
	bus := events.NewBus(8)
	defer bus.Close()
	svc := New(store, store, bus, nil)

	got := make(chan events.Event, 1)
	unsubscribe := bus.SubscribeFiltered(func(ev events.Event) bool {
		return ev.Type == events.TypeCandidateRegistered
	}, func(ev events.Event) { got <- ev })
	defer unsubscribe()

	c, err := svc.RegisterCandidate(context.Background(), "  Ada  ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected id to be generated")
	}
	if c.Name != "Ada" {
		t.Fatalf("name = %q, want trimmed", c.Name)
	}
	if c.ProfileComplete {
		t.Fatal("new candidate should not have a complete profile")
	}

	ev := <-got
	if ev.Candidate != c.ID {
		t.Fatalf("event candidate = %q, want %q", ev.Candidate, c.ID)
	}
}

func TestRegisterCandidateRequiresName(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)

	if _, err := svc.RegisterCandidate(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestCompleteProfileForwardOnly(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	c, err := svc.RegisterCandidate(ctx, "Ada")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := svc.CompleteProfile(ctx, c.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !updated.ProfileComplete {
		t.Fatal("profile not marked complete")
	}

	// Completing again is a no-op, not an error.
	again, err := svc.CompleteProfile(ctx, c.ID)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if !again.ProfileComplete {
		t.Fatal("flag must never move backward")
	}

	if _, err := svc.CompleteProfile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing candidate err = %v, want ErrNotFound", err)
	}
}

func TestSaveJobValidatesCandidate(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil, nil)
	ctx := context.Background()

	c, err := svc.RegisterCandidate(ctx, "Ada")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	j, err := store.CreateJob(ctx, job.Job{EmployerID: "e1", Title: "Engineer"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.SaveJob(ctx, c.ID, j.ID); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.SaveJob(ctx, c.ID, j.ID); err != nil {
		t.Fatalf("repeat save: %v", err)
	}
	n, _ := store.CountSavedJobs(ctx, c.ID)
	if n != 1 {
		t.Fatalf("saved = %d, want 1", n)
	}

	if err := svc.SaveJob(ctx, "missing", j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing candidate err = %v, want ErrNotFound", err)
	}
}
