package transitions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/internal/app/storage/memory"
)

func newFixture(t *testing.T) (*Service, *memory.Store, job.Job) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, nil, nil)

	j, err := store.CreateJob(context.Background(), job.Job{
		EmployerID: "emp-1",
		Title:      "Backend Engineer",
		Status:     job.StatusPublished,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return svc, store, j
}

func TestSubmit(t *testing.T) {
	svc, _, j := newFixture(t)

	app, err := svc.Submit(context.Background(), "cand-1", j.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if app.Status != application.StatusPending {
		t.Fatalf("new application status = %s, want pending", app.Status)
	}
	if app.EmployerID != "emp-1" {
		t.Fatalf("employer not resolved from job: %q", app.EmployerID)
	}
	if app.Version != 1 {
		t.Fatalf("initial version = %d, want 1", app.Version)
	}
	if app.RespondedAt != nil {
		t.Fatalf("responded_at set on submission")
	}
}

func TestSubmitJobNotPublished(t *testing.T) {
	svc, store, _ := newFixture(t)

	draft, err := store.CreateJob(context.Background(), job.Job{EmployerID: "emp-1", Title: "Draft", Status: job.StatusDraft})
	if err != nil {
		t.Fatalf("create draft job: %v", err)
	}

	if _, err := svc.Submit(context.Background(), "cand-1", draft.ID); !errors.Is(err, ErrJobNotAcceptingApplications) {
		t.Fatalf("submit to draft job: %v, want ErrJobNotAcceptingApplications", err)
	}
}

func TestSubmitDuplicatePair(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, "cand-1", j.ID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "cand-1", j.ID); !errors.Is(err, ErrDuplicateApplication) {
		t.Fatalf("second submit: %v, want ErrDuplicateApplication", err)
	}

	// Rejection is terminal but still blocks the pair.
	if _, err := svc.Transition(ctx, first.ID, application.RoleEmployer, application.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.Submit(ctx, "cand-1", j.ID); !errors.Is(err, ErrDuplicateApplication) {
		t.Fatalf("submit after rejection: %v, want ErrDuplicateApplication", err)
	}
}

func TestWithdrawFreesPair(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, "cand-1", j.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Transition(ctx, first.ID, application.RoleCandidate, application.StatusWithdrawn); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := svc.Submit(ctx, "cand-1", j.ID); err != nil {
		t.Fatalf("resubmit after withdrawal: %v", err)
	}
}

func TestTransitionGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("full pipeline to hired", func(t *testing.T) {
		svc, _, j := newFixture(t)
		app, _ := svc.Submit(ctx, "cand-1", j.ID)

		path := []application.Status{
			application.StatusReviewing,
			application.StatusShortlisted,
			application.StatusInterviewed,
			application.StatusOffered,
			application.StatusHired,
		}
		for _, target := range path {
			var err error
			app, err = svc.Transition(ctx, app.ID, application.RoleEmployer, target)
			if err != nil {
				t.Fatalf("transition to %s: %v", target, err)
			}
		}
		if app.Status != application.StatusHired {
			t.Fatalf("final status = %s", app.Status)
		}
	})

	t.Run("skipping a stage is illegal", func(t *testing.T) {
		svc, _, j := newFixture(t)
		app, _ := svc.Submit(ctx, "cand-1", j.ID)

		if _, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusOffered); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("pending -> offered: %v, want ErrIllegalTransition", err)
		}
	})

	t.Run("withdraw allowed only early", func(t *testing.T) {
		svc, _, j := newFixture(t)
		app, _ := svc.Submit(ctx, "cand-1", j.ID)

		app, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusReviewing)
		if err != nil {
			t.Fatalf("to reviewing: %v", err)
		}
		app, err = svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusShortlisted)
		if err != nil {
			t.Fatalf("to shortlisted: %v", err)
		}
		if _, err := svc.Transition(ctx, app.ID, application.RoleCandidate, application.StatusWithdrawn); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("shortlisted -> withdrawn: %v, want ErrIllegalTransition", err)
		}
	})

	t.Run("terminal states stay terminal", func(t *testing.T) {
		svc, _, j := newFixture(t)
		app, _ := svc.Submit(ctx, "cand-1", j.ID)

		app, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusRejected)
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if _, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusReviewing); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("rejected -> reviewing: %v, want ErrIllegalTransition", err)
		}
	})

	t.Run("unknown target status", func(t *testing.T) {
		svc, _, j := newFixture(t)
		app, _ := svc.Submit(ctx, "cand-1", j.ID)

		if _, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.Status("archived")); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("unknown status: %v, want ErrIllegalTransition", err)
		}
	})
}

func TestTransitionRoles(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)

	// Candidates cannot drive pipeline advancement.
	if _, err := svc.Transition(ctx, app.ID, application.RoleCandidate, application.StatusReviewing); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("candidate advancing: %v, want ErrUnauthorized", err)
	}
	// Employers cannot withdraw on the candidate's behalf.
	if _, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusWithdrawn); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("employer withdrawing: %v, want ErrUnauthorized", err)
	}
	// The candidate may withdraw.
	if _, err := svc.Transition(ctx, app.ID, application.RoleCandidate, application.StatusWithdrawn); err != nil {
		t.Fatalf("candidate withdrawing: %v", err)
	}
}

func TestRespondedAtSetOnce(t *testing.T) {
	svc, store, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)

	app, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusReviewing)
	if err != nil {
		t.Fatalf("to reviewing: %v", err)
	}
	if app.RespondedAt == nil {
		t.Fatalf("responded_at not set on first employer response")
	}
	first := *app.RespondedAt

	time.Sleep(5 * time.Millisecond)
	app, err = svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusShortlisted)
	if err != nil {
		t.Fatalf("to shortlisted: %v", err)
	}
	if !app.RespondedAt.Equal(first) {
		t.Fatalf("responded_at changed on later transition: %v -> %v", first, app.RespondedAt)
	}

	// Candidate withdrawal from pending must not count as a response.
	app2, _ := svc.Submit(ctx, "cand-2", j.ID)
	app2, err = svc.Transition(ctx, app2.ID, application.RoleCandidate, application.StatusWithdrawn)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if app2.RespondedAt != nil {
		t.Fatalf("responded_at set by candidate withdrawal")
	}

	stored, err := store.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.RespondedAt.Equal(first) {
		t.Fatalf("stored responded_at drifted")
	}
}

func TestTransitionConflict(t *testing.T) {
	svc, store, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)

	// Simulate a concurrent winner by bumping the row behind the engine's
	// back.
	stale, _ := store.GetApplication(ctx, app.ID)
	stale.Status = application.StatusReviewing
	if _, err := store.UpdateApplication(ctx, stale); err != nil {
		t.Fatalf("seed conflicting update: %v", err)
	}

	conflicted, _ := store.GetApplication(ctx, app.ID)
	conflicted.Version = app.Version // stale read
	conflicted.Status = application.StatusRejected
	if _, err := store.UpdateApplication(ctx, conflicted); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("stale write: %v, want ErrVersionConflict", err)
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transition(ctx, app.ID, application.RoleEmployer, application.StatusReviewing)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrTransitionConflict), errors.Is(err, ErrIllegalTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d (conflicts %d)", wins, conflicts)
	}
}

func TestRate(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)

	if _, err := svc.Rate(ctx, app.ID, "emp-1", 0); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("stars 0: %v, want ErrInvalidRating", err)
	}
	if _, err := svc.Rate(ctx, app.ID, "emp-1", 6); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("stars 6: %v, want ErrInvalidRating", err)
	}
	if _, err := svc.Rate(ctx, app.ID, "emp-2", 4); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign employer: %v, want ErrUnauthorized", err)
	}

	rated, err := svc.Rate(ctx, app.ID, "emp-1", 3)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.EmployerRating != 3 {
		t.Fatalf("rating = %d, want 3", rated.EmployerRating)
	}

	// Ratings overwrite; the last write wins.
	rated, err = svc.Rate(ctx, app.ID, "emp-1", 5)
	if err != nil {
		t.Fatalf("re-rate: %v", err)
	}
	if rated.EmployerRating != 5 {
		t.Fatalf("rating = %d, want 5", rated.EmployerRating)
	}
}

func TestScheduleInterview(t *testing.T) {
	svc, _, j := newFixture(t)
	ctx := context.Background()

	app, _ := svc.Submit(ctx, "cand-1", j.ID)
	when := time.Now().Add(48 * time.Hour)

	if _, err := svc.ScheduleInterview(ctx, app.ID, when); !errors.Is(err, ErrNotInterviewed) {
		t.Fatalf("schedule while pending: %v, want ErrNotInterviewed", err)
	}

	for _, target := range []application.Status{
		application.StatusReviewing,
		application.StatusShortlisted,
		application.StatusInterviewed,
	} {
		var err error
		app, err = svc.Transition(ctx, app.ID, application.RoleEmployer, target)
		if err != nil {
			t.Fatalf("to %s: %v", target, err)
		}
	}

	scheduled, err := svc.ScheduleInterview(ctx, app.ID, when)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if scheduled.InterviewScheduledAt == nil || !scheduled.InterviewScheduledAt.Equal(when.UTC()) {
		t.Fatalf("interview time not stored: %v", scheduled.InterviewScheduledAt)
	}
}

func TestGetUnknown(t *testing.T) {
	svc, _, _ := newFixture(t)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v, want ErrNotFound", err)
	}
}
