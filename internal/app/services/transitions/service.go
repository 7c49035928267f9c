// Package transitions implements the application lifecycle engine. It is the
// sole mutation gateway for application status: every change is validated
// against the legal-transition graph and the role permission table, committed
// with an optimistic version check, and published to the event bus.
package transitions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/events"
	appmetrics "github.com/hireloop/hireloop/internal/app/metrics"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/pkg/logger"
)

// Validation errors. All of them leave the entity store unchanged.
var (
	ErrNotFound                    = errors.New("application not found")
	ErrIllegalTransition           = errors.New("illegal transition")
	ErrUnauthorized                = errors.New("role not permitted for this transition")
	ErrDuplicateApplication        = errors.New("active application already exists for this candidate and job")
	ErrJobNotAcceptingApplications = errors.New("job is not accepting applications")
	ErrTransitionConflict          = errors.New("concurrent transition on the same application")
	ErrInvalidRating               = errors.New("rating must be between 1 and 5")
	ErrNotInterviewed              = errors.New("interview can only be scheduled for interviewed applications")
)

// Service is the transition engine.
type Service struct {
	apps storage.ApplicationStore
	jobs storage.JobStore
	bus  *events.Bus
	log  *logger.Logger

	now func() time.Time
}

// New constructs a transition engine. The bus may be nil in tests that do not
// care about events.
func New(apps storage.ApplicationStore, jobs storage.JobStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("transitions")
	}
	return &Service{
		apps: apps,
		jobs: jobs,
		bus:  bus,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a new application in the pending state. The job must be
// published and the (candidate, job) pair must not already have a
// non-withdrawn application.
func (s *Service) Submit(ctx context.Context, candidateID, jobID string) (application.Application, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			appmetrics.RecordSubmission("not_found")
			return application.Application{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return application.Application{}, fmt.Errorf("load job: %w", err)
	}
	if !j.AcceptingApplications() {
		appmetrics.RecordSubmission("job_closed")
		return application.Application{}, ErrJobNotAcceptingApplications
	}

	app := application.Application{
		CandidateID: candidateID,
		JobID:       jobID,
		EmployerID:  j.EmployerID,
		Status:      application.StatusPending,
		CreatedAt:   s.now(),
	}

	// The store enforces the one-active-application-per-pair invariant
	// atomically, so two racing submits cannot both succeed.
	created, err := s.apps.CreateApplication(ctx, app)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			appmetrics.RecordSubmission("duplicate")
			return application.Application{}, ErrDuplicateApplication
		}
		return application.Application{}, fmt.Errorf("create application: %w", err)
	}

	s.publish(events.Event{
		Type:        events.TypeApplicationCreated,
		Application: created.ID,
		Job:         created.JobID,
		Candidate:   created.CandidateID,
		Employer:    created.EmployerID,
		To:          created.Status,
		Timestamp:   created.CreatedAt,
	})

	appmetrics.RecordSubmission("ok")
	s.log.WithField("application_id", created.ID).
		WithField("job_id", created.JobID).
		WithField("candidate_id", created.CandidateID).
		Info("application submitted")
	return created, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, applicationID string) (application.Application, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if errors.Is(err, storage.ErrNotFound) {
		return application.Application{}, ErrNotFound
	}
	return app, err
}

// Transition moves an application along one edge of the status graph. Two
// concurrent transitions on the same application serialize on the row
// version; the loser gets ErrTransitionConflict and the store is unchanged.
func (s *Service) Transition(ctx context.Context, applicationID string, actor application.Role, target application.Status) (application.Application, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			appmetrics.RecordTransition(string(target), "not_found")
			return application.Application{}, ErrNotFound
		}
		return application.Application{}, fmt.Errorf("load application: %w", err)
	}

	if !target.Valid() {
		appmetrics.RecordTransition(string(target), "illegal")
		return application.Application{}, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, target)
	}
	from := app.Status
	if !from.CanTransition(target) {
		appmetrics.RecordTransition(string(target), "illegal")
		return application.Application{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, target)
	}
	if application.AllowedRole(target) != actor {
		appmetrics.RecordTransition(string(target), "unauthorized")
		return application.Application{}, fmt.Errorf("%w: %s may not drive %s -> %s", ErrUnauthorized, actor, from, target)
	}

	now := s.now()
	app.Status = target
	// First employer response to a pending application, set exactly once.
	if actor == application.RoleEmployer && from == application.StatusPending && app.RespondedAt == nil {
		app.RespondedAt = &now
	}

	updated, err := s.apps.UpdateApplication(ctx, app)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			appmetrics.RecordTransition(string(target), "conflict")
			return application.Application{}, ErrTransitionConflict
		}
		return application.Application{}, fmt.Errorf("commit transition: %w", err)
	}

	s.publish(events.Event{
		Type:        events.TypeApplicationTransitioned,
		Application: updated.ID,
		Job:         updated.JobID,
		Candidate:   updated.CandidateID,
		Employer:    updated.EmployerID,
		From:        from,
		To:          target,
		Timestamp:   now,
	})

	appmetrics.RecordTransition(string(target), "ok")
	s.log.WithField("application_id", updated.ID).
		WithField("from", from).
		WithField("to", target).
		WithField("actor", actor).
		Info("application transitioned")
	return updated, nil
}

// Rate sets the employer rating, an idempotent overwrite independent of
// status. Only the owning employer may rate.
func (s *Service) Rate(ctx context.Context, applicationID, actorEmployerID string, stars int) (application.Application, error) {
	if stars < 1 || stars > 5 {
		return application.Application{}, ErrInvalidRating
	}

	for {
		app, err := s.apps.GetApplication(ctx, applicationID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return application.Application{}, ErrNotFound
			}
			return application.Application{}, fmt.Errorf("load application: %w", err)
		}
		if app.EmployerID != actorEmployerID {
			return application.Application{}, fmt.Errorf("%w: employer %s does not own application %s", ErrUnauthorized, actorEmployerID, applicationID)
		}

		app.EmployerRating = stars
		updated, err := s.apps.UpdateApplication(ctx, app)
		if errors.Is(err, storage.ErrVersionConflict) {
			// The rating has no ordering relationship with transitions, so a
			// lost race is safe to retry against the fresh row.
			continue
		}
		if err != nil {
			return application.Application{}, fmt.Errorf("store rating: %w", err)
		}
		return updated, nil
	}
}

// ScheduleInterview records the interview time. The application must already
// be in the interviewed state.
func (s *Service) ScheduleInterview(ctx context.Context, applicationID string, at time.Time) (application.Application, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return application.Application{}, ErrNotFound
		}
		return application.Application{}, fmt.Errorf("load application: %w", err)
	}
	if app.Status != application.StatusInterviewed {
		return application.Application{}, ErrNotInterviewed
	}

	at = at.UTC()
	app.InterviewScheduledAt = &at
	updated, err := s.apps.UpdateApplication(ctx, app)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return application.Application{}, ErrTransitionConflict
		}
		return application.Application{}, fmt.Errorf("store interview time: %w", err)
	}
	return updated, nil
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
