// Package jobs manages job postings and their publication lifecycle. Job
// status is independent from the application lifecycle but gates whether the
// transition engine accepts new submissions.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/events"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/pkg/logger"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrInvalidStatus = errors.New("invalid job status change")
)

// Service manages job postings.
type Service struct {
	jobs      storage.JobStore
	employers storage.EmployerStore
	bus       *events.Bus
	log       *logger.Logger
}

// New constructs a job service.
func New(jobs storage.JobStore, employers storage.EmployerStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Service{jobs: jobs, employers: employers, bus: bus, log: log}
}

// Create stores a new job in draft. It does not accept applications until
// published.
func (s *Service) Create(ctx context.Context, employerID, title string) (job.Job, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return job.Job{}, fmt.Errorf("title is required")
	}
	if s.employers != nil {
		if _, err := s.employers.GetEmployer(ctx, employerID); err != nil {
			return job.Job{}, fmt.Errorf("employer validation failed: %w", err)
		}
	}

	created, err := s.jobs.CreateJob(ctx, job.Job{
		EmployerID: employerID,
		Title:      title,
		Status:     job.StatusDraft,
	})
	if err != nil {
		return job.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.log.WithField("job_id", created.ID).
		WithField("employer_id", employerID).
		Info("job created")
	return created, nil
}

// Publish opens the job to applications and announces it on the feed.
func (s *Service) Publish(ctx context.Context, jobID string) (job.Job, error) {
	return s.setStatus(ctx, jobID, job.StatusPublished)
}

// Close stops the job from accepting applications.
func (s *Service) Close(ctx context.Context, jobID string) (job.Job, error) {
	return s.setStatus(ctx, jobID, job.StatusClosed)
}

// Fill marks the job as filled.
func (s *Service) Fill(ctx context.Context, jobID string) (job.Job, error) {
	return s.setStatus(ctx, jobID, job.StatusFilled)
}

func (s *Service) setStatus(ctx context.Context, jobID string, target job.Status) (job.Job, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return job.Job{}, ErrNotFound
		}
		return job.Job{}, fmt.Errorf("load job: %w", err)
	}

	if j.Status == target {
		return j, nil
	}
	// Draft can only move forward to published; a closed or filled job can
	// be re-published.
	if target == job.StatusDraft {
		return job.Job{}, fmt.Errorf("%w: cannot return to draft", ErrInvalidStatus)
	}

	wasDraft := j.Status == job.StatusDraft
	j.Status = target
	updated, err := s.jobs.UpdateJob(ctx, j)
	if err != nil {
		return job.Job{}, fmt.Errorf("update job: %w", err)
	}

	if target == job.StatusPublished && wasDraft && s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.TypeJobPosted,
			Job:       updated.ID,
			Employer:  updated.EmployerID,
			Timestamp: time.Now().UTC(),
		})
	}

	s.log.WithField("job_id", updated.ID).
		WithField("status", target).
		Info("job status changed")
	return updated, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, jobID string) (job.Job, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return job.Job{}, ErrNotFound
	}
	return j, err
}

// List returns jobs for an employer, or all jobs when employerID is empty.
func (s *Service) List(ctx context.Context, employerID string) ([]job.Job, error) {
	return s.jobs.ListJobs(ctx, storage.JobFilter{EmployerID: employerID})
}

// RecordView publishes a view event for a rendered job detail page. Counting
// happens asynchronously in the counter maintainer; the render path never
// writes the counter itself, so retries cannot double count synchronously.
func (s *Service) RecordView(ctx context.Context, jobID string) error {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load job: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.TypeJobViewed,
			Job:       j.ID,
			Employer:  j.EmployerID,
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}
