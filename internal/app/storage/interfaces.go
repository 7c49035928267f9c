// Package storage declares the persistence interfaces consumed by the
// services. Implementations must be safe for concurrent use; the memory store
// backs tests and local development, postgres is the durable backend and
// redis provides the counter fast-path.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/candidate"
	"github.com/hireloop/hireloop/internal/app/domain/employer"
	"github.com/hireloop/hireloop/internal/app/domain/job"
)

// Sentinel errors shared by every implementation.
var (
	// ErrNotFound indicates the identified row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict indicates an optimistic update lost the race: the
	// row's version no longer matches the version the caller read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate indicates a uniqueness violation, e.g. a second active
	// application for the same (candidate, job) pair.
	ErrDuplicate = errors.New("duplicate")
)

// ApplicationFilter narrows application queries. Zero values mean "any".
type ApplicationFilter struct {
	CandidateID string
	JobID       string
	EmployerID  string
	Status      application.Status
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// JobFilter narrows job queries.
type JobFilter struct {
	EmployerID  string
	Status      job.Status
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// CandidateFilter narrows candidate queries.
type CandidateFilter struct {
	CreatedFrom     time.Time
	CreatedTo       time.Time
	ProfileComplete *bool
}

// ApplicationStore persists applications.
type ApplicationStore interface {
	// CreateApplication inserts a new application. It enforces the
	// one-active-application-per-pair invariant atomically and returns
	// ErrDuplicate when a non-withdrawn application already exists for the
	// pair.
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	// UpdateApplication writes app back, guarded by app.Version: the row is
	// only updated when its stored version still equals app.Version, and the
	// returned application carries the bumped version. A stale version yields
	// ErrVersionConflict and leaves the row untouched.
	UpdateApplication(ctx context.Context, app application.Application) (application.Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]application.Application, error)
	// CountApplications is the count-only query mode: cardinality without
	// materializing rows.
	CountApplications(ctx context.Context, f ApplicationFilter) (int64, error)
	// ActiveApplicationExists reports whether a non-withdrawn application for
	// the pair exists.
	ActiveApplicationExists(ctx context.Context, candidateID, jobID string) (bool, error)
}

// JobStore persists job postings.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	GetJob(ctx context.Context, id string) (job.Job, error)
	UpdateJob(ctx context.Context, j job.Job) (job.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]job.Job, error)
	CountJobs(ctx context.Context, f JobFilter) (int64, error)
	// SumJobViews totals ViewsCount across jobs, optionally per employer.
	SumJobViews(ctx context.Context, employerID string) (int64, error)
}

// JobCounterStore maintains the denormalized job counters. Mutation happens
// only through the counter maintainer.
type JobCounterStore interface {
	// IncrementApplications bumps a job's application counter exactly once
	// per application id. Redelivery with an already-seen id is a no-op and
	// returns applied=false.
	IncrementApplications(ctx context.Context, jobID, applicationID string) (applied bool, err error)
	// IncrementViews atomically bumps a job's view counter and returns the
	// new value. Views are not deduplicated.
	IncrementViews(ctx context.Context, jobID string) (int64, error)
	// SetApplicationsCount overwrites the counter during reconciliation.
	SetApplicationsCount(ctx context.Context, jobID string, n int64) error
}

// CandidateStore persists candidates and their saved jobs.
type CandidateStore interface {
	CreateCandidate(ctx context.Context, c candidate.Candidate) (candidate.Candidate, error)
	GetCandidate(ctx context.Context, id string) (candidate.Candidate, error)
	UpdateCandidate(ctx context.Context, c candidate.Candidate) (candidate.Candidate, error)
	CountCandidates(ctx context.Context, f CandidateFilter) (int64, error)
	// SaveJob bookmarks a job for a candidate. Saving twice is a no-op.
	SaveJob(ctx context.Context, candidateID, jobID string) error
	// CountSavedJobs returns bookmark cardinality, for all candidates when
	// candidateID is empty.
	CountSavedJobs(ctx context.Context, candidateID string) (int64, error)
}

// EmployerStore persists employers.
type EmployerStore interface {
	CreateEmployer(ctx context.Context, e employer.Employer) (employer.Employer, error)
	GetEmployer(ctx context.Context, id string) (employer.Employer, error)
	CountEmployers(ctx context.Context) (int64, error)
}
