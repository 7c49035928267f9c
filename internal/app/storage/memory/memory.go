// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/candidate"
	"github.com/hireloop/hireloop/internal/app/domain/employer"
	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/storage"
)

// Store is an in-memory implementation of every storage interface.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	apps        map[string]application.Application
	jobs        map[string]job.Job
	candidates  map[string]candidate.Candidate
	employers   map[string]employer.Employer
	countedApps map[string]map[string]bool // jobID -> counted application ids
	savedJobs   map[string]map[string]bool // candidateID -> saved job ids
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.JobCounterStore = (*Store)(nil)
var _ storage.CandidateStore = (*Store)(nil)
var _ storage.EmployerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		apps:        make(map[string]application.Application),
		jobs:        make(map[string]job.Job),
		candidates:  make(map[string]candidate.Candidate),
		employers:   make(map[string]employer.Employer),
		countedApps: make(map[string]map[string]bool),
		savedJobs:   make(map[string]map[string]bool),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apps {
		if existing.CandidateID == app.CandidateID && existing.JobID == app.JobID && existing.Active() {
			return application.Application{}, storage.ErrDuplicate
		}
	}

	if app.ID == "" {
		app.ID = s.nextIDLocked()
	} else if _, exists := s.apps[app.ID]; exists {
		return application.Application{}, storage.ErrDuplicate
	}

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	app.Version = 1

	s.apps[app.ID] = app
	return app, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	return app, nil
}

func (s *Store) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.apps[app.ID]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	if original.Version != app.Version {
		return application.Application{}, storage.ErrVersionConflict
	}

	app.CandidateID = original.CandidateID
	app.JobID = original.JobID
	app.CreatedAt = original.CreatedAt
	app.Version = original.Version + 1
	app.UpdatedAt = time.Now().UTC()

	s.apps[app.ID] = app
	return app, nil
}

func (s *Store) ListApplications(_ context.Context, f storage.ApplicationFilter) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]application.Application, 0)
	for _, app := range s.apps {
		if s.matchesLocked(app, f) {
			result = append(result, app)
		}
	}
	return result, nil
}

func (s *Store) CountApplications(_ context.Context, f storage.ApplicationFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, app := range s.apps {
		if s.matchesLocked(app, f) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ActiveApplicationExists(_ context.Context, candidateID, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, app := range s.apps {
		if app.CandidateID == candidateID && app.JobID == jobID && app.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) matchesLocked(app application.Application, f storage.ApplicationFilter) bool {
	if f.CandidateID != "" && app.CandidateID != f.CandidateID {
		return false
	}
	if f.JobID != "" && app.JobID != f.JobID {
		return false
	}
	if f.EmployerID != "" && app.EmployerID != f.EmployerID {
		return false
	}
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	if !f.CreatedFrom.IsZero() && app.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && !app.CreatedAt.Before(f.CreatedTo) {
		return false
	}
	return true
}

// JobStore implementation ------------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = s.nextIDLocked()
	} else if _, exists := s.jobs[j.ID]; exists {
		return job.Job{}, storage.ErrDuplicate
	}

	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = job.StatusDraft
	}
	j.ApplicationsCount = 0
	j.ViewsCount = 0

	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.jobs[j.ID]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}

	j.EmployerID = original.EmployerID
	j.CreatedAt = original.CreatedAt
	// Counters belong to the counter maintainer, not to job updates.
	j.ApplicationsCount = original.ApplicationsCount
	j.ViewsCount = original.ViewsCount
	j.UpdatedAt = time.Now().UTC()

	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) ListJobs(_ context.Context, f storage.JobFilter) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]job.Job, 0)
	for _, j := range s.jobs {
		if f.EmployerID != "" && j.EmployerID != f.EmployerID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if !f.CreatedFrom.IsZero() && j.CreatedAt.Before(f.CreatedFrom) {
			continue
		}
		if !f.CreatedTo.IsZero() && !j.CreatedAt.Before(f.CreatedTo) {
			continue
		}
		result = append(result, j)
	}
	return result, nil
}

func (s *Store) CountJobs(ctx context.Context, f storage.JobFilter) (int64, error) {
	jobs, err := s.ListJobs(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(jobs)), nil
}

func (s *Store) SumJobViews(_ context.Context, employerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, j := range s.jobs {
		if employerID == "" || j.EmployerID == employerID {
			total += j.ViewsCount
		}
	}
	return total, nil
}

// JobCounterStore implementation -----------------------------------------------

func (s *Store) IncrementApplications(_ context.Context, jobID, applicationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return false, storage.ErrNotFound
	}

	counted := s.countedApps[jobID]
	if counted == nil {
		counted = make(map[string]bool)
		s.countedApps[jobID] = counted
	}
	if counted[applicationID] {
		return false, nil
	}
	counted[applicationID] = true

	j.ApplicationsCount++
	j.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = j
	return true, nil
}

func (s *Store) IncrementViews(_ context.Context, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	j.ViewsCount++
	j.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = j
	return j.ViewsCount, nil
}

func (s *Store) SetApplicationsCount(_ context.Context, jobID string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	if n < 0 {
		n = 0
	}
	j.ApplicationsCount = n
	j.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = j
	return nil
}

// CandidateStore implementation ------------------------------------------------

func (s *Store) CreateCandidate(_ context.Context, c candidate.Candidate) (candidate.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.candidates[c.ID]; exists {
		return candidate.Candidate{}, storage.ErrDuplicate
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	s.candidates[c.ID] = c
	return c, nil
}

func (s *Store) GetCandidate(_ context.Context, id string) (candidate.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return candidate.Candidate{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCandidate(_ context.Context, c candidate.Candidate) (candidate.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.candidates[c.ID]
	if !ok {
		return candidate.Candidate{}, storage.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	s.candidates[c.ID] = c
	return c, nil
}

func (s *Store) CountCandidates(_ context.Context, f storage.CandidateFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.candidates {
		if !f.CreatedFrom.IsZero() && c.CreatedAt.Before(f.CreatedFrom) {
			continue
		}
		if !f.CreatedTo.IsZero() && !c.CreatedAt.Before(f.CreatedTo) {
			continue
		}
		if f.ProfileComplete != nil && c.ProfileComplete != *f.ProfileComplete {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Store) SaveJob(_ context.Context, candidateID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[candidateID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.jobs[jobID]; !ok {
		return storage.ErrNotFound
	}

	saved := s.savedJobs[candidateID]
	if saved == nil {
		saved = make(map[string]bool)
		s.savedJobs[candidateID] = saved
	}
	saved[jobID] = true
	return nil
}

func (s *Store) CountSavedJobs(_ context.Context, candidateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if candidateID != "" {
		return int64(len(s.savedJobs[candidateID])), nil
	}
	var n int64
	for _, saved := range s.savedJobs {
		n += int64(len(saved))
	}
	return n, nil
}

// EmployerStore implementation ---------------------------------------------------

func (s *Store) CreateEmployer(_ context.Context, e employer.Employer) (employer.Employer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	} else if _, exists := s.employers[e.ID]; exists {
		return employer.Employer{}, storage.ErrDuplicate
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt

	s.employers[e.ID] = e
	return e, nil
}

func (s *Store) GetEmployer(_ context.Context, id string) (employer.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employers[id]
	if !ok {
		return employer.Employer{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) CountEmployers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.employers)), nil
}
