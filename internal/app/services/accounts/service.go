// Package accounts registers candidates and employers and tracks the
// profile signals the aggregator reports on.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/candidate"
	"github.com/hireloop/hireloop/internal/app/domain/employer"
	"github.com/hireloop/hireloop/internal/app/events"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/pkg/logger"
)

var ErrNotFound = errors.New("account not found")

// Service manages candidate and employer accounts.
type Service struct {
	candidates storage.CandidateStore
	employers  storage.EmployerStore
	bus        *events.Bus
	log        *logger.Logger
}

func New(candidates storage.CandidateStore, employers storage.EmployerStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{candidates: candidates, employers: employers, bus: bus, log: log}
}

// RegisterCandidate creates a candidate account and announces the signup.
func (s *Service) RegisterCandidate(ctx context.Context, name string) (candidate.Candidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return candidate.Candidate{}, fmt.Errorf("name is required")
	}

	c, err := s.candidates.CreateCandidate(ctx, candidate.Candidate{Name: name})
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("create candidate: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:      events.TypeCandidateRegistered,
			Candidate: c.ID,
			Timestamp: time.Now().UTC(),
		})
	}
	s.log.WithField("candidate_id", c.ID).Info("candidate registered")
	return c, nil
}

// RegisterEmployer creates an employer account.
func (s *Service) RegisterEmployer(ctx context.Context, name string) (employer.Employer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return employer.Employer{}, fmt.Errorf("name is required")
	}

	e, err := s.employers.CreateEmployer(ctx, employer.Employer{Name: name})
	if err != nil {
		return employer.Employer{}, fmt.Errorf("create employer: %w", err)
	}
	s.log.WithField("employer_id", e.ID).Info("employer registered")
	return e, nil
}

// CompleteProfile marks a candidate's profile complete. The flag only ever
// moves forward.
func (s *Service) CompleteProfile(ctx context.Context, candidateID string) (candidate.Candidate, error) {
	c, err := s.candidates.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return candidate.Candidate{}, ErrNotFound
		}
		return candidate.Candidate{}, fmt.Errorf("load candidate: %w", err)
	}
	if c.ProfileComplete {
		return c, nil
	}
	c.ProfileComplete = true
	updated, err := s.candidates.UpdateCandidate(ctx, c)
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("update candidate: %w", err)
	}
	return updated, nil
}

// SaveJob bookmarks a job for a candidate. Saving twice is a no-op.
func (s *Service) SaveJob(ctx context.Context, candidateID, jobID string) error {
	if _, err := s.candidates.GetCandidate(ctx, candidateID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load candidate: %w", err)
	}
	if err := s.candidates.SaveJob(ctx, candidateID, jobID); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// GetCandidate returns one candidate.
func (s *Service) GetCandidate(ctx context.Context, id string) (candidate.Candidate, error) {
	c, err := s.candidates.GetCandidate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return candidate.Candidate{}, ErrNotFound
	}
	return c, err
}
