// Package application defines the job application entity and its status
// graph. An application is one candidate's submission to one job; its status
// only ever moves along the edges declared here.
package application

import "time"

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPending     Status = "pending"
	StatusReviewing   Status = "reviewing"
	StatusShortlisted Status = "shortlisted"
	StatusInterviewed Status = "interviewed"
	StatusOffered     Status = "offered"
	StatusHired       Status = "hired"
	StatusRejected    Status = "rejected"
	StatusWithdrawn   Status = "withdrawn"
)

// Statuses lists every status in pipeline order. Terminal states last.
var Statuses = []Status{
	StatusPending,
	StatusReviewing,
	StatusShortlisted,
	StatusInterviewed,
	StatusOffered,
	StatusHired,
	StatusRejected,
	StatusWithdrawn,
}

// Role identifies which side of the pipeline is driving a transition.
type Role string

const (
	RoleEmployer  Role = "employer"
	RoleCandidate Role = "candidate"
)

// Application represents one candidate's submission to one job. CandidateID
// and JobID are immutable after creation. Version is bumped on every mutation
// and used for optimistic concurrency control.
type Application struct {
	ID                   string     `json:"id"`
	CandidateID          string     `json:"candidate_id"`
	JobID                string     `json:"job_id"`
	EmployerID           string     `json:"employer_id"`
	Status               Status     `json:"status"`
	MatchScore           *float64   `json:"match_score,omitempty"`
	EmployerRating       int        `json:"employer_rating,omitempty"` // 0 = unrated, otherwise 1..5
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
	InterviewScheduledAt *time.Time `json:"interview_scheduled_at,omitempty"`
}

// edges maps each status to the set of statuses reachable from it. Terminal
// states have no outgoing edges.
var edges = map[Status]map[Status]bool{
	StatusPending: {
		StatusReviewing: true,
		StatusRejected:  true,
		StatusWithdrawn: true,
	},
	StatusReviewing: {
		StatusShortlisted: true,
		StatusRejected:    true,
		StatusWithdrawn:   true,
	},
	StatusShortlisted: {
		StatusInterviewed: true,
		StatusRejected:    true,
	},
	StatusInterviewed: {
		StatusOffered:  true,
		StatusRejected: true,
	},
	StatusOffered: {
		StatusHired: true,
	},
	StatusHired:     {},
	StatusRejected:  {},
	StatusWithdrawn: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := edges[s]
	return ok
}

// Terminal reports whether the status has no outgoing edges.
func (s Status) Terminal() bool {
	next, ok := edges[s]
	return ok && len(next) == 0
}

// CanTransition reports whether target is reachable from s in one step.
func (s Status) CanTransition(target Status) bool {
	return edges[s][target]
}

// AllowedRole returns the role permitted to drive the s -> target edge.
// Withdrawal is the only candidate-initiated edge; everything else belongs to
// the employer.
func AllowedRole(target Status) Role {
	if target == StatusWithdrawn {
		return RoleCandidate
	}
	return RoleEmployer
}

// Active reports whether the application still blocks re-submission for its
// (candidate, job) pair. Only withdrawal frees the pair.
func (a Application) Active() bool {
	return a.Status != StatusWithdrawn
}
