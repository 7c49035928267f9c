// Package job defines the job posting entity and its denormalized counters.
package job

import "time"

// Status is the publication state of a job. It is independent from the
// application lifecycle but gates whether new applications are accepted.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusClosed    Status = "closed"
	StatusFilled    Status = "filled"
)

// Valid reports whether s is a known job status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusClosed, StatusFilled:
		return true
	}
	return false
}

// Job represents a posting owned by an employer. ApplicationsCount and
// ViewsCount are maintained by the counter maintainer, never written by
// request handlers, and are always re-derivable by a full recount.
type Job struct {
	ID                string    `json:"id"`
	EmployerID        string    `json:"employer_id"`
	Title             string    `json:"title"`
	Status            Status    `json:"status"`
	ApplicationsCount int64     `json:"applications_count"`
	ViewsCount        int64     `json:"views_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AcceptingApplications reports whether submissions are currently allowed.
func (j Job) AcceptingApplications() bool {
	return j.Status == StatusPublished
}
