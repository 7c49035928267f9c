// Package candidate defines the candidate identity anchor.
package candidate

import "time"

// Candidate owns applications and saved jobs.
type Candidate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ProfileComplete bool      `json:"profile_complete"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
