// Package employer defines the employer identity anchor.
package employer

import "time"

// Employer owns jobs and drives employer-side application transitions.
type Employer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
