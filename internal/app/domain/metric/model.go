// Package metric defines the derived snapshot structures produced by the
// aggregator. A snapshot is always fully recomputable from the entity store
// and is never the durable record.
package metric

import (
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
)

// Scope selects whose data a snapshot covers.
type Scope struct {
	// EmployerID restricts the snapshot to one employer's jobs when set.
	EmployerID string
	// CandidateID restricts the snapshot to one candidate's applications when
	// set.
	CandidateID string
}

// Platform is the unrestricted scope.
var Platform = Scope{}

// WindowCounts holds application volumes for the standard dashboard windows,
// computed relative to the aggregation invocation time.
type WindowCounts struct {
	Today int64 `json:"today"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

// Growth holds percentage change between two adjacent equal-length windows.
// The denominator is floored to 1, so growth over an empty prior window is
// reported as the raw current count times 100.
type Growth struct {
	Applications int `json:"applications"`
	Jobs         int `json:"jobs"`
	Candidates   int `json:"candidates"`
}

// Conversions holds funnel rates as rounded percentages. A zero denominator
// short-circuits the rate to 0, unlike growth which floors the denominator.
type Conversions struct {
	ProfileCompletionRate    int `json:"profile_completion_rate"`
	ApplicationsPerCandidate int `json:"applications_per_candidate_rate"`
	HireRate                 int `json:"hire_rate"`
	JobPostToApplicationRate int `json:"job_post_to_application_rate"`
	ViewToApplicationRate    int `json:"view_to_application_rate"`
}

// Averages holds per-entity means rounded to one decimal.
type Averages struct {
	ApplicationsPerJob    float64 `json:"applications_per_job"`
	JobsPerEmployer       float64 `json:"jobs_per_employer"`
	SavedJobsPerCandidate float64 `json:"saved_jobs_per_candidate"`
}

// Bucket is one calendar day of a time series.
type Bucket struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// Snapshot is a point-in-time aggregate view. Any field may be zero if the
// underlying query failed; the snapshot as a whole is still returned.
type Snapshot struct {
	Scope              Scope                        `json:"-"`
	TakenAt            time.Time                    `json:"taken_at"`
	Totals             Totals                       `json:"totals"`
	Windows            WindowCounts                 `json:"windows"`
	Growth             Growth                       `json:"growth"`
	Conversions        Conversions                  `json:"conversions"`
	Averages           Averages                     `json:"averages"`
	ByStatus           map[application.Status]int64 `json:"by_status"`
	DailySeries        []Bucket                     `json:"daily_series"`
	AvgTimeToHireHours float64                      `json:"avg_time_to_hire_hours"`
}

// Totals holds absolute entity counts for the scope.
type Totals struct {
	Applications     int64 `json:"applications"`
	Jobs             int64 `json:"jobs"`
	Candidates       int64 `json:"candidates"`
	Employers        int64 `json:"employers"`
	Views            int64 `json:"views"`
	Hires            int64 `json:"hires"`
	SavedJobs        int64 `json:"saved_jobs"`
	CompleteProfiles int64 `json:"complete_profiles"`
}

// EmptyByStatus returns a breakdown map with every status present at zero.
func EmptyByStatus() map[application.Status]int64 {
	out := make(map[application.Status]int64, len(application.Statuses))
	for _, s := range application.Statuses {
		out[s] = 0
	}
	return out
}
