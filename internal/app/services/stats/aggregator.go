// Package stats computes derived metric snapshots from the entity store. A
// snapshot is recomputed in full on every call; nothing here is a source of
// truth. Every dashboard reads through this aggregator instead of issuing its
// own ad-hoc queries.
package stats

import (
	"context"
	"math"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/metric"
	appmetrics "github.com/hireloop/hireloop/internal/app/metrics"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/pkg/logger"
)

// Aggregator produces metric snapshots on demand.
type Aggregator struct {
	apps       storage.ApplicationStore
	jobs       storage.JobStore
	candidates storage.CandidateStore
	employers  storage.EmployerStore
	log        *logger.Logger

	// SeriesDays is the length of the daily time series, default 7.
	SeriesDays int
	// GrowthWindow is the length of the adjacent windows compared for growth
	// rates, default 7 days.
	GrowthWindow time.Duration

	now func() time.Time
	loc *time.Location
}

// New constructs an aggregator. Window boundaries ("today") are computed in
// the supplied location; nil means the local time zone.
func New(apps storage.ApplicationStore, jobs storage.JobStore, candidates storage.CandidateStore, employers storage.EmployerStore, loc *time.Location, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("stats")
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		apps:         apps,
		jobs:         jobs,
		candidates:   candidates,
		employers:    employers,
		log:          log,
		SeriesDays:   7,
		GrowthWindow: 7 * 24 * time.Hour,
		now:          time.Now,
		loc:          loc,
	}
}

// Snapshot computes a full snapshot for the scope. It never fails as a whole:
// any sub-metric whose store query errors (including context cancellation
// mid-computation) defaults to 0 and the remaining fields are still returned,
// so dashboards degrade instead of going blank.
func (a *Aggregator) Snapshot(ctx context.Context, scope metric.Scope) metric.Snapshot {
	start := a.now()
	failures := 0

	count := func(fn func() (int64, error)) int64 {
		n, err := fn()
		if err != nil {
			failures++
			a.log.WithError(err).Debug("sub-metric query failed, defaulting to 0")
			return 0
		}
		return n
	}

	appScope := storage.ApplicationFilter{EmployerID: scope.EmployerID, CandidateID: scope.CandidateID}
	jobScope := storage.JobFilter{EmployerID: scope.EmployerID}

	snap := metric.Snapshot{
		Scope:   scope,
		TakenAt: start.UTC(),
	}

	// Absolute totals.
	snap.Totals.Applications = count(func() (int64, error) { return a.apps.CountApplications(ctx, appScope) })
	snap.Totals.Jobs = count(func() (int64, error) { return a.jobs.CountJobs(ctx, jobScope) })
	snap.Totals.Candidates = count(func() (int64, error) { return a.candidates.CountCandidates(ctx, storage.CandidateFilter{}) })
	snap.Totals.Employers = count(func() (int64, error) { return a.employers.CountEmployers(ctx) })
	snap.Totals.Views = count(func() (int64, error) { return a.jobs.SumJobViews(ctx, scope.EmployerID) })
	snap.Totals.SavedJobs = count(func() (int64, error) { return a.candidates.CountSavedJobs(ctx, scope.CandidateID) })

	hiredScope := appScope
	hiredScope.Status = application.StatusHired
	snap.Totals.Hires = count(func() (int64, error) { return a.apps.CountApplications(ctx, hiredScope) })

	complete := true
	snap.Totals.CompleteProfiles = count(func() (int64, error) {
		return a.candidates.CountCandidates(ctx, storage.CandidateFilter{ProfileComplete: &complete})
	})

	// Window counts, boundaries relative to the invocation time.
	midnight := time.Date(start.In(a.loc).Year(), start.In(a.loc).Month(), start.In(a.loc).Day(), 0, 0, 0, 0, a.loc)
	windows := []struct {
		from time.Time
		dst  *int64
	}{
		{midnight, &snap.Windows.Today},
		{start.Add(-7 * 24 * time.Hour), &snap.Windows.Week},
		{start.Add(-30 * 24 * time.Hour), &snap.Windows.Month},
	}
	for _, w := range windows {
		from := w.from
		f := appScope
		f.CreatedFrom = from
		*w.dst = count(func() (int64, error) { return a.apps.CountApplications(ctx, f) })
	}

	// Growth over two adjacent equal-length windows. The denominator floors
	// to 1, so growth over an empty prior window reads large.
	winStart := start.Add(-a.GrowthWindow)
	prevStart := start.Add(-2 * a.GrowthWindow)

	curApps := count(func() (int64, error) {
		f := appScope
		f.CreatedFrom = winStart
		return a.apps.CountApplications(ctx, f)
	})
	prevApps := count(func() (int64, error) {
		f := appScope
		f.CreatedFrom = prevStart
		f.CreatedTo = winStart
		return a.apps.CountApplications(ctx, f)
	})
	snap.Growth.Applications = growthRate(curApps, prevApps)

	curJobs := count(func() (int64, error) {
		f := jobScope
		f.CreatedFrom = winStart
		return a.jobs.CountJobs(ctx, f)
	})
	prevJobs := count(func() (int64, error) {
		f := jobScope
		f.CreatedFrom = prevStart
		f.CreatedTo = winStart
		return a.jobs.CountJobs(ctx, f)
	})
	snap.Growth.Jobs = growthRate(curJobs, prevJobs)

	curCand := count(func() (int64, error) {
		return a.candidates.CountCandidates(ctx, storage.CandidateFilter{CreatedFrom: winStart})
	})
	prevCand := count(func() (int64, error) {
		return a.candidates.CountCandidates(ctx, storage.CandidateFilter{CreatedFrom: prevStart, CreatedTo: winStart})
	})
	snap.Growth.Candidates = growthRate(curCand, prevCand)

	// Funnel conversions: zero denominator short-circuits to 0, a different
	// policy from growth above.
	snap.Conversions.ProfileCompletionRate = conversionRate(snap.Totals.CompleteProfiles, snap.Totals.Candidates)
	snap.Conversions.ApplicationsPerCandidate = conversionRate(snap.Totals.Applications, snap.Totals.Candidates)
	snap.Conversions.HireRate = conversionRate(snap.Totals.Hires, snap.Totals.Applications)
	snap.Conversions.JobPostToApplicationRate = conversionRate(snap.Totals.Applications, snap.Totals.Jobs)
	snap.Conversions.ViewToApplicationRate = conversionRate(snap.Totals.Applications, snap.Totals.Views)

	// One-decimal averages, divisor floored to 1.
	snap.Averages.ApplicationsPerJob = average(snap.Totals.Applications, snap.Totals.Jobs)
	snap.Averages.JobsPerEmployer = average(snap.Totals.Jobs, snap.Totals.Employers)
	snap.Averages.SavedJobsPerCandidate = average(snap.Totals.SavedJobs, snap.Totals.Candidates)

	// Exact count for every status, unseen statuses at 0.
	snap.ByStatus = metric.EmptyByStatus()
	for _, status := range application.Statuses {
		f := appScope
		f.Status = status
		snap.ByStatus[status] = count(func() (int64, error) { return a.apps.CountApplications(ctx, f) })
	}

	snap.DailySeries = a.dailySeries(ctx, appScope, midnight, &failures)
	snap.AvgTimeToHireHours = a.avgTimeToHire(ctx, appScope, &failures)

	appmetrics.RecordSnapshot(a.now().Sub(start), failures)
	if failures > 0 {
		a.log.WithField("failed_queries", failures).Warn("snapshot computed with partial failures")
	}
	return snap
}

// dailySeries buckets application submissions per calendar day. Days without
// events are zero-filled so the series never has gaps; buckets are ordered
// oldest to newest.
func (a *Aggregator) dailySeries(ctx context.Context, scope storage.ApplicationFilter, midnight time.Time, failures *int) []metric.Bucket {
	days := a.SeriesDays
	if days <= 0 {
		days = 7
	}

	seriesStart := midnight.AddDate(0, 0, -(days - 1))
	buckets := make([]metric.Bucket, days)
	for i := range buckets {
		buckets[i] = metric.Bucket{Day: seriesStart.AddDate(0, 0, i)}
	}

	f := scope
	f.CreatedFrom = seriesStart
	apps, err := a.apps.ListApplications(ctx, f)
	if err != nil {
		*failures++
		a.log.WithError(err).Debug("time series query failed, returning zero-filled series")
		return buckets
	}

	for _, app := range apps {
		day := app.CreatedAt.In(a.loc)
		idx := int(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.loc).Sub(seriesStart).Hours() / 24)
		if idx >= 0 && idx < days {
			buckets[idx].Count++
		}
	}
	return buckets
}

// avgTimeToHire averages the pending-to-hired duration over hired
// applications, in hours to one decimal. Zero when nothing has been hired.
func (a *Aggregator) avgTimeToHire(ctx context.Context, scope storage.ApplicationFilter, failures *int) float64 {
	f := scope
	f.Status = application.StatusHired
	hired, err := a.apps.ListApplications(ctx, f)
	if err != nil {
		*failures++
		return 0
	}
	if len(hired) == 0 {
		return 0
	}

	var total time.Duration
	for _, app := range hired {
		total += app.UpdatedAt.Sub(app.CreatedAt)
	}
	hours := total.Hours() / float64(len(hired))
	return math.Round(hours*10) / 10
}

// growthRate is the percentage change between adjacent windows with the
// denominator floored to 1.
func growthRate(current, previous int64) int {
	denom := previous
	if denom < 1 {
		denom = 1
	}
	return int(math.Round(float64(current-previous) / float64(denom) * 100))
}

// conversionRate is a rounded percentage that short-circuits to 0 on a zero
// denominator.
func conversionRate(numerator, denominator int64) int {
	if denominator == 0 {
		return 0
	}
	return int(math.Round(float64(numerator) / float64(denominator) * 100))
}

// average is numerator/denominator to one decimal, divisor floored to 1.
func average(numerator, denominator int64) float64 {
	if denominator < 1 {
		denominator = 1
	}
	return math.Round(float64(numerator)/float64(denominator)*10) / 10
}
