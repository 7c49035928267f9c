// Package counters keeps the denormalized job counters consistent with the
// entity store. It consumes creation and view events from the bus with
// at-least-once tolerance: application increments are idempotent on the
// application id, view increments are atomic in the store, and a periodic
// reconciliation pass recounts ground truth to self-heal drift from missed
// events.
package counters

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hireloop/hireloop/internal/app/events"
	appmetrics "github.com/hireloop/hireloop/internal/app/metrics"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/internal/app/system"
	"github.com/hireloop/hireloop/pkg/logger"
)

var _ system.Service = (*Maintainer)(nil)

// Maintainer consumes entity-change events and maintains job counters.
type Maintainer struct {
	apps     storage.ApplicationStore
	jobs     storage.JobStore
	counters storage.JobCounterStore
	bus      *events.Bus
	log      *logger.Logger

	// ReconcileSchedule is a cron expression for the reconciliation pass.
	// Empty disables scheduled reconciliation; Reconcile can still be called
	// directly.
	ReconcileSchedule string

	mu          sync.Mutex
	unsubscribe func()
	cron        *cron.Cron
	running     bool
}

// New constructs a counter maintainer.
func New(apps storage.ApplicationStore, jobs storage.JobStore, counters storage.JobCounterStore, bus *events.Bus, log *logger.Logger) *Maintainer {
	if log == nil {
		log = logger.NewDefault("counters")
	}
	return &Maintainer{
		apps:              apps,
		jobs:              jobs,
		counters:          counters,
		bus:               bus,
		log:               log,
		ReconcileSchedule: "@every 5m",
	}
}

func (m *Maintainer) Name() string { return "counter-maintainer" }

// Start subscribes to the bus and schedules reconciliation.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	m.unsubscribe = m.bus.SubscribeFiltered(func(ev events.Event) bool {
		return ev.Type == events.TypeApplicationCreated || ev.Type == events.TypeJobViewed
	}, m.handle)

	if m.ReconcileSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(m.ReconcileSchedule, func() {
			reconCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := m.Reconcile(reconCtx); err != nil {
				m.log.WithError(err).Warn("scheduled reconciliation failed")
			}
		}); err != nil {
			m.unsubscribe()
			m.unsubscribe = nil
			return err
		}
		c.Start()
		m.cron = c
	}

	m.running = true
	m.log.Info("counter maintainer started")
	return nil
}

// Stop unsubscribes from the bus and halts the reconciliation schedule.
func (m *Maintainer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	if m.cron != nil {
		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			m.running = false
			return ctx.Err()
		}
		m.cron = nil
	}

	m.running = false
	m.log.Info("counter maintainer stopped")
	return nil
}

// handle runs on the bus subscriber goroutine.
func (m *Maintainer) handle(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch ev.Type {
	case events.TypeApplicationCreated:
		applied, err := m.counters.IncrementApplications(ctx, ev.Job, ev.Application)
		if err != nil {
			m.log.WithError(err).
				WithField("job_id", ev.Job).
				WithField("application_id", ev.Application).
				Warn("application counter increment failed; reconciliation will heal")
			return
		}
		if !applied {
			m.log.WithField("application_id", ev.Application).
				Debug("duplicate created event ignored")
		}
	case events.TypeJobViewed:
		if _, err := m.counters.IncrementViews(ctx, ev.Job); err != nil {
			m.log.WithError(err).
				WithField("job_id", ev.Job).
				Warn("view counter increment failed")
		}
	}
}

// Reconcile recounts applications per job against the entity store and
// rewrites any drifted counter. It returns the number of jobs corrected.
// Counter drift is never surfaced to callers of submit or transition; at
// worst a counter is stale until the next pass.
func (m *Maintainer) Reconcile(ctx context.Context) (int, error) {
	jobs, err := m.jobs.ListJobs(ctx, storage.JobFilter{})
	if err != nil {
		appmetrics.RecordReconciliation(0, err)
		return 0, err
	}

	drifted := 0
	for _, j := range jobs {
		truth, err := m.apps.CountApplications(ctx, storage.ApplicationFilter{JobID: j.ID})
		if err != nil {
			appmetrics.RecordReconciliation(drifted, err)
			return drifted, err
		}
		if truth == j.ApplicationsCount {
			continue
		}
		if err := m.counters.SetApplicationsCount(ctx, j.ID, truth); err != nil {
			appmetrics.RecordReconciliation(drifted, err)
			return drifted, err
		}
		drifted++
		m.log.WithField("job_id", j.ID).
			WithField("stored", j.ApplicationsCount).
			WithField("actual", truth).
			Warn("application counter drift corrected")
	}

	appmetrics.RecordReconciliation(drifted, nil)
	return drifted, nil
}
