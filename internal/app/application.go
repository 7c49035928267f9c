package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hireloop/hireloop/internal/app/events"
	"github.com/hireloop/hireloop/internal/app/feed"
	"github.com/hireloop/hireloop/internal/app/services/accounts"
	"github.com/hireloop/hireloop/internal/app/services/counters"
	"github.com/hireloop/hireloop/internal/app/services/jobs"
	"github.com/hireloop/hireloop/internal/app/services/stats"
	"github.com/hireloop/hireloop/internal/app/services/transitions"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/internal/app/storage/memory"
	"github.com/hireloop/hireloop/internal/app/system"
	"github.com/hireloop/hireloop/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Applications storage.ApplicationStore
	Jobs         storage.JobStore
	Counters     storage.JobCounterStore
	Candidates   storage.CandidateStore
	Employers    storage.EmployerStore
}

// Options tunes background behavior. The zero value uses defaults.
type Options struct {
	// FeedCapacity bounds the live feed window.
	FeedCapacity int
	// StatsRefreshInterval controls how often the cached platform snapshot
	// is recomputed.
	StatsRefreshInterval time.Duration
	// StatsLocation anchors day boundaries for windows and series.
	StatsLocation *time.Location
	// StatsSeriesDays is the daily series length, default 7.
	StatsSeriesDays int
	// ReconcileSchedule is the cron expression for counter reconciliation.
	ReconcileSchedule string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus         *events.Bus
	Accounts    *accounts.Service
	Jobs        *jobs.Service
	Transitions *transitions.Service
	Stats       *stats.Aggregator
	Refresher   *stats.Refresher
	Feed        *feed.Feed
	Counters    *counters.Maintainer
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Jobs == nil {
		stores.Jobs = mem
	}
	if stores.Counters == nil {
		stores.Counters = mem
	}
	if stores.Candidates == nil {
		stores.Candidates = mem
	}
	if stores.Employers == nil {
		stores.Employers = mem
	}

	manager := system.NewManager()
	bus := events.NewBus(0)

	accountsSvc := accounts.New(stores.Candidates, stores.Employers, bus, log)
	jobsSvc := jobs.New(stores.Jobs, stores.Employers, bus, log)
	transitionsSvc := transitions.New(stores.Applications, stores.Jobs, bus, log)
	aggregator := stats.New(stores.Applications, stores.Jobs, stores.Candidates, stores.Employers, opts.StatsLocation, log)
	if opts.StatsSeriesDays > 0 {
		aggregator.SeriesDays = opts.StatsSeriesDays
	}
	refresher := stats.NewRefresher(aggregator, opts.StatsRefreshInterval, log)
	liveFeed := feed.New(bus, opts.FeedCapacity, log)
	maintainer := counters.New(stores.Applications, stores.Jobs, stores.Counters, bus, log)
	if opts.ReconcileSchedule != "" {
		maintainer.ReconcileSchedule = opts.ReconcileSchedule
	}

	for _, svc := range []system.Service{maintainer, liveFeed, refresher} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Bus:         bus,
		Accounts:    accountsSvc,
		Jobs:        jobsSvc,
		Transitions: transitionsSvc,
		Stats:       aggregator,
		Refresher:   refresher,
		Feed:        liveFeed,
		Counters:    maintainer,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.StartAll(ctx)
}

// Stop stops all services and closes the event bus.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.StopAll(ctx)
	a.Bus.Close()
	return err
}
