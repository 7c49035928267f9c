package stats

import (
	"context"
	"sync"
	"time"

	"github.com/hireloop/hireloop/internal/app/domain/metric"
	"github.com/hireloop/hireloop/internal/app/system"
	"github.com/hireloop/hireloop/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher recomputes the platform-wide snapshot on a fixed cadence so
// dashboards that poll frequently read a cached copy instead of hammering
// the entity store. It is fully decoupled from the event stream and never
// blocks a transition.
type Refresher struct {
	aggregator *Aggregator
	log        *logger.Logger
	interval   time.Duration

	mu      sync.RWMutex
	latest  metric.Snapshot
	fresh   bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a lifecycle-managed snapshot refresher.
func NewRefresher(aggregator *Aggregator, interval time.Duration, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("stats-refresher")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		aggregator: aggregator,
		log:        log,
		interval:   interval,
	}
}

func (r *Refresher) Name() string { return "stats-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refresh(runCtx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.refresh(runCtx)
			}
		}
	}()

	r.log.Info("stats refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("stats refresher stopped")
	return nil
}

func (r *Refresher) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	snap := r.aggregator.Snapshot(ctx, metric.Platform)

	r.mu.Lock()
	r.latest = snap
	r.fresh = true
	r.mu.Unlock()
}

// Latest returns the most recent platform snapshot and whether one has been
// computed yet.
func (r *Refresher) Latest() (metric.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.fresh
}
