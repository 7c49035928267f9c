// Package redis fronts the durable job counters with Redis. SETNX keys guard
// idempotent application increments so redelivered events short-circuit
// before touching the database, and hot view counts are mirrored into Redis
// for cheap reads.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hireloop/hireloop/internal/app/storage"
)

// DefaultGuardTTL bounds how long a dedupe key lives. Reconciliation heals
// any drift an expired guard could cause.
const DefaultGuardTTL = 24 * time.Hour

// Counters implements storage.JobCounterStore in front of a durable
// implementation.
type Counters struct {
	rdb  *redis.Client
	next storage.JobCounterStore
	ttl  time.Duration
}

var _ storage.JobCounterStore = (*Counters)(nil)

// NewCounters wraps next with a Redis fast-path. next receives every durable
// write.
func NewCounters(rdb *redis.Client, next storage.JobCounterStore) *Counters {
	return &Counters{rdb: rdb, next: next, ttl: DefaultGuardTTL}
}

func countedKey(jobID, applicationID string) string {
	return fmt.Sprintf("hireloop:counted:%s:%s", jobID, applicationID)
}

func viewsKey(jobID string) string {
	return fmt.Sprintf("hireloop:views:%s", jobID)
}

// IncrementApplications consults the SETNX guard before delegating. The
// durable store keeps its own dedupe record, so a lost guard key cannot
// double count.
func (c *Counters) IncrementApplications(ctx context.Context, jobID, applicationID string) (bool, error) {
	set, err := c.rdb.SetNX(ctx, countedKey(jobID, applicationID), 1, c.ttl).Result()
	if err != nil {
		// Redis being down must not stall counting; fall through to the
		// durable store.
		return c.next.IncrementApplications(ctx, jobID, applicationID)
	}
	if !set {
		return false, nil
	}
	return c.next.IncrementApplications(ctx, jobID, applicationID)
}

// IncrementViews bumps the durable counter and mirrors the value into Redis.
func (c *Counters) IncrementViews(ctx context.Context, jobID string) (int64, error) {
	n, err := c.next.IncrementViews(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, viewsKey(jobID), n, 0).Err(); err != nil {
		// Mirror only; the durable value already advanced.
		return n, nil
	}
	return n, nil
}

// SetApplicationsCount writes through to the durable store.
func (c *Counters) SetApplicationsCount(ctx context.Context, jobID string, n int64) error {
	return c.next.SetApplicationsCount(ctx, jobID, n)
}

// Views returns the mirrored view count, falling back to zero when the key
// is absent.
func (c *Counters) Views(ctx context.Context, jobID string) (int64, error) {
	n, err := c.rdb.Get(ctx, viewsKey(jobID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
