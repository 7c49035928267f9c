// Package health reports process and dependency health for the readiness
// endpoint.
package health

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Report is the health endpoint payload.
type Report struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	Checks        map[string]string `json:"checks,omitempty"`
	MemoryPercent float64           `json:"memory_percent,omitempty"`
	CPUPercent    float64           `json:"cpu_percent,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Service performs health checks.
type Service interface {
	Check(ctx context.Context) Report
}

type service struct {
	started time.Time
	db      *sql.DB
	rdb     *redis.Client
}

// Option configures the service.
type Option func(*service)

// WithDatabase adds a database ping to the report.
func WithDatabase(db *sql.DB) Option {
	return func(s *service) { s.db = db }
}

// WithRedis adds a Redis ping to the report.
func WithRedis(rdb *redis.Client) Option {
	return func(s *service) { s.rdb = rdb }
}

// NewService creates a health service.
func NewService(opts ...Option) Service {
	s := &service{started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Check(ctx context.Context) Report {
	report := Report{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Checks:    map[string]string{},
		Timestamp: time.Now().UTC(),
	}

	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.db.PingContext(pingCtx); err != nil {
			report.Status = "degraded"
			report.Checks["database"] = err.Error()
		} else {
			report.Checks["database"] = "ok"
		}
		cancel()
	}

	if s.rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.rdb.Ping(pingCtx).Err(); err != nil {
			report.Status = "degraded"
			report.Checks["redis"] = err.Error()
		} else {
			report.Checks["redis"] = "ok"
		}
		cancel()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		report.MemoryPercent = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		report.CPUPercent = percents[0]
	}

	return report
}
