// Package metrics exposes the Prometheus collectors for the hiring pipeline
// core and HTTP instrumentation middleware.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hireloop",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hireloop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "pipeline",
			Name:      "submissions_total",
			Help:      "Total application submissions by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Total application transitions by target status and outcome.",
		},
		[]string{"target", "outcome"},
	)

	snapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hireloop",
			Subsystem: "aggregator",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of metric snapshot computations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	snapshotPartials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "aggregator",
			Name:      "snapshot_partial_failures_total",
			Help:      "Sub-metric queries that failed and defaulted to zero.",
		},
	)

	feedDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "feed",
			Name:      "dropped_notifications_total",
			Help:      "Feed notifications dropped on full consumer queues.",
		},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hireloop",
			Subsystem: "counters",
			Name:      "reconciliation_runs_total",
			Help:      "Counter reconciliation passes by result.",
		},
		[]string{"result"},
	)

	counterDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hireloop",
			Subsystem: "counters",
			Name:      "last_reconciliation_drift",
			Help:      "Jobs whose counters drifted in the last reconciliation pass.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		submissions,
		transitions,
		snapshotDuration,
		snapshotPartials,
		feedDropped,
		reconciliations,
		counterDrift,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSubmission records a submit attempt.
func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// RecordTransition records a transition attempt.
func RecordTransition(target, outcome string) {
	transitions.WithLabelValues(target, outcome).Inc()
}

// RecordSnapshot records a snapshot computation.
func RecordSnapshot(duration time.Duration, partialFailures int) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	snapshotDuration.Observe(duration.Seconds())
	for i := 0; i < partialFailures; i++ {
		snapshotPartials.Inc()
	}
}

// RecordFeedDrop records a dropped feed notification.
func RecordFeedDrop() {
	feedDropped.Inc()
}

// RecordReconciliation records a reconciliation pass.
func RecordReconciliation(drifted int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reconciliations.WithLabelValues(result).Inc()
	counterDrift.Set(float64(drifted))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so websocket upgrades keep working behind the
// instrumentation wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource ids so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "applications":
		if len(parts) == 1 {
			return "/applications"
		}
		if len(parts) == 2 {
			return "/applications/:id"
		}
		return "/applications/:id/" + parts[2]
	case "jobs":
		if len(parts) == 1 {
			return "/jobs"
		}
		if len(parts) == 2 {
			return "/jobs/:id"
		}
		return "/jobs/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
