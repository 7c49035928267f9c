// Package httpapi exposes the REST and websocket surface of the hiring
// pipeline.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/hireloop/hireloop/internal/app"
	"github.com/hireloop/hireloop/internal/app/domain/application"
	jobmodel "github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/domain/metric"
	"github.com/hireloop/hireloop/internal/app/feed"
	appmetrics "github.com/hireloop/hireloop/internal/app/metrics"
	"github.com/hireloop/hireloop/internal/app/services/accounts"
	"github.com/hireloop/hireloop/internal/app/services/health"
	"github.com/hireloop/hireloop/internal/app/services/jobs"
	"github.com/hireloop/hireloop/internal/app/services/transitions"
	"github.com/hireloop/hireloop/internal/app/storage"
	"github.com/hireloop/hireloop/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	health health.Service
	log    *logger.Logger
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application, healthSvc health.Service, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, health: healthSvc, log: log}

	viewLimiter := newIPRateLimiter(20, 40)

	r := chi.NewRouter()

	r.Post("/candidates", h.registerCandidate)
	r.Post("/candidates/{id}/profile-complete", h.completeProfile)
	r.Post("/candidates/{id}/saved-jobs", h.saveJob)

	r.Post("/employers", h.registerEmployer)

	r.Post("/jobs", h.createJob)
	r.Get("/jobs", h.listJobs)
	r.Get("/jobs/{id}", h.getJob)
	r.Post("/jobs/{id}/publish", h.publishJob)
	r.Post("/jobs/{id}/close", h.closeJob)
	r.Post("/jobs/{id}/fill", h.fillJob)
	r.With(viewLimiter.middleware).Post("/jobs/{id}/views", h.recordView)

	r.Post("/applications", h.submitApplication)
	r.Get("/applications/{id}", h.getApplication)
	r.Post("/applications/{id}/transitions", h.transition)
	r.Put("/applications/{id}/rating", h.rate)
	r.Post("/applications/{id}/interview", h.scheduleInterview)

	r.Get("/stats/snapshot", h.statsSnapshot)

	r.Get("/feed", h.recentFeed)
	r.Get("/feed/ws", h.feedSocket)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", appmetrics.Handler())

	return appmetrics.InstrumentHandler(r)
}

// --- accounts ---------------------------------------------------------------

func (h *handler) registerCandidate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := h.app.Accounts.RegisterCandidate(r.Context(), payload.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) completeProfile(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Accounts.CompleteProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) saveJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Accounts.SaveJob(r.Context(), chi.URLParam(r, "id"), payload.JobID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) registerEmployer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, err := h.app.Accounts.RegisterEmployer(r.Context(), payload.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// --- jobs -------------------------------------------------------------------

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EmployerID string `json:"employer_id"`
		Title      string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	j, err := h.app.Jobs.Create(r.Context(), payload.EmployerID, payload.Title)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Jobs.List(r.Context(), r.URL.Query().Get("employer_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.app.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) publishJob(w http.ResponseWriter, r *http.Request) {
	h.setJobStatus(w, r, h.app.Jobs.Publish)
}

func (h *handler) closeJob(w http.ResponseWriter, r *http.Request) {
	h.setJobStatus(w, r, h.app.Jobs.Close)
}

func (h *handler) fillJob(w http.ResponseWriter, r *http.Request) {
	h.setJobStatus(w, r, h.app.Jobs.Fill)
}

func (h *handler) setJobStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (jobmodel.Job, error)) {
	j, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) recordView(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Jobs.RecordView(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// --- applications -----------------------------------------------------------

func (h *handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CandidateID string `json:"candidate_id"`
		JobID       string `json:"job_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.app.Transitions.Submit(r.Context(), payload.CandidateID, payload.JobID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handler) getApplication(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Transitions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Target string `json:"target"`
		Actor  string `json:"actor"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor := application.Role(payload.Actor)
	if actor != application.RoleEmployer && actor != application.RoleCandidate {
		writeError(w, http.StatusBadRequest, errors.New("actor must be employer or candidate"))
		return
	}
	a, err := h.app.Transitions.Transition(r.Context(), chi.URLParam(r, "id"), actor, application.Status(payload.Target))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) rate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EmployerID string `json:"employer_id"`
		Stars      int    `json:"stars"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.app.Transitions.Rate(r.Context(), chi.URLParam(r, "id"), payload.EmployerID, payload.Stars)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) scheduleInterview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		At time.Time `json:"at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.app.Transitions.ScheduleInterview(r.Context(), chi.URLParam(r, "id"), payload.At)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- stats ------------------------------------------------------------------

func (h *handler) statsSnapshot(w http.ResponseWriter, r *http.Request) {
	scope := metric.Scope{
		EmployerID:  r.URL.Query().Get("employer_id"),
		CandidateID: r.URL.Query().Get("candidate_id"),
	}

	// Platform-wide snapshots come from the refresher cache when warm;
	// scoped snapshots are always computed fresh.
	if scope == (metric.Scope{}) {
		if snap, ok := h.app.Refresher.Latest(); ok {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.app.Stats.Snapshot(r.Context(), scope))
}

// --- feed -------------------------------------------------------------------

func (h *handler) recentFeed(w http.ResponseWriter, r *http.Request) {
	limit := feed.DefaultCapacity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.app.Feed.Recent(limit))
}

// --- health -----------------------------------------------------------------

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, transitions.ErrNotFound),
		errors.Is(err, jobs.ErrNotFound),
		errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transitions.ErrDuplicateApplication),
		errors.Is(err, transitions.ErrTransitionConflict):
		return http.StatusConflict
	case errors.Is(err, transitions.ErrIllegalTransition),
		errors.Is(err, transitions.ErrJobNotAcceptingApplications),
		errors.Is(err, transitions.ErrNotInterviewed),
		errors.Is(err, jobs.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transitions.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, transitions.ErrInvalidRating):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
