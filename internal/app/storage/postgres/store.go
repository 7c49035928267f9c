// Package postgres implements the storage interfaces backed by PostgreSQL.
// The one-active-application-per-pair invariant is enforced by a partial
// unique index, and optimistic updates compare-and-bump the version column in
// a single statement.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/candidate"
	"github.com/hireloop/hireloop/internal/app/domain/employer"
	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.JobCounterStore = (*Store)(nil)
var _ storage.CandidateStore = (*Store)(nil)
var _ storage.EmployerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- ApplicationStore -------------------------------------------------------

type applicationRow struct {
	ID                   string          `db:"id"`
	CandidateID          string          `db:"candidate_id"`
	JobID                string          `db:"job_id"`
	EmployerID           string          `db:"employer_id"`
	Status               string          `db:"status"`
	MatchScore           sql.NullFloat64 `db:"match_score"`
	EmployerRating       int             `db:"employer_rating"`
	Version              int64           `db:"version"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
	RespondedAt          sql.NullTime    `db:"responded_at"`
	InterviewScheduledAt sql.NullTime    `db:"interview_scheduled_at"`
}

func (r applicationRow) toDomain() application.Application {
	app := application.Application{
		ID:             r.ID,
		CandidateID:    r.CandidateID,
		JobID:          r.JobID,
		EmployerID:     r.EmployerID,
		Status:         application.Status(r.Status),
		EmployerRating: r.EmployerRating,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.MatchScore.Valid {
		v := r.MatchScore.Float64
		app.MatchScore = &v
	}
	if r.RespondedAt.Valid {
		t := r.RespondedAt.Time.UTC()
		app.RespondedAt = &t
	}
	if r.InterviewScheduledAt.Valid {
		t := r.InterviewScheduledAt.Time.UTC()
		app.InterviewScheduledAt = &t
	}
	return app
}

const applicationColumns = `id, candidate_id, job_id, employer_id, status, match_score, employer_rating, version, created_at, updated_at, responded_at, interview_scheduled_at`

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	app.Version = 1
	if app.Status == "" {
		app.Status = application.StatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, app.ID, app.CandidateID, app.JobID, app.EmployerID, app.Status,
		toNullFloat(app.MatchScore), app.EmployerRating, app.Version,
		app.CreatedAt, app.UpdatedAt, toNullTimePtr(app.RespondedAt), toNullTimePtr(app.InterviewScheduledAt))
	if err != nil {
		if isUniqueViolation(err) {
			return application.Application{}, storage.ErrDuplicate
		}
		return application.Application{}, err
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, storage.ErrNotFound
	}
	if err != nil {
		return application.Application{}, err
	}
	return row.toDomain(), nil
}

// UpdateApplication compares and bumps the version column in one statement so
// concurrent writers cannot both win.
func (s *Store) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	app.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET status = $3, match_score = $4, employer_rating = $5,
		    responded_at = $6, interview_scheduled_at = $7,
		    updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`, app.ID, app.Version, app.Status, toNullFloat(app.MatchScore), app.EmployerRating,
		toNullTimePtr(app.RespondedAt), toNullTimePtr(app.InterviewScheduledAt), app.UpdatedAt)
	if err != nil {
		return application.Application{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Distinguish a missing row from a lost race.
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, app.ID); err != nil {
			return application.Application{}, err
		}
		if !exists {
			return application.Application{}, storage.ErrNotFound
		}
		return application.Application{}, storage.ErrVersionConflict
	}
	app.Version++
	return app, nil
}

func applicationWhere(f storage.ApplicationFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CandidateID != "" {
		add("candidate_id = $%d", f.CandidateID)
	}
	if f.JobID != "" {
		add("job_id = $%d", f.JobID)
	}
	if f.EmployerID != "" {
		add("employer_id = $%d", f.EmployerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < $%d", f.CreatedTo.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListApplications(ctx context.Context, f storage.ApplicationFilter) ([]application.Application, error) {
	where, args := applicationWhere(f)

	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+`
		FROM applications`+where+`
		ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, err
	}

	result := make([]application.Application, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountApplications(ctx context.Context, f storage.ApplicationFilter) (int64, error) {
	where, args := applicationWhere(f)

	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM applications`+where, args...)
	return n, err
}

func (s *Store) ActiveApplicationExists(ctx context.Context, candidateID, jobID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM applications
			WHERE candidate_id = $1 AND job_id = $2 AND status <> 'withdrawn'
		)
	`, candidateID, jobID)
	return exists, err
}

// --- JobStore ---------------------------------------------------------------

type jobRow struct {
	ID                string    `db:"id"`
	EmployerID        string    `db:"employer_id"`
	Title             string    `db:"title"`
	Status            string    `db:"status"`
	ApplicationsCount int64     `db:"applications_count"`
	ViewsCount        int64     `db:"views_count"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r jobRow) toDomain() job.Job {
	return job.Job{
		ID:                r.ID,
		EmployerID:        r.EmployerID,
		Title:             r.Title,
		Status:            job.Status(r.Status),
		ApplicationsCount: r.ApplicationsCount,
		ViewsCount:        r.ViewsCount,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

const jobColumns = `id, employer_id, title, status, applications_count, views_count, created_at, updated_at`

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = job.StatusDraft
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, j.ID, j.EmployerID, j.Title, j.Status, j.ApplicationsCount, j.ViewsCount, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, storage.ErrNotFound
	}
	if err != nil {
		return job.Job{}, err
	}
	return row.toDomain(), nil
}

// UpdateJob never touches the counter columns; those belong to the counter
// maintainer.
func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	j.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET title = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, j.ID, j.Title, j.Status, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return job.Job{}, storage.ErrNotFound
	}
	return s.GetJob(ctx, j.ID)
}

func jobWhere(f storage.JobFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployerID != "" {
		add("employer_id = $%d", f.EmployerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < $%d", f.CreatedTo.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListJobs(ctx context.Context, f storage.JobFilter) ([]job.Job, error) {
	where, args := jobWhere(f)

	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+`
		FROM jobs`+where+`
		ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, err
	}

	result := make([]job.Job, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountJobs(ctx context.Context, f storage.JobFilter) (int64, error) {
	where, args := jobWhere(f)

	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs`+where, args...)
	return n, err
}

func (s *Store) SumJobViews(ctx context.Context, employerID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(views_count), 0)
		FROM jobs
		WHERE $1 = '' OR employer_id = $1
	`, employerID)
	return n, err
}

// --- JobCounterStore --------------------------------------------------------

// IncrementApplications records the application id and bumps the counter in
// one transaction. ON CONFLICT DO NOTHING makes redelivery a no-op.
func (s *Store) IncrementApplications(ctx context.Context, jobID, applicationID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO job_counted_applications (job_id, application_id)
		VALUES ($1, $2)
		ON CONFLICT (job_id, application_id) DO NOTHING
	`, jobID, applicationID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, tx.Commit()
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET applications_count = applications_count + 1
		WHERE id = $1
	`, jobID)
	if err != nil {
		return false, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return false, storage.ErrNotFound
	}
	return true, tx.Commit()
}

func (s *Store) IncrementViews(ctx context.Context, jobID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		UPDATE jobs
		SET views_count = views_count + 1
		WHERE id = $1
		RETURNING views_count
	`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	return n, err
}

func (s *Store) SetApplicationsCount(ctx context.Context, jobID string, n int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET applications_count = $2
		WHERE id = $1
	`, jobID, n)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- CandidateStore ---------------------------------------------------------

type candidateRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	ProfileComplete bool      `db:"profile_complete"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (s *Store) CreateCandidate(ctx context.Context, c candidate.Candidate) (candidate.Candidate, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (id, name, profile_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.ProfileComplete, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return candidate.Candidate{}, err
	}
	return c, nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (candidate.Candidate, error) {
	var row candidateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, profile_complete, created_at, updated_at
		FROM candidates
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return candidate.Candidate{}, storage.ErrNotFound
	}
	if err != nil {
		return candidate.Candidate{}, err
	}
	return candidate.Candidate{
		ID:              row.ID,
		Name:            row.Name,
		ProfileComplete: row.ProfileComplete,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) UpdateCandidate(ctx context.Context, c candidate.Candidate) (candidate.Candidate, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET name = $2, profile_complete = $3, updated_at = $4
		WHERE id = $1
	`, c.ID, c.Name, c.ProfileComplete, c.UpdatedAt)
	if err != nil {
		return candidate.Candidate{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return candidate.Candidate{}, storage.ErrNotFound
	}
	return s.GetCandidate(ctx, c.ID)
}

func (s *Store) CountCandidates(ctx context.Context, f storage.CandidateFilter) (int64, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < $%d", f.CreatedTo.UTC())
	}
	if f.ProfileComplete != nil {
		add("profile_complete = $%d", *f.ProfileComplete)
	}
	query := `SELECT COUNT(*) FROM candidates`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var n int64
	err := s.db.GetContext(ctx, &n, query, args...)
	return n, err
}

func (s *Store) SaveJob(ctx context.Context, candidateID, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_jobs (candidate_id, job_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (candidate_id, job_id) DO NOTHING
	`, candidateID, jobID, time.Now().UTC())
	return err
}

func (s *Store) CountSavedJobs(ctx context.Context, candidateID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM saved_jobs
		WHERE $1 = '' OR candidate_id = $1
	`, candidateID)
	return n, err
}

// --- EmployerStore ----------------------------------------------------------

func (s *Store) CreateEmployer(ctx context.Context, e employer.Employer) (employer.Employer, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employers (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.Name, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return employer.Employer{}, err
	}
	return e, nil
}

func (s *Store) GetEmployer(ctx context.Context, id string) (employer.Employer, error) {
	var e employer.Employer
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM employers
		WHERE id = $1
	`, id)
	if err := row.Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return employer.Employer{}, storage.ErrNotFound
		}
		return employer.Employer{}, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *Store) CountEmployers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM employers`)
	return n, err
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
