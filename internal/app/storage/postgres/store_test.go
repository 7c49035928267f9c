package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/app/domain/application"
	"github.com/hireloop/hireloop/internal/app/domain/employer"
	"github.com/hireloop/hireloop/internal/app/domain/job"
	"github.com/hireloop/hireloop/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestCreateApplicationUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_active_pair_idx"})

	_, err := store.CreateApplication(context.Background(), application.Application{
		CandidateID: "c1", JobID: "j1", EmployerID: "e1",
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestUpdateApplicationVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := store.UpdateApplication(context.Background(), application.Application{
		ID: "app-1", Status: application.StatusReviewing, Version: 1,
	})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
}

func TestUpdateApplicationMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.UpdateApplication(context.Background(), application.Application{
		ID: "app-1", Status: application.StatusReviewing, Version: 1,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateApplicationBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.UpdateApplication(context.Background(), application.Application{
		ID: "app-1", Status: application.StatusReviewing, Version: 3,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 4 {
		t.Fatalf("version = %d, want 4", updated.Version)
	}
}

func TestIncrementApplicationsFirstDelivery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_counted_applications")).
		WithArgs("j1", "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
		WithArgs("j1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := store.IncrementApplications(context.Background(), "j1", "a1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if !applied {
		t.Fatal("applied = false, want true")
	}
}

func TestIncrementApplicationsRedelivery(t *testing.T) {
	store, mock := newMockStore(t)

	// The dedupe row already exists, so the counter is never touched.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_counted_applications")).
		WithArgs("j1", "a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := store.IncrementApplications(context.Background(), "j1", "a1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if applied {
		t.Fatal("applied = true, want false")
	}
}

func TestIncrementViewsReturnsNewCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{"views_count"}).AddRow(int64(7)))

	n, err := store.IncrementViews(context.Background(), "j1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n != 7 {
		t.Fatalf("views = %d, want 7", n)
	}
}

func TestIncrementViewsMissingJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"views_count"}))

	_, err := store.IncrementViews(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetApplicationNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM applications")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetApplication(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplicationWhereBuildsOrderedPlaceholders(t *testing.T) {
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	where, args := applicationWhere(storage.ApplicationFilter{
		EmployerID:  "e1",
		Status:      application.StatusPending,
		CreatedFrom: from,
	})

	want := " WHERE employer_id = $1 AND status = $2 AND created_at >= $3"
	if where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}
	if len(args) != 3 || args[0] != "e1" || args[1] != "pending" || args[2] != from {
		t.Fatalf("args = %v", args)
	}
}

func TestApplicationWhereEmptyFilter(t *testing.T) {
	where, args := applicationWhere(storage.ApplicationFilter{})
	if where != "" || args != nil {
		t.Fatalf("empty filter produced %q / %v", where, args)
	}
}

// TestPostgresRoundTrip runs against a real database when TEST_POSTGRES_DSN is
// set; it applies migrations and walks an application through the pipeline.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()

	emp, err := store.CreateEmployer(ctx, employer.Employer{Name: "Acme"})
	if err != nil {
		t.Fatalf("create employer: %v", err)
	}
	j, err := store.CreateJob(ctx, job.Job{EmployerID: emp.ID, Title: "Engineer", Status: job.StatusPublished})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	app, err := store.CreateApplication(ctx, application.Application{
		CandidateID: "cand-" + j.ID, JobID: j.ID, EmployerID: emp.ID, Status: application.StatusPending,
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	// The partial unique index rejects a second active submission.
	_, err = store.CreateApplication(ctx, application.Application{
		CandidateID: app.CandidateID, JobID: j.ID, EmployerID: emp.ID, Status: application.StatusPending,
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("duplicate err = %v, want ErrDuplicate", err)
	}

	app.Status = application.StatusReviewing
	if _, err := store.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("transition: %v", err)
	}

	applied, err := store.IncrementApplications(ctx, j.ID, app.ID)
	if err != nil || !applied {
		t.Fatalf("first count = %v, %v", applied, err)
	}
	applied, err = store.IncrementApplications(ctx, j.ID, app.ID)
	if err != nil || applied {
		t.Fatalf("redelivery = %v, %v, want not applied", applied, err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.ApplicationsCount != 1 {
		t.Fatalf("applications_count = %d, want 1", got.ApplicationsCount)
	}
}
