// Package runtime assembles configuration, storage, services and the HTTP
// server into a runnable process.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/api/httpserver"
	app "github.com/hireloop/hireloop/internal/app"
	"github.com/hireloop/hireloop/internal/app/httpapi"
	"github.com/hireloop/hireloop/internal/app/services/health"
	"github.com/hireloop/hireloop/internal/app/storage/postgres"
	redisstore "github.com/hireloop/hireloop/internal/app/storage/redis"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/pkg/logger"
)

// Application wires core dependencies and manages the process lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *httpserver.Server
	db         *sql.DB
	rdb        *goredis.Client
}

// NewApplication constructs a new application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if stores.Counters != nil {
			stores.Counters = redisstore.NewCounters(rdb, stores.Counters)
		}
	}

	loc := time.Local
	if cfg.Stats.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Stats.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load stats timezone: %w", err)
		}
	}

	core, err := app.New(stores, app.Options{
		FeedCapacity:         cfg.Feed.Capacity,
		StatsRefreshInterval: time.Duration(cfg.Stats.RefreshIntervalSec) * time.Second,
		StatsLocation:        loc,
		StatsSeriesDays:      cfg.Stats.SeriesDays,
		ReconcileSchedule:    cfg.Counters.ReconcileSchedule,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}

	healthOpts := []health.Option{}
	if db != nil {
		healthOpts = append(healthOpts, health.WithDatabase(db))
	}
	if rdb != nil {
		healthOpts = append(healthOpts, health.WithRedis(rdb))
	}
	healthSvc := health.NewService(healthOpts...)

	handler := httpapi.NewHandler(core, healthSvc, log)
	httpSrv := httpserver.New(cfg.Server, log, handler)

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        core,
		httpServer: httpSrv,
		db:         db,
		rdb:        rdb,
	}, nil
}

// Run starts the background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr())
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, background services and
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	// No driver means the in-memory store; app.New fills the defaults.
	if cfg.Database.Driver == "" {
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	if cfg.Database.Migrate {
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		log.Info("database schema up to date")
	}

	store := postgres.New(db)
	return app.Stores{
		Applications: store,
		Jobs:         store,
		Counters:     store,
		Candidates:   store,
		Employers:    store,
	}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
