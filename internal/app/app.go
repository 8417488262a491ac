package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mentorship/common/logger"
	"mentorship/common/telemetry"
	"mentorship/internal/config"
	"mentorship/internal/db"
	"mentorship/internal/events"
	"mentorship/internal/file"
	"mentorship/internal/health"
	"mentorship/internal/membership"
	"mentorship/internal/metrics"
	"mentorship/internal/middleware"
	"mentorship/internal/project"
	"mentorship/internal/schema"
	"mentorship/internal/skill"
	"mentorship/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	depPostgres = "postgres"
	depNATS     = "nats"

	healthCheckInterval = 15 * time.Second
)

type App struct {
	config    *config.Config
	logger    *slog.Logger
	db        *bun.DB
	telemetry *telemetry.Telemetry
	publisher *events.NATSPublisher
	router    chi.Router
	server    *http.Server
}

// New wires every component from configuration. It migrates the schema before returning.
func New(ctx context.Context) (*App, error) {
	slogLogger := logger.NewWithServiceContext(ServiceName, Version)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application", "git_commit", GitCommit, "build_time", BuildTime)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger.Info("config loaded", "env", cfg.Env)

	tel, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Env:            cfg.Env,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ExportInterval: time.Duration(cfg.Telemetry.ExportIntervalSeconds) * time.Second,
	}, cfg.Telemetry.Enabled, slogLogger)
	if err != nil {
		return nil, err
	}
	shared := tel.Metrics
	meter := otel.Meter(ServiceName)

	database, err := db.New(cfg.Database, slogLogger)
	if err != nil {
		return nil, err
	}
	schema.Register(database)
	if err := shared.Database.RegisterDB(database.DB, meter); err != nil {
		slogLogger.Warn("failed to register database pool metrics", "error", err)
	}

	if err := schema.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slogLogger.Info("database migrated")

	app := &App{
		config:    cfg,
		logger:    slogLogger,
		db:        database,
		telemetry: tel,
		router:    chi.NewRouter(),
	}

	dependencies := []string{depPostgres}
	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.Enabled {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, slogLogger, shared)
		if err != nil {
			slogLogger.Warn("failed to initialize NATS publisher, events disabled", "error", err)
		} else {
			app.publisher = natsPublisher
			publisher = natsPublisher
			dependencies = append(dependencies, depNATS)
		}
	}
	if err := shared.Health.RegisterDependencies(meter, dependencies); err != nil {
		slogLogger.Warn("failed to register dependency metrics", "error", err)
	}

	serviceMetrics, err := metrics.New(meter)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize service metrics: %w", err)
	}

	users := user.NewRepository(database, shared)
	skills := skill.NewLinker(database, shared)
	registry := membership.NewRegistry(database, shared, slogLogger)

	projectService := project.NewService(project.Deps{
		Tx:       db.NewTxRunner(database, shared),
		Repo:     project.NewRepository(database, shared),
		Users:    users,
		Skills:   skills,
		Files:    file.NewManager(database, shared),
		Registry: registry,
		Events:   publisher,
		Metrics:  serviceMetrics,
		Logger:   slogLogger,
	})
	projectHandler := project.NewHandler(projectService, slogLogger)
	userHandler := user.NewHandler(user.NewService(users, skills, registry), slogLogger)

	// Apply CORS middleware globally
	app.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	healthHandler := health.NewHandler(shared.Health, dependencies...)
	healthHandler.RegisterRoutes(app.router)

	identity := middleware.Identity(slogLogger)
	if cfg.Auth.JWTSecret != "" {
		identity = middleware.BearerIdentity([]byte(cfg.Auth.JWTSecret), slogLogger)
	}

	app.router.Route("/api", func(r chi.Router) {
		userHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(identity)
			projectHandler.RegisterRoutes(r)
			userHandler.RegisterRoutes(r)
		})
	})

	slogLogger.Info("application initialized successfully")

	return app, nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// StartHealthChecks probes every dependency until ctx is canceled.
func (a *App) StartHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	a.checkDependencies(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkDependencies(ctx)
		}
	}
}

func (a *App) checkDependencies(ctx context.Context) {
	hm := a.telemetry.Metrics.Health

	start := time.Now()
	err := a.db.PingContext(ctx)
	hm.RecordDependencyCheck(ctx, depPostgres, time.Since(start), err)
	if err != nil {
		a.logger.WarnContext(ctx, "dependency check failed", "dependency", depPostgres, "error", err)
	}

	if a.publisher != nil {
		start = time.Now()
		err = a.publisher.HealthCheck()
		hm.RecordDependencyCheck(ctx, depNATS, time.Since(start), err)
		if err != nil {
			a.logger.WarnContext(ctx, "dependency check failed", "dependency", depNATS, "error", err)
		}
	}
}

// Run serves HTTP and runs health checks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config.Server
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting", "port", cfg.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.StartHealthChecks(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown releases the publisher, the database and the meter provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	errs := []error{a.close()}
	if err := a.telemetry.Shutdown(ctx, a.logger); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// close releases the publisher and the database.
func (a *App) close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close nats: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
