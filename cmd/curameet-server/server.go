package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/config"
	"github.com/curameet/curameet/internal/domain/admin"
	"github.com/curameet/curameet/internal/domain/clinical"
	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/domain/scheduling"
	"github.com/curameet/curameet/internal/platform/audit"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/blobstore"
	"github.com/curameet/curameet/internal/platform/db"
	"github.com/curameet/curameet/internal/platform/jobs"
	"github.com/curameet/curameet/internal/platform/middleware"
	"github.com/curameet/curameet/internal/platform/validation"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	// sessionGraceDays keeps expired and revoked sessions this long before
	// the hourly purge removes them.
	sessionGraceDays = 1
)

// application holds the wired services and handlers of one server instance.
type application struct {
	auth     *identity.AuthService
	admin    *admin.Service
	activity middleware.ActivityRecorder
	handlers []routeRegistrar
	pool     *pgxpool.Pool
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// newBlobStore keeps attachments on disk under dir, or in memory when dir is
// empty.
func newBlobStore(dir string) (blobstore.BlobStore, error) {
	if dir == "" {
		return blobstore.NewInMemoryBlobStore(), nil
	}
	store, err := blobstore.NewDiskBlobStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}
	return store, nil
}

// buildApp wires repositories, services and handlers. A nil blobs store is
// replaced by one built from UPLOAD_DIR.
func buildApp(cfg *config.Config, pool *pgxpool.Pool, blobs blobstore.BlobStore, logger zerolog.Logger) (*application, error) {
	if blobs == nil {
		var err error
		if blobs, err = newBlobStore(cfg.UploadDir); err != nil {
			return nil, err
		}
	}

	v := validation.New()
	tx := db.NewTransactor(pool)
	hasher, err := auth.NewPasswordHasher(0)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})

	repos := identity.Repositories{
		Users:    identity.NewUserRepo(pool),
		Patients: identity.NewPatientRepo(pool),
		Doctors:  identity.NewDoctorRepo(pool),
		Sessions: identity.NewSessionRepo(pool),
		Resets:   identity.NewPasswordResetRepo(pool),
	}
	authSvc := identity.NewAuthService(repos, tx, tokens, hasher, v, identity.LogNotifier{Logger: logger}, logger)
	profiles := identity.NewProfileService(repos.Patients, repos.Doctors, v)

	schedSvc := scheduling.NewService(scheduling.NewAppointmentRepo(pool), repos.Patients, repos.Doctors, tx, v, logger)
	clinicalSvc := clinical.NewService(clinical.NewRecordRepo(pool), profiles, blobs, v, logger)

	activity := audit.NewLog(audit.NewStore(pool))
	adminSvc := admin.NewService(admin.Stores{
		Users:    repos.Users,
		Patients: repos.Patients,
		Doctors:  repos.Doctors,
		Sessions: repos.Sessions,
		Resets:   repos.Resets,
	}, activity, tx, v, logger)

	credLimit := middleware.RateLimit(middleware.PerMinute(cfg.LoginRatePerMin))

	return &application{
		auth:     authSvc,
		admin:    adminSvc,
		activity: activity,
		pool:     pool,
		handlers: []routeRegistrar{
			identity.NewHandler(authSvc, profiles, credLimit),
			scheduling.NewHandler(schedSvc),
			clinical.NewHandler(clinicalSvc),
			admin.NewHandler(adminSvc),
		},
	}, nil
}

// newRouter builds the echo instance with the global and /api/v1 middleware
// chains and every handler registered.
func newRouter(cfg *config.Config, app *application, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
	})
	if app.pool != nil {
		e.GET("/health/db", db.HealthHandler(app.pool, logger))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.Sanitize(logger))
	api.Use(middleware.Audit(logger, app.activity))
	api.Use(auth.Authenticate(app.auth, auth.AuthSkipper))
	api.Use(middleware.RequestTimeout(requestTimeout))

	for _, h := range app.handlers {
		h.RegisterRoutes(api)
	}
	return e
}

// maintenanceJobs schedules the periodic session purge and activity-log
// prune through the same code path as the admin endpoint.
func maintenanceJobs(cfg *config.Config, svc *admin.Service) []jobs.Job {
	return []jobs.Job{
		{
			Name:     "purge_sessions",
			Schedule: cfg.SessionPurgeSchedule,
			Run: func(ctx context.Context) (int64, error) {
				return svc.RunMaintenance(ctx, admin.OpPurgeSessions, sessionGraceDays)
			},
		},
		{
			Name:     "prune_logs",
			Schedule: cfg.LogPruneSchedule,
			Run: func(ctx context.Context) (int64, error) {
				return svc.RunMaintenance(ctx, admin.OpPruneLogs, cfg.LogRetentionDays)
			},
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.UsesDevSecret() {
		logger.Warn().Msg("using the built-in development JWT secret")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	app, err := buildApp(cfg, pool, nil, logger)
	if err != nil {
		return err
	}
	e := newRouter(cfg, app, logger)

	scheduler := jobs.NewScheduler(logger)
	for _, job := range maintenanceJobs(cfg, app.admin) {
		if err := scheduler.Add(job); err != nil {
			return err
		}
	}
	scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("jobs did not finish before shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}
