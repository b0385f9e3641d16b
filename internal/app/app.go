package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/config"
	"github.com/sandeepkv93/otp-account-service/internal/health"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

// Scheduler is a background job that runs for the lifetime of the server.
type Scheduler interface {
	Start() error
	Stop(ctx context.Context) error
}

// Drainer flushes deliveries still in flight.
type Drainer interface {
	Close(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner
	Purge         Scheduler
	Notifier      Drainer
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	purge Scheduler,
	notifier Drainer,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Readiness:     readiness,
		Purge:         purge,
		Notifier:      notifier,
	}
}

// Start launches the background jobs. Serving HTTP is left to the caller.
func (a *App) Start() error {
	if a.Purge == nil {
		return nil
	}
	return a.Purge.Start()
}

// Shutdown stops accepting requests first and closes storage last.
func (a *App) Shutdown(ctx context.Context) error {
	totalTimeout := a.Config.ShutdownTimeout
	if totalTimeout <= 0 {
		totalTimeout = 20 * time.Second
	}
	totalCtx, totalCancel := context.WithTimeout(ctx, totalTimeout)
	defer totalCancel()

	var errs []error
	if a.Server != nil {
		httpTimeout := a.Config.ShutdownHTTPDrainTimeout
		if httpTimeout <= 0 {
			httpTimeout = 10 * time.Second
		}
		httpCtx, httpCancel := context.WithTimeout(totalCtx, httpTimeout)
		if err := a.Server.Shutdown(httpCtx); err != nil {
			a.Logger.Error("failed to shutdown http server", "error", err)
			errs = append(errs, err)
		}
		httpCancel()
	}

	if a.Purge != nil {
		if err := a.Purge.Stop(totalCtx); err != nil {
			a.Logger.Error("failed to stop purge scheduler", "error", err)
			errs = append(errs, err)
		}
	}
	if a.Notifier != nil {
		if err := a.Notifier.Close(totalCtx); err != nil {
			a.Logger.Error("failed to drain otp notifier", "error", err)
			errs = append(errs, err)
		}
	}

	if a.Observability != nil {
		obsTimeout := a.Config.ShutdownObservabilityTimeout
		if obsTimeout <= 0 {
			obsTimeout = 8 * time.Second
		}
		obsCtx, obsCancel := context.WithTimeout(totalCtx, obsTimeout)
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
			errs = append(errs, err)
		}
		obsCancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
