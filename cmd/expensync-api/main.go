package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensync/internal/amqp"
	"expensync/internal/auth"
	"expensync/internal/cache"
	"expensync/internal/cli"
	"expensync/internal/config"
	apphttp "expensync/internal/http"
	applog "expensync/internal/log"
	"expensync/internal/metrics"
	"expensync/internal/middleware/ratelimit"
	"expensync/internal/photos"
	"expensync/internal/services"
	"expensync/internal/storage"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.LoadServer()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentApp, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	repo, err := openRepository(startCtx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	photoStore, err := openPhotoStore(context.Background(), cfg)
	if err != nil {
		return err
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP).Slog())
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, events are not published")
	}

	m := metrics.New()
	dash := services.NewDashboardService(repo, cfg.DashboardCacheTTL)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	svcLogger := logger.WithComponent(applog.ComponentExpense).Slog()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Users: services.NewUserService(repo, issuer, photoStore, dash, logger.WithComponent(applog.ComponentAuth).Slog()),
		Expenses: services.NewExpenseService(repo, services.ExpenseServiceConfig{
			Photos:        photoStore,
			PhotoMaxBytes: cfg.PhotoMaxBytes,
			Publisher:     publisher,
			Metrics:       m,
			Dashboard:     dash,
			Logger:        svcLogger,
		}),
		Push:      services.NewPushService(repo, publisher, m, logger.WithComponent(applog.ComponentNotify).Slog()),
		Dashboard: dash,
		Tokens:    issuer,
		Metrics:   m,
		Logger:    logger.WithComponent(applog.ComponentHTTP),
		Ready:     repo.Ping,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			CleanupInterval:   5 * time.Minute,
			IdleTimeout:       10 * time.Minute,
		},
		PhotoMaxBytes: cfg.PhotoMaxBytes,
	})

	srv.ReadHeaderTimeout = 10 * time.Second
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cache.NewJanitor(time.Minute, logger.WithComponent(applog.ComponentCache).Slog(), dash.Cache()).Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting expensync API",
			"port", cfg.Port,
			"database", cfg.DatabaseDriver,
			"photos", cfg.PhotoBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		return err
	}
	cli.WaitForShutdown(ctx, done)
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (*storage.Repository, error) {
	dsn := cfg.SQLiteDBPath
	if cfg.DatabaseDriver == storage.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	repo, err := storage.Open(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", cfg.DatabaseDriver, err)
	}
	return repo, nil
}

// openPhotoStore returns a router whose primary store is the configured
// backend. The disk store stays mounted so photos saved before a switch to
// drive remain readable.
func openPhotoStore(ctx context.Context, cfg *config.Config) (photos.Store, error) {
	disk, err := photos.NewDiskStore(cfg.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("open photo directory: %w", err)
	}
	if cfg.PhotoBackend != "drive" {
		return photos.NewRouter(photos.SchemeDisk, disk), nil
	}

	creds, err := photos.DriveCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, err
	}
	drive, err := photos.NewDriveStore(ctx, creds, cfg.GoogleDriveFolderID)
	if err != nil {
		return nil, fmt.Errorf("open drive photo store: %w", err)
	}
	return photos.NewRouter(photos.SchemeDrive, drive).Mount(photos.SchemeDisk, disk), nil
}
