package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensync/internal/amqp"
	"expensync/internal/cli"
	"expensync/internal/config"
	applog "expensync/internal/log"
	"expensync/internal/notify"
	"expensync/internal/storage"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.LoadServer()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentNotify, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}

	logger.Info("Starting expensync-notifier")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	dsn := cfg.SQLiteDBPath
	if cfg.DatabaseDriver == storage.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	repo, err := storage.Open(startCtx, cfg.DatabaseDriver, dsn)
	cancelStart()
	if err != nil {
		logger.Error("Failed to open repository", "error", err, "driver", cfg.DatabaseDriver)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP).Slog())
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	var sender notify.Sender
	if cfg.PushGatewayURL != "" {
		sender = notify.NewGatewaySender(cfg.PushGatewayURL, cfg.PushGatewayKey, 10*time.Second)
		logger.Info("Push gateway configured", "url", cfg.PushGatewayURL)
	} else {
		sender = notify.NewLogSender(logger.Slog())
		logger.Info("No push gateway configured, notifications are only logged")
	}
	dispatcher := notify.NewDispatcher(repo, sender, logger.Slog())

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	if err := client.Consume(ctx, dispatcher.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
