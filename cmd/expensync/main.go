package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"expensync/internal/cli"
	"expensync/internal/config"
	applog "expensync/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.LoadClient()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logs go to stderr so command output stays parseable.
	logger := cli.SetupLogger(cfg.LogLevel, "text", applog.ComponentApp, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.NewApp(cfg, os.Stdin, os.Stdout, os.Stderr, logger).Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
