package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ledgercast/ledgercast/internal/app"
	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/worker"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	// 1. Load .env, then configuration
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Worker service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// 3. A worker without a queue has nothing to consume
	if !cfg.Queue.Enabled {
		logger.Fatal("Queue is disabled; set queue.enabled to run the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Build pipeline, store, cache and queue
	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", "error", err)
	}
	defer components.Close()

	// 5. Start consuming jobs
	w := worker.New(worker.Config{Subject: cfg.Queue.RequestSubject}, logger,
		components.Queue, components.Predictions, components.Events)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start worker", "error", err)
	}

	logger.Info("Worker service started successfully",
		"queue_type", cfg.Queue.Type,
		"queue_url", cfg.Queue.URL,
		"request_subject", cfg.Queue.RequestSubject,
		"result_subject", cfg.Queue.ResultSubject,
		"pool_size", cfg.Worker.PoolSize,
	)

	// 6. Wait for shutdown signal
	waitForShutdown(logger, cancel)

	if err := w.Stop(); err != nil {
		logger.Error("Failed to stop worker", "error", err)
	}
	logger.Info("Worker service stopped")
}

// waitForShutdown waits for interrupt signal and cancels the root context
func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()
}
