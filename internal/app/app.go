// Package app assembles the prediction service and its backends from
// configuration. The API server and the queue worker share it.
package app

import (
	"context"
	"fmt"

	"github.com/ledgercast/ledgercast/internal/cache"
	"github.com/ledgercast/ledgercast/internal/compression"
	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/metrics"
	"github.com/ledgercast/ledgercast/internal/pipeline"
	"github.com/ledgercast/ledgercast/internal/queue"
	"github.com/ledgercast/ledgercast/internal/services"
	"github.com/ledgercast/ledgercast/internal/store"
)

// Components holds everything built from configuration
type Components struct {
	Pipeline    *pipeline.Pipeline
	Store       store.Store
	Cache       cache.Cache
	Queue       queue.Queue // nil when the queue is disabled
	Events      *services.EventPublisher
	Metrics     *metrics.Registry
	Predictions *services.PredictionService

	logger *logging.Logger
}

// Build creates the components in dependency order. On error, whatever was
// already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error) {
	if logger == nil {
		logger = logging.Global()
	}
	c := &Components{logger: logger}

	c.Pipeline = pipeline.New(cfg.PipelineConfig(), logger)
	logger.Info("Forecast pipeline ready", "models", c.Pipeline.Models())

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open prediction store: %w", err)
	}
	c.Store = st
	logger.Info("Prediction store ready", "type", cfg.Store.Type)

	algo, err := compression.ParseAlgorithm(cfg.Cache.Compression)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("cache compression: %w", err)
	}
	compressor, err := compression.GetCompressor(algo)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("cache compression: %w", err)
	}
	backend, err := cache.New(cfg.Cache)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}
	c.Cache = backend
	logger.Info("Result cache ready", "type", cfg.Cache.Type, "compression", algo.String())

	if cfg.Queue.Enabled {
		q, err := queue.NewQueue(cfg.Queue, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to queue: %w", err)
		}
		c.Queue = q
		c.Events = services.NewEventPublisher(q, services.Subjects{
			Completed: cfg.Queue.ResultSubject,
			Anomalies: cfg.Queue.AnomalySubject,
		}, services.DefaultBreakerSettings(), logger)
		logger.Info("Queue connection established", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	} else {
		logger.Info("Queue disabled, events will not be published")
	}

	if cfg.Metrics.Enabled {
		c.Metrics = metrics.NewRegistry()
	}

	c.Predictions = services.NewPredictionService(logger, c.Pipeline, c.Store,
		cache.NewCodec(c.Cache, compressor), c.Events, c.Metrics,
		services.PredictionServiceConfig{
			PoolSize:         cfg.Worker.PoolSize,
			Timeout:          cfg.Worker.Timeout,
			MaxRequestMonths: cfg.Forecast.MaxRequestMonths,
		})

	return c, nil
}

// Close releases the queue, cache and store
func (c *Components) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.logger.Warn("Failed to close queue", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.logger.Warn("Failed to close cache", "error", err)
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
}
