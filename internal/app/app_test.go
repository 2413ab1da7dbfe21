package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/services"
)

func TestBuild_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()

	c, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Pipeline)
	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Cache)
	assert.NotNil(t, c.Metrics)
	assert.NotNil(t, c.Predictions)
	assert.Nil(t, c.Queue)
	assert.Nil(t, c.Events)
	assert.Contains(t, c.Pipeline.Models(), "HoltWinters")
}

func TestBuild_MemoryQueue(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Queue.Enabled = true
	cfg.Queue.Type = "memory"
	cfg.Metrics.Enabled = false

	c, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Queue)
	assert.NotNil(t, c.Events)
	assert.Nil(t, c.Metrics)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown store", func(c *config.Config) { c.Store.Type = "sqlite" }},
		{"unknown compression", func(c *config.Config) { c.Cache.Compression = "zstd" }},
		{"unknown cache", func(c *config.Config) { c.Cache.Type = "memcached" }},
		{"unknown queue", func(c *config.Config) {
			c.Queue.Enabled = true
			c.Queue.Type = "rabbitmq"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			_, err := Build(context.Background(), cfg, logging.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestBuild_PredictsEndToEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Forecast.EnableSequenceModels = false
	cfg.Worker.Timeout = 20 * time.Second

	c, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer c.Close()

	req := &services.PredictRequest{}
	for i, v := range []float64{100, 110, 105, 120, 115, 130, 125, 140} {
		req.Series = append(req.Series, services.SeriesPoint{
			Date:   time.Date(2023, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Amount: v,
		})
	}

	prediction, err := c.Predictions.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, prediction.Result.ModelInfo.Name)
	assert.Equal(t, prediction.Result.DurationInfo.ValidatedMonths, len(prediction.Result.Forecast.Values))
}
