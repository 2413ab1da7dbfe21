package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/ledgercast/ledgercast/internal/analytics/anomaly"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/duration"
	"github.com/ledgercast/ledgercast/internal/analytics/forecast"
	"github.com/ledgercast/ledgercast/internal/analytics/tournament"
	"github.com/ledgercast/ledgercast/internal/pipeline"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Logging.Level == "info" && c.Logging.Format == "json"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

func (c *ForecastConfig) forecastOptions() forecast.Options {
	return forecast.Options{
		SeasonalPeriod:       c.SeasonalPeriod,
		EnableSequenceModels: c.EnableSequenceModels,
		Seed:                 c.Seed,
		Models:               c.Models,
	}
}

// PipelineConfig maps the forecast and anomaly sections onto the pipeline stages
func (c *Config) PipelineConfig() pipeline.Config {
	diag := diagnostics.DefaultOptions()
	diag.Period = c.Forecast.SeasonalPeriod

	return pipeline.Config{
		Diagnostics: diag,
		Forecast:    c.Forecast.forecastOptions(),
		Tournament: tournament.Options{
			Parallel: c.Forecast.Parallel,
			Deadline: c.Forecast.TournamentDeadline,
		},
		Duration: duration.Options{
			ObservationsPerParameter: c.Forecast.ObservationsPerParameter,
			MinMonths:                c.Forecast.MinMonths,
			MaxMonths:                c.Forecast.MaxMonths,
			SparsityThreshold:        c.Forecast.SparsityThreshold,
		},
		Anomaly: anomaly.Config{
			MediumSigma: c.Anomaly.MediumSigma,
			HighSigma:   c.Anomaly.HighSigma,
		},
		Confidence:      c.Forecast.Confidence,
		MinObservations: c.Forecast.MinObservations,
	}
}
