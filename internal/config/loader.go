package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")               // Current directory
		v.AddConfigPath("./configs")       // Project configs directory
		v.AddConfigPath("./config")        // Alternative config directory
		v.AddConfigPath("/etc/ledgercast") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides (LEDGERCAST_SERVER_HTTP_PORT, ...)
	v.SetEnvPrefix("LEDGERCAST")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server defaults
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout.String())
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout.String())
	v.SetDefault("server.body_limit", d.Server.BodyLimit)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
	v.SetDefault("logging.time_format", d.Logging.TimeFormat)

	// Forecast defaults
	v.SetDefault("forecast.min_months", d.Forecast.MinMonths)
	v.SetDefault("forecast.max_months", d.Forecast.MaxMonths)
	v.SetDefault("forecast.observations_per_parameter", d.Forecast.ObservationsPerParameter)
	v.SetDefault("forecast.sparsity_threshold", d.Forecast.SparsityThreshold)
	v.SetDefault("forecast.seasonal_period", d.Forecast.SeasonalPeriod)
	v.SetDefault("forecast.confidence", d.Forecast.Confidence)
	v.SetDefault("forecast.enable_sequence_models", d.Forecast.EnableSequenceModels)
	v.SetDefault("forecast.seed", d.Forecast.Seed)
	v.SetDefault("forecast.parallel", d.Forecast.Parallel)
	v.SetDefault("forecast.tournament_deadline", d.Forecast.TournamentDeadline.String())
	v.SetDefault("forecast.min_observations", d.Forecast.MinObservations)
	v.SetDefault("forecast.max_request_months", d.Forecast.MaxRequestMonths)

	// Anomaly defaults
	v.SetDefault("anomaly.medium_sigma", d.Anomaly.MediumSigma)
	v.SetDefault("anomaly.high_sigma", d.Anomaly.HighSigma)

	// Worker defaults
	v.SetDefault("worker.pool_size", d.Worker.PoolSize)
	v.SetDefault("worker.timeout", d.Worker.Timeout.String())

	// Cache defaults
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.compression", d.Cache.Compression)
	v.SetDefault("cache.url", d.Cache.URL)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.prefix", d.Cache.Prefix)

	// Store defaults
	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.max_conns", d.Store.MaxConns)

	// Queue defaults
	v.SetDefault("queue.enabled", d.Queue.Enabled)
	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.redis_stream", d.Queue.RedisStream)
	v.SetDefault("queue.redis_group", d.Queue.RedisGroup)
	v.SetDefault("queue.redis_claim_idle", d.Queue.RedisClaimIdle)
	v.SetDefault("queue.kafka_group_id", d.Queue.KafkaGroupID)
	v.SetDefault("queue.request_subject", d.Queue.RequestSubject)
	v.SetDefault("queue.result_subject", d.Queue.ResultSubject)
	v.SetDefault("queue.anomaly_subject", d.Queue.AnomalySubject)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		// Return default configuration
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			HTTPPort:     5555,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			BodyLimit:    4 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Forecast: ForecastConfig{
			MinMonths:                3,
			MaxMonths:                24,
			ObservationsPerParameter: 3,
			SparsityThreshold:        0.2,
			SeasonalPeriod:           12,
			Confidence:               0.95,
			EnableSequenceModels:     true,
			Seed:                     42,
			Parallel:                 true,
			TournamentDeadline:       20 * time.Second,
			MinObservations:          1,
			MaxRequestMonths:         60,
		},
		Anomaly: AnomalyConfig{
			MediumSigma: 2,
			HighSigma:   3,
		},
		Worker: WorkerConfig{
			PoolSize: 4,
			Timeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			Type:        "memory",
			TTL:         10 * time.Minute,
			Compression: "snappy",
			URL:         "localhost:6379",
			Prefix:      "ledgercast:",
		},
		Store: StoreConfig{
			Type:     "memory",
			MaxConns: 10,
		},
		Queue: QueueConfig{
			Enabled:        false,
			Type:           "nats",
			URL:            "nats://localhost:4222",
			RedisStream:    "ledgercast",
			RedisGroup:     "ledgercast-group",
			RedisClaimIdle: 30 * time.Second,
			KafkaGroupID:   "ledgercast-workers",
			RequestSubject: "forecast.requests",
			ResultSubject:  "forecast.completed",
			AnomalySubject: "forecast.anomalies",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}
