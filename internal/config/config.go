package config

import (
	"fmt"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics/forecast"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort     int           `mapstructure:"http_port"` // HTTP server port
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"` // Max request body in bytes
}

// ForecastConfig groups the horizon policy and the model tournament settings
type ForecastConfig struct {
	// Horizon policy
	MinMonths                int     `mapstructure:"min_months"`
	MaxMonths                int     `mapstructure:"max_months"`
	ObservationsPerParameter int     `mapstructure:"observations_per_parameter"`
	SparsityThreshold        float64 `mapstructure:"sparsity_threshold"`

	// Models
	SeasonalPeriod       int           `mapstructure:"seasonal_period"`
	Confidence           float64       `mapstructure:"confidence"`
	EnableSequenceModels bool          `mapstructure:"enable_sequence_models"`
	Seed                 uint64        `mapstructure:"seed"`
	Parallel             bool          `mapstructure:"parallel"`
	TournamentDeadline   time.Duration `mapstructure:"tournament_deadline"` // 0 disables the deadline

	// Adapter names allowed into the tournament; empty enables every model
	Models []string `mapstructure:"models"`

	// Request bounds
	MinObservations  int `mapstructure:"min_observations"`
	MaxRequestMonths int `mapstructure:"max_request_months"` // Upper bound accepted by the API
}

// AnomalyConfig holds the residual severity thresholds in standard deviations
type AnomalyConfig struct {
	MediumSigma float64 `mapstructure:"medium_sigma"`
	HighSigma   float64 `mapstructure:"high_sigma"`
}

// WorkerConfig bounds concurrent pipeline runs
type WorkerConfig struct {
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Type        string        `mapstructure:"type"`        // none, memory, redis
	TTL         time.Duration `mapstructure:"ttl"`         // Entry lifetime
	Compression string        `mapstructure:"compression"` // snappy, none
	URL         string        `mapstructure:"url"`         // Redis address (host:port)
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"` // Key prefix
}

// StoreConfig represents prediction store configuration
type StoreConfig struct {
	Type     string `mapstructure:"type"` // memory, postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"`     // Queue type: nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`       // Redis database number (default: 0)
	RedisStream   string `mapstructure:"redis_stream"`   // Redis stream prefix (default: "ledgercast")
	RedisGroup    string `mapstructure:"redis_group"`    // Redis consumer group (default: "ledgercast-group")
	RedisConsumer string `mapstructure:"redis_consumer"` // Redis consumer name (default: hostname)

	// Pending Redis entries idle this long are claimed and retried (default: 30s)
	RedisClaimIdle time.Duration `mapstructure:"redis_claim_idle"`

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`  // Kafka broker addresses
	KafkaGroupID string   `mapstructure:"kafka_group_id"` // Kafka consumer group ID

	// Subjects
	RequestSubject string `mapstructure:"request_subject"`
	ResultSubject  string `mapstructure:"result_subject"`
	AnomalySubject string `mapstructure:"anomaly_subject"`
}

// MetricsConfig represents Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig represents per-key request rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, UnixMs, etc
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast config: %w", err)
	}

	if err := c.Anomaly.Validate(); err != nil {
		return fmt.Errorf("anomaly config: %w", err)
	}

	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("worker config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit config: %w", err)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth config: api_keys is required when auth is enabled")
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.BodyLimit < 0 {
		return fmt.Errorf("body_limit cannot be negative")
	}

	return nil
}

// Validate validates forecast configuration
func (c *ForecastConfig) Validate() error {
	if c.MinMonths < 1 {
		return fmt.Errorf("forecast.min_months must be at least 1")
	}

	if c.MaxMonths < c.MinMonths {
		return fmt.Errorf("forecast.max_months cannot be less than forecast.min_months")
	}

	if c.ObservationsPerParameter < 1 {
		return fmt.Errorf("forecast.observations_per_parameter must be at least 1")
	}

	if c.SparsityThreshold < 0 || c.SparsityThreshold > 1 {
		return fmt.Errorf("forecast.sparsity_threshold must be within [0, 1]")
	}

	if c.SeasonalPeriod < 2 {
		return fmt.Errorf("forecast.seasonal_period must be at least 2")
	}

	if c.Confidence <= 0 || c.Confidence >= 1 {
		return fmt.Errorf("forecast.confidence must be within (0, 1)")
	}

	if c.TournamentDeadline < 0 {
		return fmt.Errorf("forecast.tournament_deadline cannot be negative")
	}

	if err := forecast.ValidateModels(c.forecastOptions()); err != nil {
		return fmt.Errorf("forecast.models: %w", err)
	}

	if c.MinObservations < 1 {
		return fmt.Errorf("forecast.min_observations must be at least 1")
	}

	if c.MaxRequestMonths < 1 {
		return fmt.Errorf("forecast.max_request_months must be at least 1")
	}

	return nil
}

// Validate validates anomaly configuration
func (c *AnomalyConfig) Validate() error {
	if c.MediumSigma <= 0 {
		return fmt.Errorf("anomaly.medium_sigma must be positive")
	}

	if c.HighSigma < c.MediumSigma {
		return fmt.Errorf("anomaly.high_sigma cannot be less than anomaly.medium_sigma")
	}

	return nil
}

// Validate validates worker configuration
func (c *WorkerConfig) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("worker.pool_size must be at least 1")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("worker.timeout must be positive")
	}

	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	switch c.Type {
	case "none", "memory":
	case "redis":
		if c.URL == "" {
			return fmt.Errorf("cache.url is required for redis cache")
		}
	default:
		return fmt.Errorf("cache.type must be one of: none, memory, redis")
	}

	if c.Type != "none" && c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Compression != "snappy" && c.Compression != "none" {
		return fmt.Errorf("cache.compression must be 'snappy' or 'none'")
	}

	return nil
}

// Validate validates store configuration
func (c *StoreConfig) Validate() error {
	switch c.Type {
	case "memory":
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres store")
		}
		if c.MaxConns < 1 {
			return fmt.Errorf("store.max_conns must be at least 1")
		}
	default:
		return fmt.Errorf("store.type must be 'memory' or 'postgres'")
	}

	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	validTypes := map[string]bool{
		"nats":   true,
		"redis":  true,
		"kafka":  true,
		"memory": true,
	}

	if !validTypes[c.Type] {
		return fmt.Errorf("queue.type must be one of: nats, redis, kafka, memory")
	}

	if c.Type == "kafka" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("queue.kafka_brokers is required for kafka queue")
	}

	if c.RequestSubject == "" || c.ResultSubject == "" || c.AnomalySubject == "" {
		return fmt.Errorf("queue subjects are required")
	}

	return nil
}

// Validate validates rate limit configuration
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive")
	}

	if c.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
