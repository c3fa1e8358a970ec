// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host     string `envconfig:"RADICUGLOSS_HOST" yaml:"host"`
	Port     int    `envconfig:"RADICUGLOSS_PORT" yaml:"port"`
	GRPCPort int    `envconfig:"RADICUGLOSS_GRPC_PORT" yaml:"grpc_port"` // 0 = disabled

	ReadTimeout     time.Duration `envconfig:"RADICUGLOSS_READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout    time.Duration `envconfig:"RADICUGLOSS_WRITE_TIMEOUT" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `envconfig:"RADICUGLOSS_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`

	// Scoring defaults
	Scoring ScoringConfig `yaml:"scoring"`

	// History configuration
	History HistoryConfig `yaml:"history"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`
}

// ScoringConfig holds the defaults applied when a request leaves a field unset.
type ScoringConfig struct {
	FPPenalty        float64 `envconfig:"RADICUGLOSS_FP_PENALTY" yaml:"fp_penalty"`
	FNPenalty        float64 `envconfig:"RADICUGLOSS_FN_PENALTY" yaml:"fn_penalty"`
	Invert           bool    `envconfig:"RADICUGLOSS_INVERT" yaml:"invert"`
	PunishMax        bool    `envconfig:"RADICUGLOSS_PUNISH_MAX" yaml:"punish_max"`
	BatchConcurrency int     `envconfig:"RADICUGLOSS_BATCH_CONCURRENCY" yaml:"batch_concurrency"`
	MaxBatchSize     int     `envconfig:"RADICUGLOSS_MAX_BATCH_SIZE" yaml:"max_batch_size"`
}

// HistoryConfig holds score history settings.
type HistoryConfig struct {
	Type     string        `envconfig:"RADICUGLOSS_HISTORY_TYPE" yaml:"type"`
	RedisURL string        `envconfig:"RADICUGLOSS_REDIS_URL" yaml:"redis_url"`
	TTL      time.Duration `envconfig:"RADICUGLOSS_HISTORY_TTL" yaml:"ttl"`
	Limit    int           `envconfig:"RADICUGLOSS_HISTORY_LIMIT" yaml:"limit"` // per query, memory store
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RADICUGLOSS_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RADICUGLOSS_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RADICUGLOSS_KAFKA_GROUP" yaml:"kafka_group"`
	Topic        string `envconfig:"RADICUGLOSS_BUS_TOPIC" yaml:"topic"`
	ClientID     string `envconfig:"RADICUGLOSS_KAFKA_CLIENT_ID" yaml:"client_id"`
	JournalPath  string `envconfig:"RADICUGLOSS_BUS_JOURNAL" yaml:"journal_path"` // empty = no journal
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RADICUGLOSS_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RADICUGLOSS_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"RADICUGLOSS_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	RateBurst   int    `envconfig:"RADICUGLOSS_RATE_BURST" yaml:"rate_burst"`
	CORSOrigins string `envconfig:"RADICUGLOSS_CORS_ORIGINS" yaml:"cors_origins"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"RADICUGLOSS_METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"RADICUGLOSS_METRICS_PATH" yaml:"path"`
}

// Load loads configuration from environment variables and optional config file.
// Priority: env vars > config file > defaults
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the built-in defaults without reading the environment.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 5678
	cfg.GRPCPort = 5679
	cfg.ReadTimeout = 30 * time.Second
	cfg.WriteTimeout = 60 * time.Second
	cfg.ShutdownTimeout = 30 * time.Second

	defaults := radicugloss.DefaultOptions()
	cfg.Scoring = ScoringConfig{
		FPPenalty:        defaults.FPPenalty,
		FNPenalty:        defaults.FNPenalty,
		Invert:           defaults.Invert,
		PunishMax:        defaults.PunishMax,
		BatchConcurrency: 8,
		MaxBatchSize:     1000,
	}

	cfg.History = HistoryConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379",
		TTL:      7 * 24 * time.Hour,
		Limit:    1000,
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		Topic:      "radicugloss.evaluation.completed",
		ClientID:   "radicugloss",
		KafkaGroup: "radicugloss",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "json",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   50,
		RateBurst:   100,
		CORSOrigins: "*",
	}

	cfg.Metrics = MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, "grpc_port must be between 0 and 65535")
	}

	if c.GRPCPort != 0 && c.GRPCPort == c.Port {
		errs = append(errs, "grpc_port must differ from port")
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		errs = append(errs, "server timeouts must be positive")
	}

	// Scoring validation
	opts := c.Scoring.Options()
	if err := opts.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Scoring.BatchConcurrency < 1 {
		errs = append(errs, "batch_concurrency must be positive")
	}

	if c.Scoring.MaxBatchSize < 1 {
		errs = append(errs, "max_batch_size must be positive")
	}

	// History validation
	validHistoryTypes := map[string]bool{"memory": true, "redis": true}
	if !validHistoryTypes[c.History.Type] {
		errs = append(errs, fmt.Sprintf("invalid history type: %s (must be memory or redis)", c.History.Type))
	}

	if c.History.Type == "redis" && c.History.RedisURL == "" {
		errs = append(errs, "redis_url is required for redis history")
	}

	if c.History.TTL < 0 {
		errs = append(errs, "history ttl must not be negative")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}

	if c.Bus.Topic == "" {
		errs = append(errs, "bus topic must not be empty")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Security validation
	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if c.Security.RateLimit > 0 && c.Security.RateBurst < 1 {
		errs = append(errs, "rate_burst must be positive when rate limiting is enabled")
	}

	// Metrics validation
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Options returns the scoring defaults as core options.
func (s ScoringConfig) Options() radicugloss.Options {
	return radicugloss.Options{
		FPPenalty: s.FPPenalty,
		FNPenalty: s.FNPenalty,
		Invert:    s.Invert,
		PunishMax: s.PunishMax,
	}
}

// Address returns the HTTP server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddress returns the gRPC server address, or "" when gRPC is disabled.
func (c *Config) GRPCAddress() string {
	if c.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// CORSOriginList splits the configured CORS origins.
func (c *Config) CORSOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.Security.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
