// Package config loads Pulsewire's runtime configuration from environment
// variables (optionally seeded from a local .env file), the way the donor
// ws-server subproject's own config.go does.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every knob this server reads at startup.
type Config struct {
	// Server basics
	Addr        string `env:"PW_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"PW_METRICS_ADDR" envDefault:":9090"`

	// App registration — a single app is provisioned from env for the
	// zero-config/dev path; production deployments may extend this with a
	// config file loader (out of this repository's scope, per spec.md §1).
	AppID     string `env:"PW_APP_ID" envDefault:"1"`
	AppKey    string `env:"PW_APP_KEY" envDefault:"app-key"`
	AppSecret string `env:"PW_APP_SECRET" envDefault:"app-secret"`
	AppName   string `env:"PW_APP_NAME" envDefault:"pulsewire"`

	// Resource limits (from container)
	CPULimit    float64 `env:"PW_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"PW_MEMORY_LIMIT" envDefault:"536870912"` // 512MB

	// Capacity
	MaxConnections int `env:"PW_MAX_CONNECTIONS" envDefault:"2000"`
	MaxGoroutines  int `env:"PW_MAX_GOROUTINES" envDefault:"20000"`

	// Rate limiting
	MaxBroadcastsPerSec int     `env:"PW_MAX_BROADCASTS_PER_SEC" envDefault:"2000"`
	ConnRateIPBurst     int     `env:"PW_CONN_RATE_IP_BURST" envDefault:"10"`
	ConnRateIPPerSec    float64 `env:"PW_CONN_RATE_IP_PER_SEC" envDefault:"1.0"`
	ConnRateGlobalBurst int     `env:"PW_CONN_RATE_GLOBAL_BURST" envDefault:"300"`
	ConnRateGlobalPerSec float64 `env:"PW_CONN_RATE_GLOBAL_PER_SEC" envDefault:"50.0"`

	// CPU safety thresholds (container-aware; see internal/platform)
	CPURejectThreshold float64 `env:"PW_CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64 `env:"PW_CPU_PAUSE_THRESHOLD" envDefault:"80.0"`

	// Monitoring
	MetricsInterval time.Duration `env:"PW_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"PW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PW_LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"PW_ENVIRONMENT" envDefault:"development"`

	// Optional event-ingestion bridge (NATS) — disabled unless a URL is set.
	NATSURL     string `env:"PW_NATS_URL"`
	NATSSubject string `env:"PW_NATS_SUBJECT" envDefault:"pulsewire.events"`

	// Optional audit-stream mirror (Kafka/Redpanda) — disabled unless
	// brokers are set.
	KafkaBrokers string `env:"PW_KAFKA_BROKERS"`
	KafkaTopic   string `env:"PW_KAFKA_TOPIC" envDefault:"pulsewire-events"`
}

// Load reads configuration from a local .env file (best effort) and then
// from the environment. Environment variables always win over .env file
// contents, and .env file loading failure is never fatal — production
// deployments set real environment variables and carry no .env file at all.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration overrides from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("PW_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("PW_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("PW_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("PW_CPU_PAUSE_THRESHOLD (%.1f) must be >= PW_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("PW_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("PW_LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}
	return nil
}

// NATSEnabled reports whether the NATS event-ingestion bridge should start.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// KafkaEnabled reports whether the Kafka/Redpanda audit-stream mirror
// should start.
func (c *Config) KafkaEnabled() bool {
	return c.KafkaBrokers != ""
}

// KafkaBrokerList splits the comma-separated PW_KAFKA_BROKERS value.
func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LogConfig logs the loaded configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("metrics_addr", c.MetricsAddr).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("max_connections", c.MaxConnections).
		Int("max_goroutines", c.MaxGoroutines).
		Int("max_broadcasts_per_sec", c.MaxBroadcastsPerSec).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Bool("nats_enabled", c.NATSEnabled()).
		Bool("kafka_enabled", c.KafkaEnabled()).
		Msg("configuration loaded")
}
