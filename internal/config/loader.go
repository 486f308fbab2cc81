package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "buildhive.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "BUILDHIVE_PORT")
	setString(&cfg.Server.CORSOrigin, "BUILDHIVE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BUILDHIVE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BUILDHIVE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "BUILDHIVE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "BUILDHIVE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "BUILDHIVE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "BUILDHIVE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BUILDHIVE_LOG_SERVICE")
	setInt(&cfg.Scheduler.MaxConcurrency, "BUILDHIVE_SCHED_MAX_CONCURRENCY")
	setDuration(&cfg.Scheduler.PollInterval, "BUILDHIVE_SCHED_POLL_INTERVAL")
	setDuration(&cfg.Scheduler.ErrorBackoff, "BUILDHIVE_SCHED_ERROR_BACKOFF")
	setDuration(&cfg.Executor.BaseDuration, "BUILDHIVE_EXECUTOR_BASE_DURATION")
	setDuration(&cfg.Health.CacheTTL, "BUILDHIVE_HEALTH_CACHE_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "BUILDHIVE_CACHE_L1_SIZE_MB")
	setInt(&cfg.Integrations.BatchSize, "BUILDHIVE_INTEGRATIONS_BATCH_SIZE")
	setDuration(&cfg.Integrations.BatchDelay, "BUILDHIVE_INTEGRATIONS_BATCH_DELAY")
	setBool(&cfg.Telemetry.Enabled, "BUILDHIVE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.MCP.Enabled, "BUILDHIVE_MCP_ENABLED")
	setString(&cfg.MCP.Port, "BUILDHIVE_MCP_PORT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Scheduler.MaxConcurrency < 1 {
		return errors.New("scheduler.max_concurrency must be >= 1")
	}
	if cfg.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.poll_interval must be positive")
	}
	if cfg.Integrations.BatchSize < 1 {
		return errors.New("integrations.batch_size must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
