// Package config loads MarketPulse's structured configuration: a YAML
// file for database pool, HTTP server and pipeline settings, plus
// .env-backed secrets for the database DSN. Grounded on the teacher's internal/config
// package (ProvidersConfig loaded via gopkg.in/yaml.v3, validated after
// parse) and on the pack's godotenv usage pattern for local secrets
// (aristath-sentinel's internal/config.Config).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration: database connection,
// HTTP server, and the pipeline tunables (coordinator pacing, ban
// cooldown, batch worker pool size, snapshot schedule).
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds the PostgreSQL connection pool settings. DSN is
// read from the environment (via .env in dev), never stored in the
// YAML file, mirroring the teacher's split between tracked YAML config
// and untracked .env secrets. Durations are plain seconds in YAML, like
// the teacher's CacheConfig.Redis.DefaultTTLSeconds, with accessors
// (ConnMaxLifetime, QueryTimeout) doing the conversion — yaml.v3 has no built-in decoding of
// duration strings into time.Duration.
type DatabaseConfig struct {
	DSN                string `yaml:"-"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_seconds"`
	QueryTimeoutSec    int    `yaml:"query_timeout_seconds"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSec) * time.Second
}

func (c DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// HTTPConfig holds the JSON API server settings (spec §6).
type HTTPConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	ReadTimeoutSec    int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec   int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSec    int    `yaml:"idle_timeout_seconds"`
}

func (c HTTPConfig) ReadTimeout() time.Duration  { return time.Duration(c.ReadTimeoutSec) * time.Second }
func (c HTTPConfig) WriteTimeout() time.Duration { return time.Duration(c.WriteTimeoutSec) * time.Second }
func (c HTTPConfig) IdleTimeout() time.Duration  { return time.Duration(c.IdleTimeoutSec) * time.Second }

// PipelineConfig holds the C3/C6/C12 tunables spec §4.3/§4.6/§4.12 name
// as defaults: the 200ms coordinator pacing, the 5-minute ban cooldown,
// and the batch worker pool size.
type PipelineConfig struct {
	CoordinatorPacingMillis int    `yaml:"coordinator_pacing_millis"`
	BanCooldownSec          int    `yaml:"ban_cooldown_seconds"`
	BatchWorkers            int    `yaml:"batch_workers"`
	SnapshotCron            string `yaml:"snapshot_cron"`
}

func (c PipelineConfig) CoordinatorPacing() time.Duration {
	return time.Duration(c.CoordinatorPacingMillis) * time.Millisecond
}

func (c PipelineConfig) BanCooldown() time.Duration {
	return time.Duration(c.BanCooldownSec) * time.Second
}

// Default returns the configuration spec.md's own defaults describe,
// used whenever a YAML file is absent or a field is left blank.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 1800,
			QueryTimeoutSec:    5,
		},
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 10,
			IdleTimeoutSec:  60,
		},
		Pipeline: PipelineConfig{
			CoordinatorPacingMillis: 200,
			BanCooldownSec:          300,
			BatchWorkers:            10,
			SnapshotCron:            "5 15 * * 1-5",
		},
	}
}

// Load reads configuration in the order the teacher's own config
// package documents: start from Default(), overlay configPath's YAML if
// present, load envPath (a .env file) if present, then overlay the
// DATABASE_DSN environment variable, which always wins since it is
// never written to the YAML file.
func Load(configPath, envPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if host := os.Getenv("HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the loaded configuration is internally consistent,
// mirroring the teacher's ProvidersConfig.Validate pattern.
func (c Config) Validate() error {
	if c.Pipeline.BatchWorkers <= 0 {
		return fmt.Errorf("pipeline.batch_workers must be positive, got %d", c.Pipeline.BatchWorkers)
	}
	if c.Pipeline.CoordinatorPacingMillis < 0 {
		return fmt.Errorf("pipeline.coordinator_pacing_millis cannot be negative")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}
