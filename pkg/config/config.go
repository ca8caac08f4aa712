package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for buddy-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Document pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Classification / extraction oracle endpoints
	Oracles OracleConfig `yaml:"oracles"`

	// Virus scanning gate
	Scanner ScannerConfig `yaml:"scanner"`

	// OCR sidecar
	OCR OCRConfig `yaml:"ocr"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"buddy"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"buddy_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// PipelineConfig holds spread generation and healing settings.
// The debounce and healing thresholds are operational tuning knobs, not
// business requirements; the defaults mirror observed production behavior.
type PipelineConfig struct {
	// DebounceSeconds suppresses a new orchestration run when another run for
	// the same deal started within this window.
	DebounceSeconds int `yaml:"debounce_seconds" env:"PIPELINE_DEBOUNCE_SECONDS" env-default:"60"`

	// AutoHealMinutes is how long a spread may sit in generating before the
	// observer force-transitions it to error.
	AutoHealMinutes int `yaml:"auto_heal_minutes" env:"PIPELINE_AUTO_HEAL_MINUTES" env-default:"60"`

	// OrphanMinutes is how long past its lease expiry a running job may sit
	// before the observer resets it to queued.
	OrphanMinutes int `yaml:"orphan_minutes" env:"PIPELINE_ORPHAN_MINUTES" env-default:"15"`

	// WorkerPollSeconds is the spread worker's poll interval.
	WorkerPollSeconds int `yaml:"worker_poll_seconds" env:"PIPELINE_WORKER_POLL_SECONDS" env-default:"5"`

	// WorkerCount is the number of concurrent spread workers per process.
	WorkerCount int `yaml:"worker_count" env:"PIPELINE_WORKER_COUNT" env-default:"2"`

	// LeaseMinutes is the length of a worker's job lease.
	LeaseMinutes int `yaml:"lease_minutes" env:"PIPELINE_LEASE_MINUTES" env-default:"10"`

	// ObserverIntervalSeconds is how often the healing pass runs.
	ObserverIntervalSeconds int `yaml:"observer_interval_seconds" env:"PIPELINE_OBSERVER_INTERVAL_SECONDS" env-default:"60"`
}

// OracleConfig holds classification and extraction oracle settings.
type OracleConfig struct {
	// OpenAI serves the standard and tabular extraction tiers plus classification.
	OpenAIKey   string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
	OpenAIModel string `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`

	// Anthropic serves the high-fidelity tier for underwriting-critical types.
	AnthropicKey   string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	AnthropicModel string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-sonnet-4-20250514"`
}

// ScannerConfig holds virus-scan gate settings.
type ScannerConfig struct {
	// Endpoint is the scan service base URL. Required outside local env:
	// an unconfigured scan gate in production must fail startup rather than
	// silently admit unscanned documents.
	Endpoint string `yaml:"endpoint" env:"SCANNER_ENDPOINT" env-default:""`

	// Engine identifies the scanning engine version recorded with cache entries.
	Engine string `yaml:"engine" env:"SCANNER_ENGINE" env-default:"clamav"`

	TimeoutSeconds int `yaml:"timeout_seconds" env:"SCANNER_TIMEOUT_SECONDS" env-default:"30"`
}

// OCRConfig holds OCR sidecar settings. The endpoint is optional: without it,
// intake can still complete for uploads whose digest matches an earlier
// document with successful OCR.
type OCRConfig struct {
	Endpoint       string `yaml:"endpoint" env:"OCR_ENDPOINT" env-default:""`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"OCR_TIMEOUT_SECONDS" env-default:"120"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces configuration invariants that must hold before startup.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Scanner.Endpoint == "" {
		// Fail loudly: a missing scan gate must never degrade to "no scanning".
		return fmt.Errorf("SCANNER_ENDPOINT is required when ENVIRONMENT=%s", c.Env)
	}

	if c.Pipeline.DebounceSeconds < 0 || c.Pipeline.AutoHealMinutes <= 0 || c.Pipeline.OrphanMinutes <= 0 {
		return fmt.Errorf("pipeline thresholds must be positive")
	}

	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("pipeline worker_count must be at least 1")
	}

	return nil
}

// IsProduction returns true for any non-development environment.
func (c *Config) IsProduction() bool {
	return c.Env != "local" && c.Env != "test"
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
