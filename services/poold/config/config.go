package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen  = ":8640"
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config captures the runtime settings for the pool daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	GenesisPath   string          `yaml:"genesis"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimits    RateLimitConfig `yaml:"rate_limits"`
	CORS          CORSConfig      `yaml:"cors"`
	Storage       StorageConfig   `yaml:"storage"`
	Journal       JournalConfig   `yaml:"journal"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Log           LogConfig       `yaml:"log"`
}

// AuthConfig configures bearer token verification. The token subject is the
// caller's address.
type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	HMACSecret    string        `yaml:"hmac_secret"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
	OptionalPaths []string      `yaml:"optional_paths"`
}

// RateLimit bounds requests per client identity.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// RateLimitConfig holds the read and write budgets.
type RateLimitConfig struct {
	Reads  RateLimit `yaml:"reads"`
	Writes RateLimit `yaml:"writes"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects the key-value backend for pool state.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// JournalConfig selects the relational event journal.
type JournalConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	ExportDir string `yaml:"export_dir"`
}

type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Metrics     bool              `yaml:"metrics"`
	Traces      bool              `yaml:"traces"`
	SampleRatio float64           `yaml:"sample_ratio"`
	// ExportInterval is the OTLP metric push period.
	ExportInterval time.Duration `yaml:"export_interval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when fields are left empty.
func Default() Config {
	return Config{
		ListenAddress: defaultListen,
		Auth: AuthConfig{
			ClockSkew:     2 * time.Minute,
			OptionalPaths: []string{"/healthz", "/metrics"},
		},
		RateLimits: RateLimitConfig{
			Reads:  RateLimit{RequestsPerMinute: 1200, Burst: 100},
			Writes: RateLimit{RequestsPerMinute: 300, Burst: 30},
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Journal: JournalConfig{Driver: DriverNone},
	}
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.Auth.normalize()
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = DriverNone
	}
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	cfg.Journal.ExportDir = strings.TrimSpace(cfg.Journal.ExportDir)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.Auth.validate(cfg.Environment); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverLevelDB:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for leveldb")
		}
	default:
		return fmt.Errorf("storage: unsupported driver %q", cfg.Storage.Driver)
	}
	switch cfg.Journal.Driver {
	case DriverNone:
	case DriverSQLite, DriverPostgres:
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: dsn required for %s", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if cfg.Journal.ExportDir != "" && cfg.Journal.Driver == DriverNone {
		return fmt.Errorf("journal: export_dir requires a journal driver")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if cfg.Telemetry.ExportInterval < 0 {
		return fmt.Errorf("telemetry: export_interval must not be negative")
	}
	if cfg.RateLimits.Reads.RequestsPerMinute < 0 || cfg.RateLimits.Writes.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limits: requests_per_minute must not be negative")
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	cfg.OptionalPaths = trimAll(cfg.OptionalPaths)
}

func (cfg AuthConfig) validate(env string) error {
	if !cfg.Enabled {
		if env != "" && env != "dev" {
			return fmt.Errorf("authentication may only be disabled in the dev environment")
		}
		return nil
	}
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
