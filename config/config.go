// Package config centralises runtime configuration for backtest runs.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment identifies where a backtest is executed.
type Environment string

const (
	// EnvDev marks local development runs.
	EnvDev Environment = "dev"
	// EnvCI marks runs executed by continuous integration.
	EnvCI Environment = "ci"
	// EnvResearch marks shared research runs.
	EnvResearch Environment = "research"
)

// Report formats accepted by the CLI.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// TelemetrySettings toggles the OTLP metric exporter.
type TelemetrySettings struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Settings contains process-wide configuration loaded from defaults and overrides.
type Settings struct {
	Environment Environment
	Workers     int
	Format      string
	Debug       bool
	Telemetry   TelemetrySettings
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		Environment: EnvDev,
		Workers:     1,
		Format:      FormatText,
		Debug:       false,
		Telemetry: TelemetrySettings{
			Enabled:  false,
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without overriding
// variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// FromEnv loads configuration values from BACKCLOCK_* environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("BACKCLOCK_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("BACKCLOCK_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BACKCLOCK_FORMAT")); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("BACKCLOCK_DEBUG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("BACKCLOCK_TELEMETRY_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("BACKCLOCK_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = Environment(strings.ToLower(string(env)))
		}
	}
}

// WithWorkers bounds how many runs execute concurrently.
func WithWorkers(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Workers = n
		}
	}
}

// WithFormat selects the report format.
func WithFormat(format string) Option {
	format = strings.ToLower(strings.TrimSpace(format))
	return func(s *Settings) {
		if format != "" {
			s.Format = format
		}
	}
}

// WithDebug toggles debug logging.
func WithDebug(debug bool) Option {
	return func(s *Settings) {
		s.Debug = debug
	}
}

// WithTelemetry replaces the telemetry settings.
func WithTelemetry(t TelemetrySettings) Option {
	return func(s *Settings) {
		s.Telemetry = t
		if strings.TrimSpace(s.Telemetry.Endpoint) == "" {
			s.Telemetry.Endpoint = Default().Telemetry.Endpoint
		}
	}
}

// Validate checks the process settings.
func (s Settings) Validate() error {
	if s.Workers <= 0 {
		return invalid("workers", "must be positive, was "+strconv.Itoa(s.Workers))
	}
	switch s.Format {
	case FormatText, FormatJSON:
	default:
		return invalid("format", "must be text or json, was "+strconv.Quote(s.Format))
	}
	return nil
}
