// Package config loads feedsim settings.
//
// Load order: defaults, then a YAML file, then a .env file, then FEEDSIM_*
// environment variables. Variables already set in the process take
// precedence over the .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/feedsim/internal/feed"
)

// Environment variable names.
const (
	EnvBackendURL     = "FEEDSIM_BACKEND_URL"
	EnvBackendTimeout = "FEEDSIM_BACKEND_TIMEOUT"
	EnvBackendRate    = "FEEDSIM_BACKEND_RATE"
	EnvBackendBurst   = "FEEDSIM_BACKEND_BURST"
	EnvServerAddr     = "FEEDSIM_SERVER_ADDR"
	EnvDatabase       = "FEEDSIM_DATABASE"
	EnvPersonas       = "FEEDSIM_PERSONAS"
	EnvSchedule       = "FEEDSIM_SCHEDULE"
	EnvScheduleMode   = "FEEDSIM_SCHEDULE_MODE"
	EnvLogLevel       = "FEEDSIM_LOG_LEVEL"
)

// Config contains all feedsim settings.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

// BackendConfig configures the client side of the feed backend.
type BackendConfig struct {
	// URL is the backend base address.
	URL string `yaml:"url"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond paces outgoing requests; 0 disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second"`

	Burst int `yaml:"burst"`
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`

	// Personas is a CUE roster file. Empty means the built-in roster.
	Personas string `yaml:"personas"`
}

// ScheduleConfig configures the periodic simulation sweep.
type ScheduleConfig struct {
	// Spec is a cron expression or descriptor such as "@every 1m".
	// Empty disables the sweep.
	Spec string `yaml:"spec"`
	Mode string `yaml:"mode"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:           "http://localhost:8000",
			Timeout:       10 * time.Second,
			RatePerSecond: 10,
			Burst:         5,
		},
		Server: ServerConfig{
			Addr:     ":8000",
			Database: "feedsim.db",
		},
		Schedule: ScheduleConfig{
			Mode: string(feed.ModeAll),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from path and envFile. An empty path skips the YAML
// file; a missing envFile is ignored. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto c. Unknown fields are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvBackendURL, &c.Backend.URL)
	str(EnvServerAddr, &c.Server.Addr)
	str(EnvDatabase, &c.Server.Database)
	str(EnvPersonas, &c.Server.Personas)
	str(EnvSchedule, &c.Schedule.Spec)
	str(EnvScheduleMode, &c.Schedule.Mode)
	str(EnvLogLevel, &c.Log.Level)

	if v, ok := lookup(EnvBackendTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackendTimeout, err)
		}
		c.Backend.Timeout = d
	}
	if v, ok := lookup(EnvBackendRate); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackendRate, err)
		}
		c.Backend.RatePerSecond = f
	}
	if v, ok := lookup(EnvBackendBurst); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackendBurst, err)
		}
		c.Backend.Burst = n
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be non-negative, got %v", c.Backend.Timeout)
	}
	if c.Backend.RatePerSecond < 0 {
		return fmt.Errorf("backend.rate_per_second must be non-negative, got %v", c.Backend.RatePerSecond)
	}
	if c.Backend.Burst < 0 {
		return fmt.Errorf("backend.burst must be non-negative, got %d", c.Backend.Burst)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.Database == "" {
		return errors.New("server.database is required")
	}
	if _, err := feed.ParseMode(c.Schedule.Mode); err != nil {
		return fmt.Errorf("schedule.mode: %w", err)
	}
	if c.Schedule.Spec != "" {
		if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
			return fmt.Errorf("schedule.spec %q: %w", c.Schedule.Spec, err)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", s)
	}
}
