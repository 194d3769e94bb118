// Package settings loads autodev configuration from defaults, a YAML or
// TOML file and AUTODEV_* environment variables, in that order of
// precedence (later wins).
package settings

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/autodev/apiclient"
	"github.com/randalmurphal/autodev/workspace"
)

// Default polling intervals, matching the web dashboard.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultRefreshInterval   = 5 * time.Second
	DefaultDashboardInterval = 10 * time.Second
)

// Config holds client-side settings.
type Config struct {
	// APIURL is the backend base URL.
	APIURL string `json:"api_url" yaml:"api_url" toml:"api_url" jsonschema:"format=uri,default=http://localhost:8000"`

	// Retry is the default retry policy for JSON requests.
	Retry apiclient.RetryPolicy `json:"retry" yaml:"retry" toml:"retry"`

	// PollInterval is used while waiting for requirement generation.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`

	// RefreshInterval is used while watching developments.
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval" toml:"refresh_interval"`

	// DashboardInterval is used by stats --watch.
	DashboardInterval time.Duration `json:"dashboard_interval" yaml:"dashboard_interval" toml:"dashboard_interval"`

	// StateDir holds the workspace state file.
	// Default: $XDG_STATE_HOME/autodev or ~/.local/state/autodev.
	StateDir string `json:"state_dir" yaml:"state_dir" toml:"state_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// MetricsAddr enables the /metrics and /healthz listener when set.
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" toml:"metrics_addr,omitempty"`

	// WatchExtensions lists file extensions picked up by the drop folder.
	WatchExtensions []string `json:"watch_extensions" yaml:"watch_extensions" toml:"watch_extensions"`
}

// Default returns a Config with defaults applied.
func Default() Config {
	return Config{
		APIURL:            apiclient.DefaultBaseURL,
		Retry:             apiclient.DefaultRetryPolicy(),
		PollInterval:      DefaultPollInterval,
		RefreshInterval:   DefaultRefreshInterval,
		DashboardInterval: DefaultDashboardInterval,
		StateDir:          defaultStateDir(),
		LogLevel:          "info",
		WatchExtensions:   []string{".txt", ".csv", ".json"},
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "autodev")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autodev")
	}
	return filepath.Join(home, ".local", "state", "autodev")
}

// LoadFromEnv overrides fields from environment variables.
// Unparseable numeric or duration values are ignored.
//
// Supported variables:
//   - AUTODEV_API_URL (falls back to NEXT_PUBLIC_API_URL)
//   - AUTODEV_MAX_ATTEMPTS, AUTODEV_TIMEOUT, AUTODEV_BASE_DELAY,
//     AUTODEV_BACKOFF_MULTIPLIER, AUTODEV_MAX_DELAY
//   - AUTODEV_POLL_INTERVAL, AUTODEV_REFRESH_INTERVAL, AUTODEV_DASHBOARD_INTERVAL
//   - AUTODEV_STATE_DIR, AUTODEV_LOG_LEVEL, AUTODEV_METRICS_ADDR
//   - AUTODEV_WATCH_EXTENSIONS (comma separated)
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("NEXT_PUBLIC_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("AUTODEV_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("AUTODEV_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	envDuration("AUTODEV_TIMEOUT", &c.Retry.Timeout)
	envDuration("AUTODEV_BASE_DELAY", &c.Retry.BaseDelay)
	envDuration("AUTODEV_MAX_DELAY", &c.Retry.MaxDelay)
	if v := os.Getenv("AUTODEV_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retry.Multiplier = f
		}
	}
	envDuration("AUTODEV_POLL_INTERVAL", &c.PollInterval)
	envDuration("AUTODEV_REFRESH_INTERVAL", &c.RefreshInterval)
	envDuration("AUTODEV_DASHBOARD_INTERVAL", &c.DashboardInterval)
	if v := os.Getenv("AUTODEV_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("AUTODEV_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AUTODEV_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("AUTODEV_WATCH_EXTENSIONS"); v != "" {
		c.WatchExtensions = splitList(v)
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FromEnv returns Default() overridden by the environment.
func FromEnv() Config {
	cfg := Default()
	cfg.LoadFromEnv()
	return cfg
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url must be an http(s) URL, got %q", c.APIURL)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %v", c.PollInterval)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be > 0, got %v", c.RefreshInterval)
	}
	if c.DashboardInterval <= 0 {
		return fmt.Errorf("dashboard_interval must be > 0, got %v", c.DashboardInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, ext := range c.WatchExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch_extensions entries must start with '.', got %q", ext)
		}
	}
	return nil
}

// RetryPolicy returns the retry policy with zero fields defaulted.
func (c Config) RetryPolicy() apiclient.RetryPolicy {
	p := c.Retry
	d := apiclient.DefaultRetryPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Timeout == 0 {
		p.Timeout = d.Timeout
	}
	if p.Multiplier == 0 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// StatePath returns the workspace state file path.
func (c Config) StatePath() string {
	return filepath.Join(c.StateDir, workspace.DefaultStateFile)
}

// WithAPIURL returns a copy with APIURL set.
func (c Config) WithAPIURL(u string) Config {
	c.APIURL = u
	return c
}

// WithLogLevel returns a copy with LogLevel set.
func (c Config) WithLogLevel(level string) Config {
	c.LogLevel = level
	return c
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
}
