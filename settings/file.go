package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("settings: unsupported config format")

// Format is a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the encoding from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Load reads path over Default(). A missing file yields the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	format, err := FormatOf(path)
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := decode(format, data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(format Format, data []byte, cfg *Config) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, cfg)
	case FormatTOML:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return ErrUnsupportedFormat
}

// Save writes cfg to path in the format implied by its extension,
// creating parent directories as needed.
func Save(path string, cfg Config) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(format, cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Encode renders cfg. Durations are written as strings such as "30s".
func Encode(format Format, cfg Config) ([]byte, error) {
	doc := toDocument(cfg)
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// document mirrors Config with durations as strings, which both decoders
// accept back into time.Duration.
type document struct {
	APIURL            string        `yaml:"api_url" toml:"api_url"`
	Retry             retryDocument `yaml:"retry" toml:"retry"`
	PollInterval      string        `yaml:"poll_interval" toml:"poll_interval"`
	RefreshInterval   string        `yaml:"refresh_interval" toml:"refresh_interval"`
	DashboardInterval string        `yaml:"dashboard_interval" toml:"dashboard_interval"`
	StateDir          string        `yaml:"state_dir" toml:"state_dir"`
	LogLevel          string        `yaml:"log_level" toml:"log_level"`
	MetricsAddr       string        `yaml:"metrics_addr,omitempty" toml:"metrics_addr,omitempty"`
	WatchExtensions   []string      `yaml:"watch_extensions" toml:"watch_extensions"`
}

type retryDocument struct {
	MaxAttempts int     `yaml:"max_attempts" toml:"max_attempts"`
	Timeout     string  `yaml:"timeout" toml:"timeout"`
	BaseDelay   string  `yaml:"base_delay" toml:"base_delay"`
	Multiplier  float64 `yaml:"multiplier" toml:"multiplier"`
	MaxDelay    string  `yaml:"max_delay" toml:"max_delay"`
}

func toDocument(c Config) document {
	return document{
		APIURL: c.APIURL,
		Retry: retryDocument{
			MaxAttempts: c.Retry.MaxAttempts,
			Timeout:     c.Retry.Timeout.String(),
			BaseDelay:   c.Retry.BaseDelay.String(),
			Multiplier:  c.Retry.Multiplier,
			MaxDelay:    c.Retry.MaxDelay.String(),
		},
		PollInterval:      c.PollInterval.String(),
		RefreshInterval:   c.RefreshInterval.String(),
		DashboardInterval: c.DashboardInterval.String(),
		StateDir:          c.StateDir,
		LogLevel:          c.LogLevel,
		MetricsAddr:       c.MetricsAddr,
		WatchExtensions:   c.WatchExtensions,
	}
}
