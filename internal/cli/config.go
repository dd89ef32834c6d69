package cli

import (
	"errors"
	"fmt"
	"io/fs"
	stdlog "log"
	"log/slog"
	"os"
	"strings"

	"github.com/sonndinh/gedf-vs-fed/internal/barrier"
	"github.com/sonndinh/gedf-vs-fed/internal/launcher"
	"github.com/sonndinh/gedf-vs-fed/internal/schedule"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where fedsched looks for its configuration.
const DefaultConfigPath = "configs/default.yaml"

// Config represents the complete harness configuration
// Maps config file fields through YAML tags
type Config struct {
	Schedule struct {
		schedule.Layout `yaml:",inline"`
		OutputSuffix    string `yaml:"output_suffix"`
	} `yaml:"schedule"`

	Barrier struct {
		Name string `yaml:"name"`
		Dir  string `yaml:"dir"`
	} `yaml:"barrier"`

	Partition struct {
		Cores    int `yaml:"cores"` // 0 = the file's system core range
		Priority int `yaml:"priority"`
	} `yaml:"partition"`

	Journal struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"journal"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig is what the harness runs with when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Schedule.Layout = schedule.DefaultLayout()
	cfg.Schedule.OutputSuffix = "_output"
	cfg.Barrier.Name = barrier.DefaultName
	cfg.Barrier.Dir = barrier.DefaultDir
	cfg.Partition.Priority = 97
	cfg.Journal.Enabled = true
	cfg.Log.Level = "info"
	return cfg
}

// Validate rejects layouts the launcher cannot use.
func (c *Config) Validate() error {
	l := c.Schedule.Layout
	if l.TimingParams < 1 || l.PartitionParams < 1 {
		return fmt.Errorf("schedule layout needs at least one timing and one partition field")
	}
	if l.SkippedTimingParams < 0 || l.SkippedTimingParams >= l.TimingParams {
		return fmt.Errorf("skipped_timing_params must be in [0, %d)", l.TimingParams)
	}
	if c.Partition.Cores < 0 {
		return fmt.Errorf("partition cores must not be negative")
	}
	if c.Partition.Priority < 1 || c.Partition.Priority > 99 {
		return fmt.Errorf("priority %d outside SCHED_FIFO range 1..99", c.Partition.Priority)
	}
	return nil
}

// LauncherConfig maps the configuration onto the launcher's.
func (c *Config) LauncherConfig() launcher.Config {
	return launcher.Config{
		Layout:       c.Schedule.Layout,
		BarrierBase:  c.Barrier.Name,
		BarrierDir:   c.Barrier.Dir,
		OutputSuffix: c.Schedule.OutputSuffix,
		Journal:      c.Journal.Enabled,
		Metrics:      c.Metrics.Enabled,
	}
}

// loadConfig reads a YAML file over the defaults, so a partial file only
// overrides what it names.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig loads path. A missing file at the default location means
// built-in defaults; a missing file the user asked for is an error.
func resolveConfig(path string, explicit bool) (*Config, error) {
	cfg, err := loadConfig(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// ConfigureLogging sets the level of every package logger. Package loggers
// are captured from slog.Default at init, so the level goes on the log
// bridge they write through.
func ConfigureLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetLogLoggerLevel(lvl)
	stdlog.SetFlags(stdlog.LstdFlags | stdlog.Lmicroseconds)
	return nil
}
