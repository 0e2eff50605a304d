// Package config loads the run configuration from YAML with environment
// overrides, and validates it before anything else starts.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"backlab/internal/cost"
	"backlab/internal/domain"
	"backlab/internal/executor"
	"backlab/internal/risk"
)

// Storage locates the bar archive and the results database.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging controls the structured logger.
type Logging struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RangeSpec is one named backtest window in the YAML file.
type RangeSpec struct {
	Label string `yaml:"label"`
	Start string `yaml:"start"` // YYYY-MM-DD
	End   string `yaml:"end"`
}

// Backtest names what to run: strategies, tickers, and date ranges.
type Backtest struct {
	Strategies []string                      `yaml:"strategies"`
	Tickers    []string                      `yaml:"tickers"`
	Ranges     []RangeSpec                   `yaml:"ranges"`
	Params     map[string]map[string]float64 `yaml:"params"` // per strategy
}

// Config is the full application configuration.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Logging   Logging         `yaml:"logging"`
	Backtest  Backtest        `yaml:"backtest"`
	Risk      risk.Config     `yaml:"risk"`
	Cost      cost.Config     `yaml:"cost"`
	Execution executor.Config `yaml:"execution"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "backlab.db",
		},
		Logging: Logging{Level: "info"},
		Risk:    risk.DefaultConfig(),
		Cost:    cost.DefaultConfig(),
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate fails fast on anything that would only surface mid-run.
func (c Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("config: storage.data_dir is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	for _, r := range c.Backtest.Ranges {
		if _, err := r.Resolve(); err != nil {
			return err
		}
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Cost.Validate(); err != nil {
		return err
	}
	if c.Execution.Parallel < 0 {
		return fmt.Errorf("config: execution.parallel must be >= 0, got %d", c.Execution.Parallel)
	}
	return nil
}

// Resolve parses the range spec into a DateRange. A missing label is
// derived from the dates.
func (r RangeSpec) Resolve() (domain.DateRange, error) {
	start, err := time.Parse("2006-01-02", r.Start)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("config: range %q start: %w", r.Label, err)
	}
	end, err := time.Parse("2006-01-02", r.End)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("config: range %q end: %w", r.Label, err)
	}
	if !end.After(start) {
		return domain.DateRange{}, fmt.Errorf("config: range %q: end %s not after start %s", r.Label, r.End, r.Start)
	}
	label := r.Label
	if label == "" {
		label = r.Start + "_" + r.End
	}
	return domain.DateRange{Start: start, End: end, Label: label}, nil
}
