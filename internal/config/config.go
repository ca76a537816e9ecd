package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"darkmatter/internal/detector"
	"darkmatter/internal/finding"
	"darkmatter/internal/scoring"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".darkmatter.yaml"

type Config struct {
	Scan struct {
		Ignore     []string `yaml:"ignore"`     // extra directory names to skip
		Extensions []string `yaml:"extensions"` // overrides the parser's extensions
		Workers    int      `yaml:"workers"`
	} `yaml:"scan"`
	// Detectors lists the enabled kinds; empty means all.
	Detectors []string `yaml:"detectors"`
	// Weights overrides score weights per kind and severity name.
	Weights map[string]map[string]float64 `yaml:"weights"`
	Magic   struct {
		HyperparameterNames []string `yaml:"hyperparameter_names"`
	} `yaml:"magic"`
	Zombie struct {
		SideEffectNames []string `yaml:"side_effect_names"`
	} `yaml:"zombie"`
	Evidence struct {
		LoggingNames []string `yaml:"logging_names"`
	} `yaml:"evidence"`
	History struct {
		DB string `yaml:"db"`
	} `yaml:"history"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.History.DB = ".darkmatter/history.db"
	return &cfg
}

// LoadConfig reads path on top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if workers := os.Getenv("DARKMATTER_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("invalid DARKMATTER_WORKERS %q: %w", workers, err)
		}
		cfg.Scan.Workers = n
	}
	if db := os.Getenv("DARKMATTER_DB"); db != "" {
		cfg.History.DB = db
	}
	if kinds := os.Getenv("DARKMATTER_DETECTORS"); kinds != "" {
		cfg.Detectors = splitList(kinds)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by unmarshalling alone.
func (c *Config) Validate() error {
	if c.Scan.Workers < 0 {
		return fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers)
	}
	for _, k := range c.Detectors {
		if _, err := detector.Lookup(k, detector.Options{}); err != nil {
			return fmt.Errorf("detectors: %w", err)
		}
	}
	_, err := c.ScoringWeights()
	return err
}

// DetectorOptions returns the name-list extensions for the detectors.
func (c *Config) DetectorOptions() detector.Options {
	return detector.Options{
		HyperparameterNames: c.Magic.HyperparameterNames,
		SideEffectNames:     c.Zombie.SideEffectNames,
		LoggingNames:        c.Evidence.LoggingNames,
	}
}

// ScoringWeights returns the default weights with the configured overrides applied.
func (c *Config) ScoringWeights() (scoring.Weights, error) {
	w := scoring.DefaultWeights()
	for kindName, table := range c.Weights {
		kind := finding.Kind(strings.ToLower(kindName))
		if _, err := detector.Lookup(string(kind), detector.Options{}); err != nil {
			return scoring.Weights{}, fmt.Errorf("weights: %w", err)
		}
		merged := w.Table(kind)
		for sevName, v := range table {
			sev := finding.ParseSeverity(sevName)
			if sev == 0 {
				return scoring.Weights{}, fmt.Errorf("weights.%s: unknown severity %q", kindName, sevName)
			}
			if v < 0 {
				return scoring.Weights{}, fmt.Errorf("weights.%s.%s: negative weight %v", kindName, sevName, v)
			}
			merged[sev] = v
		}
		w = w.With(kind, merged)
	}
	return w, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
