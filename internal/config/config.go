// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sshtrust.
//
// go-sshtrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the sshtrust configuration file. Values come from, in
// increasing precedence, built-in defaults, the YAML file and SSHTRUST_*
// environment variables; command-line flags are layered on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config represents the complete sshtrust configuration
type Config struct {
	Trust   TrustConfig   `yaml:"trust"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Audit   AuditConfig   `yaml:"audit"`
}

// TrustConfig controls trust resolution
type TrustConfig struct {
	// Dir is the trust store directory used by check, chain and trust
	Dir string `yaml:"dir"`
	// Policy is "first" (first lexicographic match) or "strict" (reject
	// ambiguous signatories)
	Policy string `yaml:"policy"`
	// RequireChain makes check walk the signer's issuer chain
	RequireChain bool `yaml:"require_chain"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig controls how results are printed
type OutputConfig struct {
	Format string `yaml:"format"`
	Color  bool   `yaml:"color"`
}

// MetricsConfig controls the node-exporter textfile dump
type MetricsConfig struct {
	// Textfile, when set, receives the metrics of each run
	Textfile string `yaml:"textfile"`
}

// AuditConfig controls the audit trail
type AuditConfig struct {
	// File, when set, receives one JSON line per audited operation
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Trust: TrustConfig{
			Policy: "first",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sshtrust", "config.yaml")
}

// Load reads configuration from a YAML file on the OS filesystem and applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads configuration from a YAML file on fsys and applies
// environment variable overrides. Keys absent from the file keep their
// defaults.
func LoadFs(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOptional is LoadFs that falls back to the defaults, with environment
// overrides, when path does not exist. An explicitly named file must exist;
// pass required=false for the implicit per-user location.
func LoadOptional(fsys afero.Fs, path string, required bool) (*Config, error) {
	if path != "" {
		cfg, err := LoadFs(fsys, path)
		if err == nil || required || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies SSHTRUST_* environment variables
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("SSHTRUST_TRUST_DIR"); dir != "" {
		cfg.Trust.Dir = dir
	}
	if policy := os.Getenv("SSHTRUST_TRUST_POLICY"); policy != "" {
		cfg.Trust.Policy = policy
	}
	if v := os.Getenv("SSHTRUST_REQUIRE_CHAIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: invalid SSHTRUST_REQUIRE_CHAIN value %q, using %t: %v",
				v, cfg.Trust.RequireChain, err)
		} else {
			cfg.Trust.RequireChain = b
		}
	}

	if level := os.Getenv("SSHTRUST_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("SSHTRUST_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if format := os.Getenv("SSHTRUST_OUTPUT_FORMAT"); format != "" {
		cfg.Output.Format = format
	}
	// NO_COLOR is the cross-tool convention; any value disables color.
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		cfg.Output.Color = false
	}

	if textfile := os.Getenv("SSHTRUST_METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}

	if file := os.Getenv("SSHTRUST_AUDIT_FILE"); file != "" {
		cfg.Audit.File = file
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validPolicies := map[string]bool{"first": true, "strict": true}
	if !validPolicies[c.Trust.Policy] {
		return fmt.Errorf("invalid trust policy: %s (must be first or strict)", c.Trust.Policy)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		return fmt.Errorf("invalid output format: %s (must be json or text)", c.Output.Format)
	}

	return nil
}
