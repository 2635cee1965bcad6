// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the creator.
//
// Configuration is loaded from a single YAML file specified by the
// ZFS_DYNAMIC_CREATOR_CONFIG environment variable or the --config
// flag. There are no fallbacks or automatic discovery; flags given on
// the command line override file values. The file is optional — every
// setting has a working default.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that points at the config
// file when --config is not given.
const EnvVar = "ZFS_DYNAMIC_CREATOR_CONFIG"

// ExportMode selects what export reconciliation runs after a
// migration.
type ExportMode string

const (
	// ExportNone leaves the export table alone.
	ExportNone ExportMode = "none"

	// ExportAdd adds or updates entries for newly migrated
	// filesystems only.
	ExportAdd ExportMode = "add"

	// ExportSync recomputes the whole managed export subtree from the
	// current filesystem inventory.
	ExportSync ExportMode = "sync"
)

// Config is the full configuration surface.
type Config struct {
	// Delay is the quiescence window before staging, as a Go duration
	// string ("5s", "2m"). Empty disables the pause.
	Delay string `yaml:"delay"`

	// Filter restricts which created names are migrated. Empty
	// accepts everything.
	Filter string `yaml:"filter"`

	// ExportMode is one of none, add, sync.
	ExportMode ExportMode `yaml:"export_mode"`

	// ExportsFile is the export table path.
	ExportsFile string `yaml:"exports_file"`

	// Quiet suppresses non-essential logging.
	Quiet bool `yaml:"quiet"`

	// Binaries names the external tools, either bare names resolved
	// via PATH or absolute paths for hermetic deployments.
	Binaries BinariesConfig `yaml:"binaries"`
}

// BinariesConfig names the external command-line tools.
type BinariesConfig struct {
	ZFS      string `yaml:"zfs"`
	Rsync    string `yaml:"rsync"`
	Exportfs string `yaml:"exportfs"`
}

// Default returns the default configuration. The defaults are a
// working setup on their own; the config file only overrides them.
func Default() *Config {
	return &Config{
		ExportMode:  ExportNone,
		ExportsFile: "/etc/exports",
		Binaries: BinariesConfig{
			ZFS:      "zfs",
			Rsync:    "rsync",
			Exportfs: "exportfs",
		},
	}
}

// Load loads configuration from the file named by the environment
// variable, or returns defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.DelayDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FilterPattern(); err != nil {
		errs = append(errs, err)
	}
	switch c.ExportMode {
	case ExportNone, ExportAdd, ExportSync:
	default:
		errs = append(errs, fmt.Errorf("export_mode must be one of none, add, sync (got %q)", c.ExportMode))
	}
	if c.ExportsFile == "" {
		errs = append(errs, fmt.Errorf("exports_file is required"))
	}
	if c.Binaries.ZFS == "" || c.Binaries.Rsync == "" || c.Binaries.Exportfs == "" {
		errs = append(errs, fmt.Errorf("binaries.zfs, binaries.rsync, and binaries.exportfs are required"))
	}

	return errors.Join(errs...)
}

// DelayDuration parses the quiescence delay. An empty setting is
// zero.
func (c *Config) DelayDuration() (time.Duration, error) {
	if c.Delay == "" {
		return 0, nil
	}
	delay, err := time.ParseDuration(c.Delay)
	if err != nil {
		return 0, fmt.Errorf("delay: %w", err)
	}
	if delay < 0 {
		return 0, fmt.Errorf("delay must not be negative (got %s)", delay)
	}
	return delay, nil
}

// FilterPattern compiles the name filter. An empty setting is nil
// (accept everything).
func (c *Config) FilterPattern() (*regexp.Regexp, error) {
	if c.Filter == "" {
		return nil, nil
	}
	pattern, err := regexp.Compile(c.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return pattern, nil
}
