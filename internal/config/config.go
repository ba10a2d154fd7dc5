// Package config layers RDTP's sender/receiver defaults, an optional YAML
// file, and CLI flag overrides into a single validated configuration.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kasader/rdtp/internal/sender"
)

// Defaults mirror spec.md's literal CLI defaults.
const (
	DefaultWindow    = 64
	DefaultTimeoutMS = 200
	DefaultMSS       = 1000
)

// File is the shape of the optional YAML configuration file. Any field left
// zero is not applied, so the built-in defaults (or a later CLI flag) win.
type File struct {
	Window    int `yaml:"window"`
	TimeoutMS int `yaml:"timeout_ms"`
	MSS       int `yaml:"mss"`
}

// Load reads and parses a YAML config file. A missing path is not an
// error — callers pass "" when no -config flag was given.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, errors.Wrapf(err, "parse config file %s", path)
	}
	return f, nil
}

// Resolved merges defaults, an optional file, and explicit CLI overrides
// (a value of -1 for MSS/Window, or 0 for TimeoutMS, means "flag not set")
// into a sender.Config, applying validation last.
func Resolved(file File, flagWindow, flagMSS int, flagTimeout time.Duration) (sender.Config, error) {
	cfg := sender.Config{
		Window:  DefaultWindow,
		MSS:     DefaultMSS,
		Timeout: DefaultTimeoutMS * time.Millisecond,
	}

	if file.Window != 0 {
		cfg.Window = file.Window
	}
	if file.MSS != 0 {
		cfg.MSS = file.MSS
	}
	if file.TimeoutMS != 0 {
		cfg.Timeout = time.Duration(file.TimeoutMS) * time.Millisecond
	}

	if flagWindow != -1 {
		cfg.Window = flagWindow
	}
	if flagMSS != -1 {
		cfg.MSS = flagMSS
	}
	if flagTimeout > 0 {
		cfg.Timeout = flagTimeout
	}

	if err := cfg.Validate(); err != nil {
		return sender.Config{}, err
	}
	return cfg, nil
}
