// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global DataryConfig

	// GlobalPath is the file Global was read from.
	GlobalPath string

	once     sync.Once
	validate = validator.New()
)

// Environment overrides applied after the file is read.
const (
	EnvToken   = "DATARY_TOKEN"
	EnvBaseURL = "DATARY_BASE_URL"
)

const defaultHeader = `# datary CLI configuration.
# token is written by "datary login" and removed by "datary logout".
# sync.strategy is "override" or "update-append".
`

// DefaultPath returns ~/.datary/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".datary", "config.yaml"), nil
}

// Load ensures the config is loaded into the Global variable. An empty
// path means DefaultPath. Only the first call reads the file.
func Load(path string) error {
	var err error
	once.Do(func() {
		if path == "" {
			path, err = DefaultPath()
			if err != nil {
				return
			}
		}
		GlobalPath = path
		Global, err = LoadFrom(path)
	})
	return err
}

// LoadFrom reads, completes and validates the config at path.
//
// # Description
//
// Creates a commented default file when path does not exist. Keys missing
// from the file keep their DefaultConfig value. DATARY_TOKEN and
// DATARY_BASE_URL override the file.
//
// # Inputs
//
//   - path: Location of the yaml file.
//
// # Outputs
//
//   - DataryConfig: The effective configuration.
//   - error: Read, parse or validation failure.
func LoadFrom(path string) (DataryConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return DataryConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DataryConfig{}, fmt.Errorf("failed to read the config file %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DataryConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return DataryConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the field constraints of cfg.
func Validate(cfg DataryConfig) error {
	err := validate.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Save writes cfg to path. The file holds the session token so it is
// readable by the owner only.
func Save(path string, cfg DataryConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0600)
}

func applyEnv(cfg *DataryConfig) {
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
}

func createDefault(path string) error {
	return Save(path, DefaultConfig())
}
