// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".datary", "config.yaml")

	require.NoError(t, createDefault(configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# datary CLI configuration.")

	var cfg DataryConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "http://api.datary.io/", cfg.BaseURL)
	assert.Equal(t, "override", cfg.Sync.Strategy)
	assert.Equal(t, DefaultCommitLimit, cfg.Sync.CommitLimit)
}

func TestLoadFrom_CreatesMissingFile(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvBaseURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().BaseURL, cfg.BaseURL)
	assert.FileExists(t, path)
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvBaseURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  strict: true\n  strategy: update-append\n  commit_limit: 5\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.Sync.Strict)
	assert.Equal(t, "update-append", cfg.Sync.Strategy)
	assert.Equal(t, 5, cfg.Sync.CommitLimit)
	assert.Equal(t, "http://api.datary.io/", cfg.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvBaseURL, "http://localhost:8642/")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: file-token\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "http://localhost:8642/", cfg.BaseURL)
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvBaseURL, "")

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad strategy", "sync:\n  strategy: merge\n", "Strategy"},
		{"zero commit limit", "sync:\n  commit_limit: 0\n", "CommitLimit"},
		{"negative rate", "client:\n  rate_limit: -1\n", "RateLimit"},
		{"bad url", "base_url: not a url\n", "BaseURL"},
		{"bad level", "logging:\n  level: loud\n", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0600))

			_, err := LoadFrom(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFrom_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync: [unclosed"), 0600))

	_, err := LoadFrom(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvBaseURL, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Token = "tok"
	cfg.Username = "ann"
	cfg.Reporting.InfluxURL = "http://localhost:8086"
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Token)
	assert.Equal(t, "ann", loaded.Username)
	assert.Equal(t, "http://localhost:8086", loaded.Reporting.InfluxURL)
}

func TestLoadOnce(t *testing.T) {
	t.Setenv(EnvToken, "")
	t.Setenv(EnvBaseURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Load(path))
	assert.Equal(t, path, GlobalPath)

	// A second call does not re-read.
	require.NoError(t, Load(filepath.Join(t.TempDir(), "other.yaml")))
	assert.Equal(t, path, GlobalPath)
}
