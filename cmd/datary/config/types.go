// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the datary CLI configuration file.
package config

import (
	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/telemetry"
)

// DefaultCommitLimit is the number of changes staged per commit by
// "datary sync --commit".
const DefaultCommitLimit = 30

// DataryConfig is the content of ~/.datary/config.yaml.
type DataryConfig struct {
	// BaseURL is the API root, e.g. http://api.datary.io/
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Token is the session token saved by "datary login".
	Token string `yaml:"token,omitempty"`

	// Username is the last account that logged in.
	Username string `yaml:"username,omitempty"`

	Sync      SyncConfig       `yaml:"sync"`
	Client    ClientConfig     `yaml:"client"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Export    ExportConfig     `yaml:"export"`
	Reporting ReportingConfig  `yaml:"reporting"`
}

// SyncConfig holds the defaults of "datary diff" and "datary sync".
type SyncConfig struct {
	// Strategy is "override" or "update-append".
	Strategy string `yaml:"strategy" validate:"oneof=override update-append"`

	// Strict reports files missing from the snapshot as deletes.
	Strict bool `yaml:"strict"`

	// CommitLimit caps the changes per commit when syncing with --commit.
	CommitLimit int `yaml:"commit_limit" validate:"min=1"`
}

// ClientConfig tunes the HTTP session.
type ClientConfig struct {
	// RateLimit caps requests per second. 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`

	// TimeoutSeconds bounds a single backend call.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// ExportConfig holds the defaults of "datary export".
type ExportConfig struct {
	Bucket          string `yaml:"bucket,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// ReportingConfig points sync runs at an InfluxDB bucket. An empty URL
// disables reporting.
type ReportingConfig struct {
	InfluxURL    string `yaml:"influx_url,omitempty" validate:"omitempty,url"`
	InfluxToken  string `yaml:"influx_token,omitempty"`
	InfluxOrg    string `yaml:"influx_org,omitempty"`
	InfluxBucket string `yaml:"influx_bucket,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() DataryConfig {
	return DataryConfig{
		BaseURL: datary.DefaultBaseURL,
		Sync: SyncConfig{
			Strategy:    datary.StrategyOverride,
			CommitLimit: DefaultCommitLimit,
		},
		Client: ClientConfig{
			TimeoutSeconds: int(datary.DefaultTimeout.Seconds()),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
		Reporting: ReportingConfig{
			InfluxBucket: "datary",
		},
	}
}
