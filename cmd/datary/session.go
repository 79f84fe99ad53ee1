// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/telemetry"
)

// errNotLoggedIn is returned by commands that need a token when none is
// configured.
var errNotLoggedIn = errors.New(`not logged in, run "datary login" first`)

// newClient builds an SDK session from the effective configuration.
func (a *app) newClient() (*datary.Client, error) {
	cfg := datary.Config{
		BaseURL:   a.cfg.BaseURL,
		Token:     a.cfg.Token,
		Logger:    a.logger.Slog(),
		RateLimit: a.cfg.Client.RateLimit,
	}
	if a.cfg.Client.TimeoutSeconds > 0 {
		cfg.HTTPClient = &http.Client{
			Timeout:   time.Duration(a.cfg.Client.TimeoutSeconds) * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if a.cfg.Telemetry.MetricExporter != telemetry.ExporterNone && a.cfg.Telemetry.MetricExporter != "" {
		metrics, err := telemetry.DefaultClientMetrics()
		if err != nil {
			return nil, fmt.Errorf("client metrics: %w", err)
		}
		cfg.Metrics = metrics
	}
	return datary.New(cfg)
}

// authedClient is newClient for commands that need a session.
func (a *app) authedClient() (*datary.Client, error) {
	if a.cfg.Token == "" {
		return nil, errNotLoggedIn
	}
	return a.newClient()
}

// resolveRepo finds a repository by name, then by uuid.
func resolveRepo(ctx context.Context, client *datary.Client, ref string) (*datary.Repo, error) {
	if repo := client.DescribeRepo(ctx, "", ref); repo != nil {
		return repo, nil
	}
	if repo := client.DescribeRepo(ctx, ref, ""); repo != nil && repo.UUID != "" {
		return repo, nil
	}
	return nil, fmt.Errorf("repository %q not found", ref)
}
