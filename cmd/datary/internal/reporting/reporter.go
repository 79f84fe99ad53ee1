// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reporting records the outcome of each "datary sync" run.
package reporting

import (
	"context"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement sync runs are written to.
const Measurement = "datary_sync_runs"

// Run summarises one sync pass.
type Run struct {
	Repo      string
	Workdir   string
	Strategy  string
	Strict    bool
	Added     int
	Updated   int
	Deleted   int
	Failed    int
	Commits   int
	Duration  time.Duration
	Timestamp time.Time
}

// Reporter stores sync runs somewhere durable.
type Reporter interface {
	// Report stores one run.
	Report(ctx context.Context, run Run) error

	// Close flushes and releases the reporter.
	Close()
}

// Settings selects the InfluxDB destination. An empty URL selects the
// no-op reporter.
type Settings struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// New returns an InfluxReporter for s, or a NoopReporter when s.URL is empty.
func New(s Settings) (Reporter, error) {
	if s.URL == "" {
		return NoopReporter{}, nil
	}
	if s.Org == "" || s.Bucket == "" {
		return nil, errors.New("reporting: influx org and bucket are required")
	}
	client := influxdb2.NewClient(s.URL, s.Token)
	return &InfluxReporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(s.Org, s.Bucket),
	}, nil
}

// =============================================================================
// InfluxDB
// =============================================================================

// InfluxReporter writes one point per run.
type InfluxReporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxReporter wraps an existing write API. The caller keeps ownership
// of the client behind it.
func NewInfluxReporter(writeAPI api.WriteAPIBlocking) *InfluxReporter {
	return &InfluxReporter{writeAPI: writeAPI}
}

func (r *InfluxReporter) Report(ctx context.Context, run Run) error {
	return r.writeAPI.WritePoint(ctx, Point(run))
}

func (r *InfluxReporter) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// Point converts a run to its InfluxDB point. Repo, workdir and strategy
// are tags; counts and duration are fields.
func Point(run Run) *write.Point {
	ts := run.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("repo", run.Repo).
		AddTag("workdir", run.Workdir).
		AddTag("strategy", run.Strategy).
		AddField("strict", run.Strict).
		AddField("added", run.Added).
		AddField("updated", run.Updated).
		AddField("deleted", run.Deleted).
		AddField("failed", run.Failed).
		AddField("commits", run.Commits).
		AddField("duration_ms", run.Duration.Milliseconds()).
		SetTime(ts)
}

// =============================================================================
// No-op
// =============================================================================

// NoopReporter discards every run.
type NoopReporter struct{}

func (NoopReporter) Report(context.Context, Run) error { return nil }
func (NoopReporter) Close()                            {}

var (
	_ Reporter = (*InfluxReporter)(nil)
	_ Reporter = NoopReporter{}
)
