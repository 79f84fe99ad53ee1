// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the client instruments.
const MeterName = "github.com/AleutianAI/datary/pkg/datary"

// ClientMetrics holds the instruments the Datary client records.
type ClientMetrics struct {
	// RequestsTotal counts backend requests by method, endpoint and status.
	RequestsTotal metric.Int64Counter

	// RequestDuration is the backend round trip in seconds.
	RequestDuration metric.Float64Histogram

	// DiffEntriesTotal counts classified entries by action.
	DiffEntriesTotal metric.Int64Counter

	// MergesTotal counts tabular merges by outcome ("ok", "error").
	MergesTotal metric.Int64Counter
}

// NewClientMetrics creates the client instruments on meter.
//
// Description:
//
//	Instruments are created once per client. With no MeterProvider
//	installed they are no-ops.
//
// Inputs:
//
//	meter - Meter to create instruments on.
//
// Outputs:
//
//	*ClientMetrics - Ready to record.
//	error - Non-nil if an instrument cannot be created.
func NewClientMetrics(meter metric.Meter) (*ClientMetrics, error) {
	m := &ClientMetrics{}
	var err error

	m.RequestsTotal, err = meter.Int64Counter(
		"datary_client_requests_total",
		metric.WithDescription("Total backend requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests_total: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"datary_client_request_duration_seconds",
		metric.WithDescription("Backend request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create request_duration: %w", err)
	}

	m.DiffEntriesTotal, err = meter.Int64Counter(
		"datary_client_diff_entries_total",
		metric.WithDescription("Entries classified by commit comparison"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create diff_entries_total: %w", err)
	}

	m.MergesTotal, err = meter.Int64Counter(
		"datary_client_merges_total",
		metric.WithDescription("Tabular merges by outcome"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merges_total: %w", err)
	}

	return m, nil
}

// DefaultClientMetrics creates the instruments on the global meter.
func DefaultClientMetrics() (*ClientMetrics, error) {
	return NewClientMetrics(otel.Meter(MeterName))
}

// RecordRequest records one backend round trip. A nil receiver is a no-op.
func (m *ClientMetrics) RecordRequest(ctx context.Context, method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", status),
	)
	m.RequestsTotal.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDiff records the size of each category of a comparison.
func (m *ClientMetrics) RecordDiff(ctx context.Context, add, update, del int) {
	if m == nil {
		return
	}
	m.DiffEntriesTotal.Add(ctx, int64(add), metric.WithAttributes(attribute.String("action", "add")))
	m.DiffEntriesTotal.Add(ctx, int64(update), metric.WithAttributes(attribute.String("action", "update")))
	m.DiffEntriesTotal.Add(ctx, int64(del), metric.WithAttributes(attribute.String("action", "delete")))
}

// RecordMerge records one merge outcome.
func (m *ClientMetrics) RecordMerge(ctx context.Context, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.MergesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
