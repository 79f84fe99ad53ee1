// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporting

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock InfluxDB WriteAPI ---

type MockWriteAPI struct {
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	WrittenPoints  []*write.Point
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	if m.WritePointFunc != nil {
		return m.WritePointFunc(ctx, point...)
	}
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error {
	return nil
}

func (m *MockWriteAPI) EnableBatching()                 {}
func (m *MockWriteAPI) Flush(ctx context.Context) error { return nil }

func sampleRun() Run {
	return Run{
		Repo:      "repo-1",
		Workdir:   "wdir-1",
		Strategy:  "override",
		Strict:    true,
		Added:     2,
		Updated:   1,
		Deleted:   3,
		Failed:    1,
		Commits:   1,
		Duration:  1500 * time.Millisecond,
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestPoint(t *testing.T) {
	line := write.PointToLineProtocol(Point(sampleRun()), time.Second)

	assert.Contains(t, line, "datary_sync_runs,")
	assert.Contains(t, line, "repo=repo-1")
	assert.Contains(t, line, "strategy=override")
	assert.Contains(t, line, "workdir=wdir-1")
	assert.Contains(t, line, "added=2i")
	assert.Contains(t, line, "deleted=3i")
	assert.Contains(t, line, "failed=1i")
	assert.Contains(t, line, "duration_ms=1500i")
	assert.Contains(t, line, "strict=true")
	assert.Contains(t, line, " 1700000000")
}

func TestInfluxReporter_Report(t *testing.T) {
	mock := &MockWriteAPI{}
	r := NewInfluxReporter(mock)

	require.NoError(t, r.Report(context.Background(), sampleRun()))
	require.Len(t, mock.WrittenPoints, 1)
	assert.Equal(t, Measurement, mock.WrittenPoints[0].Name())
	r.Close()
}

func TestInfluxReporter_ReportError(t *testing.T) {
	mock := &MockWriteAPI{
		WritePointFunc: func(ctx context.Context, point ...*write.Point) error {
			return errors.New("database write failed")
		},
	}

	err := NewInfluxReporter(mock).Report(context.Background(), sampleRun())
	assert.ErrorContains(t, err, "database write failed")
}

func TestNew_EmptyURLIsNoop(t *testing.T) {
	r, err := New(Settings{})
	require.NoError(t, err)
	assert.IsType(t, NoopReporter{}, r)
	assert.NoError(t, r.Report(context.Background(), sampleRun()))
	r.Close()
}

func TestNew_RequiresOrgAndBucket(t *testing.T) {
	_, err := New(Settings{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

func TestNew_WritesToServer(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r, err := New(Settings{URL: srv.URL, Token: "tok", Org: "org", Bucket: "datary"})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Report(context.Background(), sampleRun()))
	assert.Equal(t, "/api/v2/write", path)
	assert.Contains(t, body, "datary_sync_runs")
	assert.Contains(t, body, "repo=repo-1")
}
