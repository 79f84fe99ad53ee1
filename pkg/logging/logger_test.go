// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{" INFO ", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	if LevelDebug.toSlogLevel() != slog.LevelDebug {
		t.Error("LevelDebug should map to slog.LevelDebug")
	}
	if LevelError.toSlogLevel() != slog.LevelError {
		t.Error("LevelError should map to slog.LevelError")
	}
	if Level(99).toSlogLevel() != slog.LevelInfo {
		t.Error("unknown levels should map to slog.LevelInfo")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_WritesTextToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "datary", Output: &buf})
	defer logger.Close()

	logger.Info("sync started", "repo", "r1")

	out := buf.String()
	for _, want := range []string{"sync started", "repo=r1", "service=datary"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	defer logger.Close()

	logger.Warn("empty filetree")

	if !strings.Contains(buf.String(), `"msg":"empty filetree"`) {
		t.Errorf("expected JSON record, got %q", buf.String())
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})
	defer logger.Close()

	logger.Info("hidden")
	logger.Error("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Info record written at Warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Error record missing")
	}
}

func TestNew_QuietWithoutSinks(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Fatal("Slog() is nil in quiet mode")
	}
	logger.Error("goes nowhere")
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "sync", Quiet: true})

	logger.Info("to file", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "sync_*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one sync_*.log file, got %v (err %v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to file"`) {
		t.Errorf("log file content %q missing record", data)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	defer logger.Close()

	files, _ := filepath.Glob(filepath.Join(dir, "datary_*.log"))
	if len(files) != 1 {
		t.Errorf("expected datary_*.log, got %v", files)
	}
}

func TestNew_ConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Output: &buf})
	defer logger.Close()

	if _, ok := logger.Slog().Handler().(*multiHandler); !ok {
		t.Fatalf("expected multiHandler, got %T", logger.Slog().Handler())
	}
	logger.Info("both")
	if !strings.Contains(buf.String(), "both") {
		t.Error("console sink missed record")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Service != "datary" {
		t.Errorf("Service = %q, want datary", logger.config.Service)
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Level = %v, want INFO", logger.config.Level)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestLogger_ExportsEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelDebug, Service: "datary", Quiet: true, Exporter: exporter})
	defer logger.Close()

	logger.Debug("request", "method", "GET")
	logger.Error("request failed", "status", 500)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != LevelDebug || entries[0].Attrs["method"] != "GET" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Service != "datary" || entries[1].Attrs["status"] != 500 {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestLogger_ExportRespectsLevel(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelWarn, Quiet: true, Exporter: exporter})
	defer logger.Close()

	logger.Info("below")
	logger.Warn("at")

	entries := exporter.Entries()
	if len(entries) != 1 || entries[0].Message != "at" {
		t.Errorf("expected only the Warn entry, got %+v", entries)
	}
}

func TestLogger_WithCarriesAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})
	defer logger.Close()

	child := logger.With("repo", "r1")
	child.Info("commit", "sha", "abc")

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Attrs["repo"] != "r1" || entries[0].Attrs["sha"] != "abc" {
		t.Errorf("attrs = %v", entries[0].Attrs)
	}
}

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Error(err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Error(err)
	}
	if err := e.Close(); err != nil {
		t.Error(err)
	}
}

func TestBufferedExporter_EntriesIsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "one"})

	entries := e.Entries()
	entries[0].Message = "changed"

	if e.Entries()[0].Message != "one" {
		t.Error("Entries() should return a copy")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.datary/logs"); got != filepath.Join(home, ".datary/logs") {
		t.Errorf("expandPath(~/.datary/logs) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"a", 1, 2, "skipped", "b", true, "dangling"})
	if len(got) != 2 || got["a"] != 1 || got["b"] != true {
		t.Errorf("argsToMap = %v", got)
	}
}
