// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// NewClient Tests
// ============================================================================

func TestNewClient_NoBucket(t *testing.T) {
	_, err := NewClient(context.Background(), "", "/nonexistent/key.json")
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestNewClient_NonExistentSAKeyPath(t *testing.T) {
	_, err := NewClient(context.Background(), "test-bucket", "/nonexistent/path/to/key.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")
	assert.Contains(t, err.Error(), "/nonexistent/path/to/key.json")
}

func TestNewClient_InvalidCredentialsFile(t *testing.T) {
	invalidKeyPath := filepath.Join(t.TempDir(), "invalid_key.json")
	require.NoError(t, os.WriteFile(invalidKeyPath, []byte("not valid json"), 0600))

	_, err := NewClient(context.Background(), "test-bucket", invalidKeyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create GCS storage client")
}

func TestNewClient_DirectoryInsteadOfFile(t *testing.T) {
	_, err := NewClient(context.Background(), "test-bucket", t.TempDir())
	assert.ErrorContains(t, err, "is a directory")
}

// ============================================================================
// Upload Tests (error paths that don't require GCS connection)
// ============================================================================

func TestClient_UploadFile_NonExistentLocalFile(t *testing.T) {
	client := &Client{BucketName: "test-bucket"}

	_, err := client.UploadFile(context.Background(), "/nonexistent/file/path.json", "dest/path.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open the local file")
	assert.Contains(t, err.Error(), "/nonexistent/file/path.json")
}

func TestClient_UploadBytes_EmptyObject(t *testing.T) {
	client := &Client{BucketName: "test-bucket"}

	_, err := client.UploadBytes(context.Background(), "", []byte("{}"), ContentTypeJSON)
	assert.ErrorContains(t, err, "object name is required")
}

func TestClient_UploadBytes_Uninitialised(t *testing.T) {
	client := &Client{BucketName: "test-bucket"}

	_, err := client.UploadBytes(context.Background(), "a.json", []byte("{}"), ContentTypeJSON)
	assert.ErrorContains(t, err, "not initialised")
	assert.NoError(t, client.Close())
}

// ============================================================================
// Naming Tests
// ============================================================================

func TestObjectName(t *testing.T) {
	assert.Equal(t, "sales/2019/q1.json", ObjectName("sales", "2019/q1"))
	assert.Equal(t, "sales/q1.json", ObjectName("sales", "/q1.json"))
	assert.Equal(t, "q1.json", ObjectName("", "q1"))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "gs://bucket/a/b.json", URL("bucket", "a/b.json"))
}
