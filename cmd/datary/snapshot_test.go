// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/tabular"
)

func TestParseSnapshot(t *testing.T) {
	entries, err := ParseSnapshot([]byte(`[
		{"path": "q1", "filename": "units", "data": {"kern": [["a"], [1]], "meta": {}}, "sha1": "given"},
		{"path": "", "filename": "readme", "data": {"kern": [["b"]], "meta": {"title": "r"}}}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "q1/units", entries[0].Key())
	assert.Equal(t, "given", entries[0].Fingerprint)
	require.NotNil(t, entries[0].Data)

	want, err := tabular.Fingerprint(*entries[1].Data)
	require.NoError(t, err)
	assert.Equal(t, want, entries[1].Fingerprint)
	assert.Len(t, entries[1].Fingerprint, 40)
}

func TestParseSnapshot_SameDataSameFingerprint(t *testing.T) {
	entries, err := ParseSnapshot([]byte(`[
		{"path": "a", "filename": "x", "data": {"kern": [[1]], "meta": {"b": 1, "a": 2}}},
		{"path": "b", "filename": "x", "data": {"meta": {"a": 2, "b": 1}, "kern": [[1]]}}
	]`))
	require.NoError(t, err)
	assert.Equal(t, entries[0].Fingerprint, entries[1].Fingerprint)
}

func TestParseSnapshot_MissingFilename(t *testing.T) {
	_, err := ParseSnapshot([]byte(`[{"path": "a"}]`))
	assert.ErrorIs(t, err, commitdiff.ErrMalformedEntry)
}

func TestParseSnapshot_Malformed(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"path": "a"}`))
	assert.ErrorContains(t, err, "decode snapshot")
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"path": "", "filename": "f", "sha1": "s"}]`), 0600))

	entries, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, []commitdiff.Entry{{Path: "", Filename: "f", Fingerprint: "s"}}, entries)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read snapshot")
}
