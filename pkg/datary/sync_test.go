// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datary

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/tabular"
)

func tablePayload(rows ...[]any) *tabular.Payload {
	kern := make([]any, len(rows))
	for i, r := range rows {
		kern[i] = r
	}
	return &tabular.Payload{Kern: kern, Meta: tabular.Metadata{}}
}

// =============================================================================
// Write operations
// =============================================================================

func TestAddFile_Form(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	entry := commitdiff.Entry{Path: "sales", Filename: "q1", Data: tablePayload([]any{"h"}, []any{1})}
	require.NoError(t, c.AddFile(context.Background(), "w1", entry))

	form := fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0].Form
	assert.Equal(t, ChangeAdd, form.Get("action"))
	assert.Equal(t, FileModeFile, form.Get("filemode"))
	assert.Equal(t, "sales", form.Get("dirname"))
	assert.Equal(t, "q1", form.Get("basename"))
	assert.JSONEq(t, `[["h"],[1]]`, form.Get("kern"))
	assert.JSONEq(t, `{}`, form.Get("meta"))
}

func TestAddFile_LargePayloadUsesBlob(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	data := tablePayload([]any{"h"})
	data.Meta[tabular.MetaSize] = LargePayloadSize
	require.NoError(t, c.AddFile(context.Background(), "w1", commitdiff.Entry{Path: "p", Filename: "big", Data: data}))

	rec := fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0]
	assert.Contains(t, rec.ContentType, "multipart/form-data")
	assert.Equal(t, ChangeAdd, rec.Form.Get("action"))
	assert.Equal(t, "big", rec.Form.Get("basename"))
	assert.Empty(t, rec.Form.Get("kern"))

	var blob tabular.Payload
	require.NoError(t, json.Unmarshal(rec.Blob, &blob))
	assert.Equal(t, []any{[]any{"h"}}, blob.Kern)
}

func TestDeleteFileAndInode(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")
	ctx := context.Background()

	require.NoError(t, c.DeleteFile(ctx, "w1", commitdiff.Entry{Path: "a", Filename: "b"}))
	require.NoError(t, c.DeleteInode(ctx, "w1", "i9"))
	assert.ErrorIs(t, c.DeleteInode(ctx, "w1", ""), ErrMissingInode)

	calls := fb.recorded(http.MethodPost, "/workdirs/w1/changes")
	require.Len(t, calls, 2)
	assert.Equal(t, ChangeRemove, calls[0].Form.Get("action"))
	assert.Equal(t, "b", calls[0].Form.Get("basename"))
	assert.Equal(t, "i9", calls[1].Form.Get("inode"))
}

func TestAddDir(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")

	require.NoError(t, fb.client("tok").AddDir(context.Background(), "w1", "a", "b"))
	assert.Equal(t, FileModeDir, fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0].Form.Get("filemode"))
}

// =============================================================================
// Strategies
// =============================================================================

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("override")
	require.NoError(t, err)
	assert.Equal(t, Override{}, s)

	s, err = ParseStrategy(" Update-Append ")
	require.NoError(t, err)
	assert.Equal(t, AppendUpdate{}, s)

	_, err = ParseStrategy("update-row")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	assert.Equal(t, "update-append", StrategyName(AppendUpdate{}))
	assert.Equal(t, "", StrategyName(nil))
}

func TestModifyFile_InvalidStrategy(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client("tok")
	entry := commitdiff.Entry{Path: "p", Filename: "f"}

	assert.ErrorIs(t, c.ModifyFile(context.Background(), "w1", entry, nil), ErrUnknownStrategy)
	assert.ErrorIs(t, c.ModifyFile(context.Background(), "w1", entry, Custom{}), ErrUnknownStrategy)
	assert.Empty(t, fb.recorded(http.MethodPost, "/workdirs/w1/changes"))
}

func TestModifyFile_Override(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	entry := commitdiff.Entry{Path: "p", Filename: "f", Data: tablePayload([]any{1})}
	require.NoError(t, c.ModifyFile(context.Background(), "w1", entry, Override{}))

	form := fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0].Form
	assert.Equal(t, ChangeModify, form.Get("action"))
	assert.JSONEq(t, `[[1]]`, form.Get("kern"))
}

func TestModifyFile_Custom(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	var gotScope string
	handler := func(ctx context.Context, scopeID string, entry commitdiff.Entry, writeback WritebackFunc) error {
		gotScope = scopeID
		entry.Filename = "renamed"
		return writeback(ctx, scopeID, entry)
	}

	require.NoError(t, c.ModifyFile(context.Background(), "w1", commitdiff.Entry{Path: "p", Filename: "f"}, Custom{Handler: handler}))
	assert.Equal(t, "w1", gotScope)
	assert.Equal(t, "renamed", fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0].Form.Get("basename"))
}

func appendUpdateBackend(t *testing.T) *fakeBackend {
	fb := newFakeBackend(t)
	fb.json("GET /workdirs/w1/changes", Changes{})
	fb.json("GET /workdirs/w1/filetree", map[string]any{"p": map[string]any{"f": "d1"}})
	fb.json("GET /datasets/d1/original", map[string]any{
		"__kern": []any{[]any{"name", "age"}, []any{"ann", 31}},
		"__meta": map[string]any{"axisHeaders": map[string]any{"*": []any{"name", "age"}}},
	})
	fb.ok("POST /workdirs/w1/changes")
	return fb
}

func TestModifyFile_AppendUpdate(t *testing.T) {
	fb := appendUpdateBackend(t)
	c := fb.client("tok")

	entry := commitdiff.Entry{Path: "p", Filename: "f", Data: tablePayload([]any{"name", "city"}, []any{"bob", "Lyon"})}
	require.NoError(t, c.ModifyFile(context.Background(), "w1", entry, AppendUpdate{}))

	form := fb.recorded(http.MethodPost, "/workdirs/w1/changes")[0].Form
	assert.JSONEq(t, `[["name","age","city"],["ann",31,""],["bob","","Lyon"]]`, form.Get("kern"))

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(form.Get("meta")), &meta))
	assert.Equal(t, []any{"name", "age", "city"}, meta["axisHeaders"].(map[string]any)["*"])
}

func TestModifyFile_AppendUpdateShapeMismatchSendsNothing(t *testing.T) {
	fb := appendUpdateBackend(t)
	c := fb.client("tok")

	entry := commitdiff.Entry{Path: "p", Filename: "f", Data: &tabular.Payload{Kern: map[string]any{"s": []any{[]any{1}}}}}
	err := c.ModifyFile(context.Background(), "w1", entry, AppendUpdate{})

	assert.NoError(t, err)
	assert.Empty(t, fb.recorded(http.MethodPost, "/workdirs/w1/changes"))
	assert.Contains(t, fb.logs(), "level=WARN")
	assert.Contains(t, fb.logs(), "update append skipped")
}

func TestAddCommit_AppendUpdateShapeMismatchIsNotAFailure(t *testing.T) {
	fb := appendUpdateBackend(t)
	c := fb.client("tok")

	previous := []commitdiff.Entry{{Path: "p", Filename: "f", Fingerprint: "s1"}}
	current := []commitdiff.Entry{{
		Path: "p", Filename: "f", Fingerprint: "s2",
		Data: &tabular.Payload{Kern: map[string]any{"s": []any{[]any{1}}}},
	}}

	result, err := c.AddCommit(context.Background(), "w1", previous, current, SyncOptions{Strategy: AppendUpdate{}})
	require.NoError(t, err)

	assert.Len(t, result.Diff.Update, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, result.Applied())
	assert.Empty(t, fb.recorded(http.MethodPost, "/workdirs/w1/changes"))
}

func TestModifyFile_AppendUpdateMissingOriginal(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /workdirs/w1/changes", Changes{})
	fb.json("GET /workdirs/w1/filetree", map[string]any{})
	c := fb.client("tok")

	err := c.ModifyFile(context.Background(), "w1", commitdiff.Entry{Path: "p", Filename: "f"}, AppendUpdate{})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.Contains(t, fb.logs(), "update append failed")
}

// =============================================================================
// Orchestration
// =============================================================================

func TestAddCommit(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle("POST /workdirs/w1/changes", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("basename") == "broken" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c := fb.client("tok")

	previous := []commitdiff.Entry{
		{Path: "a", Filename: "aa", Fingerprint: "s1"},
		{Path: "b", Filename: "bb", Fingerprint: "s2"},
		{Path: "d", Filename: "dd", Fingerprint: "s3"},
	}
	current := []commitdiff.Entry{
		{Path: "a", Filename: "aa", Fingerprint: "s1"},
		{Path: "c/a", Filename: "caa", Fingerprint: "s4", Data: tablePayload([]any{1})},
		{Path: "x", Filename: "broken", Fingerprint: "s6", Data: tablePayload([]any{2})},
		{Path: "d", Filename: "dd", Fingerprint: "s5", Data: tablePayload([]any{3})},
	}

	result, err := c.AddCommit(context.Background(), "w1", previous, current, SyncOptions{Strict: true})
	require.NoError(t, err)

	add, update, del := result.Diff.Counts()
	assert.Equal(t, [3]int{2, 1, 1}, [3]int{add, update, del})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "broken", result.Failures[0].Entry.Filename)
	assert.Equal(t, 3, result.Applied())

	calls := fb.recorded(http.MethodPost, "/workdirs/w1/changes")
	require.Len(t, calls, 4)
	actions := []string{}
	for _, call := range calls {
		actions = append(actions, call.Form.Get("action"))
	}
	assert.Equal(t, []string{"add", "add", "modify", "remove"}, actions)
}

func TestAddCommit_DefaultIsNotStrict(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	previous := []commitdiff.Entry{{Path: "b", Filename: "bb", Fingerprint: "s2"}}
	result, err := c.AddCommit(context.Background(), "w1", previous, nil, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Diff.IsEmpty())
	assert.Empty(t, fb.recorded(http.MethodPost, "/workdirs/w1/changes"))
}

func TestAddCommit_MalformedSnapshotSendsNothing(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client("tok")

	result, err := c.AddCommit(context.Background(), "w1", nil, []commitdiff.Entry{{Path: "x"}}, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Diff.IsEmpty())
	assert.Contains(t, fb.logs(), "fail comparing commits")
}

func TestCompareCommits_MalformedDegradesToEmpty(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client("tok")

	previous := []commitdiff.Entry{{Path: "a", Filename: "", Fingerprint: "s1"}}
	current := []commitdiff.Entry{{Path: "a", Filename: "aa", Fingerprint: "s2"}}

	d := c.CompareCommits(context.Background(), previous, current, true)
	assert.True(t, d.IsEmpty())
	assert.Contains(t, fb.logs(), "fail comparing commits")

	d = c.CompareCommits(context.Background(), nil, current, true)
	assert.Len(t, d.Add, 1)
	assert.Contains(t, fb.logs(), "hot elements to commit")
}

func TestAddCommit_ProgrammerErrors(t *testing.T) {
	c := newFakeBackend(t).client("tok")

	_, err := c.AddCommit(context.Background(), "", nil, nil, SyncOptions{})
	assert.ErrorIs(t, err, ErrNoWorkdir)

	_, err = c.AddCommit(context.Background(), "w1", nil, nil, SyncOptions{Strategy: Custom{}})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestApplyDiff(t *testing.T) {
	fb := newFakeBackend(t)
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	diff := commitdiff.Diff{
		Add:    []commitdiff.Entry{{Path: "p", Filename: "new", Data: tablePayload([]any{1})}},
		Delete: []commitdiff.Entry{{Path: "p", Filename: "old"}},
	}
	result, err := c.ApplyDiff(context.Background(), "w1", diff, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 2, result.Applied())

	reqs := fb.recorded(http.MethodPost, "/workdirs/w1/changes")
	require.Len(t, reqs, 2)
	assert.Equal(t, ChangeAdd, reqs[0].Form.Get("action"))
	assert.Equal(t, ChangeRemove, reqs[1].Form.Get("action"))

	_, err = c.ApplyDiff(context.Background(), "", diff, nil)
	assert.ErrorIs(t, err, ErrNoWorkdir)
	_, err = c.ApplyDiff(context.Background(), "w1", diff, Custom{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRecollectLastCommit(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /repos/r1", Repo{UUID: "r1", Apex: Apex{Commit: "c9"}})
	fb.json("GET /commits/c9/filetree", map[string]any{
		"__self": "root-inode",
		"a":      map[string]any{"aa": "d1"},
		"top":    "d2",
	})
	fb.json("GET /datasets/d1/metadata", map[string]any{"sha1": "s1"})
	fb.json("GET /datasets/d2/metadata", map[string]any{"sha1": "s2"})
	c := fb.client("tok")

	entries := c.RecollectLastCommit(context.Background(), Repo{UUID: "r1"})

	assert.Equal(t, []commitdiff.Entry{
		{Path: "a", Filename: "aa", Fingerprint: "s1"},
		{Path: "", Filename: "top", Fingerprint: "s2"},
	}, entries)
	assert.Equal(t, "r1", fb.recorded(http.MethodGet, "/commits/c9/filetree")[0].Query.Get("namespace"))
}

func TestLastCommitFiletree_NoApex(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /repos/r1", Repo{UUID: "r1"})
	c := fb.client("tok")

	assert.Empty(t, c.LastCommitFiletree(context.Background(), Repo{UUID: "r1"}))
	assert.Contains(t, fb.logs(), "repo has no commit in apex")
}

func TestCommittedDatasetUUID(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /commits/c1/filetree", map[string]any{"a": map[string]any{"f.csv": "d7"}})
	c := fb.client("tok")

	repo := Repo{UUID: "r1", Apex: Apex{Commit: "c1"}}
	assert.Equal(t, "d7", c.CommittedDatasetUUID(context.Background(), repo, "a", "f.csv"))
	assert.Empty(t, c.CommittedDatasetUUID(context.Background(), repo, "a", "nope"))
}

func TestCleanRepo(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /repos/r1", Repo{UUID: "r1", Workdir: WorkdirRef{UUID: "w1"}})
	fb.ok("DELETE /workdirs/w1/changes")
	fb.json("GET /workdirs/w1/filetree", map[string]any{
		"__self": "x",
		"a":      map[string]any{"__self": "y", "f1": "d1", "b": map[string]any{"f2": "d2"}},
		"root":   "d3",
	})
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	deleted, err := c.CleanRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Len(t, fb.recorded(http.MethodDelete, "/workdirs/w1/changes"), 1)

	var removed []string
	for _, call := range fb.recorded(http.MethodPost, "/workdirs/w1/changes") {
		removed = append(removed, commitdiff.JoinKey(call.Form.Get("dirname"), call.Form.Get("basename")))
	}
	assert.ElementsMatch(t, []string{"a/b/f2", "a/f1", "root"}, removed)
}

func TestCleanRepo_MissingRepo(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client("tok")

	deleted, err := c.CleanRepo(context.Background(), "r404")
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Contains(t, fb.logs(), "repo not found")

	_, err = c.CleanRepo(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingRepoID)
}

func TestCleanRepo_ClearIndexFailureIsLogged(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /repos/r1", Repo{UUID: "r1", Workdir: WorkdirRef{UUID: "w1"}})
	fb.json("GET /workdirs/w1/filetree", map[string]any{"root": "d3"})
	fb.ok("POST /workdirs/w1/changes")
	c := fb.client("tok")

	deleted, err := c.CleanRepo(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	logs := fb.logs()
	assert.Contains(t, logs, "clean continues with pending changes left in the index")
	assert.Contains(t, logs, "repo=r1")
	assert.Contains(t, logs, "wdir=w1")
}

func TestDatasetUUID_ConflictingChangesAreLogged(t *testing.T) {
	fb := newFakeBackend(t)
	fb.json("GET /workdirs/w1/changes", Changes{
		Added: []Change{
			{Dirname: "a", Basename: "b", Inode: "i1"},
			{Dirname: "", Basename: "a", Inode: "i2"},
		},
	})
	fb.json("GET /workdirs/w1/filetree", map[string]any{})
	c := fb.client("tok")

	assert.Equal(t, "i1", c.DatasetUUID(context.Background(), "w1", "a", "b"))
	assert.Contains(t, fb.logs(), "change left out of the changes filetree")
}
