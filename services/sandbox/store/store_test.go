// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/pathtree"
	"github.com/AleutianAI/datary/pkg/tabular"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupRepo(t *testing.T, s *Store) Repo {
	t.Helper()
	ctx := context.Background()
	token, err := s.SignIn(ctx, "ann", "secret")
	require.NoError(t, err)
	user, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	repo, err := s.CreateRepo(ctx, user, Repo{Name: "sales"})
	require.NoError(t, err)
	return repo
}

func addFile(t *testing.T, s *Store, wdir, dir, name string, kern any) string {
	t.Helper()
	id, err := s.ApplyChange(context.Background(), wdir, ChangeRequest{
		Action:   datary.ChangeAdd,
		Filemode: datary.FileModeFile,
		Dirname:  dir,
		Basename: name,
		Payload:  &tabular.Payload{Kern: kern, Meta: tabular.Metadata{}},
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// Session Tests
// =============================================================================

func TestSignIn(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.SignIn(ctx, "", "x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	first, err := s.SignIn(ctx, "ann", "secret")
	require.NoError(t, err)
	second, err := s.SignIn(ctx, "ann", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	u1, err := s.Authenticate(ctx, first)
	require.NoError(t, err)
	u2, err := s.Authenticate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, u1.UUID, u2.UUID, "same user across sessions")
	assert.Equal(t, "ann", u1.Username)
}

func TestSignOut(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	token, err := s.SignIn(ctx, "ann", "secret")
	require.NoError(t, err)
	require.NoError(t, s.SignOut(ctx, token))

	_, err = s.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMembers(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for _, name := range []string{"cid", "ann", "bob"} {
		_, err := s.SignIn(ctx, name, "pw")
		require.NoError(t, err)
	}

	users, err := s.Members(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ann", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

// =============================================================================
// Repository Tests
// =============================================================================

func TestRepoLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	assert.NotEmpty(t, repo.UUID)
	assert.NotEmpty(t, repo.Workdir.UUID)
	assert.Empty(t, repo.Apex.Commit)

	got, err := s.Repo(ctx, repo.UUID)
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Name)

	owner, err := s.Authenticate(ctx, mustSignIn(t, s, "ann"))
	require.NoError(t, err)
	list, err := s.ListRepos(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)

	other, err := s.Authenticate(ctx, mustSignIn(t, s, "bob"))
	require.NoError(t, err)
	list, err = s.ListRepos(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.DeleteRepo(ctx, repo.UUID))
	_, err = s.Repo(ctx, repo.UUID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Workdir(ctx, repo.Workdir.UUID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteRepo(ctx, repo.UUID), ErrNotFound)
}

func mustSignIn(t *testing.T, s *Store, name string) string {
	t.Helper()
	token, err := s.SignIn(context.Background(), name, "pw")
	require.NoError(t, err)
	return token
}

// =============================================================================
// Workdir Tests
// =============================================================================

func TestApplyChange_AddStampsMetadata(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	id := addFile(t, s, repo.Workdir.UUID, "a", "f.csv", []any{[]any{"h"}, []any{1}})

	ds, err := s.Dataset(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ds.Meta.SHA1(), 40)
	assert.Positive(t, ds.Meta.Size())

	wdir, err := s.Workdir(ctx, repo.Workdir.UUID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a/f.csv": id}, wdir.Files)
}

func TestApplyChange_SameContentSameFingerprint(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	id1 := addFile(t, s, repo.Workdir.UUID, "", "x", []any{[]any{1}})
	id2 := addFile(t, s, repo.Workdir.UUID, "", "y", []any{[]any{1}})
	id3 := addFile(t, s, repo.Workdir.UUID, "", "z", []any{[]any{2}})

	d1, _ := s.Dataset(ctx, id1)
	d2, _ := s.Dataset(ctx, id2)
	d3, _ := s.Dataset(ctx, id3)
	assert.Equal(t, d1.Meta.SHA1(), d2.Meta.SHA1())
	assert.NotEqual(t, d1.Meta.SHA1(), d3.Meta.SHA1())
}

func TestApplyChange_DirectoryIsIgnored(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	id, err := s.ApplyChange(ctx, repo.Workdir.UUID, ChangeRequest{
		Action: datary.ChangeAdd, Filemode: datary.FileModeDir, Dirname: "", Basename: "dir",
	})
	require.NoError(t, err)
	assert.Empty(t, id)

	wdir, err := s.Workdir(ctx, repo.Workdir.UUID)
	require.NoError(t, err)
	assert.Empty(t, wdir.Files)
}

func TestApplyChange_Remove(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)
	wdir := repo.Workdir.UUID

	addFile(t, s, wdir, "a", "one", []any{[]any{1}})
	id := addFile(t, s, wdir, "a", "two", []any{[]any{2}})

	_, err := s.ApplyChange(ctx, wdir, ChangeRequest{Action: datary.ChangeRemove, Dirname: "a", Basename: "one"})
	require.NoError(t, err)
	_, err = s.ApplyChange(ctx, wdir, ChangeRequest{Action: datary.ChangeRemove, Inode: id})
	require.NoError(t, err)

	w, err := s.Workdir(ctx, wdir)
	require.NoError(t, err)
	assert.Empty(t, w.Files)

	_, err = s.ApplyChange(ctx, wdir, ChangeRequest{Action: datary.ChangeRemove, Inode: id})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyChange_Invalid(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	_, err := s.ApplyChange(ctx, repo.Workdir.UUID, ChangeRequest{Action: "rename"})
	assert.ErrorIs(t, err, ErrInvalidChange)
	_, err = s.ApplyChange(ctx, repo.Workdir.UUID, ChangeRequest{Action: datary.ChangeAdd})
	assert.ErrorIs(t, err, ErrInvalidChange)
	_, err = s.ApplyChange(ctx, "missing", ChangeRequest{Action: datary.ChangeAdd, Basename: "f"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkdirChanges(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)
	wdir := repo.Workdir.UUID

	addFile(t, s, wdir, "a", "keep", []any{[]any{1}})
	addFile(t, s, wdir, "a", "edit", []any{[]any{1}})
	gone := addFile(t, s, wdir, "", "gone", []any{[]any{1}})
	_, err := s.Commit(ctx, repo.UUID, "first")
	require.NoError(t, err)

	changes, err := s.WorkdirChanges(ctx, wdir)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty())

	edited := addFile(t, s, wdir, "a", "edit", []any{[]any{2}})
	fresh := addFile(t, s, wdir, "b", "new", []any{[]any{3}})
	_, err = s.ApplyChange(ctx, wdir, ChangeRequest{Action: datary.ChangeRemove, Basename: "gone"})
	require.NoError(t, err)

	changes, err = s.WorkdirChanges(ctx, wdir)
	require.NoError(t, err)
	assert.Equal(t, []datary.Change{{Dirname: "b", Basename: "new", Inode: fresh}}, changes.Added)
	assert.Equal(t, []datary.Change{{Dirname: "a", Basename: "edit", Inode: edited}}, changes.Modified)
	assert.Equal(t, []datary.Change{{Dirname: "", Basename: "gone", Inode: gone}}, changes.Removed)
	assert.Empty(t, changes.Renamed)

	require.NoError(t, s.ClearChanges(ctx, wdir))
	changes, err = s.WorkdirChanges(ctx, wdir)
	require.NoError(t, err)
	assert.True(t, changes.IsEmpty())
}

// =============================================================================
// Commit Tests
// =============================================================================

func TestCommit_MovesApex(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := setupRepo(t, s)

	id := addFile(t, s, repo.Workdir.UUID, "dir", "f.json", map[string]any{"s": []any{[]any{1}}})
	first, err := s.Commit(ctx, repo.UUID, "first")
	require.NoError(t, err)
	assert.Len(t, first.SHA1, 40)
	assert.Empty(t, first.Parent)

	second, err := s.Commit(ctx, repo.UUID, "second")
	require.NoError(t, err)
	assert.Equal(t, first.SHA1, second.Parent)
	assert.NotEqual(t, first.SHA1, second.SHA1)

	got, err := s.Repo(ctx, repo.UUID)
	require.NoError(t, err)
	assert.Equal(t, second.SHA1, got.Apex.Commit)

	stored, err := s.GetCommit(ctx, first.SHA1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dir/f.json": id}, stored.Files)

	_, err = s.Commit(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesToTree(t *testing.T) {
	tree, conflicts := FilesToTree(map[string]string{
		"a/b.csv":  "1",
		"a/c/d.v1": "2",
		"root":     "3",
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b.csv": "1",
			"c":     map[string]any{"d.v1": "2"},
		},
		"root": "3",
	}, tree)
	assert.Empty(t, conflicts)
}

func TestFilesToTree_PrefixCollision(t *testing.T) {
	tree, conflicts := FilesToTree(map[string]string{
		"a":   "1",
		"a/b": "2",
	})

	assert.Equal(t, map[string]any{"a": "1"}, tree)
	require.Len(t, conflicts, 1)
	assert.ErrorIs(t, conflicts[0], pathtree.ErrNotNavigable)
}
