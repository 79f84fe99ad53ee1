// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datary

import (
	"context"
	"strings"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/pathtree"
	"github.com/AleutianAI/datary/pkg/telemetry"

	"go.opentelemetry.io/otel/trace"
)

// SyncOptions controls AddCommit.
type SyncOptions struct {
	// Strict also deletes files missing from the current snapshot.
	Strict bool

	// Strategy applies updates. Nil means Override.
	Strategy Strategy
}

// Failure is one entry AddCommit could not apply.
type Failure struct {
	Action commitdiff.Action
	Entry  commitdiff.Entry
	Err    error
}

// SyncResult is the outcome of AddCommit.
type SyncResult struct {
	// Diff is the classification that was dispatched.
	Diff commitdiff.Diff

	// Failures lists the entries whose request failed, in dispatch order.
	Failures []Failure
}

// Applied returns how many entries were sent successfully.
func (r SyncResult) Applied() int {
	add, update, del := r.Diff.Counts()
	return add + update + del - len(r.Failures)
}

// AddCommit stages the difference between two snapshots in a workdir.
//
// Description:
//
//	Compares previous with current, then sends AddFile for every add,
//	ModifyFile for every update and DeleteFile for every delete, in that
//	order and one at a time. A comparison error is logged and nothing is
//	sent. A failing entry is logged, recorded in the result and skipped.
//
// Inputs:
//
//	ctx - Context for the requests.
//	wdirUUID - Workdir receiving the changes.
//	previous - Committed snapshot, usually RecollectLastCommit.
//	current - Snapshot to sync, with Data set on adds and updates.
//	opts - Strictness and update strategy.
//
// Outputs:
//
//	SyncResult - The dispatched diff and its failures.
//	error - ErrNoWorkdir for an empty wdirUUID, ErrUnknownStrategy (wrapped)
//	        for an invalid strategy. Both are checked before any request.
//
// Examples:
//
//	previous := client.RecollectLastCommit(ctx, repo)
//	result, err := client.AddCommit(ctx, repo.Workdir.UUID, previous, current,
//	    datary.SyncOptions{Strategy: datary.AppendUpdate{RepoUUID: repo.UUID}})
func (c *Client) AddCommit(ctx context.Context, wdirUUID string, previous, current []commitdiff.Entry, opts SyncOptions) (SyncResult, error) {
	if wdirUUID == "" {
		return SyncResult{}, ErrNoWorkdir
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = Override{}
	}
	if err := validateStrategy(strategy); err != nil {
		return SyncResult{}, err
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "datary.AddCommit")
	defer span.End()

	diff := c.CompareCommits(ctx, previous, current, opts.Strict)
	return c.dispatch(ctx, wdirUUID, diff, strategy), nil
}

// CompareCommits is commitdiff.CompareCommits at the orchestration
// boundary: a malformed snapshot is logged and yields an empty Diff, so
// nothing gets sent. The counts are logged and recorded as metrics.
func (c *Client) CompareCommits(ctx context.Context, previous, current []commitdiff.Entry, strict bool) commitdiff.Diff {
	diff, err := commitdiff.CompareCommits(previous, current, strict)
	if err != nil {
		c.logger.Error("fail comparing commits", "error", err)
		telemetry.RecordError(trace.SpanFromContext(ctx), err)
		diff = commitdiff.Diff{}
	}

	add, update, del := diff.Counts()
	c.metrics.RecordDiff(ctx, add, update, del)
	c.logger.Info("hot elements to commit", "add", add, "update", update, "delete", del)
	return diff
}

// ApplyDiff stages an already classified diff in a workdir, the way
// AddCommit does after comparing. Callers use it to send a large diff in
// batches (see commitdiff.Diff.Split).
func (c *Client) ApplyDiff(ctx context.Context, wdirUUID string, diff commitdiff.Diff, strategy Strategy) (SyncResult, error) {
	if wdirUUID == "" {
		return SyncResult{}, ErrNoWorkdir
	}
	if strategy == nil {
		strategy = Override{}
	}
	if err := validateStrategy(strategy); err != nil {
		return SyncResult{}, err
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "datary.ApplyDiff")
	defer span.End()
	return c.dispatch(ctx, wdirUUID, diff, strategy), nil
}

// dispatch sends adds, then updates, then deletes, one at a time.
func (c *Client) dispatch(ctx context.Context, wdirUUID string, diff commitdiff.Diff, strategy Strategy) SyncResult {
	result := SyncResult{Diff: diff}
	record := func(action commitdiff.Action, entry commitdiff.Entry, err error) {
		if err != nil {
			result.Failures = append(result.Failures, Failure{Action: action, Entry: entry, Err: err})
		}
	}

	for _, entry := range diff.Add {
		record(commitdiff.ActionAdd, entry, c.AddFile(ctx, wdirUUID, entry))
	}
	for _, entry := range diff.Update {
		record(commitdiff.ActionUpdate, entry, c.ModifyFile(ctx, wdirUUID, entry, strategy))
	}
	for _, entry := range diff.Delete {
		record(commitdiff.ActionDelete, entry, c.DeleteFile(ctx, wdirUUID, entry))
	}

	if len(result.Failures) > 0 {
		c.logger.Warn("some entries were not applied", "failed", len(result.Failures))
	}
	return result
}

// CleanRepo removes every file from the workdir of a repository.
//
// Description:
//
//	Describes the repository, clears the pending changes of its workdir,
//	then deletes every file of the workdir filetree. "__self" entries are
//	not files and are skipped. A repository that cannot be found is logged
//	and nothing is deleted.
//
// Outputs:
//
//	int - Number of files deleted.
//	error - ErrMissingRepoID for an empty uuid, ErrNoWorkdir when the
//	        repository has no workdir.
func (c *Client) CleanRepo(ctx context.Context, repoUUID string) (int, error) {
	if repoUUID == "" {
		return 0, ErrMissingRepoID
	}
	repo := c.DescribeRepo(ctx, repoUUID, "")
	if repo == nil {
		c.logger.Error("fail to clean repo, repo not found", "uuid", repoUUID)
		return 0, nil
	}
	wdir := repo.Workdir.UUID
	if wdir == "" {
		return 0, ErrNoWorkdir
	}

	if err := c.ClearIndex(ctx, wdir); err != nil {
		c.logger.Warn("clean continues with pending changes left in the index",
			"repo", repoUUID, "wdir", wdir, "error", err)
	}

	deleted := 0
	for _, leaf := range pathtree.Flatten(c.WorkdirFiletree(ctx, wdir), "", "/") {
		if strings.Contains(leaf.Path, pathtree.SelfKey) {
			continue
		}
		dir, name := splitKey(leaf.Path)
		if c.DeleteFile(ctx, wdir, commitdiff.Entry{Path: dir, Filename: name}) == nil {
			deleted++
		}
	}
	c.logger.Info("repo cleaned", "uuid", repoUUID, "deleted", deleted)
	return deleted, nil
}

// splitKey splits "a/b/c" into "a/b" and "c".
func splitKey(key string) (string, string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}
