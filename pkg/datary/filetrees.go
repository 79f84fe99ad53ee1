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
	"net/url"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/pathtree"
)

// UnknownDatasetUUID stands in for a change the backend reported without
// an inode.
const UnknownDatasetUUID = "unknown_dataset_uuid"

// Change is one pending entry of a workdir.
type Change struct {
	Dirname  string `json:"dirname"`
	Basename string `json:"basename"`
	Inode    string `json:"inode,omitempty"`
}

// Changes lists the pending entries of a workdir by kind.
type Changes struct {
	Added    []Change `json:"added"`
	Modified []Change `json:"modified"`
	Removed  []Change `json:"removed"`
	Renamed  []Change `json:"renamed"`
}

// All returns every change, added first and renamed last.
func (c Changes) All() []Change {
	all := make([]Change, 0, len(c.Added)+len(c.Modified)+len(c.Removed)+len(c.Renamed))
	all = append(all, c.Added...)
	all = append(all, c.Modified...)
	all = append(all, c.Removed...)
	return append(all, c.Renamed...)
}

// IsEmpty reports whether nothing is pending.
func (c Changes) IsEmpty() bool {
	return len(c.Added)+len(c.Modified)+len(c.Removed)+len(c.Renamed) == 0
}

// CommitFiletree returns the filetree of one commit, empty on failure.
func (c *Client) CommitFiletree(ctx context.Context, repoUUID, commitSHA1 string) map[string]any {
	tree := map[string]any{}
	query := url.Values{"namespace": {repoUUID}}
	if !c.fetchJSON(ctx, "commitFiletree", "commits/"+segment(commitSHA1)+"/filetree", query, &tree) || tree == nil {
		return map[string]any{}
	}
	return tree
}

// WorkdirFiletree returns the filetree of a workdir, empty on failure.
func (c *Client) WorkdirFiletree(ctx context.Context, wdirUUID string) map[string]any {
	tree := map[string]any{}
	if !c.fetchJSON(ctx, "workdirFiletree", "workdirs/"+segment(wdirUUID)+"/filetree", nil, &tree) || tree == nil {
		return map[string]any{}
	}
	return tree
}

// WorkdirChanges returns the pending changes of a workdir, empty on failure.
func (c *Client) WorkdirChanges(ctx context.Context, wdirUUID string) Changes {
	var changes Changes
	if !c.fetchJSON(ctx, "workdirChanges", "workdirs/"+segment(wdirUUID)+"/changes", nil, &changes) {
		return Changes{}
	}
	return changes
}

// ChangesToFiletree arranges changes as a filetree mapping each
// dirname/basename to its inode, UnknownDatasetUUID when the inode is
// missing. Later changes to the same path win. A change whose path
// collides with a file or directory already placed is left out; use
// BuildChangesFiletree to learn which.
func ChangesToFiletree(changes Changes) map[string]any {
	tree, _ := BuildChangesFiletree(changes)
	return tree
}

// BuildChangesFiletree is ChangesToFiletree that also returns the errors
// of the changes it could not place, one *pathtree.PathError each.
func BuildChangesFiletree(changes Changes) (map[string]any, []error) {
	tree := map[string]any{}
	var conflicts []error
	for _, ch := range changes.All() {
		inode := ch.Inode
		if inode == "" {
			inode = UnknownDatasetUUID
		}
		key := commitdiff.JoinKey(ch.Dirname, ch.Basename)
		if err := pathtree.SetLeafBy(tree, key, pathtree.SlashSeparator, inode); err != nil {
			conflicts = append(conflicts, err)
		}
	}
	return tree, conflicts
}

// LastCommitFiletree returns the filetree of the repository head.
//
// Description:
//
//	Describes the repository when repo carries no apex commit, then fetches
//	the filetree of apex.commit. A missing repository, a repository without
//	commits and an empty filetree all log a warning and return an empty tree.
func (c *Client) LastCommitFiletree(ctx context.Context, repo Repo) map[string]any {
	if repo.Apex.Commit == "" && repo.UUID != "" {
		described := c.DescribeRepo(ctx, repo.UUID, "")
		if described == nil {
			c.logger.Warn("no repo found", "uuid", repo.UUID)
			return map[string]any{}
		}
		repo = *described
	}
	if repo.Apex.Commit == "" {
		c.logger.Warn("repo has no commit in apex", "uuid", repo.UUID)
		return map[string]any{}
	}

	tree := c.CommitFiletree(ctx, repo.UUID, repo.Apex.Commit)
	if len(tree) == 0 {
		c.logger.Warn("no filetree for last commit", "uuid", repo.UUID, "sha1", repo.Apex.Commit)
	}
	return tree
}

// RecollectLastCommit lists the files of the repository head as a
// committed snapshot: every entry carries the path, the file name and the
// metadata sha1 as fingerprint, with no data.
func (c *Client) RecollectLastCommit(ctx context.Context, repo Repo) []commitdiff.Entry {
	tree := c.LastCommitFiletree(ctx, repo)
	nodes := pathtree.NestedToList("", tree)

	entries := make([]commitdiff.Entry, 0, len(nodes))
	for _, node := range nodes {
		datasetUUID, _ := node.Value.(string)
		meta := c.Metadata(ctx, repo.UUID, datasetUUID)
		entries = append(entries, commitdiff.Entry{
			Path:        node.Path,
			Filename:    node.Name,
			Fingerprint: meta.SHA1(),
		})
	}
	return entries
}
