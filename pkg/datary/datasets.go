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
	"github.com/AleutianAI/datary/pkg/tabular"
)

// Metadata returns the metadata of a dataset, empty on failure.
func (c *Client) Metadata(ctx context.Context, repoUUID, datasetUUID string) tabular.Metadata {
	meta := tabular.Metadata{}
	query := url.Values{"namespace": {repoUUID}}
	if datasetUUID == "" || !c.fetchJSON(ctx, "metadata", "datasets/"+segment(datasetUUID)+"/metadata", query, &meta) || meta == nil {
		c.logger.Error("no metadata retrieved", "repo", repoUUID, "dataset", datasetUUID)
		return tabular.Metadata{}
	}
	return meta
}

// Original returns the stored content of a dataset.
//
// Description:
//
//	Requires datasetUUID and at least one of repoUUID or wdirUUID. The
//	dataset is looked up in the workdir scope first; when that yields
//	nothing and a repository is known, the repository scope is tried.
//	Empty parameters are left out of the query.
//
// Outputs:
//
//	tabular.Payload - The stored kern and meta. Zero when nothing was found.
func (c *Client) Original(ctx context.Context, datasetUUID, repoUUID, wdirUUID string) tabular.Payload {
	if datasetUUID == "" || (repoUUID == "" && wdirUUID == "") {
		return tabular.Payload{}
	}
	endpoint := "datasets/" + segment(datasetUUID) + "/original"

	var payload tabular.Payload
	if c.fetchJSON(ctx, "original", endpoint, scopeQuery(repoUUID, wdirUUID), &payload) && !payload.IsZero() {
		return payload
	}
	c.logger.Error("no original retrieved from workdir scope",
		"namespace", repoUUID, "scope", wdirUUID, "dataset", datasetUUID)

	if repoUUID == "" {
		return tabular.Payload{}
	}
	payload = tabular.Payload{}
	if c.fetchJSON(ctx, "original", endpoint, scopeQuery(repoUUID, repoUUID), &payload) && !payload.IsZero() {
		return payload
	}
	c.logger.Error("no original retrieved from repo scope",
		"namespace", repoUUID, "scope", repoUUID, "dataset", datasetUUID)
	return tabular.Payload{}
}

func scopeQuery(namespace, scope string) url.Values {
	q := url.Values{}
	if namespace != "" {
		q.Set("namespace", namespace)
	}
	if scope != "" {
		q.Set("scope", scope)
	}
	return q
}

// DatasetUUID returns the dataset id stored at path/filename of a workdir.
// Pending changes are consulted before the workdir filetree. "" when the
// file is unknown.
func (c *Client) DatasetUUID(ctx context.Context, wdirUUID, path, filename string) string {
	key := commitdiff.JoinKey(path, filename)
	if key == "" {
		return ""
	}

	changes, conflicts := BuildChangesFiletree(c.WorkdirChanges(ctx, wdirUUID))
	for _, err := range conflicts {
		c.logger.Warn("change left out of the changes filetree", "scope_id", wdirUUID, "error", err)
	}
	if id := lookupDatasetUUID(changes, key); id != "" {
		return id
	}
	return lookupDatasetUUID(c.WorkdirFiletree(ctx, wdirUUID), key)
}

// CommittedDatasetUUID returns the dataset id stored at path/filename in the
// last commit of a repository. "" when the file is unknown.
func (c *Client) CommittedDatasetUUID(ctx context.Context, repo Repo, path, filename string) string {
	key := commitdiff.JoinKey(path, filename)
	if key == "" {
		return ""
	}
	return lookupDatasetUUID(c.LastCommitFiletree(ctx, repo), key)
}

func lookupDatasetUUID(tree map[string]any, key string) string {
	value, ok := pathtree.GetElementBy(tree, key, pathtree.SlashSeparator)
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}
