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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
)

// ErrMissingRepoName is returned by CreateRepo without a name.
var ErrMissingRepoName = errors.New("datary: repository name is required")

// Visibility options accepted by the backend.
var VisibilityOptions = []string{"public", "private", "commercial"}

// Repo describes one repository as the backend reports it.
type Repo struct {
	UUID        string     `json:"uuid"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
	Workdir     WorkdirRef `json:"workdir"`
	Apex        Apex       `json:"apex"`
}

// WorkdirRef points at the staging area of a repository.
type WorkdirRef struct {
	UUID string `json:"uuid"`
}

// Apex is the head of a repository.
type Apex struct {
	// Commit is the sha1 of the last commit, "" before the first one.
	Commit string `json:"commit"`
}

// RepoSpec is the input of CreateRepo. Zero fields take the backend
// defaults listed on each field.
type RepoSpec struct {
	// Name is required.
	Name string

	// Category must be one of DefaultCategories; anything else becomes "other".
	Category string

	// Description defaults to "<Name> description".
	Description string

	// Visibility must be one of VisibilityOptions; anything else becomes
	// "commercial".
	Visibility string

	// License defaults to "proprietary".
	License string

	// Amount is the price in cents for commercial repositories.
	Amount int

	// Currency defaults to "eur".
	Currency string

	// Modality is "one-time" or "recurring" (default).
	Modality string

	// Interval is "day", "week", "month" or "year" (default).
	Interval string

	// Period is the number of intervals between billings, default 1.
	Period int
}

// form builds the create request body with every default applied.
func (s RepoSpec) form() url.Values {
	category := s.Category
	if !slices.Contains(DefaultCategories, category) {
		category = "other"
	}
	visibility := s.Visibility
	if !slices.Contains(VisibilityOptions, visibility) {
		visibility = "commercial"
	}
	period := s.Period
	if period <= 0 {
		period = 1
	}

	form := url.Values{
		"name":        {s.Name},
		"category":    {category},
		"description": {orDefault(s.Description, s.Name+" description")},
		"visibility":  {visibility},
		"licenseName": {orDefault(s.License, "proprietary")},
		"currency":    {orDefault(s.Currency, "eur")},
		"modality":    {orDefault(s.Modality, "recurring")},
		"interval":    {orDefault(s.Interval, "year")},
		"period":      {strconv.Itoa(period)},
	}
	if s.Amount > 0 {
		form.Set("amount", strconv.Itoa(s.Amount))
	}
	return form
}

// CreateRepo creates a repository owned by the signed-in user and returns
// its description.
//
// A failed create is returned as error. A create that succeeded but cannot
// be described returns (nil, nil) after logging.
func (c *Client) CreateRepo(ctx context.Context, spec RepoSpec) (*Repo, error) {
	if spec.Name == "" {
		return nil, ErrMissingRepoName
	}
	_, err := c.send(ctx, request{op: "createRepo", method: http.MethodPost, endpoint: "me/repos", form: spec.form()})
	if err != nil {
		c.logger.Error("create repo failed", "name", spec.Name, "error", err)
		return nil, err
	}
	c.logger.Info("repo created", "name", spec.Name)
	return c.DescribeRepo(ctx, "", spec.Name), nil
}

// DescribeRepo returns one repository.
//
// Description:
//
//	With a uuid the repository is fetched directly; otherwise the user's
//	repositories are listed and filtered by name. When the backend answers
//	with a list, the first repository matching uuid wins, then the first
//	matching name.
//
// Outputs:
//
//	*Repo - The repository, or nil when it cannot be found.
func (c *Client) DescribeRepo(ctx context.Context, repoUUID, name string) *Repo {
	endpoint := "me/repos"
	if repoUUID != "" {
		endpoint = "repos/" + segment(repoUUID)
	}

	var raw json.RawMessage
	if !c.fetchJSON(ctx, "describeRepo", endpoint, nil, &raw) {
		return nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var repos []Repo
		if err := json.Unmarshal(trimmed, &repos); err != nil {
			c.logger.Error("decode repo list", "error", err)
			return nil
		}
		if repo := pickRepo(repos, repoUUID, name); repo != nil {
			return repo
		}
		c.logger.Warn("repo not found", "uuid", repoUUID, "name", name)
		return nil
	}

	var repo Repo
	if err := json.Unmarshal(trimmed, &repo); err != nil {
		c.logger.Error("decode repo", "error", err)
		return nil
	}
	return &repo
}

func pickRepo(repos []Repo, repoUUID, name string) *Repo {
	if repoUUID != "" {
		for i := range repos {
			if repos[i].UUID == repoUUID {
				return &repos[i]
			}
		}
	}
	if name != "" {
		for i := range repos {
			if repos[i].Name == name {
				return &repos[i]
			}
		}
	}
	return nil
}

// ListRepos returns the signed-in user's repositories, empty on failure.
func (c *Client) ListRepos(ctx context.Context) []Repo {
	var repos []Repo
	if !c.fetchJSON(ctx, "listRepos", "me/repos", nil, &repos) {
		return []Repo{}
	}
	return repos
}

// DeleteRepo deletes a repository.
func (c *Client) DeleteRepo(ctx context.Context, repoUUID string) error {
	if repoUUID == "" {
		return ErrMissingRepoID
	}
	_, err := c.send(ctx, request{op: "deleteRepo", method: http.MethodDelete, endpoint: "repos/" + segment(repoUUID)})
	if err != nil {
		c.logger.Error("delete repo failed", "uuid", repoUUID, "error", err)
		return fmt.Errorf("delete repo %s: %w", repoUUID, err)
	}
	c.logger.Info("repo deleted", "uuid", repoUUID)
	return nil
}

// Commit records the workdir of repoUUID as a new commit.
func (c *Client) Commit(ctx context.Context, repoUUID, message string) error {
	if repoUUID == "" {
		return ErrMissingRepoID
	}
	c.logger.Info("committing changes", "repo", repoUUID)
	_, err := c.send(ctx, request{
		op:       "commit",
		method:   http.MethodPost,
		endpoint: "repos/" + segment(repoUUID) + "/commits",
		form:     url.Values{"message": {message}},
	})
	if err != nil {
		c.logger.Error("commit failed", "repo", repoUUID, "error", err)
		return err
	}
	c.logger.Info("changes committed", "repo", repoUUID)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
