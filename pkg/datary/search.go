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
	"strconv"
)

// DefaultCategories is the category list used when the backend cannot be
// asked.
var DefaultCategories = []string{
	"business",
	"climate",
	"consumer",
	"education",
	"energy",
	"finance",
	"government",
	"health",
	"legal",
	"media",
	"nature",
	"science",
	"sports",
	"socioeconomics",
	"telecommunications",
	"transportation",
	"other",
}

// DefaultMemberLimit is the page size of Members.
const DefaultMemberLimit = 20

// Categories returns the backend's categories, or DefaultCategories when the
// call fails.
func (c *Client) Categories(ctx context.Context) []string {
	var categories []string
	if !c.fetchJSON(ctx, "categories", "search/categories", nil, &categories) {
		out := make([]string, len(DefaultCategories))
		copy(out, DefaultCategories)
		return out
	}
	return categories
}

// Member is one Datary user.
type Member struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// MemberQuery filters Members. With UUID or Username set at most one member
// is returned.
type MemberQuery struct {
	UUID     string
	Username string

	// Limit is the page size, DefaultMemberLimit when zero.
	Limit int
}

// Members searches members. A uuid match wins over a username match.
func (c *Client) Members(ctx context.Context, q MemberQuery) []Member {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMemberLimit
	}

	var members []Member
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if !c.fetchJSON(ctx, "members", "search/members", query, &members) {
		return []Member{}
	}
	if q.UUID == "" && q.Username == "" {
		return members
	}

	for _, m := range members {
		if q.UUID != "" && m.UUID == q.UUID {
			return []Member{m}
		}
		if q.Username != "" && m.Username == q.Username {
			return []Member{m}
		}
	}
	return []Member{}
}
