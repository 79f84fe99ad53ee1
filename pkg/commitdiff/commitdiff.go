// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commitdiff classifies the difference between two filetree
// snapshots into added, updated and deleted entries.
//
// Snapshots are flat lists of Entry values: the committed state comes from
// the backend's last commit, the current state from whatever the caller wants
// to sync. CompareCommits decides what has to be sent, FormatDiff and
// FormatPatch render the decision for humans.
package commitdiff

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/datary/pkg/tabular"
)

// =============================================================================
// Types
// =============================================================================

// Entry is one file of a snapshot.
type Entry struct {
	// Path is the directory of the file, "" for the root.
	Path string `json:"path"`

	// Filename is the base name of the file.
	Filename string `json:"filename"`

	// Data is the file content. Committed snapshots usually leave it nil.
	Data *tabular.Payload `json:"data,omitempty"`

	// Fingerprint is an opaque content hash, compared only for equality.
	Fingerprint string `json:"sha1"`
}

// Key returns the full addressable path of the entry.
//
//	Entry{Path: "", Filename: "f"}.Key()   // "f"
//	Entry{Path: "a/b", Filename: "f"}.Key() // "a/b/f"
func (e Entry) Key() string {
	return JoinKey(e.Path, e.Filename)
}

// JoinKey joins a directory and a file name the way filetree paths are built.
func JoinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// Index maps full path to entry.
type Index map[string]Entry

// Action names one category of a Diff.
type Action string

// Diff actions, in report order.
const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
	ActionUpdate Action = "update"
)

// Actions lists every action sorted alphabetically.
var Actions = []Action{ActionAdd, ActionDelete, ActionUpdate}

// Symbol returns the one-character marker used in reports.
func (a Action) Symbol() string {
	switch a {
	case ActionAdd:
		return "+"
	case ActionUpdate:
		return "m"
	case ActionDelete:
		return "-"
	}
	return "?"
}

// Diff is the classified difference between two snapshots.
type Diff struct {
	Add    []Entry `json:"add"`
	Update []Entry `json:"update"`
	Delete []Entry `json:"delete"`
}

// Entries returns the entries classified under action.
func (d Diff) Entries(action Action) []Entry {
	switch action {
	case ActionAdd:
		return d.Add
	case ActionUpdate:
		return d.Update
	case ActionDelete:
		return d.Delete
	}
	return nil
}

// IsEmpty reports whether no entry was classified.
func (d Diff) IsEmpty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// Counts returns the number of entries per action.
func (d Diff) Counts() (add, update, del int) {
	return len(d.Add), len(d.Update), len(d.Delete)
}

// Split cuts d into consecutive diffs of at most n entries each, keeping
// the add, update, delete dispatch order across the pieces. n < 1 returns
// d unsplit; an empty d returns nil.
func (d Diff) Split(n int) []Diff {
	if d.IsEmpty() {
		return nil
	}
	if n < 1 {
		return []Diff{d}
	}

	var (
		out  []Diff
		cur  Diff
		size int
	)
	for _, action := range []Action{ActionAdd, ActionUpdate, ActionDelete} {
		for _, e := range d.Entries(action) {
			if size == n {
				out = append(out, cur)
				cur, size = Diff{}, 0
			}
			switch action {
			case ActionAdd:
				cur.Add = append(cur.Add, e)
			case ActionUpdate:
				cur.Update = append(cur.Update, e)
			case ActionDelete:
				cur.Delete = append(cur.Delete, e)
			}
			size++
		}
	}
	return append(out, cur)
}

// =============================================================================
// Indexing and comparison
// =============================================================================

// MakeIndex keys entries by their full path. Later entries with the same
// key replace earlier ones.
func MakeIndex(entries []Entry) Index {
	index := make(Index, len(entries))
	for _, e := range entries {
		index[e.Key()] = e
	}
	return index
}

// CompareCommits classifies current against previous.
//
// Description:
//
//	Every key of current that previous also has is an update when the
//	fingerprints differ and unchanged when they match. Every key only
//	current has is an add. Keys only previous has are deletes, reported
//	only when strict is set. A path present on both sides is never split
//	into an add plus a delete.
//
//	Adds and updates follow the order of current, deletes the order of
//	previous. Duplicate keys inside one snapshot collapse to the last entry.
//
// Inputs:
//
//	previous - Committed snapshot.
//	current - Snapshot to sync.
//	strict - Whether entries missing from current are deleted.
//
// Outputs:
//
//	Diff - Classified entries. Empty when err is non-nil.
//	error - ErrMalformedEntry (wrapped) if an entry has no filename.
//
// Examples:
//
//	diff, err := commitdiff.CompareCommits(lastCommit, snapshot, false)
//	if err != nil {
//	    logger.Error("compare commits", "error", err)
//	}
func CompareCommits(previous, current []Entry, strict bool) (Diff, error) {
	if err := validate("previous", previous); err != nil {
		return Diff{}, err
	}
	if err := validate("current", current); err != nil {
		return Diff{}, err
	}

	lastIndex := MakeIndex(previous)
	actualIndex := MakeIndex(current)

	unseen := make(map[string]bool, len(lastIndex))
	for key := range lastIndex {
		unseen[key] = true
	}

	var diff Diff
	for _, key := range orderedKeys(current) {
		entry := actualIndex[key]
		last, ok := lastIndex[key]
		if !ok {
			diff.Add = append(diff.Add, entry)
			continue
		}
		if entry.Fingerprint != last.Fingerprint {
			diff.Update = append(diff.Update, entry)
		}
		delete(unseen, key)
	}

	if strict {
		for _, key := range orderedKeys(previous) {
			if unseen[key] {
				diff.Delete = append(diff.Delete, lastIndex[key])
			}
		}
	}
	return diff, nil
}

func validate(side string, entries []Entry) error {
	for i, e := range entries {
		if e.Filename == "" {
			return fmt.Errorf("%w: %s[%d] at path %q has no filename", ErrMalformedEntry, side, i, e.Path)
		}
	}
	return nil
}

// orderedKeys returns the distinct keys of entries in first-seen order.
func orderedKeys(entries []Entry) []string {
	seen := make(map[string]bool, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		key := e.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
