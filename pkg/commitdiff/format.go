// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commitdiff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"
)

// ReportTimeLayout is the timestamp layout of the report header.
const ReportTimeLayout = "02/01/2006-15:04"

// sectionRule separates a report section title from its entries.
const sectionRule = "*****************"

// FormatDiff renders d as a plain-text report.
//
// Description:
//
//	Writes "Changes at <dd/mm/yyyy-HH:MM>" and then, for every action in
//	alphabetical order, an upper-case title, a rule, and one line per entry:
//
//	    <symbol>  <path>/<filename>
//
//	with symbols "+" (add), "m" (update) and "-" (delete).
//
// Inputs:
//
//	d - Diff to render.
//	at - Timestamp written in the header.
//
// Outputs:
//
//	string - The report, or "" when d is empty.
func FormatDiff(d Diff, at time.Time) string {
	if d.IsEmpty() {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Changes at %s\n", at.Format(ReportTimeLayout))
	for _, action := range Actions {
		fmt.Fprintf(&b, "%s\n%s\n", strings.ToUpper(string(action)), sectionRule)
		for _, e := range d.Entries(action) {
			fmt.Fprintf(&b, "%s  %s/%s\n", action.Symbol(), e.Path, e.Filename)
		}
	}
	return b.String()
}

// fileMode is the mode the backend assigns to every dataset file.
const fileMode = "100644"

// FormatPatch renders d as a git-style multi-file unified diff.
//
// Description:
//
//	Every entry becomes one file section with "diff --git" and mode/index
//	extended headers carrying the fingerprints. Entries that carry Data get
//	a hunk with the payload as indented JSON: added lines for adds and
//	updates, removed lines for deletes.
//
// Inputs:
//
//	d - Diff to render.
//
// Outputs:
//
//	[]byte - The patch. Empty when d is empty.
//	error - Non-nil if a payload cannot be encoded or printed.
func FormatPatch(d Diff) ([]byte, error) {
	var files []*diff.FileDiff
	for _, action := range Actions {
		for _, e := range d.Entries(action) {
			fd, err := fileDiffFor(action, e)
			if err != nil {
				return nil, fmt.Errorf("patch for %s: %w", e.Key(), err)
			}
			files = append(files, fd)
		}
	}
	if len(files) == 0 {
		return nil, nil
	}
	return diff.PrintMultiFileDiff(files)
}

func fileDiffFor(action Action, e Entry) (*diff.FileDiff, error) {
	name := e.Key()
	fd := &diff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
		Extended: []string{fmt.Sprintf("diff --git a/%s b/%s", name, name)},
	}

	var body []string
	if e.Data != nil {
		encoded, err := json.MarshalIndent(e.Data, "", "  ")
		if err != nil {
			return nil, err
		}
		body = strings.Split(string(encoded), "\n")
	}

	switch action {
	case ActionAdd:
		fd.OrigName = "/dev/null"
		fd.Extended = append(fd.Extended,
			"new file mode "+fileMode,
			fmt.Sprintf("index 0000000..%s", shortSHA(e.Fingerprint)))
		if len(body) > 0 {
			fd.Hunks = []*diff.Hunk{hunk(0, 0, 1, len(body), prefixLines("+", body))}
		}
	case ActionDelete:
		fd.NewName = "/dev/null"
		fd.Extended = append(fd.Extended,
			"deleted file mode "+fileMode,
			fmt.Sprintf("index %s..0000000", shortSHA(e.Fingerprint)))
		if len(body) > 0 {
			fd.Hunks = []*diff.Hunk{hunk(1, len(body), 0, 0, prefixLines("-", body))}
		}
	case ActionUpdate:
		fd.Extended = append(fd.Extended,
			fmt.Sprintf("index 0000000..%s %s", shortSHA(e.Fingerprint), fileMode))
		if len(body) > 0 {
			fd.Hunks = []*diff.Hunk{hunk(1, 0, 1, len(body), prefixLines("+", body))}
		}
	}
	return fd, nil
}

func hunk(origStart, origLines, newStart, newLines int, body []byte) *diff.Hunk {
	return &diff.Hunk{
		OrigStartLine: int32(origStart),
		OrigLines:     int32(origLines),
		NewStartLine:  int32(newStart),
		NewLines:      int32(newLines),
		Body:          body,
	}
}

func prefixLines(prefix string, lines []string) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(prefix)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func shortSHA(sha string) string {
	if sha == "" {
		return "0000000"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
