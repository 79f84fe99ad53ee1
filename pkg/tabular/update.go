// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tabular

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/datary/pkg/pathtree"
)

// UpdateElements appends incoming into stored, reconciling headers.
//
// Description:
//
//	Single table on both sides: row 0 of the stored table is classified with
//	IsHeaderRow against meta.axisHeaders["*"], the rows are reconciled and
//	the metadata recomputed for SingleTableAxis.
//
//	Named tables on both sides: every axis key touched by incoming (see
//	AxisKeys) is handled independently. Its header row is classified against
//	meta.axisHeaders[HeaderKey(axis)], the reconciled table overwrites the
//	stored one at that axis, and that axis's metadata entries are replaced.
//	Note that the header list is read from "<axis>/*", not from
//	axisHeaders[axis], which holds the row labels. Axis keys are split on
//	"/" only, so table names may contain dots ("data.csv").
//	Axes incoming does not touch keep their kern and metadata. An axis the
//	stored payload does not have yet starts from an empty table.
//
//	All work happens on copies and is committed to stored only when every
//	axis succeeded, so a failed call leaves stored exactly as it was.
//
// Inputs:
//
//	stored - Payload to update in place. Must not be nil.
//	incoming - Rows to append.
//
// Outputs:
//
//	error - ErrShapeMismatch (wrapped) when one kern is a table and the
//	        other a mapping, or an *AxisError when a table fails to merge.
//
// Thread Safety: Not safe for concurrent use on the same stored payload.
func UpdateElements(stored *Payload, incoming Payload) error {
	if stored == nil {
		return ErrNilPayload
	}

	storedMap, storedIsMap := stored.Kern.(map[string]any)
	incomingMap, incomingIsMap := incoming.Kern.(map[string]any)

	switch {
	case isTable(stored.Kern) && isTable(incoming.Kern):
		return updateSingleTable(stored, incoming)
	case storedIsMap && incomingIsMap:
		return updateNamedTables(stored, storedMap, incomingMap)
	default:
		return fmt.Errorf("%w: stored %s, incoming %s",
			ErrShapeMismatch, shapeName(stored.Kern), shapeName(incoming.Kern))
	}
}

func updateSingleTable(stored *Payload, incoming Payload) error {
	original, _ := AsTable(stored.Kern)
	update, _ := AsTable(incoming.Kern)

	hasHeader := len(original) > 0 &&
		IsHeaderRow(stored.Meta.AxisHeader(HeaderKey(SingleTableAxis)), original[0])

	merged, err := ReconcileRows(original, update, hasHeader)
	if err != nil {
		return &AxisError{Axis: SingleTableAxis, Err: err}
	}

	kern := merged.Tree()
	stored.Meta = ReconcileMetadata(kern, stored.Meta, SingleTableAxis, hasHeader)
	stored.Kern = kern
	return nil
}

func updateNamedTables(stored *Payload, storedKern, incomingKern map[string]any) error {
	working := pathtree.DeepCopy(storedKern).(map[string]any)
	meta := stored.Meta.Clone()

	for _, axis := range AxisKeys(incomingKern) {
		rawUpdate, _ := pathtree.GetElementBy(incomingKern, axis, pathtree.SlashSeparator)
		update, err := AsTable(rawUpdate)
		if err != nil {
			return &AxisError{Axis: axis, Err: err}
		}

		var original Table
		if rawOriginal, ok := pathtree.GetElementBy(working, axis, pathtree.SlashSeparator); ok {
			if original, err = AsTable(rawOriginal); err != nil {
				return &AxisError{Axis: axis, Err: err}
			}
		}

		hasHeader := len(original) > 0 &&
			IsHeaderRow(meta.AxisHeader(HeaderKey(axis)), original[0])

		merged, err := ReconcileRows(original, update, hasHeader)
		if err != nil {
			return &AxisError{Axis: axis, Err: err}
		}
		if err := pathtree.SetElementBy(working, axis, pathtree.SlashSeparator, merged.Tree()); err != nil {
			return &AxisError{Axis: axis, Err: err}
		}
		meta = ReconcileMetadata(working, meta, axis, hasHeader)
	}

	stored.Kern = working
	stored.Meta = meta
	return nil
}

// AxisKeys lists the axis keys a kern of named tables touches.
//
// The kern is flattened with "/" and each leaf path has its row and column
// index segments (up to two trailing all-digit segments) removed. Keys are
// returned once each, in flatten order.
//
//	AxisKeys(map[string]any{"s1": [][]any{{1, 2}}, "g": map[string]any{"s2": [][]any{{3}}}})
//	// ["g/s2", "s1"]
func AxisKeys(kern map[string]any) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, leaf := range pathtree.Flatten(kern, "", "/") {
		key := stripIndexSegments(leaf.Path, 2)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

func stripIndexSegments(path string, max int) string {
	for i := 0; i < max; i++ {
		idx := strings.LastIndex(path, "/")
		if idx < 0 || !isDigits(path[idx+1:]) {
			break
		}
		path = path[:idx]
	}
	return path
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func shapeName(kern any) string {
	switch {
	case kern == nil:
		return "empty"
	case isTable(kern):
		return "table"
	}
	if _, ok := kern.(map[string]any); ok {
		return "named tables"
	}
	return fmt.Sprintf("%T", kern)
}
