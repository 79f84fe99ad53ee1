// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathtree

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ExcludeEmptyValues returns a copy of v with empty entries stripped.
//
// Description:
//
//	Recursively removes entries whose cleaned value is nil, "", "None", an
//	empty sequence or an empty mapping. Applies to mapping values and
//	sequence elements alike. A container emptied by cleaning is itself
//	removed from its parent.
//
// Inputs:
//
//	v - Any tree. Scalars are returned unchanged.
//
// Outputs:
//
//	any - Same-shaped value without empty entries.
func ExcludeEmptyValues(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			cleaned := ExcludeEmptyValues(item)
			if !isEmpty(cleaned) {
				out[k] = cleaned
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			cleaned := ExcludeEmptyValues(item)
			if !isEmpty(cleaned) {
				out = append(out, cleaned)
			}
		}
		return out
	}
	return v
}

func isEmpty(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return typed == "" || typed == "None"
	case map[string]any:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	}
	return false
}

// ForceList wraps a non-sequence value into a one-element sequence.
// nil yields an empty sequence.
func ForceList(v any) []any {
	switch typed := v.(type) {
	case nil:
		return []any{}
	case []any:
		return typed
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// OrderedValues projects m onto order, using def for absent keys.
//
//	OrderedValues(map[string]any{"a": 1, "b": 2, "c": 3}, []string{"c", "a"}, "") // [3 1]
func OrderedValues(m map[string]any, order []string, def any) []any {
	out := make([]any, len(order))
	for i, key := range order {
		if v, ok := m[key]; ok {
			out[i] = v
		} else {
			out[i] = def
		}
	}
	return out
}

// RemoveDuplicates drops repeated elements of list, keeping first occurrences.
//
// When unique is true, an element that occurs more than once is removed
// entirely. Equality is by ValueKey, so nested sequences compare by content.
func RemoveDuplicates(list []any, unique bool) []any {
	counts := make(map[string]int, len(list))
	for _, item := range list {
		counts[ValueKey(item)]++
	}

	out := make([]any, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		key := ValueKey(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		if unique && counts[key] > 1 {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Dimension returns [rows, columns] of a row-major table.
//
// A sequence of sequences has len(v) rows and as many columns as its widest
// row. A flat sequence is a single row. Anything else is [0, 0].
func Dimension(v any) [2]int {
	rows := ForceListOrNil(v)
	if len(rows) == 0 {
		return [2]int{0, 0}
	}

	nested := false
	width := 0
	for _, row := range rows {
		if inner := ForceListOrNil(row); inner != nil {
			nested = true
			if len(inner) > width {
				width = len(inner)
			}
		}
	}
	if !nested {
		return [2]int{1, len(rows)}
	}
	return [2]int{len(rows), width}
}

// ForceListOrNil returns v as []any if it is a sequence, nil otherwise.
func ForceListOrNil(v any) []any {
	if v == nil {
		return nil
	}
	if _, ok := v.([]any); !ok && reflect.ValueOf(v).Kind() != reflect.Slice {
		return nil
	}
	return ForceList(v)
}

// ValueKey returns a stable string identity for a tree value.
//
// JSON-encodable values key by their canonical JSON (map keys sorted), so
// 1.0 and 1 decoded from JSON collide as they should.
func ValueKey(v any) string {
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// DeepCopy duplicates every mapping and sequence of a tree. Scalars are shared.
func DeepCopy(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = DeepCopy(item)
		}
		return out
	}
	return v
}
