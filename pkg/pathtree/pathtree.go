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
	"reflect"
	"regexp"
	"strconv"
)

// SelfKey is the reserved filetree key holding a directory's own fingerprint.
const SelfKey = "__self"

// DefaultSeparator splits paths on "/" or ".".
var DefaultSeparator = regexp.MustCompile(`[/.]`)

// SlashSeparator splits paths on "/" only. Filetree paths use it because
// file names carry dots.
var SlashSeparator = regexp.MustCompile(`/`)

// =============================================================================
// Lookup
// =============================================================================

// GetElement returns the value addressed by path inside source.
//
// Description:
//
//	Splits path with DefaultSeparator and descends one segment at a time.
//	Mapping segments are looked up by key. Digit-only segments index into
//	sequences. Empty segments are passed over without descending.
//
// Inputs:
//
//	source - Tree to search. May be nil.
//	path - Slash or dot separated path. "" addresses source itself.
//
// Outputs:
//
//	any - The addressed value.
//	bool - False if source is nil, a segment is absent, an index is out of
//	       range, or a segment tries to descend into a scalar.
//
// Examples:
//
//	GetElement(map[string]any{"start": map[string]any{"day": 1}}, "start/day")     // 1, true
//	GetElement(map[string]any{"start": map[string]any{"day": 1}}, "start.missing") // nil, false
//
// Thread Safety: Safe for concurrent use on trees nobody is mutating.
func GetElement(source any, path string) (any, bool) {
	return GetElementBy(source, path, DefaultSeparator)
}

// GetElementBy is GetElement with a caller-supplied separator pattern.
func GetElementBy(source any, path string, sep *regexp.Regexp) (any, bool) {
	if source == nil {
		return nil, false
	}
	current := source
	for _, segment := range sep.Split(path, -1) {
		if segment == "" {
			continue
		}
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// child resolves one segment against a mapping or sequence.
func child(node any, segment string) (any, bool) {
	switch typed := node.(type) {
	case map[string]any:
		v, ok := typed[segment]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(typed) {
			return nil, false
		}
		return typed[idx], true
	case nil:
		return nil, false
	}

	// Typed containers built in Go ([][]any, map[string]string, ...).
	rv := reflect.ValueOf(node)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	}
	return nil, false
}

// =============================================================================
// Mutation
// =============================================================================

// AddElement inserts value at path inside target, mutating target in place.
//
// Description:
//
//	Splits path with DefaultSeparator, dropping empty segments, and walks
//	the mappings it names, creating empty intermediate mappings as needed.
//	At the terminal segment:
//	  - an existing []any has value appended to it,
//	  - an existing mapping is shallow-updated when value is also a mapping
//	    (incoming keys win),
//	  - anything else is replaced by value.
//
//	The whole path is validated before anything is created, so a failing
//	call leaves target untouched.
//
// Inputs:
//
//	target - Tree to mutate. Must not be nil.
//	path - Destination path. A path with no non-empty segment is a no-op.
//	value - Value to insert.
//
// Outputs:
//
//	error - ErrNilTarget if target is nil. A *PathError wrapping
//	        ErrNotNavigable if a non-terminal segment names a non-mapping.
//
// Examples:
//
//	tree := map[string]any{}
//	_ = AddElement(tree, "a.b", 2)                 // {"a": {"b": 2}}
//	_ = AddElement(tree, "list", []any{1})
//	_ = AddElement(tree, "list", 2)                // {"list": [1, 2]}
//
// Thread Safety: Not safe for concurrent use on the same target.
func AddElement(target map[string]any, path string, value any) error {
	return AddElementBy(target, path, DefaultSeparator, value)
}

// AddElementBy is AddElement with a caller-supplied separator pattern.
func AddElementBy(target map[string]any, path string, sep *regexp.Regexp, value any) error {
	return mutate(target, path, sep, func(parent map[string]any, key string) {
		switch existing := parent[key].(type) {
		case []any:
			parent[key] = append(existing, value)
		case map[string]any:
			if incoming, ok := value.(map[string]any); ok {
				for k, v := range incoming {
					existing[k] = v
				}
				return
			}
			parent[key] = value
		default:
			parent[key] = value
		}
	})
}

// SetElement stores value at path, replacing whatever was there.
//
// It navigates like AddElement but never appends or merges at the leaf.
func SetElement(target map[string]any, path string, value any) error {
	return SetElementBy(target, path, DefaultSeparator, value)
}

// SetElementBy is SetElement with a caller-supplied separator pattern.
func SetElementBy(target map[string]any, path string, sep *regexp.Regexp, value any) error {
	return mutate(target, path, sep, func(parent map[string]any, key string) {
		parent[key] = value
	})
}

// SetLeafBy stores a scalar leaf at path without ever discarding a subtree.
//
// Filetrees hold files as leaves and directories as mappings, so a file
// key that is a prefix of another ("a" and "a/b") cannot be represented.
// Whichever of the two is placed second is refused with a *PathError and
// the tree is left unchanged:
//
//	tree := map[string]any{}
//	_ = pathtree.SetLeafBy(tree, "a/b", pathtree.SlashSeparator, "1")
//	err := pathtree.SetLeafBy(tree, "a", pathtree.SlashSeparator, "2") // ErrLeafOccupied
func SetLeafBy(target map[string]any, path string, sep *regexp.Regexp, value any) error {
	if existing, ok := GetElementBy(target, path, sep); ok && target != nil {
		if _, isDir := existing.(map[string]any); isDir {
			segments := splitNonEmpty(path, sep)
			if len(segments) > 0 {
				return &PathError{Path: path, Segment: segments[len(segments)-1], Err: ErrLeafOccupied}
			}
		}
	}
	return SetElementBy(target, path, sep, value)
}

// mutate validates path against target, creates missing intermediates and
// hands the terminal parent and key to apply.
func mutate(target map[string]any, path string, sep *regexp.Regexp, apply func(map[string]any, string)) error {
	if target == nil {
		return ErrNilTarget
	}
	segments := splitNonEmpty(path, sep)
	if len(segments) == 0 {
		return nil
	}

	// Validation pass: nothing is created until the whole path is known good.
	current := target
	for _, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		if !exists {
			break
		}
		nested, ok := next.(map[string]any)
		if !ok {
			return &PathError{Path: path, Segment: segment, Err: ErrNotNavigable}
		}
		current = nested
	}

	current = target
	for _, segment := range segments[:len(segments)-1] {
		nested, ok := current[segment].(map[string]any)
		if !ok {
			nested = map[string]any{}
			current[segment] = nested
		}
		current = nested
	}
	apply(current, segments[len(segments)-1])
	return nil
}

func splitNonEmpty(path string, sep *regexp.Regexp) []string {
	parts := sep.Split(path, -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
