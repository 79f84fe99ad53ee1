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
	"sort"
	"strconv"
	"strings"
)

// Leaf is one entry of a flattened tree.
type Leaf struct {
	// Path is the separator-joined key of the leaf.
	Path string

	// Value is the scalar (or empty container) found there.
	Value any
}

// Leaves is the ordered result of Flatten.
type Leaves []Leaf

// Keys returns the leaf paths in traversal order.
func (l Leaves) Keys() []string {
	keys := make([]string, len(l))
	for i, leaf := range l {
		keys[i] = leaf.Path
	}
	return keys
}

// Map returns the leaves as a plain lookup. Order is lost.
func (l Leaves) Map() map[string]any {
	m := make(map[string]any, len(l))
	for _, leaf := range l {
		m[leaf.Path] = leaf.Value
	}
	return m
}

// Flatten collapses a nested tree into a single level of leaves.
//
// Description:
//
//	Descends depth-first into mappings and sequences. Mapping keys are
//	visited in sorted order. Sequence elements use their index as the path
//	segment. Keys are joined with sep; the first segment is joined to prefix
//	only when prefix is non-empty. Empty mappings and sequences contribute
//	no leaves.
//
// Inputs:
//
//	tree - Tree to flatten. A scalar yields a single leaf at prefix.
//	prefix - Path prepended to every key. May be "".
//	sep - Separator placed between segments.
//
// Outputs:
//
//	Leaves - Leaves in traversal order.
//
// Examples:
//
//	Flatten(map[string]any{"a": 1, "c": map[string]any{"cd": []any{1, 3}}}, "", "/")
//	// a=1, c/cd/0=1, c/cd/1=3
//
// Thread Safety: Safe for concurrent use.
func Flatten(tree any, prefix, sep string) Leaves {
	var out Leaves
	flattenInto(&out, tree, prefix, sep)
	return out
}

func flattenInto(out *Leaves, node any, key, sep string) {
	join := func(segment string) string {
		if key == "" {
			return segment
		}
		return key + sep + segment
	}

	switch typed := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(typed) {
			flattenInto(out, typed[k], join(k), sep)
		}
	case []any:
		for i, v := range typed {
			flattenInto(out, v, join(strconv.Itoa(i)), sep)
		}
	default:
		*out = append(*out, Leaf{Path: key, Value: node})
	}
}

// Node is one file of a filetree as reported by NestedToList.
type Node struct {
	// Path is the directory holding the file, without trailing slash.
	Path string

	// Name is the file name.
	Name string

	// Value is whatever the tree stores for the file, usually a dataset id.
	Value any
}

// NestedToList lists every file of a filetree as (directory, name, value).
//
// Nested mappings are directories. Any other value is a file. SelfKey
// entries are skipped at every level. Keys are visited in sorted order.
func NestedToList(prefix string, tree map[string]any) []Node {
	var out []Node
	for _, key := range sortedKeys(tree) {
		if key == SelfKey {
			continue
		}
		value := tree[key]
		if nested, ok := value.(map[string]any); ok {
			out = append(out, NestedToList(prefix+key+"/", nested)...)
			continue
		}
		out = append(out, Node{Path: strings.TrimSuffix(prefix, "/"), Name: key, Value: value})
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
