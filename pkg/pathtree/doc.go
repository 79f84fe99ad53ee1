// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathtree navigates and mutates generic nested trees addressed by
// slash or dot separated paths.
//
// A tree is the shape produced by decoding JSON into an `any`: nested
// map[string]any and []any values with scalar leaves. Filetrees returned by
// the Datary backend, dataset kerns and dataset metadata all share this shape,
// so every higher layer (commit diffing, tabular merging, the SDK client)
// addresses them through this package.
//
// # Paths
//
// Paths are split on DefaultSeparator ("/" or "."). A segment made only of
// digits indexes into a sequence. Empty segments ("a//b") are skipped.
//
//	tree := map[string]any{"start": map[string]any{"day": 1}}
//	v, ok := pathtree.GetElement(tree, "start/day") // 1, true
//
// # Reserved keys
//
// SelfKey ("__self") holds a directory node's own fingerprint inside a
// filetree. Traversals that enumerate files (NestedToList) never treat it as
// a child.
//
// # Thread Safety
//
// Functions are pure except AddElement and SetElement, which mutate their
// target in place. Callers must not share a tree being mutated across
// goroutines without external synchronization.
package pathtree
