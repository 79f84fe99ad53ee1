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
	"errors"
	"fmt"
)

// Sentinel errors for tree mutation.
var (
	// ErrNilTarget indicates a mutation was requested on a nil tree.
	ErrNilTarget = errors.New("target tree is nil")

	// ErrNotNavigable indicates a non-terminal path segment names an
	// existing value that is not a mapping.
	ErrNotNavigable = errors.New("path segment is not a mapping")

	// ErrLeafOccupied indicates a leaf was to be stored where a mapping
	// already lives.
	ErrLeafOccupied = errors.New("path already holds a mapping")
)

// PathError records which segment of a path blocked navigation.
type PathError struct {
	// Path is the full path that was requested.
	Path string

	// Segment is the segment whose existing value could not be descended into.
	Segment string

	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("path %q at segment %q: %v", e.Path, e.Segment, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PathError) Unwrap() error {
	return e.Err
}
