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
	"errors"
	"fmt"
)

// Sentinel errors for tabular operations.
var (
	// ErrNilPayload indicates UpdateElements was given no stored payload.
	ErrNilPayload = errors.New("stored payload is nil")

	// ErrNotTable indicates a value is not a row-major two-dimensional array.
	ErrNotTable = errors.New("value is not a table")

	// ErrEmptyTable indicates a header-aware operation needs row 0 but the
	// table has no rows.
	ErrEmptyTable = errors.New("table has no rows")

	// ErrEmptyRow indicates a row has no cells where a row label is needed.
	ErrEmptyRow = errors.New("table row is empty")

	// ErrShapeMismatch indicates one kern is a table while the other is a
	// mapping of named tables.
	ErrShapeMismatch = errors.New("kern shapes are not compatible")
)

// AxisError reports which named table of a payload failed to merge.
type AxisError struct {
	// Axis is the axis key, "" for a single-table payload.
	Axis string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AxisError) Error() string {
	if e.Axis == "" {
		return fmt.Sprintf("table: %v", e.Err)
	}
	return fmt.Sprintf("axis %q: %v", e.Axis, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AxisError) Unwrap() error {
	return e.Err
}
