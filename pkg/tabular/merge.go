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

	"github.com/AleutianAI/datary/pkg/pathtree"
)

// MissingCell fills columns a row did not have before a header merge.
const MissingCell = ""

// ReconcileRows merges update into original.
//
// Description:
//
//	Without header rows the tables are concatenated row-wise.
//
//	With header rows, row 0 of each table is its header. The output starts
//	with MergeHeaders(original[0], update[0]). Every data row of original,
//	then every data row of update, is re-projected onto the merged column
//	order using its own table's header. Columns it lacks are filled with
//	MissingCell. Cells past the end of its header are dropped.
//
// Inputs:
//
//	original - Stored rows.
//	update - Incoming rows.
//	hasHeader - Whether row 0 of both tables is a header row.
//
// Outputs:
//
//	Table - A new table. Inputs are not modified.
//	error - ErrEmptyTable if hasHeader is set and either table has no rows.
//
// Examples:
//
//	ReconcileRows(
//	    Table{{"a", "b"}, {1, 2}},
//	    Table{{"b", "c"}, {3, 4}},
//	    true,
//	)
//	// {{"a","b","c"}, {1,2,""}, {"",3,4}}
func ReconcileRows(original, update Table, hasHeader bool) (Table, error) {
	if !hasHeader {
		out := make(Table, 0, len(original)+len(update))
		out = append(out, copyRows(original)...)
		out = append(out, copyRows(update)...)
		return out, nil
	}

	if len(original) == 0 {
		return nil, fmt.Errorf("original: %w", ErrEmptyTable)
	}
	if len(update) == 0 {
		return nil, fmt.Errorf("update: %w", ErrEmptyTable)
	}

	merged := MergeHeaders(original[0], update[0])
	order := make([]string, len(merged))
	for i, h := range merged {
		order[i] = pathtree.ValueKey(h)
	}

	out := make(Table, 0, len(original)+len(update)-1)
	out = append(out, merged)
	for _, source := range []Table{original, update} {
		header := source[0]
		for _, row := range source[1:] {
			out = append(out, project(header, row, order))
		}
	}
	return out, nil
}

// project keys row by its own header and reorders it onto order.
func project(header, row []any, order []string) []any {
	byColumn := make(map[string]any, len(header))
	for i := 0; i < len(header) && i < len(row); i++ {
		byColumn[pathtree.ValueKey(header[i])] = row[i]
	}
	return pathtree.OrderedValues(byColumn, order, MissingCell)
}

func copyRows(t Table) Table {
	out := make(Table, len(t))
	for i, row := range t {
		cp := make([]any, len(row))
		copy(cp, row)
		out[i] = cp
	}
	return out
}

// RecomputeMetadata derives axis headers and dimension for one table.
//
// Description:
//
//	Locates the table at axis inside kern (kern itself for SingleTableAxis)
//	and returns a copy of meta where:
//	  - axisHeaders[axis] is the first cell of every row,
//	  - axisHeaders[HeaderKey(axis)] is row 0 when hasHeader is set,
//	    otherwise ["Header1", ..., "HeaderN"] for a row width of N,
//	  - dimension[axis] is [rows, columns].
//	Entries for other axes are preserved.
//
// Inputs:
//
//	kern - Table or mapping of named tables.
//	meta - Metadata to start from. Not modified.
//	axis - Axis key of the table to describe.
//	hasHeader - Whether row 0 is a header row.
//
// Outputs:
//
//	Metadata - Updated copy.
//	error - If axis is missing, is not a table, is empty, or has an empty row.
func RecomputeMetadata(kern any, meta Metadata, axis string, hasHeader bool) (Metadata, error) {
	raw := kern
	if axis != SingleTableAxis {
		v, ok := pathtree.GetElementBy(kern, axis, pathtree.SlashSeparator)
		if !ok {
			return nil, fmt.Errorf("axis %q not found in kern", axis)
		}
		raw = v
	}

	rows, err := AsTable(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	labels := make([]any, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			return nil, fmt.Errorf("%w: row %d", ErrEmptyRow, i)
		}
		labels[i] = row[0]
	}

	var columns []any
	if hasHeader {
		columns = append([]any(nil), rows[0]...)
	} else {
		columns = make([]any, len(rows[0]))
		for i := range columns {
			columns[i] = fmt.Sprintf("Header%d", i+1)
		}
	}

	out := meta.Clone()
	axisHeaders := out.AxisHeaders()
	if axisHeaders == nil {
		axisHeaders = map[string]any{}
	}
	axisHeaders[axis] = labels
	axisHeaders[HeaderKey(axis)] = columns
	out[MetaAxisHeaders] = axisHeaders

	dimensions, _ := out[MetaDimension].(map[string]any)
	if dimensions == nil {
		dimensions = map[string]any{}
	}
	dim := pathtree.Dimension(rows.Tree())
	dimensions[axis] = []any{dim[0], dim[1]}
	out[MetaDimension] = dimensions

	return out, nil
}

// ReconcileMetadata is RecomputeMetadata with a best-effort contract: on any
// failure it returns meta unchanged.
func ReconcileMetadata(kern any, meta Metadata, axis string, hasHeader bool) Metadata {
	updated, err := RecomputeMetadata(kern, meta, axis, hasHeader)
	if err != nil {
		return meta
	}
	return updated
}
