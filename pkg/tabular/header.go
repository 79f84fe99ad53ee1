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

import "github.com/AleutianAI/datary/pkg/pathtree"

// HeaderConfidenceThreshold is the minimum confidence for row 0 to count as
// a header row.
const HeaderConfidenceThreshold = 0.5

// HeaderConfidence measures how much of knownHeaders reappears in candidate.
//
// Description:
//
//	Sums, over every cell of candidate, how many times that cell occurs in
//	knownHeaders, and divides by len(knownHeaders). Cells compare by
//	pathtree.ValueKey so numeric labels decoded from JSON match.
//
// Inputs:
//
//	knownHeaders - Header labels previously recorded in metadata.
//	candidate - The row being classified, usually row 0 of the stored table.
//
// Outputs:
//
//	float64 - Confidence. 0 when knownHeaders is empty.
func HeaderConfidence(knownHeaders, candidate []any) float64 {
	if len(knownHeaders) == 0 {
		return 0
	}
	counts := make(map[string]int, len(knownHeaders))
	for _, h := range knownHeaders {
		counts[pathtree.ValueKey(h)]++
	}
	hits := 0
	for _, cell := range candidate {
		hits += counts[pathtree.ValueKey(cell)]
	}
	return float64(hits) / float64(len(knownHeaders))
}

// IsHeaderRow reports whether candidate should be treated as a header row.
//
// It is true when HeaderConfidence reaches HeaderConfidenceThreshold. With no
// known headers a row is never a header.
//
//	IsHeaderRow(nil, []any{"A"})                           // false
//	IsHeaderRow([]any{"A", "B"}, []any{"A", "B"})          // true
//	IsHeaderRow([]any{"A", "B", "C", "D"}, []any{"X", "Y"}) // false
func IsHeaderRow(knownHeaders, candidate []any) bool {
	if len(knownHeaders) == 0 {
		return false
	}
	return HeaderConfidence(knownHeaders, candidate) >= HeaderConfidenceThreshold
}

// MergeHeaders is the order-preserving union of primary and secondary.
//
// All of primary comes first in its own order (duplicates inside primary
// collapse to their first occurrence), followed by the labels of secondary
// not already present.
func MergeHeaders(primary, secondary []any) []any {
	combined := make([]any, 0, len(primary)+len(secondary))
	combined = append(combined, primary...)
	combined = append(combined, secondary...)
	return pathtree.RemoveDuplicates(combined, false)
}
