// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tabular holds dataset payloads and the engine that merges them.
//
// A Payload is a kern (the tabular body) plus its metadata. The kern is
// either a single row-major table or a mapping from axis key to table.
// When a dataset is updated with the append strategy, UpdateElements
// reconciles the stored and incoming kerns column by column and recomputes
// the derived metadata (axis headers and dimensions).
package tabular

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/AleutianAI/datary/pkg/pathtree"
)

// Metadata keys understood by the merge engine.
const (
	MetaAxisHeaders = "axisHeaders"
	MetaDimension   = "dimension"
	MetaSize        = "size"
	MetaSHA1        = "sha1"
)

// SingleTableAxis is the axis key of a payload whose kern is one table.
const SingleTableAxis = ""

// =============================================================================
// Payload
// =============================================================================

// Payload is the content of one dataset: its kern and metadata.
//
// The backend returns stored datasets with "__kern"/"__meta" keys while
// write requests use "kern"/"meta". Payload decodes either form and always
// encodes the latter.
type Payload struct {
	Kern any      `json:"kern"`
	Meta Metadata `json:"meta"`
}

// UnmarshalJSON accepts both the write form and the stored form.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kern       any      `json:"kern"`
		Meta       Metadata `json:"meta"`
		StoredKern any      `json:"__kern"`
		StoredMeta Metadata `json:"__meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Kern, p.Meta = raw.Kern, raw.Meta
	if p.Kern == nil {
		p.Kern = raw.StoredKern
	}
	if p.Meta == nil {
		p.Meta = raw.StoredMeta
	}
	return nil
}

// Fingerprint is the hex SHA-1 of the JSON encoding of p. Map keys are
// encoded sorted, so equal payloads always share a fingerprint. Missing
// metadata encodes as an empty object.
func Fingerprint(p Payload) (string, error) {
	if p.Meta == nil {
		p.Meta = Metadata{}
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// IsZero reports whether the payload carries neither kern nor metadata.
func (p Payload) IsZero() bool {
	return p.Kern == nil && len(p.Meta) == 0
}

// =============================================================================
// Metadata
// =============================================================================

// Metadata is the free-form metadata mapping of a dataset.
//
// Only axisHeaders, dimension, size and sha1 have meaning here; every other
// key is carried through untouched.
type Metadata map[string]any

// Clone deep-copies the metadata so recomputation never aliases the original.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return Metadata(pathtree.DeepCopy(map[string]any(m)).(map[string]any))
}

// AxisHeaders returns the axisHeaders mapping, or nil.
func (m Metadata) AxisHeaders() map[string]any {
	headers, _ := m[MetaAxisHeaders].(map[string]any)
	return headers
}

// AxisHeader returns the header labels recorded under key.
func (m Metadata) AxisHeader(key string) []any {
	return pathtree.ForceListOrNil(m.AxisHeaders()[key])
}

// Dimension returns [rows, columns] recorded for axis.
func (m Metadata) Dimension(axis string) ([2]int, bool) {
	dims, _ := m[MetaDimension].(map[string]any)
	raw := pathtree.ForceListOrNil(dims[axis])
	if len(raw) != 2 {
		return [2]int{}, false
	}
	rows, okR := toInt(raw[0])
	cols, okC := toInt(raw[1])
	return [2]int{rows, cols}, okR && okC
}

// Size returns the declared payload size in bytes, or 0.
func (m Metadata) Size() int64 {
	n, _ := toInt(m[MetaSize])
	return int64(n)
}

// SHA1 returns the dataset fingerprint recorded by the backend.
func (m Metadata) SHA1() string {
	s, _ := m[MetaSHA1].(string)
	return s
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// HeaderKey returns the axisHeaders key holding the column headers of axis.
//
//	HeaderKey("")       // "*"
//	HeaderKey("sheet1") // "sheet1/*"
func HeaderKey(axis string) string {
	if axis == SingleTableAxis {
		return "*"
	}
	return axis + "/*"
}

// =============================================================================
// Table
// =============================================================================

// Table is a row-major two-dimensional array.
type Table [][]any

// AsTable interprets v as a table.
//
// Accepts []any of sequences (the JSON-decoded form) and typed slices of
// slices. Any element that is not itself a sequence yields ErrNotTable.
func AsTable(v any) (Table, error) {
	switch typed := v.(type) {
	case Table:
		return typed, nil
	case [][]any:
		return Table(typed), nil
	}

	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: got %T", ErrNotTable, v)
	}
	table := make(Table, rv.Len())
	for i := range table {
		row := pathtree.ForceListOrNil(rv.Index(i).Interface())
		if row == nil {
			return nil, fmt.Errorf("%w: row %d is %T", ErrNotTable, i, rv.Index(i).Interface())
		}
		table[i] = row
	}
	return table, nil
}

// Tree converts the table back to the []any shape stored in kerns.
func (t Table) Tree() []any {
	out := make([]any, len(t))
	for i, row := range t {
		cp := make([]any, len(row))
		copy(cp, row)
		out[i] = cp
	}
	return out
}

// isTable reports whether v can be read as a table.
func isTable(v any) bool {
	_, err := AsTable(v)
	return err == nil
}
