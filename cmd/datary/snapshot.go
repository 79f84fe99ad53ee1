// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/tabular"
)

// LoadSnapshot reads a local snapshot file.
//
// # Description
//
// The file is a JSON list of {"path", "filename", "data": {"kern", "meta"},
// "sha1"} objects. An entry without sha1 is fingerprinted with the SHA-1 of
// the JSON encoding of its data, the same way the backend stamps datasets.
//
// # Inputs
//
//   - path: Location of the snapshot file.
//
// # Outputs
//
//   - []commitdiff.Entry: One entry per file, in file order.
//   - error: Read or decode failure, or an entry without filename.
func LoadSnapshot(path string) ([]commitdiff.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes snapshot JSON and fills in missing fingerprints.
func ParseSnapshot(data []byte) ([]commitdiff.Entry, error) {
	var entries []commitdiff.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		if e.Filename == "" {
			return nil, fmt.Errorf("%w: snapshot entry %d at path %q has no filename",
				commitdiff.ErrMalformedEntry, i, e.Path)
		}
		if e.Fingerprint != "" {
			continue
		}
		var payload tabular.Payload
		if e.Data != nil {
			payload = *e.Data
		}
		sha, err := tabular.Fingerprint(payload)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", e.Key(), err)
		}
		e.Fingerprint = sha
	}
	return entries, nil
}
