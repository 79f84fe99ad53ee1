// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datary

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRepoID is returned when an operation needs a repository id
	// and got none.
	ErrMissingRepoID = errors.New("datary: repository id is required")

	// ErrMissingInode is returned by DeleteInode for an empty inode.
	ErrMissingInode = errors.New("datary: inode is required")

	// ErrUnknownStrategy is returned for a nil or unrecognised modify strategy.
	ErrUnknownStrategy = errors.New("datary: unknown modify strategy")

	// ErrUnsupportedMethod is returned for HTTP methods other than GET, POST
	// and DELETE.
	ErrUnsupportedMethod = errors.New("datary: unsupported HTTP method")

	// ErrNoWorkdir is returned when a repository has no workdir to operate on.
	ErrNoWorkdir = errors.New("datary: repository has no workdir")

	// ErrDatasetNotFound is returned when the stored original of a dataset
	// cannot be retrieved.
	ErrDatasetNotFound = errors.New("datary: dataset not found")

	// ErrNotAuthenticated is returned when sign-in yields no token.
	ErrNotAuthenticated = errors.New("datary: not authenticated")
)

// RequestError describes a backend call that did not return 2xx, or never
// got a response.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("datary: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("datary: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, truncate(e.Body, 200))
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
