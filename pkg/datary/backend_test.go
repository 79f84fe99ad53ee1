// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datary

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordedRequest is what the fake backend saw.
type recordedRequest struct {
	Method      string
	Path        string
	Query       url.Values
	Form        url.Values
	ContentType string
	Auth        string
	RequestID   string
	Blob        []byte
}

// fakeBackend serves canned JSON per "METHOD /path" and records requests.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	routes    map[string]func(w http.ResponseWriter, r *http.Request)
	requests  []recordedRequest
	logOutput bytes.Buffer
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t, routes: map[string]func(http.ResponseWriter, *http.Request){}}
	fb.server = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.Query(),
		ContentType: r.Header.Get("Content-Type"),
		Auth:        r.Header.Get("Authorization"),
		RequestID:   r.Header.Get(RequestIDHeader),
	}
	if r.Method == http.MethodPost {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			rec.Form = r.MultipartForm.Value
			if files := r.MultipartForm.File["blob"]; len(files) == 1 {
				f, _ := files[0].Open()
				rec.Blob, _ = io.ReadAll(f)
				f.Close()
			}
		} else {
			_ = r.ParseForm()
			rec.Form = r.PostForm
		}
	}

	fb.mu.Lock()
	fb.requests = append(fb.requests, rec)
	handler, ok := fb.routes[r.Method+" "+r.URL.Path]
	fb.mu.Unlock()

	if !ok {
		http.Error(w, "no route", http.StatusNotFound)
		return
	}
	handler(w, r)
}

// handle registers a handler for "METHOD /path".
func (fb *fakeBackend) handle(route string, h func(w http.ResponseWriter, r *http.Request)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routes[route] = h
}

// json registers a route answering with body encoded as JSON.
func (fb *fakeBackend) json(route string, body any) {
	fb.handle(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}

// ok registers a route answering 200 with an empty body.
func (fb *fakeBackend) ok(route string) {
	fb.handle(route, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// recorded returns the requests matching method and path.
func (fb *fakeBackend) recorded(method, path string) []recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []recordedRequest
	for _, r := range fb.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// client returns a Client pointed at the fake backend.
func (fb *fakeBackend) client(token string) *Client {
	fb.t.Helper()
	c, err := New(Config{
		BaseURL:    fb.server.URL,
		Token:      token,
		HTTPClient: fb.server.Client(),
		Logger:     slog.New(slog.NewTextHandler(&fb.logOutput, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(fb.t, err)
	return c
}

// logs returns what the client logged so far.
func (fb *fakeBackend) logs() string {
	return fb.logOutput.String()
}
