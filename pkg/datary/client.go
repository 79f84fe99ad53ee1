// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datary is a client for the Datary data-repository backend.
//
// A Client holds one authenticated session. Its methods fall in three groups:
//
//   - Fetches (filetrees, changes, metadata, originals, repositories) return
//     an empty value and write a log record when the backend call fails.
//   - Writes (AddFile, ModifyRequest, DeleteFile, Commit, ...) return an
//     error, usually a *RequestError.
//   - Orchestration (AddCommit, ModifyFile, CleanRepo) drives a whole sync
//     and keeps going past individual failures.
//
// Missing identifiers and unknown strategies are returned as errors
// immediately.
//
// # Thread Safety
//
// Client is not safe for concurrent use. The session token is mutable; use
// one Client per session.
package datary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/datary/pkg/telemetry"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultBaseURL is the public Datary API.
	DefaultBaseURL = "http://api.datary.io/"

	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 60 * time.Second

	// LargePayloadSize is the meta.size from which AddFile uploads the
	// payload as a multipart blob.
	LargePayloadSize = 12_000_000

	// TokenHeader carries the session token on sign-in responses.
	TokenHeader = "X-Set-Token"

	// RequestIDHeader correlates client logs with backend logs.
	RequestIDHeader = "X-Request-ID"

	tracerName = "github.com/AleutianAI/datary/pkg/datary"
)

// =============================================================================
// Client
// =============================================================================

// Config configures a Client. Only BaseURL has a meaningful default; every
// other zero value disables the feature it controls.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// Token is an existing session token. Empty means anonymous until SignIn.
	Token string

	// HTTPClient overrides the transport. Defaults to an otelhttp-instrumented
	// client with DefaultTimeout.
	HTTPClient *http.Client

	// Logger receives every degraded result. Defaults to slog.Default().
	Logger *slog.Logger

	// RateLimit caps requests per second. 0 is unlimited.
	RateLimit float64

	// Metrics records request and sync instruments. Nil records nothing.
	Metrics *telemetry.ClientMetrics
}

// Client is one session against a Datary backend.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *telemetry.ClientMetrics
}

// New creates a Client.
//
// Description:
//
//	Normalises BaseURL to end in "/" so endpoint paths resolve below it.
//	No request is made; call SignIn or pass Config.Token to authenticate.
//
// Inputs:
//
//	cfg - Client configuration.
//
// Outputs:
//
//	*Client - Ready to use.
//	error - Non-nil if BaseURL is not an absolute URL.
//
// Examples:
//
//	client, err := datary.New(datary.Config{Token: os.Getenv("DATARY_TOKEN")})
//	if err != nil {
//	    return err
//	}
//	tree := client.WorkdirFiletree(ctx, wdir)
func New(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    httpClient,
		logger:  logger.With("component", "datary"),
		limiter: limiter,
		metrics: cfg.Metrics,
	}, nil
}

// Token returns the current session token.
func (c *Client) Token() string {
	return c.token
}

// SetToken replaces the session token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// =============================================================================
// Request layer
// =============================================================================

// request describes one backend call.
type request struct {
	// op names the call in spans, metrics and logs.
	op string

	method   string
	endpoint string
	query    url.Values

	// form is sent urlencoded unless blob is set.
	form url.Values

	// blob switches the body to multipart with the payload as a "blob" part.
	blob *blobPart
}

type blobPart struct {
	filename string
	content  []byte
}

// response is a successful backend answer.
type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs req and returns the response when the status is 2xx.
//
// Every non-2xx status and transport failure is returned as *RequestError.
// Methods other than GET, POST and DELETE return ErrUnsupportedMethod
// without touching the network.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	switch req.method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.method)
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "datary."+req.op)
	defer span.End()

	target := c.resolve(req.endpoint, req.query)
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("http.url", target),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			telemetry.RecordError(span, err)
			return nil, &RequestError{Method: req.method, URL: target, Err: err}
		}
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &RequestError{Method: req.method, URL: target, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &RequestError{Method: req.method, URL: target, Err: err}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordRequest(ctx, req.method, req.op, 0, time.Since(start))
		telemetry.RecordError(span, err)
		return nil, &RequestError{Method: req.method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	c.metrics.RecordRequest(ctx, req.method, req.op, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &RequestError{Method: req.method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{Method: req.method, URL: target, StatusCode: resp.StatusCode, Body: string(payload)}
		telemetry.RecordError(span, reqErr)
		return nil, reqErr
	}

	c.logger.Debug("request done",
		"op", req.op,
		"method", req.method,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", time.Since(start))
	telemetry.SetSpanOK(span)
	return &response{status: resp.StatusCode, header: resp.Header, body: payload}, nil
}

// fetchJSON performs a GET and decodes the body into out. Failures are
// logged and reported as false; out is left untouched.
func (c *Client) fetchJSON(ctx context.Context, op, endpoint string, query url.Values, out any) bool {
	resp, err := c.send(ctx, request{op: op, method: http.MethodGet, endpoint: endpoint, query: query})
	if err != nil {
		c.logger.Error("datary request failed", "op", op, "error", err)
		return false
	}
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return false
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		c.logger.Error("decode datary response", "op", op, "error", err)
		return false
	}
	return true
}

// resolve joins endpoint and query onto the base URL.
func (c *Client) resolve(endpoint string, query url.Values) string {
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		ref = &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func encodeBody(req request) (io.Reader, string, error) {
	if req.blob != nil {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("blob", req.blob.filename)
		if err != nil {
			return nil, "", fmt.Errorf("create blob part: %w", err)
		}
		if _, err := part.Write(req.blob.content); err != nil {
			return nil, "", fmt.Errorf("write blob part: %w", err)
		}
		for _, key := range slices.Sorted(maps.Keys(req.form)) {
			for _, v := range req.form[key] {
				if err := w.WriteField(key, v); err != nil {
					return nil, "", fmt.Errorf("write field %s: %w", key, err)
				}
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	}
	if req.form != nil {
		return strings.NewReader(req.form.Encode()), "application/x-www-form-urlencoded", nil
	}
	return nil, "", nil
}

// segment escapes one path segment of an endpoint.
func segment(s string) string {
	return url.PathEscape(s)
}
