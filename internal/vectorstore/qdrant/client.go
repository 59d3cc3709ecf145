// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package qdrant implements vectorstore.Store against the Qdrant REST
// API. It speaks plain JSON over net/http; no SDK involved.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	docragerr "github.com/docrag/docrag/pkg/errors"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an upstream error response is kept as
// diagnostic context.
const maxErrorBody = 2048

// Config holds connection settings for one Qdrant server.
type Config struct {
	URL     string // e.g. http://localhost:6333
	APIKey  string
	Timeout time.Duration // per-call bound; 0 uses the default
}

func (c Config) validate() error {
	if c.URL == "" {
		return docragerr.New(docragerr.CodeConfigValidateInvalidValue, "qdrant: url is required")
	}
	return nil
}

// client is a minimal REST client. Every call carries the configured
// per-request timeout so a stalled backend fails the request instead of
// hanging it.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	timeout time.Duration
}

func newClient(cfg Config) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// errNotFound marks a 404 from the backend. Callers decide whether a
// missing collection is fatal (stats) or expected (probe, delete).
var errNotFound = errors.New("qdrant: not found")

// do issues one JSON request and decodes the response into out (when
// non-nil). Backend failures come back typed: 404 as errNotFound,
// 401/403 as configuration errors, timeouts as retryable timeouts, and
// everything else as an upstream failure carrying status and raw body.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return docragerr.Wrap(err, docragerr.CodeServerInternalFailure, "encoding qdrant request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return docragerr.Wrap(err, docragerr.CodeServerInternalFailure, "building qdrant request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamTimeout,
				fmt.Sprintf("qdrant %s %s timed out", method, path))
		}
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure,
			fmt.Sprintf("qdrant %s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return errNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return docragerr.New(docragerr.CodeStoreUpstreamUnauthorized,
				fmt.Sprintf("qdrant %s %s rejected credentials", method, path),
				docragerr.FieldStatus(resp.StatusCode),
				docragerr.FieldBody(string(raw)))
		default:
			return docragerr.New(docragerr.CodeStoreUpstreamFailure,
				fmt.Sprintf("qdrant %s %s failed: %s", method, path, resp.Status),
				docragerr.FieldStatus(resp.StatusCode),
				docragerr.FieldBody(string(raw)))
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure,
				fmt.Sprintf("decoding qdrant %s %s response", method, path))
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
