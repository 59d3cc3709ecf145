// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	docragerr "github.com/docrag/docrag/pkg/errors"
	"github.com/docrag/docrag/pkg/health"
)

// RetryConfig bounds the exponential backoff applied to transient
// upstream failures.
type RetryConfig struct {
	MaxRetries      int           // additional attempts after the first; 0 disables retrying
	InitialInterval time.Duration // 0 uses 200ms
	MaxInterval     time.Duration // 0 uses 3s

	// Health, when set, records upstream success and failure for the
	// health endpoint.
	Health *health.Tracker
}

// WithRetry wraps a Store so writes, queries and deletes retry
// transient upstream failures (timeouts, transport errors, 5xx) with
// bounded exponential backoff. Validation, configuration and
// dimension-mismatch errors pass through untouched, as do not-found
// results. EnsureCollection and Stats are also covered since both hit
// the backend.
func WithRetry(inner Store, cfg RetryConfig) Store {
	if cfg.MaxRetries <= 0 && cfg.Health == nil {
		return inner
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 3 * time.Second
	}
	return &retryStore{inner: inner, cfg: cfg}
}

type retryStore struct {
	inner Store
	cfg   RetryConfig
}

func (s *retryStore) do(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.InitialInterval
	policy.MaxInterval = s.cfg.MaxInterval

	attempt := 0
	retryable := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !docragerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		attempt++
		if attempt > s.cfg.MaxRetries {
			return backoff.Permanent(err)
		}
		slog.Warn("retrying vector store operation",
			"op", op,
			"attempt", attempt,
			"error", err)
		return err
	}

	err := backoff.Retry(retryable, backoff.WithContext(policy, ctx))
	if s.cfg.Health != nil {
		// Only upstream trouble counts against availability; validation
		// and not-found outcomes say nothing about the backend.
		switch {
		case err == nil:
			s.cfg.Health.RecordSuccess()
		case docragerr.IsUpstreamFailure(err):
			s.cfg.Health.RecordFailure()
		}
	}
	return err
}

func (s *retryStore) EnsureCollection(ctx context.Context, dimensions int) error {
	return s.do(ctx, "ensure_collection", func() error {
		return s.inner.EnsureCollection(ctx, dimensions)
	})
}

func (s *retryStore) Upsert(ctx context.Context, points []Point) error {
	return s.do(ctx, "upsert", func() error {
		return s.inner.Upsert(ctx, points)
	})
}

func (s *retryStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Result, error) {
	var results []Result
	err := s.do(ctx, "query", func() error {
		var qerr error
		results, qerr = s.inner.Query(ctx, vector, topK, filter)
		return qerr
	})
	return results, err
}

func (s *retryStore) DeleteByID(ctx context.Context, id string) error {
	return s.do(ctx, "delete_by_id", func() error {
		return s.inner.DeleteByID(ctx, id)
	})
}

func (s *retryStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	return s.do(ctx, "delete_by_filter", func() error {
		return s.inner.DeleteByFilter(ctx, filter)
	})
}

func (s *retryStore) Stats(ctx context.Context) (CollectionStats, error) {
	var stats CollectionStats
	err := s.do(ctx, "stats", func() error {
		var serr error
		stats, serr = s.inner.Stats(ctx)
		return serr
	})
	return stats, err
}

func (s *retryStore) Close() error {
	return s.inner.Close()
}
