// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Compile-time interface check.
var _ vectorstore.Store = (*Store)(nil)

// collectionLocks serializes probe-then-create and recreate sequences
// per collection name across every handle in the process.
var collectionLocks = vectorstore.NewLockRegistry()

// Store manages one Qdrant collection. The readiness cache lives on the
// handle, guarded by mu; it is invalidated on recreate before the
// collection lock is released so concurrent callers re-probe instead of
// trusting a stale dimension.
type Store struct {
	client *client
	opts   vectorstore.Options

	mu    sync.Mutex
	ready bool
	dims  int
}

// New creates a Store for the configured collection. The collection
// itself is created lazily on first use.
func New(cfg Config, opts vectorstore.Options) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Distance == "" {
		opts.Distance = vectorstore.DistanceCosine
	}
	return &Store{client: newClient(cfg), opts: opts}, nil
}

type collectionInfo struct {
	Result struct {
		PointsCount int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection makes the collection usable for the given
// dimensions. It probes lazily, creates on absence, and on a dimension
// or distance mismatch either fails or, with auto-recreate enabled,
// drops and recreates the collection. A non-positive dimensions
// argument falls back to the configured Options.Dimensions, so the
// collection can be prepared before any batch has been written.
func (s *Store) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		dimensions = s.opts.Dimensions
	}
	if dimensions <= 0 {
		return docragerr.Errorf(docragerr.CodeStoreVectorInvalid,
			"qdrant: dimensions must be positive, got %d", dimensions)
	}

	lock := collectionLocks.For(s.opts.Collection)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	ready, cached := s.ready, s.dims
	s.mu.Unlock()

	if ready && cached == dimensions {
		return nil
	}

	recordedDistance := s.opts.Distance
	if !ready {
		info, err := s.probe(ctx)
		switch {
		case errors.Is(err, errNotFound):
			if err := s.create(ctx, dimensions); err != nil {
				return err
			}
			s.setReady(dimensions)
			return nil
		case err != nil:
			// Leave the handle un-ready; the next call re-probes.
			slog.Warn("probing qdrant collection failed",
				"collection", s.opts.Collection, "error", err)
			return err
		}
		cached = info.Result.Config.Params.Vectors.Size
		recordedDistance = vectorstore.Distance(info.Result.Config.Params.Vectors.Distance)
		// A handle only becomes ready when the recorded metric matches,
		// so the distance check cannot be skipped by the cache.
		if recordedDistance == s.opts.Distance {
			s.setReady(cached)
			if cached == dimensions {
				return nil
			}
		}
	}

	if !s.opts.AutoRecreate {
		if recordedDistance != s.opts.Distance {
			return docragerr.New(docragerr.CodeStoreDistanceMismatch,
				fmt.Sprintf("collection %q was created with %s distance, configured for %s",
					s.opts.Collection, recordedDistance, s.opts.Distance),
				docragerr.FieldCollection(s.opts.Collection),
				docragerr.Field("collection_distance", string(recordedDistance)),
				docragerr.Field("configured_distance", string(s.opts.Distance)))
		}
		return docragerr.New(docragerr.CodeStoreDimensionMismatch,
			fmt.Sprintf("collection %q has %d dimensions, batch has %d",
				s.opts.Collection, cached, dimensions),
			docragerr.FieldCollection(s.opts.Collection),
			docragerr.Field("collection_dimensions", cached),
			docragerr.Field("batch_dimensions", dimensions))
	}

	slog.Warn("recreating qdrant collection with a new schema; existing points are destroyed",
		"collection", s.opts.Collection,
		"old_dimensions", cached,
		"new_dimensions", dimensions,
		"old_distance", string(recordedDistance),
		"new_distance", string(s.opts.Distance))

	// Invalidate the cache before touching the backend so a failed
	// recreate forces a re-probe.
	s.mu.Lock()
	s.ready = false
	s.dims = 0
	s.mu.Unlock()

	if err := s.client.do(ctx, http.MethodDelete, s.collectionPath(), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	if err := s.create(ctx, dimensions); err != nil {
		return err
	}
	s.setReady(dimensions)
	return nil
}

func (s *Store) probe(ctx context.Context) (*collectionInfo, error) {
	var info collectionInfo
	if err := s.client.do(ctx, http.MethodGet, s.collectionPath(), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) create(ctx context.Context, dimensions int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": string(s.opts.Distance),
		},
	}
	err := s.client.do(ctx, http.MethodPut, s.collectionPath(), body, nil)
	if err == nil {
		return nil
	}
	// A concurrent first-writer may have won the create race in
	// another process; an existing collection with the right schema is
	// success.
	if status, ok := docragerr.FieldsOf(err)["upstream_status"].(int); ok && status == http.StatusConflict {
		info, perr := s.probe(ctx)
		if perr == nil && info.Result.Config.Params.Vectors.Size == dimensions {
			return nil
		}
	}
	return err
}

func (s *Store) setReady(dimensions int) {
	s.mu.Lock()
	s.ready = true
	s.dims = dimensions
	s.mu.Unlock()
}

// Upsert writes the batch by id, creating the collection with the
// batch's dimensions when needed.
func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	dims, err := vectorstore.ValidateBatch(points)
	if err != nil {
		return err
	}
	if dims == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, dims); err != nil {
		return err
	}

	wire := make([]map[string]any, len(points))
	for i, p := range points {
		wire[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": wire}
	return s.client.do(ctx, http.MethodPut, s.collectionPath()+"/points?wait=true", body, nil)
}

// Query returns the topK nearest neighbors ordered by descending
// similarity score, with payloads.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	if err := vectorstore.ValidateVector(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, docragerr.Errorf(docragerr.CodeStoreBatchInvalid, "qdrant: topK must be positive, got %d", topK)
	}
	if err := s.EnsureCollection(ctx, len(vector)); err != nil {
		return nil, err
	}

	compiled, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if compiled != nil {
		body["filter"] = compiled
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.client.do(ctx, http.MethodPost, s.collectionPath()+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.Result, len(resp.Result))
	for i, hit := range resp.Result {
		results[i] = vectorstore.Result{ID: hit.ID, Score: hit.Score, Payload: hit.Payload}
	}
	return results, nil
}

// DeleteByID removes one point. A missing collection is a logged no-op.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}
	err := s.client.do(ctx, http.MethodPost, s.collectionPath()+"/points/delete?wait=true", body, nil)
	if errors.Is(err, errNotFound) {
		slog.Info("delete skipped, qdrant collection does not exist",
			"collection", s.opts.Collection, "id", id)
		return nil
	}
	return err
}

// DeleteByFilter removes every matching point. A missing collection is
// a logged no-op.
func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) error {
	compiled, err := compileFilter(filter)
	if err != nil {
		return err
	}
	if compiled == nil {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "qdrant: delete-by-filter requires a filter")
	}

	body := map[string]any{"filter": compiled}
	err = s.client.do(ctx, http.MethodPost, s.collectionPath()+"/points/delete?wait=true", body, nil)
	if errors.Is(err, errNotFound) {
		slog.Info("filtered delete skipped, qdrant collection does not exist",
			"collection", s.opts.Collection)
		return nil
	}
	return err
}

// Stats reports the collection snapshot, or not-found if the collection
// was never created.
func (s *Store) Stats(ctx context.Context) (vectorstore.CollectionStats, error) {
	info, err := s.probe(ctx)
	if errors.Is(err, errNotFound) {
		return vectorstore.CollectionStats{}, docragerr.New(docragerr.CodeStoreCollectionNotFound,
			fmt.Sprintf("collection %q has not been created yet", s.opts.Collection),
			docragerr.FieldCollection(s.opts.Collection))
	}
	if err != nil {
		return vectorstore.CollectionStats{}, err
	}

	return vectorstore.CollectionStats{
		Name:       s.opts.Collection,
		Dimensions: info.Result.Config.Params.Vectors.Size,
		Distance:   vectorstore.Distance(info.Result.Config.Params.Vectors.Distance),
		Points:     info.Result.PointsCount,
	}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) collectionPath() string {
	return "/collections/" + s.opts.Collection
}
