// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package vectorstore mediates all access to one named collection in a
// vector database, shielding callers from backend wire formats. The
// Store interface has one concrete implementation per backend, selected
// at construction time through the factory registry.
package vectorstore

import "context"

// Well-known payload keys written by the retrieval layer and understood
// by filtered deletes.
const (
	PayloadText   = "text"
	PayloadSource = "source"
	PayloadChunk  = "chunk_index"
	PayloadTotal  = "total_chunks"
	PayloadModel  = "embedding_model"
)

// Store owns the lifecycle of one named collection: lazy creation,
// dimensionality enforcement, upsert, similarity query, deletes
// and stats.
type Store interface {
	// EnsureCollection is idempotent. An unknown collection is probed
	// and created with the given dimensions if absent. A collection
	// that exists with different dimensions is a dimension-mismatch
	// error unless the store was configured to auto-recreate, in which
	// case it is dropped and recreated (destructive, logged).
	EnsureCollection(ctx context.Context, dimensions int) error

	// Upsert writes points by id. Empty batches are a silent no-op;
	// dimension-heterogeneous batches and non-finite values are
	// rejected before any network call. The batch is all-or-nothing
	// from the caller's perspective.
	Upsert(ctx context.Context, points []Point) error

	// Query returns at most topK nearest neighbors ordered by
	// descending similarity, with payloads. A nil filter matches
	// everything. Results are not thresholded by score here.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Result, error)

	// DeleteByID removes one point. A missing collection or point is a
	// logged no-op, not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByFilter removes every point matching the filter. A
	// missing collection is a logged no-op.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// Stats reports the collection snapshot. A collection that was
	// never created yields a not-found error.
	Stats(ctx context.Context) (CollectionStats, error)

	Close() error
}
