// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package embed defines the embedding gateway contract. The retrieval
// core depends only on this interface; concrete providers live in
// subpackages.
package embed

import "context"

// Embedder turns text into fixed-length vectors. Implementations are
// synchronous, fallible and rate-limited; callers batch their inputs
// and bound concurrency.
type Embedder interface {
	// Embed returns one vector per input text, in input order. Every
	// vector has Dimensions() finite float32 entries.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector length produced by the model.
	Dimensions() int

	// Model reports the model identifier, recorded in point payloads.
	Model() string
}
