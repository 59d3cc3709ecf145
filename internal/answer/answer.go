// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package answer defines the answer-synthesis contract: turning a
// question plus ranked chunks into natural-language text. The retrieval
// core treats it as an external collaborator.
package answer

import (
	"context"

	"github.com/docrag/docrag/internal/retrieval"
)

// Synthesizer produces a grounded answer from ranked matches. An empty
// match slice must yield an honest "no relevant content" answer rather
// than an invented one.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, matches []retrieval.Match) (string, error)
}
