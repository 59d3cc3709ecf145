// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package chunker splits raw text into overlapping windows with stable
// positional metadata. It performs no I/O and is fully deterministic:
// identical input and options always produce identical chunk
// boundaries and indices.
package chunker

import (
	"strings"

	docragerr "github.com/docrag/docrag/pkg/errors"
)

// DefaultOptions mirror the ingestion defaults used across the system.
var DefaultOptions = Options{Size: 700, Overlap: 100}

// Options control the sliding window.
type Options struct {
	// Size is the window length in runes.
	Size int
	// Overlap is how many runes consecutive windows share. The window
	// advances by Size - Overlap each step, so Overlap must be
	// strictly smaller than Size.
	Overlap int
}

// Validate checks the options for logical errors. Overlap >= Size would
// never advance the window and is rejected rather than looping.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return docragerr.Errorf(docragerr.CodeChunkerOptionsInvalid,
			"chunker: size must be positive, got %d", o.Size)
	}
	if o.Overlap < 0 {
		return docragerr.Errorf(docragerr.CodeChunkerOptionsInvalid,
			"chunker: overlap must not be negative, got %d", o.Overlap)
	}
	if o.Overlap >= o.Size {
		return docragerr.Errorf(docragerr.CodeChunkerOptionsInvalid,
			"chunker: overlap %d must be smaller than size %d", o.Overlap, o.Size)
	}
	return nil
}

// Chunk is one bounded, possibly overlapping window of a source document.
// Chunks are transient: only their embedding and payload survive ingestion.
type Chunk struct {
	Text   string
	Source string
	// Index is 0-based and contiguous per source.
	Index int
	// Total is the number of chunks produced for the source.
	Total int
	// Tags carry caller-supplied payload attributes (document type,
	// tenant, ...). They are copied verbatim onto every chunk.
	Tags map[string]string
}

// Split cuts text into overlapping windows of opts.Size runes advancing
// by opts.Size - opts.Overlap. The trailing partial window is kept when
// it is non-empty after trimming. Empty or whitespace-only input yields
// zero chunks and no error.
func Split(text, source string, opts Options, tags map[string]string) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := opts.Size - opts.Overlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + opts.Size
		if end > len(runes) {
			end = len(runes)
		}
		// Window text is kept verbatim so concatenating the
		// non-overlapping portions reconstructs the input. Interior
		// windows are never dropped, even when all whitespace; only a
		// whitespace-only trailing window is trimmed away.
		window := string(runes[start:end])
		if end == len(runes) && strings.TrimSpace(window) == "" {
			break
		}
		chunks = append(chunks, Chunk{
			Text:   window,
			Source: source,
			Index:  len(chunks),
			Tags:   tags,
		})
		if end == len(runes) {
			break
		}
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks, nil
}
