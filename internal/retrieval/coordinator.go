// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package retrieval sequences the chunker, the embedding gateway and
// the vector store for both ingestion and query paths, and applies the
// similarity-score business rule.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/docrag/docrag/internal/chunker"
	"github.com/docrag/docrag/internal/embed"
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Options tune the coordinator. Score threshold and over-fetch factor
// are explicit here rather than buried in call sites.
type Options struct {
	ChunkSize    int
	ChunkOverlap int

	// MinScore is the similarity floor a query result must meet.
	MinScore float64

	// Overfetch multiplies topK on the store query to compensate for
	// post-filtering. 0 uses 2.
	Overfetch int

	// EmbedBatch bounds how many chunk texts go into one embedding
	// call. 0 uses 32.
	EmbedBatch int

	// MaxInFlight caps concurrent embedding calls per ingestion job.
	// 0 uses 4.
	MaxInFlight int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunker.DefaultOptions.Size
		o.ChunkOverlap = chunker.DefaultOptions.Overlap
	}
	if o.Overfetch <= 0 {
		o.Overfetch = 2
	}
	if o.EmbedBatch <= 0 {
		o.EmbedBatch = 32
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 4
	}
	return o
}

// Document is one ingestion input.
type Document struct {
	Source string
	Text   string
	Tags   map[string]string
}

// IngestResult reports what one document produced.
type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// ItemOutcome attributes a multi-document ingestion result to its
// source so the caller can report per-item success or failure.
type ItemOutcome struct {
	Source string
	Chunks int
	Err    error
}

// Match is one ranked retrieval hit.
type Match struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
}

// Coordinator owns no cross-request state; the store handle it holds
// carries its own readiness cache.
type Coordinator struct {
	embedder embed.Embedder
	store    vectorstore.Store
	opts     Options
}

// New creates a Coordinator over the given collaborators.
func New(embedder embed.Embedder, store vectorstore.Store, opts Options) *Coordinator {
	return &Coordinator{embedder: embedder, store: store, opts: opts.withDefaults()}
}

// IngestDocument chunks, embeds and upserts one document as an
// all-or-nothing unit. Point ids are deterministic, so re-ingesting
// the same source overwrites its previous points.
func (c *Coordinator) IngestDocument(ctx context.Context, doc Document) (IngestResult, error) {
	if strings.TrimSpace(doc.Source) == "" {
		return IngestResult{}, docragerr.New(docragerr.CodeRetrievalInputInvalid, "document source must not be empty")
	}

	chunks, err := chunker.Split(doc.Text, doc.Source, chunker.Options{
		Size:    c.opts.ChunkSize,
		Overlap: c.opts.ChunkOverlap,
	}, doc.Tags)
	if err != nil {
		return IngestResult{}, err
	}
	if len(chunks) == 0 {
		slog.Info("document produced no chunks", "source", doc.Source)
		return IngestResult{Source: doc.Source}, nil
	}

	vectors, err := c.embedChunks(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, ch := range chunks {
		payload := map[string]any{
			vectorstore.PayloadText:   ch.Text,
			vectorstore.PayloadSource: ch.Source,
			vectorstore.PayloadChunk:  ch.Index,
			vectorstore.PayloadTotal:  ch.Total,
			vectorstore.PayloadModel:  c.embedder.Model(),
		}
		for k, v := range ch.Tags {
			payload[k] = v
		}
		points[i] = vectorstore.Point{
			ID:      PointID(ch.Source, ch.Index),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := c.store.Upsert(ctx, points); err != nil {
		return IngestResult{}, err
	}

	slog.Info("document ingested", "source", doc.Source, "chunks", len(chunks))
	return IngestResult{Source: doc.Source, Chunks: len(chunks)}, nil
}

// IngestAll ingests documents independently: one failing document does
// not abort the rest. The outcome slice is index-aligned with docs.
func (c *Coordinator) IngestAll(ctx context.Context, docs []Document) []ItemOutcome {
	outcomes := make([]ItemOutcome, len(docs))
	for i, doc := range docs {
		res, err := c.IngestDocument(ctx, doc)
		outcomes[i] = ItemOutcome{Source: doc.Source, Chunks: res.Chunks, Err: err}
		if err != nil {
			slog.Warn("document ingestion failed", "source", doc.Source, "error", err)
		}
	}
	return outcomes
}

// embedChunks embeds chunk texts in bounded batches with at most
// MaxInFlight concurrent embedding calls. Results keep chunk order.
func (c *Coordinator) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	type batch struct {
		start int
		texts []string
	}

	var batches []batch
	for start := 0; start < len(chunks); start += c.opts.EmbedBatch {
		end := start + c.opts.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i, ch := range chunks[start:end] {
			texts[i] = ch.Text
		}
		batches = append(batches, batch{start: start, texts: texts})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(chunks))
	sem := make(chan struct{}, c.opts.MaxInFlight)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for _, b := range batches {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			defer func() { <-sem }()

			vecs, err := c.embedder.Embed(ctx, b.texts)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			if len(vecs) != len(b.texts) {
				errOnce.Do(func() {
					firstErr = docragerr.Errorf(docragerr.CodeEmbedUpstreamFailure,
						"embedder returned %d vectors for %d texts", len(vecs), len(b.texts))
					cancel()
				})
				return
			}
			copy(vectors[b.start:], vecs)
		}(b)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeEmbedUpstreamFailure, "embedding cancelled")
	}
	return vectors, nil
}

// Query embeds the question once, over-fetches from the store, drops
// results below MinScore and truncates to topK. Zero survivors is an
// empty result, not an error, so the caller can answer "no relevant
// content" instead of guessing.
func (c *Coordinator) Query(ctx context.Context, question string, topK int, filter vectorstore.Filter) ([]Match, error) {
	if strings.TrimSpace(question) == "" {
		return nil, docragerr.New(docragerr.CodeRetrievalInputInvalid, "question must not be empty")
	}
	if topK <= 0 {
		return nil, docragerr.Errorf(docragerr.CodeRetrievalInputInvalid, "topK must be positive, got %d", topK)
	}

	vecs, err := c.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, docragerr.Errorf(docragerr.CodeEmbedUpstreamFailure,
			"embedder returned %d vectors for one question", len(vecs))
	}

	hits, err := c.store.Query(ctx, vecs[0], topK*c.opts.Overfetch, filter)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, topK)
	for _, hit := range hits {
		if hit.Score < c.opts.MinScore {
			continue
		}
		matches = append(matches, toMatch(hit))
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// DeleteSource removes every point ingested from the given source.
func (c *Coordinator) DeleteSource(ctx context.Context, source string) error {
	if strings.TrimSpace(source) == "" {
		return docragerr.New(docragerr.CodeRetrievalInputInvalid, "source must not be empty")
	}
	return c.store.DeleteByFilter(ctx, vectorstore.BySource(source))
}

// Stats surfaces the collection snapshot for status reporting.
func (c *Coordinator) Stats(ctx context.Context) (vectorstore.CollectionStats, error) {
	return c.store.Stats(ctx)
}

func toMatch(hit vectorstore.Result) Match {
	m := Match{ID: hit.ID, Score: hit.Score}
	if v, ok := hit.Payload[vectorstore.PayloadText].(string); ok {
		m.Text = v
	}
	if v, ok := hit.Payload[vectorstore.PayloadSource].(string); ok {
		m.Source = v
	}
	switch v := hit.Payload[vectorstore.PayloadChunk].(type) {
	case float64:
		m.ChunkIndex = int(v)
	case int:
		m.ChunkIndex = v
	case int64:
		m.ChunkIndex = int(v)
	}
	return m
}
