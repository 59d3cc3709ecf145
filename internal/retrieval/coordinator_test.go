// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package retrieval_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// stubEmbedder returns a fixed-dimension vector per text, derived from
// the text length so distinct texts embed differently.
type stubEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, texts)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Model() string   { return "stub-embed-v1" }

// memStore records upserts and serves scripted query hits.
type memStore struct {
	mu       sync.Mutex
	points   map[string]vectorstore.Point
	hits     []vectorstore.Result
	gotTopK  int
	filters  []vectorstore.Filter
	queryErr error
}

func newMemStore() *memStore {
	return &memStore{points: map[string]vectorstore.Point{}}
}

func (m *memStore) EnsureCollection(context.Context, int) error { return nil }

func (m *memStore) Upsert(_ context.Context, points []vectorstore.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *memStore) Query(_ context.Context, _ []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.gotTopK = topK
	m.filters = append(m.filters, filter)
	if len(m.hits) > topK {
		return m.hits[:topK], nil
	}
	return m.hits, nil
}

func (m *memStore) DeleteByID(context.Context, string) error { return nil }

func (m *memStore) DeleteByFilter(_ context.Context, filter vectorstore.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	eq, ok := filter.(vectorstore.Equals)
	if !ok {
		return nil
	}
	for id, p := range m.points {
		if p.Payload[vectorstore.PayloadSource] == eq.Value {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memStore) Stats(context.Context) (vectorstore.CollectionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return vectorstore.CollectionStats{Name: "docs", Points: int64(len(m.points))}, nil
}

func (m *memStore) Close() error { return nil }

func hit(id string, score float64, source string, chunk int) vectorstore.Result {
	return vectorstore.Result{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			vectorstore.PayloadText:   "text " + id,
			vectorstore.PayloadSource: source,
			vectorstore.PayloadChunk:  float64(chunk),
		},
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := retrieval.PointID("doc.md", 0)
	b := retrieval.PointID("doc.md", 0)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, retrieval.PointID("doc.md", 1))
	assert.NotEqual(t, a, retrieval.PointID("other.md", 0))

	// UUID shape, for backends that reject arbitrary id strings.
	assert.Len(t, a, 36)
	assert.Equal(t, byte('-'), a[8])
}

func TestPointID_SeparatorAmbiguity(t *testing.T) {
	// "a" chunk 11 must not collide with "a1" chunk 1.
	assert.NotEqual(t, retrieval.PointID("a", 11), retrieval.PointID("a1", 1))
}

func TestIngestDocument(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{ChunkSize: 10, ChunkOverlap: 2})

	text := strings.Repeat("abcdefgh ", 4) // 36 runes -> multiple chunks
	res, err := coord.IngestDocument(context.Background(), retrieval.Document{
		Source: "doc.md",
		Text:   text,
		Tags:   map[string]string{"lang": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "doc.md", res.Source)
	assert.Greater(t, res.Chunks, 1)
	assert.Len(t, store.points, res.Chunks)

	// Every point carries the canonical payload plus tags, under its
	// deterministic id.
	p, ok := store.points[retrieval.PointID("doc.md", 0)]
	require.True(t, ok)
	assert.Equal(t, "doc.md", p.Payload[vectorstore.PayloadSource])
	assert.Equal(t, 0, p.Payload[vectorstore.PayloadChunk])
	assert.Equal(t, res.Chunks, p.Payload[vectorstore.PayloadTotal])
	assert.Equal(t, "stub-embed-v1", p.Payload[vectorstore.PayloadModel])
	assert.Equal(t, "en", p.Payload["lang"])
	assert.Len(t, p.Vector, 3)
}

func TestIngestDocument_ReingestOverwrites(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{ChunkSize: 100, ChunkOverlap: 10})

	_, err := coord.IngestDocument(context.Background(), retrieval.Document{Source: "doc.md", Text: "first version"})
	require.NoError(t, err)
	_, err = coord.IngestDocument(context.Background(), retrieval.Document{Source: "doc.md", Text: "second version"})
	require.NoError(t, err)

	assert.Len(t, store.points, 1, "same source and chunk index reuse the same point id")
}

func TestIngestDocument_Rejections(t *testing.T) {
	coord := retrieval.New(&stubEmbedder{}, newMemStore(), retrieval.Options{})

	_, err := coord.IngestDocument(context.Background(), retrieval.Document{Source: "  ", Text: "x"})
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeRetrievalInputInvalid))
}

func TestIngestDocument_EmptyTextIsNoOp(t *testing.T) {
	store := newMemStore()
	coord := retrieval.New(&stubEmbedder{}, store, retrieval.Options{})

	res, err := coord.IngestDocument(context.Background(), retrieval.Document{Source: "empty.md", Text: "   "})
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, store.points)
}

func TestIngestDocument_EmbedderFailureAbortsUpsert(t *testing.T) {
	embedder := &stubEmbedder{err: docragerr.New(docragerr.CodeEmbedUpstreamFailure, "quota exceeded")}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{})

	_, err := coord.IngestDocument(context.Background(), retrieval.Document{Source: "doc.md", Text: "some text"})
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeEmbedUpstreamFailure))
	assert.Empty(t, store.points, "nothing may be written when embedding fails")
}

func TestIngestDocument_BatchesEmbeddingCalls(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{
		ChunkSize:    5,
		ChunkOverlap: 0,
		EmbedBatch:   2,
		MaxInFlight:  1,
	})

	res, err := coord.IngestDocument(context.Background(), retrieval.Document{
		Source: "doc.md",
		Text:   strings.Repeat("x", 25), // 5 chunks
	})
	require.NoError(t, err)
	require.Equal(t, 5, res.Chunks)

	// 5 chunks at batch size 2 -> 3 embedding calls.
	assert.Len(t, embedder.calls, 3)

	total := 0
	for _, call := range embedder.calls {
		assert.LessOrEqual(t, len(call), 2)
		total += len(call)
	}
	assert.Equal(t, 5, total)
}

func TestIngestAll_ContinuesPastFailures(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{})

	outcomes := coord.IngestAll(context.Background(), []retrieval.Document{
		{Source: "good.md", Text: "fine"},
		{Source: "", Text: "missing source"},
		{Source: "also-good.md", Text: "fine too"},
	})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, "good.md", outcomes[0].Source)
}

func TestQuery_ScoreFilterAndTruncation(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	store.hits = []vectorstore.Result{
		hit("h1", 0.9, "a.md", 0),
		hit("h2", 0.8, "a.md", 1),
		hit("h3", 0.6, "b.md", 0),
		hit("h4", 0.4, "b.md", 1),
	}
	coord := retrieval.New(embedder, store, retrieval.Options{MinScore: 0.7, Overfetch: 2})

	matches, err := coord.Query(context.Background(), "what is docrag?", 3, nil)
	require.NoError(t, err)

	// Over-fetch asked the store for topK * Overfetch candidates.
	assert.Equal(t, 6, store.gotTopK)

	// Only the two hits above the score floor survive.
	require.Len(t, matches, 2)
	assert.Equal(t, "h1", matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-9)
	assert.Equal(t, "text h1", matches[0].Text)
	assert.Equal(t, "a.md", matches[0].Source)
	assert.Equal(t, 0, matches[0].ChunkIndex)
	assert.Equal(t, "h2", matches[1].ID)
}

func TestQuery_TruncatesToTopK(t *testing.T) {
	store := newMemStore()
	store.hits = []vectorstore.Result{
		hit("h1", 0.9, "a.md", 0),
		hit("h2", 0.9, "a.md", 1),
		hit("h3", 0.9, "a.md", 2),
	}
	coord := retrieval.New(&stubEmbedder{}, store, retrieval.Options{MinScore: 0.5})

	matches, err := coord.Query(context.Background(), "q", 2, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestQuery_NoSurvivorsIsEmptyNotError(t *testing.T) {
	store := newMemStore()
	store.hits = []vectorstore.Result{hit("h1", 0.2, "a.md", 0)}
	coord := retrieval.New(&stubEmbedder{}, store, retrieval.Options{MinScore: 0.7})

	matches, err := coord.Query(context.Background(), "q", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_PassesFilterThrough(t *testing.T) {
	store := newMemStore()
	coord := retrieval.New(&stubEmbedder{}, store, retrieval.Options{})

	_, err := coord.Query(context.Background(), "q", 5, vectorstore.BySource("a.md"))
	require.NoError(t, err)

	require.Len(t, store.filters, 1)
	assert.Equal(t, vectorstore.BySource("a.md"), store.filters[0])
}

func TestQuery_Rejections(t *testing.T) {
	coord := retrieval.New(&stubEmbedder{}, newMemStore(), retrieval.Options{})

	_, err := coord.Query(context.Background(), "   ", 5, nil)
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeRetrievalInputInvalid))

	_, err = coord.Query(context.Background(), "q", 0, nil)
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeRetrievalInputInvalid))
}

func TestDeleteSource(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newMemStore()
	coord := retrieval.New(embedder, store, retrieval.Options{})

	_, err := coord.IngestDocument(context.Background(), retrieval.Document{Source: "gone.md", Text: "bye"})
	require.NoError(t, err)
	_, err = coord.IngestDocument(context.Background(), retrieval.Document{Source: "kept.md", Text: "hello"})
	require.NoError(t, err)

	require.NoError(t, coord.DeleteSource(context.Background(), "gone.md"))

	stats, err := coord.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Points)

	err = coord.DeleteSource(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeRetrievalInputInvalid))
}
