// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/server"
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

type fakeRetriever struct {
	outcomes []retrieval.ItemOutcome
	matches  []retrieval.Match
	queryErr error
	statsErr error

	gotDocs   []retrieval.Document
	gotQuery  string
	gotTopK   int
	gotFilter vectorstore.Filter
	deleted   []string
}

func (f *fakeRetriever) IngestAll(_ context.Context, docs []retrieval.Document) []retrieval.ItemOutcome {
	f.gotDocs = docs
	if f.outcomes != nil {
		return f.outcomes
	}
	outcomes := make([]retrieval.ItemOutcome, len(docs))
	for i, d := range docs {
		outcomes[i] = retrieval.ItemOutcome{Source: d.Source, Chunks: 2}
	}
	return outcomes
}

func (f *fakeRetriever) Query(_ context.Context, question string, topK int, filter vectorstore.Filter) ([]retrieval.Match, error) {
	f.gotQuery = question
	f.gotTopK = topK
	f.gotFilter = filter
	return f.matches, f.queryErr
}

func (f *fakeRetriever) DeleteSource(_ context.Context, source string) error {
	f.deleted = append(f.deleted, source)
	return nil
}

func (f *fakeRetriever) Stats(context.Context) (vectorstore.CollectionStats, error) {
	if f.statsErr != nil {
		return vectorstore.CollectionStats{}, f.statsErr
	}
	return vectorstore.CollectionStats{Name: "docs", Dimensions: 3, Distance: vectorstore.DistanceCosine, Points: 9}, nil
}

type fakeSynthesizer struct {
	answer string
	err    error

	gotQuestion string
	gotMatches  []retrieval.Match
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, question string, matches []retrieval.Match) (string, error) {
	f.gotQuestion = question
	f.gotMatches = matches
	return f.answer, f.err
}

func newTestServer(t *testing.T, retriever *fakeRetriever, synthesizer *fakeSynthesizer) http.Handler {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	srv.RegisterServices(&server.Services{Retriever: retriever, Synthesizer: synthesizer})
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{}, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestIngest(t *testing.T) {
	retriever := &fakeRetriever{}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodPost, "/api/v1/ingest", `{
		"documents": [
			{"source": "a.md", "text": "alpha", "tags": {"lang": "en"}},
			{"source": "b.md", "text": "beta"}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, retriever.gotDocs, 2)
	assert.Equal(t, "a.md", retriever.gotDocs[0].Source)
	assert.Equal(t, map[string]string{"lang": "en"}, retriever.gotDocs[0].Tags)

	assert.EqualValues(t, 4, body["ingested"])
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "a.md", items[0].(map[string]any)["source"])
}

func TestIngest_PartialFailureReportsPerItem(t *testing.T) {
	retriever := &fakeRetriever{outcomes: []retrieval.ItemOutcome{
		{Source: "good.md", Chunks: 3},
		{Source: "bad.md", Err: docragerr.New(docragerr.CodeRetrievalInputInvalid, "document source must not be empty")},
	}}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodPost, "/api/v1/ingest", `{
		"documents": [
			{"source": "good.md", "text": "x"},
			{"source": "bad.md", "text": "y"}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.EqualValues(t, 3, body["ingested"], "failed items contribute no chunks")
	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.NotContains(t, items[0].(map[string]any), "error")
	assert.Contains(t, items[1].(map[string]any)["error"], "source must not be empty")
}

func TestIngest_RejectsEmptyBody(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{}, &fakeSynthesizer{})

	rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/ingest", `{"documents": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSearch(t *testing.T) {
	retriever := &fakeRetriever{matches: []retrieval.Match{
		{ID: "m1", Score: 0.91, Text: "alpha", Source: "a.md", ChunkIndex: 0},
	}}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/api/v1/search?q=alpha&k=3&source=a.md", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "alpha", retriever.gotQuery)
	assert.Equal(t, 3, retriever.gotTopK)
	assert.Equal(t, vectorstore.BySource("a.md"), retriever.gotFilter)

	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	m := matches[0].(map[string]any)
	assert.Equal(t, "m1", m["id"])
	assert.Equal(t, "a.md", m["source"])
}

func TestSearch_DefaultsTopK(t *testing.T) {
	retriever := &fakeRetriever{}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/api/v1/search?q=alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, retriever.gotTopK)
	assert.Nil(t, retriever.gotFilter)

	// No matches serializes as an empty array, not null.
	matches, ok := body["matches"].([]any)
	require.True(t, ok, "matches must be an array")
	assert.Empty(t, matches)
}

func TestSearch_RequiresQuery(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{}, &fakeSynthesizer{})

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSearch_UpstreamFailureIsBadGateway(t *testing.T) {
	retriever := &fakeRetriever{queryErr: docragerr.New(docragerr.CodeStoreUpstreamFailure, "qdrant exploded",
		docragerr.FieldBody("secret internals"))}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/api/v1/search?q=x", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Upstream internals never reach the client.
	assert.Equal(t, "upstream service failed", body["detail"])
	assert.NotContains(t, rec.Body.String(), "secret internals")
}

func TestChat(t *testing.T) {
	retriever := &fakeRetriever{matches: []retrieval.Match{
		{ID: "m1", Score: 0.9, Text: "alpha", Source: "a.md"},
	}}
	synthesizer := &fakeSynthesizer{answer: "Alpha is the first letter. [a.md]"}
	h := newTestServer(t, retriever, synthesizer)

	rec, body := doJSON(t, h, http.MethodPost, "/api/v1/chat", `{"message": "what is alpha?", "top_k": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "what is alpha?", retriever.gotQuery)
	assert.Equal(t, 2, retriever.gotTopK)
	assert.Equal(t, "what is alpha?", synthesizer.gotQuestion)
	require.Len(t, synthesizer.gotMatches, 1)

	assert.Equal(t, "Alpha is the first letter. [a.md]", body["answer"])
	assert.Len(t, body["sources"].([]any), 1)
}

func TestChat_SynthesizerFailure(t *testing.T) {
	retriever := &fakeRetriever{}
	synthesizer := &fakeSynthesizer{err: docragerr.New(docragerr.CodeAnswerUpstreamFailure, "model unavailable")}
	h := newTestServer(t, retriever, synthesizer)

	rec, body := doJSON(t, h, http.MethodPost, "/api/v1/chat", `{"message": "q"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream service failed", body["detail"])
}

func TestDeleteSource(t *testing.T) {
	retriever := &fakeRetriever{}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodDelete, "/api/v1/sources/guide.md", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"guide.md"}, retriever.deleted)
	assert.Equal(t, "guide.md", body["source"])
	assert.Equal(t, true, body["deleted"])
}

func TestStats(t *testing.T) {
	h := newTestServer(t, &fakeRetriever{}, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "docs", body["name"])
	assert.EqualValues(t, 3, body["dimensions"])
	assert.Equal(t, "Cosine", body["distance"])
	assert.EqualValues(t, 9, body["points"])
}

func TestStats_EmptyCollectionIsNotFound(t *testing.T) {
	retriever := &fakeRetriever{statsErr: docragerr.New(docragerr.CodeStoreCollectionNotFound, "never created")}
	h := newTestServer(t, retriever, &fakeSynthesizer{})

	rec, body := doJSON(t, h, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no data has been ingested yet", body["detail"])
}

func TestServerNew_RequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.True(t, docragerr.HasCode(err, docragerr.CodeServerStartFailure))
}
