// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/internal/answer"
	"github.com/docrag/docrag/internal/answer/openai"
	"github.com/docrag/docrag/internal/retrieval"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ answer.Synthesizer = (*openai.Synthesizer)(nil)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, docragerr.IsConfiguration(err))
}

func TestSynthesize_NoMatchesSkipsModel(t *testing.T) {
	// The base URL points at a closed port, so any request fails loudly.
	s, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	got, err := s.Synthesize(context.Background(), "anything?", nil)
	require.NoError(t, err)
	assert.Equal(t, "No relevant content was found for this question.", got)
}

// chatRequest mirrors the fields of the API request we assert on.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeChatServer(t *testing.T, reply string, requests *[]chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   req.Model,
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": reply},
				},
			},
		})
	}))
}

func TestSynthesize_GroundsAnswerInMatches(t *testing.T) {
	var requests []chatRequest
	srv := fakeChatServer(t, "Restarts happen via systemctl, per guide.md.", &requests)
	defer srv.Close()

	s, err := openai.New(openai.Config{
		APIKey:  "test-key-not-real",
		BaseURL: srv.URL,
		Model:   "gpt-4.1-mini",
	})
	require.NoError(t, err)

	matches := []retrieval.Match{
		{ID: "p1", Score: 0.91, Text: "Restart the service with systemctl restart docrag.", Source: "guide.md", ChunkIndex: 3},
		{ID: "p2", Score: 0.72, Text: "Logs live in /var/log/docrag.", Source: "ops.md", ChunkIndex: 0},
	}

	got, err := s.Synthesize(context.Background(), "How do I restart it?", matches)
	require.NoError(t, err)
	assert.Equal(t, "Restarts happen via systemctl, per guide.md.", got)

	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "gpt-4.1-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "provided context snippets")

	user := req.Messages[1]
	assert.Equal(t, "user", user.Role)
	assert.Contains(t, user.Content, "How do I restart it?")
	assert.Contains(t, user.Content, "systemctl restart docrag")
	assert.Contains(t, user.Content, "source=guide.md chunk=3")
	assert.Contains(t, user.Content, "source=ops.md chunk=0")
}

func TestSynthesize_DefaultModel(t *testing.T) {
	var requests []chatRequest
	srv := fakeChatServer(t, "ok", &requests)
	defer srv.Close()

	s, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q?", []retrieval.Match{{Text: "ctx", Source: "a.md"}})
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.Equal(t, "gpt-4.1-mini", requests[0].Model)
}

func TestSynthesize_NoChoicesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"chatcmpl-test","object":"chat.completion","created":0,"model":"gpt-4.1-mini","choices":[]}`)
	}))
	defer srv.Close()

	s, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q?", []retrieval.Match{{Text: "ctx", Source: "a.md"}})
	require.Error(t, err)
	assert.True(t, docragerr.IsUpstreamFailure(err))
	assert.Contains(t, err.Error(), "no choices")
}

func TestSynthesize_UpstreamErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"context length exceeded"}}`)
	}))
	defer srv.Close()

	s, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q?", []retrieval.Match{{Text: "ctx", Source: "a.md"}})
	require.Error(t, err)
	assert.True(t, docragerr.IsUpstreamFailure(err))
}
