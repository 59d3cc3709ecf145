// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/docrag/docrag/internal/answer"
	"github.com/docrag/docrag/internal/retrieval"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

const systemPrompt = `You answer questions using only the provided context snippets.
If the context does not contain the answer, say that no relevant content was found.
Cite the source of each snippet you rely on.`

const noContentAnswer = "No relevant content was found for this question."

// Config holds OpenAI synthesizer configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
}

// Compile-time interface check.
var _ answer.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements answer.Synthesizer using the OpenAI Chat
// Completions API.
type Synthesizer struct {
	client openaisdk.Client
	model  string
}

// New creates an OpenAI synthesizer. Returns an error if the API key is
// missing.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, docragerr.New(docragerr.CodeConfigValidateInvalidValue, "openai: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4.1-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Synthesizer{client: openaisdk.NewClient(opts...), model: cfg.Model}, nil
}

// Synthesize grounds an answer in the given matches. Zero matches
// short-circuits to a fixed "no relevant content" answer without
// calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, matches []retrieval.Match) (string, error) {
	if len(matches) == 0 {
		return noContentAnswer, nil
	}

	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "[%d] source=%s chunk=%d score=%.3f\n%s\n\n", i+1, m.Source, m.ChunkIndex, m.Score, m.Text)
	}

	res, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(fmt.Sprintf("Context:\n%sQuestion: %s", b.String(), question)),
		},
	})
	if err != nil {
		return "", docragerr.Wrap(err, docragerr.CodeAnswerUpstreamFailure,
			"requesting answer synthesis", docragerr.Field("model", s.model))
	}
	if len(res.Choices) == 0 {
		return "", docragerr.New(docragerr.CodeAnswerUpstreamFailure, "answer synthesis returned no choices")
	}
	return res.Choices[0].Message.Content, nil
}
