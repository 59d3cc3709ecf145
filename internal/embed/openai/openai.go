// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/docrag/docrag/internal/embed"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// defaultBatchSize bounds how many inputs go into a single embeddings
// request, keeping request payloads under the API limits.
const defaultBatchSize = 64

// knownDimensions maps embedding models to their native vector length.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds OpenAI embedder configuration.
type Config struct {
	APIKey    string
	BaseURL   string // optional, useful for testing against a mock server
	Model     string
	BatchSize int // inputs per request; 0 uses the default

	// Dimensions overrides the model's native vector length. Only the
	// text-embedding-3 family supports shortened vectors.
	Dimensions int
}

// Compile-time interface check.
var _ embed.Embedder = (*Embedder)(nil)

// Embedder implements embed.Embedder using the OpenAI Embeddings API.
type Embedder struct {
	client     openaisdk.Client
	model      string
	dimensions int
	batchSize  int
	shortened  bool
}

// New creates an OpenAI embedder. Returns an error if the API key is
// missing or the model's dimensionality cannot be determined.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, docragerr.New(docragerr.CodeConfigValidateInvalidValue, "openai: missing api_key in config")
	}
	if cfg.Model == "" {
		cfg.Model = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}

	dims := cfg.Dimensions
	shortened := false
	if dims <= 0 {
		native, ok := knownDimensions[cfg.Model]
		if !ok {
			return nil, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
				"openai: unknown embedding model %q, set embedding.dimensions explicitly", cfg.Model)
		}
		dims = native
	} else if dims != knownDimensions[cfg.Model] {
		shortened = true
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{
		client:     openaisdk.NewClient(opts...),
		model:      cfg.Model,
		dimensions: dims,
		batchSize:  batch,
		shortened:  shortened,
	}, nil
}

func (e *Embedder) Dimensions() int { return e.dimensions }

func (e *Embedder) Model() string { return e.model }

// Embed returns one vector per input text, issuing as many bounded
// requests as needed to cover the whole input.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.shortened {
		params.Dimensions = param.NewOpt(int64(e.dimensions))
	}

	res, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeEmbedUpstreamFailure,
			"requesting embeddings", docragerr.Field("model", e.model))
	}
	if len(res.Data) != len(texts) {
		return nil, docragerr.Errorf(docragerr.CodeEmbedUpstreamFailure,
			"embeddings response has %d vectors for %d inputs", len(res.Data), len(texts))
	}

	vectors := make([][]float32, len(res.Data))
	for _, item := range res.Data {
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		if int(item.Index) >= len(vectors) {
			return nil, docragerr.Errorf(docragerr.CodeEmbedUpstreamFailure,
				"embeddings response index %d out of range", item.Index)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}
