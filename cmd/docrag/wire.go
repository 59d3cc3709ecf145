// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	answeropenai "github.com/docrag/docrag/internal/answer/openai"
	"github.com/docrag/docrag/internal/config"
	embedopenai "github.com/docrag/docrag/internal/embed/openai"
	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/vectorstore"
	_ "github.com/docrag/docrag/internal/vectorstore/qdrant"    // register qdrant backend
	_ "github.com/docrag/docrag/internal/vectorstore/sqlitevec" // register sqlite backend
	docragerr "github.com/docrag/docrag/pkg/errors"
	"github.com/docrag/docrag/pkg/health"
)

// Engine holds the wired retrieval core and owns the store handle.
type Engine struct {
	Coordinator *retrieval.Coordinator
	Store       vectorstore.Store
	StoreHealth *health.Tracker
	Config      *config.Config
}

// Close releases the store handle.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// loadConfig reads the config file named by the --config flag (or
// defaults plus DOCRAG_ env vars) and configures logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(cfgPath)

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return cfg, nil
}

// wireEngine creates the embedder, the vector store (with the retry
// decorator when configured) and the retrieval coordinator.
func wireEngine(cfg *config.Config) (*Engine, error) {
	embedder, err := embedopenai.New(embedopenai.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeCLISetupFailure, "creating embedder")
	}

	dims := cfg.Store.Dimensions
	if dims == 0 {
		dims = embedder.Dimensions()
	}

	store, err := vectorstore.New(
		vectorstore.Config{
			Backend:      cfg.Store.Backend,
			QdrantURL:    cfg.Store.QdrantURL,
			QdrantAPIKey: cfg.Store.QdrantAPIKey,
			SQLitePath:   cfg.Store.SQLitePath,
			Timeout:      cfg.Store.Timeout,
		},
		vectorstore.Options{
			Collection:   cfg.Store.Collection,
			Dimensions:   dims,
			Distance:     vectorstore.Distance(cfg.Store.Distance),
			AutoRecreate: cfg.Store.AutoRecreate,
		},
	)
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeCLISetupFailure, "creating vector store")
	}
	tracker := health.NewTracker(health.DefaultCooldown)
	store = vectorstore.WithRetry(store, vectorstore.RetryConfig{
		MaxRetries: cfg.Store.RetryMax,
		Health:     tracker,
	})

	coordinator := retrieval.New(embedder, store, retrieval.Options{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		MinScore:     cfg.Retrieval.MinScore,
		Overfetch:    cfg.Retrieval.Overfetch,
		EmbedBatch:   cfg.Embedding.BatchSize,
		MaxInFlight:  cfg.Retrieval.MaxInFlight,
	})

	return &Engine{Coordinator: coordinator, Store: store, StoreHealth: tracker, Config: cfg}, nil
}

// wireSynthesizer creates the answer synthesizer, falling back to the
// embedding key when no dedicated answer key is configured.
func wireSynthesizer(cfg *config.Config) (*answeropenai.Synthesizer, error) {
	apiKey := cfg.Answer.APIKey
	if apiKey == "" {
		apiKey = cfg.Embedding.APIKey
	}
	return answeropenai.New(answeropenai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.Answer.BaseURL,
		Model:   cfg.Answer.Model,
	})
}
