// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/server"
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, docragerr.Errorf(docragerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	// No-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	srv.RegisterServices(&server.Services{
		Retriever:   &stubRetriever{},
		Synthesizer: &stubSynthesizer{},
	})

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubRetriever struct{}

func (s *stubRetriever) IngestAll(context.Context, []retrieval.Document) []retrieval.ItemOutcome {
	return nil
}

func (s *stubRetriever) Query(context.Context, string, int, vectorstore.Filter) ([]retrieval.Match, error) {
	return nil, nil
}

func (s *stubRetriever) DeleteSource(context.Context, string) error { return nil }

func (s *stubRetriever) Stats(context.Context) (vectorstore.CollectionStats, error) {
	return vectorstore.CollectionStats{}, nil
}

type stubSynthesizer struct{}

func (s *stubSynthesizer) Synthesize(context.Context, string, []retrieval.Match) (string, error) {
	return "", nil
}
