// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/docrag/docrag/internal/answer"
	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Retriever is the slice of the retrieval coordinator the server needs.
type Retriever interface {
	IngestAll(ctx context.Context, docs []retrieval.Document) []retrieval.ItemOutcome
	Query(ctx context.Context, question string, topK int, filter vectorstore.Filter) ([]retrieval.Match, error)
	DeleteSource(ctx context.Context, source string) error
	Stats(ctx context.Context) (vectorstore.CollectionStats, error)
}

// Services bundles the dependencies behind the REST routes.
type Services struct {
	Retriever   Retriever
	Synthesizer answer.Synthesizer
}

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

type ingestDocument struct {
	Source string            `json:"source" minLength:"1" doc:"Stable document identifier"`
	Text   string            `json:"text" doc:"Raw document text"`
	Tags   map[string]string `json:"tags,omitempty" doc:"Extra payload attributes"`
}

type ingestInput struct {
	Body struct {
		Documents []ingestDocument `json:"documents" minItems:"1"`
	}
}

type ingestItem struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type ingestOutput struct {
	Body struct {
		Items    []ingestItem `json:"items"`
		Ingested int          `json:"ingested" doc:"Total chunks stored across all documents"`
	}
}

type searchInput struct {
	Query  string `query:"q" minLength:"1" doc:"Search text"`
	TopK   int    `query:"k" default:"5" minimum:"1" maximum:"100" doc:"Number of results"`
	Source string `query:"source" required:"false" doc:"Restrict results to one source"`
}

type searchOutput struct {
	Body struct {
		Query   string            `json:"query"`
		Matches []retrieval.Match `json:"matches"`
	}
}

type chatInput struct {
	Body struct {
		Message string `json:"message" minLength:"1" doc:"User question"`
		TopK    int    `json:"top_k,omitempty" default:"5" minimum:"1" maximum:"20"`
	}
}

type chatOutput struct {
	Body struct {
		Answer  string            `json:"answer"`
		Sources []retrieval.Match `json:"sources"`
	}
}

type deleteSourceInput struct {
	Source string `path:"source" doc:"Source identifier to delete"`
}

type deleteSourceOutput struct {
	Body struct {
		Source  string `json:"source"`
		Deleted bool   `json:"deleted"`
	}
}

type statsOutput struct {
	Body vectorstore.CollectionStats
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "ingest-documents",
		Method:      http.MethodPost,
		Path:        "/api/v1/ingest",
		Summary:     "Ingest documents into the collection",
		Tags:        []string{"retrieval"},
	}, s.handleIngest)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Similarity search without answer synthesis",
		Tags:        []string{"retrieval"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Answer a question grounded in stored documents",
		Tags:        []string{"retrieval"},
	}, s.handleChat)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-source",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sources/{source}",
		Summary:     "Delete every chunk of one source",
		Tags:        []string{"retrieval"},
	}, s.handleDeleteSource)

	huma.Register(s.api, huma.Operation{
		OperationID: "collection-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Collection statistics",
		Tags:        []string{"system"},
	}, s.handleStats)
}

func (s *Server) handleIngest(ctx context.Context, in *ingestInput) (*ingestOutput, error) {
	docs := make([]retrieval.Document, len(in.Body.Documents))
	for i, d := range in.Body.Documents {
		docs[i] = retrieval.Document{Source: d.Source, Text: d.Text, Tags: d.Tags}
	}

	outcomes := s.services.Retriever.IngestAll(ctx, docs)

	out := &ingestOutput{}
	out.Body.Items = make([]ingestItem, len(outcomes))
	for i, o := range outcomes {
		item := ingestItem{Source: o.Source, Chunks: o.Chunks}
		if o.Err != nil {
			item.Error = publicMessage(o.Err)
		} else {
			out.Body.Ingested += o.Chunks
		}
		out.Body.Items[i] = item
	}
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, in *searchInput) (*searchOutput, error) {
	var filter vectorstore.Filter
	if in.Source != "" {
		filter = vectorstore.BySource(in.Source)
	}

	matches, err := s.services.Retriever.Query(ctx, in.Query, in.TopK, filter)
	if err != nil {
		return nil, apiError(err)
	}

	out := &searchOutput{}
	out.Body.Query = in.Query
	out.Body.Matches = matches
	if out.Body.Matches == nil {
		out.Body.Matches = []retrieval.Match{}
	}
	return out, nil
}

func (s *Server) handleChat(ctx context.Context, in *chatInput) (*chatOutput, error) {
	matches, err := s.services.Retriever.Query(ctx, in.Body.Message, in.Body.TopK, nil)
	if err != nil {
		return nil, apiError(err)
	}

	answerText, err := s.services.Synthesizer.Synthesize(ctx, in.Body.Message, matches)
	if err != nil {
		return nil, apiError(err)
	}

	out := &chatOutput{}
	out.Body.Answer = answerText
	out.Body.Sources = matches
	if out.Body.Sources == nil {
		out.Body.Sources = []retrieval.Match{}
	}
	return out, nil
}

func (s *Server) handleDeleteSource(ctx context.Context, in *deleteSourceInput) (*deleteSourceOutput, error) {
	if err := s.services.Retriever.DeleteSource(ctx, in.Source); err != nil {
		return nil, apiError(err)
	}
	out := &deleteSourceOutput{}
	out.Body.Source = in.Source
	out.Body.Deleted = true
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	stats, err := s.services.Retriever.Stats(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &statsOutput{Body: stats}, nil
}

// apiError converts an internal error into a huma status error. Only
// the public message travels to the client; upstream bodies and stack
// context stay in the logs.
func apiError(err error) error {
	status := docragerr.HTTPStatus(err)
	if status >= 500 {
		slog.Error("request failed", "code", docragerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, publicMessage(err))
}

func publicMessage(err error) string {
	if code := docragerr.CodeOf(err); code != "" {
		switch {
		case docragerr.IsNotFound(err):
			return "no data has been ingested yet"
		case docragerr.IsInvalidInput(err) || docragerr.IsDimensionMismatch(err):
			return err.Error()
		case docragerr.IsTimeout(err):
			return "upstream request timed out"
		case docragerr.IsUpstreamFailure(err):
			return "upstream service failed"
		}
	}
	return "internal error"
}
