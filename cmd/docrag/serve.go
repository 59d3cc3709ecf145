// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docrag HTTP server",
		Long:  "Load configuration, wire the retrieval engine, and serve the HTTP API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	engine, err := wireEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	synthesizer, err := wireSynthesizer(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		StoreHealth:  engine.StoreHealth,
	})
	if err != nil {
		return err
	}
	srv.RegisterServices(&server.Services{
		Retriever:   engine.Coordinator,
		Synthesizer: synthesizer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prepare the collection up front so schema mismatches surface at
	// startup instead of on the first ingest. The backend being down is
	// not fatal here; requests will retry through the store decorator.
	if err := engine.Store.EnsureCollection(ctx, 0); err != nil {
		slog.Warn("collection not ready at startup", "collection", cfg.Store.Collection, "error", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "docrag listening on %s (backend: %s, collection: %s)\n",
		cfg.Server.Listen, cfg.Store.Backend, cfg.Store.Collection)

	return srv.Start(ctx)
}
