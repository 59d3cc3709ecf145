// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	docragerr "github.com/docrag/docrag/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show collection statistics",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := wireEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	out := cmd.OutOrStdout()

	stats, err := engine.Coordinator.Stats(cmd.Context())
	if err != nil {
		if docragerr.IsNotFound(err) {
			fmt.Fprintf(out, "collection %q does not exist yet (created on first ingest)\n", cfg.Store.Collection)
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "backend:     %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "collection:  %s\n", stats.Name)
	fmt.Fprintf(out, "dimensions:  %d\n", stats.Dimensions)
	fmt.Fprintf(out, "distance:    %s\n", stats.Distance)
	fmt.Fprintf(out, "points:      %d\n", stats.Points)
	return nil
}
