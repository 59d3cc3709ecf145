// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/retrieval"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest text files into the collection",
		Long:  "Chunk, embed and store the given text files. Each file's path is its source id; re-ingesting a file overwrites its previous chunks.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().StringToString("tag", nil, "extra payload attributes as key=value pairs")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := wireEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	tags, _ := cmd.Flags().GetStringToString("tag")

	var docs []retrieval.Document
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return docragerr.Wrapf(err, docragerr.CodeCLIInputInvalid, "reading %s", path)
		}
		docs = append(docs, retrieval.Document{
			Source: filepath.ToSlash(path),
			Text:   string(data),
			Tags:   tags,
		})
	}

	out := cmd.OutOrStdout()
	outcomes := engine.Coordinator.IngestAll(cmd.Context(), docs)

	failed := 0
	total := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", o.Source, o.Err)
			continue
		}
		total += o.Chunks
		fmt.Fprintf(out, "ok   %s: %d chunks\n", o.Source, o.Chunks)
	}
	fmt.Fprintf(out, "ingested %d chunks from %d/%d documents\n", total, len(outcomes)-failed, len(outcomes))

	if failed == len(outcomes) {
		return docragerr.New(docragerr.CodeCLIInputInvalid, "every document failed to ingest")
	}
	return nil
}
