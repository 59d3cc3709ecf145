// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docrag/docrag/internal/vectorstore"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Search the collection",
		Long:  "Embed the question, run a similarity search, and print ranked matches. With --answer, synthesize a grounded answer as well.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	cmd.Flags().IntP("top", "k", 5, "number of results")
	cmd.Flags().String("source", "", "restrict matches to one source")
	cmd.Flags().Bool("answer", false, "synthesize an answer from the matches")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := wireEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	question := strings.Join(args, " ")
	topK, _ := cmd.Flags().GetInt("top")

	var filter vectorstore.Filter
	if source, _ := cmd.Flags().GetString("source"); source != "" {
		filter = vectorstore.BySource(source)
	}

	matches, err := engine.Coordinator.Query(cmd.Context(), question, topK, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "no relevant content found")
		return nil
	}

	for i, m := range matches {
		fmt.Fprintf(out, "%d. [%.3f] %s#%d\n%s\n\n", i+1, m.Score, m.Source, m.ChunkIndex, m.Text)
	}

	if synthesize, _ := cmd.Flags().GetBool("answer"); synthesize {
		synthesizer, err := wireSynthesizer(cfg)
		if err != nil {
			return err
		}
		answerText, err := synthesizer.Synthesize(cmd.Context(), question, matches)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "answer:\n%s\n", answerText)
	}

	return nil
}
