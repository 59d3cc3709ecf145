// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root docrag command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docrag",
		Short:         "docrag — document retrieval and indexing engine",
		Long:          "Docrag chunks documents, embeds them and serves similarity search over a vector database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags shared by every subcommand.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newQueryCmd(),
		newStatusCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}
