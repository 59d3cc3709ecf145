// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package qdrant

import "github.com/docrag/docrag/internal/vectorstore"

func init() {
	vectorstore.Register("qdrant", func(cfg vectorstore.Config, opts vectorstore.Options) (vectorstore.Store, error) {
		return New(Config{
			URL:     cfg.QdrantURL,
			APIKey:  cfg.QdrantAPIKey,
			Timeout: cfg.Timeout,
		}, opts)
	})
}
