// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

import (
	"sync"
	"time"

	docragerr "github.com/docrag/docrag/pkg/errors"
)

// Config selects a backend and carries its connection settings.
type Config struct {
	// Backend names the registered backend: "qdrant" or "sqlite".
	Backend string

	// Qdrant connection settings, used when Backend is "qdrant".
	QdrantURL    string
	QdrantAPIKey string

	// SQLitePath is the database file, used when Backend is "sqlite".
	SQLitePath string

	// Timeout bounds every outbound backend call. 0 uses the
	// backend's default.
	Timeout time.Duration
}

// Options is the backend-agnostic collection configuration passed to
// every factory.
type Options struct {
	// Collection is the managed collection name.
	Collection string

	// Dimensions is the default vector length. EnsureCollection falls
	// back to it when called with no batch in hand (dimensions <= 0),
	// so the collection can be created eagerly at startup.
	Dimensions int

	// Distance is the metric the collection is created with.
	// Defaults to cosine.
	Distance Distance

	// AutoRecreate permits the destructive drop-and-recreate of a
	// collection whose dimensions no longer match incoming data.
	AutoRecreate bool
}

// Factory creates a Store for one backend. Backend packages register
// themselves from init().
type Factory func(cfg Config, opts Options) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// Register registers a factory for a named backend. Goroutine-safe.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends returns the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// New creates a Store using the named backend's factory. Selection
// happens here, at construction time, never by runtime type inspection.
func New(cfg Config, opts Options) (Store, error) {
	if opts.Collection == "" {
		return nil, docragerr.New(docragerr.CodeConfigValidateInvalidValue, "vectorstore: collection name is required")
	}
	if opts.Distance == "" {
		opts.Distance = DistanceCosine
	}
	if !opts.Distance.Valid() {
		return nil, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"vectorstore: unknown distance metric %q", opts.Distance)
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, docragerr.Errorf(docragerr.CodeStoreBackendUnsupported,
			"unsupported vector store backend: %q", cfg.Backend)
	}

	return factory(cfg, opts)
}
