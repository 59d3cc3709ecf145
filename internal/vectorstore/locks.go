// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package vectorstore

import "sync"

// LockRegistry hands out one mutex per collection name. Backends
// acquire it around the probe-then-create sequence so two concurrent
// first-writers cannot race collection creation, and around recreates
// so the cached dimension snapshot stays consistent.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// For returns the mutex for the given collection, creating it on first
// use. The mutex is never removed; the registry holds one entry per
// distinct collection name seen by this process.
func (r *LockRegistry) For(collection string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		r.locks[collection] = l
	}
	return l
}
