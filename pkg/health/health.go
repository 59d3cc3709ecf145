// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package health tracks the availability of upstream dependencies
// (vector store, embedding API) for the health endpoint and operator
// visibility.
package health

import (
	"sync"
	"time"
)

// Metrics is a point-in-time snapshot of an upstream's health state,
// safe to serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// DefaultCooldown is the duration after which a failed upstream is
// reported as available again so callers retry it.
const DefaultCooldown = 30 * time.Second

// Tracker records success and failure of calls against one upstream.
// An upstream is considered available until RecordFailure is called;
// after a failure it is reported unavailable for a cooldown period,
// then becomes available again to allow recovery.
type Tracker struct {
	mu           sync.RWMutex
	available    bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// NewTracker creates a Tracker that starts available. A non-positive
// cooldown falls back to DefaultCooldown.
func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		available: true,
		cooldown:  cooldown,
		nowFunc:   time.Now,
	}
}

// availableLocked reports whether the upstream is available or the
// cooldown has elapsed. The caller MUST hold at least t.mu.RLock.
func (t *Tracker) availableLocked() bool {
	if t.available {
		return true
	}
	return t.nowFunc().Sub(t.failedAt) >= t.cooldown
}

// Available returns true if the upstream is healthy or the cooldown has elapsed.
func (t *Tracker) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.availableLocked()
}

// RecordSuccess marks the upstream as available.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	t.available = true
	t.mu.Unlock()
}

// RecordFailure marks the upstream as unavailable and increments the
// cumulative failure count.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	t.available = false
	t.failedAt = t.nowFunc()
	t.failureCount++
	t.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the tracker's state. The
// returned struct holds no references to internal tracker state.
func (t *Tracker) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := Metrics{FailureCount: t.failureCount}

	if t.failureCount > 0 {
		at := t.failedAt
		m.LastFailureAt = &at
	}

	m.Available = t.availableLocked()
	if !t.available {
		cooldownEnd := t.failedAt.Add(t.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}
