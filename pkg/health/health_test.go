// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrag/docrag/pkg/health"
)

func TestTracker_StartsAvailable(t *testing.T) {
	tr := health.NewTracker(30 * time.Second)
	assert.True(t, tr.Available())
}

func TestTracker_FailureMakesUnavailable(t *testing.T) {
	tr := health.NewTracker(30 * time.Second)
	tr.RecordFailure()
	assert.False(t, tr.Available())
}

func TestTracker_SuccessRestoresAvailability(t *testing.T) {
	tr := health.NewTracker(30 * time.Second)
	tr.RecordFailure()
	assert.False(t, tr.Available())

	tr.RecordSuccess()
	assert.True(t, tr.Available())
}

func TestTracker_CooldownBoundary(t *testing.T) {
	cooldown := 10 * time.Second
	now := time.Now()

	tests := []struct {
		name          string
		elapsed       time.Duration
		wantAvailable bool
	}{
		{"before cooldown", 9 * time.Second, false},
		{"at exact cooldown boundary", 10 * time.Second, true},
		{"after cooldown", 11 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := health.NewTracker(cooldown)
			tr.SetNowFunc(func() time.Time { return now })

			tr.RecordFailure()
			assert.False(t, tr.Available(), "should be unavailable immediately after failure")

			tr.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantAvailable, tr.Available())
		})
	}
}

func TestTracker_NonPositiveCooldownUsesDefault(t *testing.T) {
	now := time.Now()
	tr := health.NewTracker(0)
	tr.SetNowFunc(func() time.Time { return now })

	tr.RecordFailure()
	assert.False(t, tr.Available())

	tr.SetNowFunc(func() time.Time { return now.Add(health.DefaultCooldown) })
	assert.True(t, tr.Available())
}

func TestTracker_Snapshot(t *testing.T) {
	now := time.Now()
	tr := health.NewTracker(10 * time.Second)
	tr.SetNowFunc(func() time.Time { return now })

	m := tr.Snapshot()
	assert.True(t, m.Available)
	assert.Zero(t, m.FailureCount)
	assert.Nil(t, m.LastFailureAt)
	assert.Nil(t, m.CooldownUntil)

	tr.RecordFailure()
	tr.RecordFailure()

	m = tr.Snapshot()
	assert.False(t, m.Available)
	assert.EqualValues(t, 2, m.FailureCount)
	require.NotNil(t, m.LastFailureAt)
	assert.Equal(t, now, *m.LastFailureAt)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(10*time.Second), *m.CooldownUntil)

	// A later success keeps the failure history but clears the cooldown.
	tr.RecordSuccess()
	m = tr.Snapshot()
	assert.True(t, m.Available)
	assert.EqualValues(t, 2, m.FailureCount)
	assert.Nil(t, m.CooldownUntil)
}
