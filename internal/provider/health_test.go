package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEscalation(t *testing.T) {
	h := NewHealth()
	require.True(t, h.IsAvailable())

	h.RecordFailure()
	assert.Equal(t, StatusDegraded, h.Snapshot().Status)
	assert.True(t, h.IsAvailable())

	h.RecordFailure()
	assert.Equal(t, StatusDegraded, h.Snapshot().Status)

	h.RecordFailure()
	snap := h.Snapshot()
	assert.Equal(t, StatusCooling, snap.Status)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.False(t, h.IsAvailable())
}

func TestHealthSuccessResetsDegraded(t *testing.T) {
	h := NewHealth()
	h.RecordFailure()
	require.Equal(t, StatusDegraded, h.Snapshot().Status)

	h.RecordSuccess()
	snap := h.Snapshot()
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestHealthCooldownExpiryRecovers(t *testing.T) {
	h := NewHealth()
	h.RecordBan(1 * time.Millisecond)
	require.Equal(t, StatusCooling, h.Snapshot().Status)
	require.False(t, h.IsAvailable())

	time.Sleep(5 * time.Millisecond)

	assert.True(t, h.IsAvailable())
	snap := h.Snapshot()
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestHealthBanForcesImmediateCooling(t *testing.T) {
	h := NewHealth()
	h.RecordBan(DefaultCooldown)
	snap := h.Snapshot()
	assert.Equal(t, StatusCooling, snap.Status)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
}

func TestHealthDisableOverridesAvailability(t *testing.T) {
	h := NewHealth()
	h.Disable()
	assert.False(t, h.IsAvailable())

	h.RecordSuccess()
	assert.Equal(t, StatusDisabled, h.Snapshot().Status)
}

func TestHealthReset(t *testing.T) {
	h := NewHealth()
	h.RecordBan(DefaultCooldown)
	h.Reset()
	snap := h.Snapshot()
	assert.Equal(t, StatusHealthy, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.True(t, h.IsAvailable())
}
