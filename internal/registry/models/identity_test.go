package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attest/internal/registry/reputation"
	dErrors "attest/pkg/domain-errors"
)

func TestNewIdentity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("starts unverified at the initial score", func(t *testing.T) {
		identity, err := NewIdentity("acct:alice", "Alice", "alice@example.com", "hash-1", now)
		require.NoError(t, err)
		assert.Equal(t, reputation.InitialScore, identity.ReputationScore)
		assert.False(t, identity.Verified)
		assert.Equal(t, now, identity.CreatedAt)
		assert.Equal(t, now, identity.LastUpdated)
	})

	t.Run("trims display fields", func(t *testing.T) {
		identity, err := NewIdentity("acct:alice", "  Alice  ", " alice@example.com ", "", now)
		require.NoError(t, err)
		assert.Equal(t, "Alice", identity.Name)
		assert.Equal(t, "alice@example.com", identity.Email)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewIdentity("acct:alice", "   ", "alice@example.com", "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects empty email", func(t *testing.T) {
		_, err := NewIdentity("acct:alice", "Alice", "", "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("profile hash may be empty", func(t *testing.T) {
		identity, err := NewIdentity("acct:alice", "Alice", "alice@example.com", "", now)
		require.NoError(t, err)
		assert.Empty(t, identity.ProfileHash)
	})
}

func TestApplyProfileUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	t.Run("overwrites all fields including an empty hash", func(t *testing.T) {
		identity, err := NewIdentity("acct:alice", "Alice", "alice@example.com", "hash-1", now)
		require.NoError(t, err)

		require.NoError(t, identity.ApplyProfileUpdate("Alicia", "alicia@example.com", "", later))
		assert.Equal(t, "Alicia", identity.Name)
		assert.Equal(t, "alicia@example.com", identity.Email)
		assert.Empty(t, identity.ProfileHash)
		assert.Equal(t, later, identity.LastUpdated)
		assert.Equal(t, now, identity.CreatedAt)
	})

	t.Run("validation failure leaves the record untouched", func(t *testing.T) {
		identity, err := NewIdentity("acct:alice", "Alice", "alice@example.com", "hash-1", now)
		require.NoError(t, err)

		err = identity.ApplyProfileUpdate("", "alicia@example.com", "hash-2", later)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.Equal(t, "Alice", identity.Name)
		assert.Equal(t, "hash-1", identity.ProfileHash)
		assert.Equal(t, now, identity.LastUpdated)
	})
}

func TestIdentityTouchIsMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	identity, err := NewIdentity("acct:alice", "Alice", "alice@example.com", "", now)
	require.NoError(t, err)

	// A stale clock must not rewind LastUpdated.
	identity.ApplyVerification(true, now.Add(-time.Hour))
	assert.Equal(t, now, identity.LastUpdated)

	identity.ApplyReputation(250, now.Add(time.Minute))
	assert.Equal(t, now.Add(time.Minute), identity.LastUpdated)
	assert.Equal(t, 250, identity.ReputationScore)
}
