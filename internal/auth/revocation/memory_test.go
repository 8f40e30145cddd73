package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/auth/revocation"
)

func TestMemory_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trl := revocation.NewMemory(revocation.WithClock(func() time.Time { return now }))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, trl.Revoke(ctx, "jti-1", time.Hour))

	revoked, err = trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemory_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trl := revocation.NewMemory(revocation.WithClock(func() time.Time { return now }))

	require.NoError(t, trl.Revoke(ctx, "jti-1", time.Hour))

	now = now.Add(2 * time.Hour)

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemory_IgnoresEmptyAndNonPositive(t *testing.T) {
	ctx := context.Background()
	trl := revocation.NewMemory()

	require.NoError(t, trl.Revoke(ctx, "", time.Hour))
	require.NoError(t, trl.Revoke(ctx, "jti-1", 0))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
