//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ali/internal/auth/revocation"
	"ali/pkg/testutil/containers"
)

func TestRedisTRL(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	trl := revocation.NewRedisTRL(rc.Client)
	ctx := context.Background()

	t.Run("revoked token is found until expiry", func(t *testing.T) {
		require.NoError(t, trl.Revoke(ctx, "jti-long", time.Hour))

		revoked, err := trl.IsRevoked(ctx, "jti-long")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("unknown token is not revoked", func(t *testing.T) {
		revoked, err := trl.IsRevoked(ctx, "jti-unknown")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("entry expires with the token lifetime", func(t *testing.T) {
		require.NoError(t, trl.Revoke(ctx, "jti-short", 100*time.Millisecond))

		assert.Eventually(t, func() bool {
			revoked, err := trl.IsRevoked(ctx, "jti-short")
			return err == nil && !revoked
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("empty jti and non-positive ttl are ignored", func(t *testing.T) {
		require.NoError(t, trl.Revoke(ctx, "", time.Hour))
		require.NoError(t, trl.Revoke(ctx, "jti-zero", 0))

		revoked, err := trl.IsRevoked(ctx, "jti-zero")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}
