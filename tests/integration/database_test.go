//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodmine/literature-mining-service/internal/database"
)

// The session lock key here is arbitrary but distinct from the scraper's.
const testLockKey int64 = 4242_0001

func TestAdvisoryLock_ExclusiveAcrossConnections(t *testing.T) {
	ctx := context.Background()

	lock, err := database.AcquireAdvisoryLock(ctx, testPool, testLockKey)
	require.NoError(t, err)
	require.NotNil(t, lock)

	// While held, a second acquire lands on a different pooled connection
	// and must be refused.
	second, err := database.AcquireAdvisoryLock(ctx, testPool, testLockKey)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, lock.Release(ctx))
}

func TestAdvisoryLock_ReleaseFreesTheLock(t *testing.T) {
	ctx := context.Background()

	first, err := database.AcquireAdvisoryLock(ctx, testPool, testLockKey)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NoError(t, first.Release(ctx))

	// The unlock ran on the connection that owns the lock, so a fresh
	// acquire must succeed immediately.
	second, err := database.AcquireAdvisoryLock(ctx, testPool, testLockKey)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.NoError(t, second.Release(ctx))

	// Release is idempotent.
	require.NoError(t, second.Release(ctx))
	var nilLock *database.AdvisoryLock
	require.NoError(t, nilLock.Release(ctx))
}
