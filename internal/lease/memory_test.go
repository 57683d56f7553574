package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStream = "orders.events"
	testGroup  = "streamgate-orders"
)

func TestMemoryAcquireConflict(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	l, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "host-a", l.Owner)
	assert.Equal(t, int64(1), l.Epoch)

	_, err = c.Acquire(ctx, testStream, testGroup, 0, "host-b", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// a different partition is free
	l2, err := c.Acquire(ctx, testStream, testGroup, 1, "host-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "host-b", l2.Owner)
}

func TestMemoryEpochMonotonic(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	l1, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, l1))

	l2, err := c.Acquire(ctx, testStream, testGroup, 0, "host-b", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, l2.Epoch, l1.Epoch)
}

func TestMemoryRenew(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	l, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", time.Minute)
	require.NoError(t, err)

	renewed, err := c.Renew(ctx, l, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(l.ExpiresAt))

	// renew by a non-owner fails
	stolen := l
	stolen.Owner = "host-b"
	_, err = c.Renew(ctx, stolen, time.Minute)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	l, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", 10*time.Second)
	require.NoError(t, err)

	// lease lapses: renew fails, another host can claim the partition
	now = now.Add(11 * time.Second)

	_, err = c.Renew(ctx, l, 10*time.Second)
	assert.ErrorIs(t, err, ErrNotOwner)

	l2, err := c.Acquire(ctx, testStream, testGroup, 0, "host-b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "host-b", l2.Owner)
	assert.Greater(t, l2.Epoch, l.Epoch)
}

func TestMemoryReleaseIdempotent(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	l, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Release(ctx, l))
	require.NoError(t, c.Release(ctx, l))

	// releasing someone else's lease does nothing
	_, err = c.Acquire(ctx, testStream, testGroup, 0, "host-b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, l))

	owners, err := c.Owners(ctx, testStream, testGroup, []int{0})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "host-b"}, owners)
}

func TestMemoryOwners(t *testing.T) {
	c := NewMemoryCoordinator()
	ctx := context.Background()

	_, err := c.Acquire(ctx, testStream, testGroup, 0, "host-a", time.Minute)
	require.NoError(t, err)
	_, err = c.Acquire(ctx, testStream, testGroup, 2, "host-b", time.Minute)
	require.NoError(t, err)

	owners, err := c.Owners(ctx, testStream, testGroup, []int{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "host-a", 2: "host-b"}, owners)
}
