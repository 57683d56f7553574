package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(p int) Key {
	return Key{Stream: "orders.events", ConsumerGroup: "streamgate-orders", Partition: p}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Load(context.Background(), testKey(0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 41, Epoch: 1}))

	cp, err := s.Load(ctx, testKey(0))
	require.NoError(t, err)
	assert.Equal(t, int64(41), cp.Offset)
	assert.Equal(t, int64(1), cp.Epoch)
	assert.False(t, cp.UpdatedAt.IsZero())
}

func TestMemoryStoreEpochFencing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 10, Epoch: 2}))

	// a writer with an older lease epoch is rejected
	err := s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 99, Epoch: 1})
	assert.ErrorIs(t, err, ErrStaleEpoch)

	cp, err := s.Load(ctx, testKey(0))
	require.NoError(t, err)
	assert.Equal(t, int64(10), cp.Offset)
	assert.Equal(t, int64(2), cp.Epoch)
}

func TestMemoryStoreOffsetOnlyMovesForward(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 10, Epoch: 1}))

	// redelivery under the same epoch is a silent no-op
	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 5, Epoch: 1}))

	cp, err := s.Load(ctx, testKey(0))
	require.NoError(t, err)
	assert.Equal(t, int64(10), cp.Offset)

	// a newer epoch may rewind (the new owner re-reads from its own position)
	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 5, Epoch: 2}))

	cp, err = s.Load(ctx, testKey(0))
	require.NoError(t, err)
	assert.Equal(t, int64(5), cp.Offset)
	assert.Equal(t, int64(2), cp.Epoch)
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(2), Offset: 7, Epoch: 1}))
	require.NoError(t, s.Save(ctx, Checkpoint{Key: testKey(0), Offset: 3, Epoch: 1}))
	require.NoError(t, s.Save(ctx, Checkpoint{
		Key:    Key{Stream: "other.events", ConsumerGroup: "streamgate-orders", Partition: 1},
		Offset: 1, Epoch: 1,
	}))

	cps, err := s.List(ctx, "orders.events", "streamgate-orders")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, 0, cps[0].Partition)
	assert.Equal(t, 2, cps[1].Partition)
}
