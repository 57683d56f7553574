package host

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/dispatcher"
	"github.com/streamgate/streamgate/internal/lease"
	"github.com/streamgate/streamgate/internal/model"
	"github.com/streamgate/streamgate/internal/stream"
)

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context) (model.Event, error) {
	<-ctx.Done()
	return model.Event{}, ctx.Err()
}

func (blockingFetcher) Close() error { return nil }

type nopInvoker struct{}

func (nopInvoker) Invoke(context.Context, model.Invocation) error { return nil }

func testBinding(partitions []int) Binding {
	return Binding{
		Name:          "orders",
		Stream:        "orders.events",
		ConsumerGroup: "streamgate-orders",
		Cardinality:   model.CardinalityMany,
		OnError:       model.OnErrorSkip,
		StartAt:       model.StartEarliest,
		MaxBatchSize:  10,
		MaxBatchWait:  10 * time.Millisecond,
		Partitions:    partitions,
		Invoker:       nopInvoker{},
	}
}

func newTestHost(owner string, coord lease.Coordinator, cps checkpoint.Store, b Binding) *Host {
	factory := func(Binding, int, int64) (dispatcher.Fetcher, error) {
		return blockingFetcher{}, nil
	}
	return New(owner, 30*time.Second, 10*time.Second, coord, cps, nil, factory, []Binding{b}, zap.NewNop())
}

func ownedPartitions(h *Host) []int {
	var out []int
	for _, ps := range h.Snapshot() {
		out = append(out, ps.Partition)
	}
	sort.Ints(out)
	return out
}

func TestFairShare(t *testing.T) {
	assert.Equal(t, 4, fairShare(4, 1))
	assert.Equal(t, 2, fairShare(4, 2))
	assert.Equal(t, 2, fairShare(4, 3))
	assert.Equal(t, 1, fairShare(4, 4))
	assert.Equal(t, 1, fairShare(4, 8))
	assert.Equal(t, 3, fairShare(3, 0), "owners never counted below one")
	assert.Equal(t, 0, fairShare(0, 2))
}

func TestDistinctOwners(t *testing.T) {
	assert.Equal(t, 1, distinctOwners(nil, "host-a"))
	assert.Equal(t, 1, distinctOwners(map[int]string{0: "host-a"}, "host-a"))
	assert.Equal(t, 2, distinctOwners(map[int]string{0: "host-b", 1: "host-b"}, "host-a"))
	assert.Equal(t, 3, distinctOwners(map[int]string{0: "host-b", 1: "host-c"}, "host-a"))
}

func TestRebalanceClaimsAllWhenAlone(t *testing.T) {
	coord := lease.NewMemoryCoordinator()
	cps := checkpoint.NewMemoryStore()
	h := newTestHost("host-a", coord, cps, testBinding([]int{0, 1, 2, 3}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.tick(ctx)

	assert.Equal(t, []int{0, 1, 2, 3}, ownedPartitions(h))

	owners, err := coord.Owners(ctx, "orders.events", "streamgate-orders", []int{0, 1, 2, 3})
	require.NoError(t, err)
	for p, o := range owners {
		assert.Equal(t, "host-a", o, "partition %d", p)
	}

	h.shutdown()
	assert.Empty(t, ownedPartitions(h), "workers gone after shutdown")

	owners, err = coord.Owners(ctx, "orders.events", "streamgate-orders", []int{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, owners, "leases released on shutdown")
}

func TestRebalanceRespectsFairShare(t *testing.T) {
	coord := lease.NewMemoryCoordinator()
	cps := checkpoint.NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// another host already works half of the stream
	_, err := coord.Acquire(ctx, "orders.events", "streamgate-orders", 0, "host-b", time.Minute)
	require.NoError(t, err)
	_, err = coord.Acquire(ctx, "orders.events", "streamgate-orders", 1, "host-b", time.Minute)
	require.NoError(t, err)

	h := newTestHost("host-a", coord, cps, testBinding([]int{0, 1, 2, 3}))
	h.tick(ctx)

	assert.Equal(t, []int{2, 3}, ownedPartitions(h))

	h.shutdown()
}

func TestRunReleasesLeasesBeforeReturning(t *testing.T) {
	coord := lease.NewMemoryCoordinator()
	cps := checkpoint.NewMemoryStore()
	h := newTestHost("host-a", coord, cps, testBinding([]int{0, 1}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(ownedPartitions(h)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// by the time Run returns, nothing may still hold a partition: the
	// process is free to exit without stranding leases until TTL expiry
	owners, err := coord.Owners(context.Background(), "orders.events", "streamgate-orders", []int{0, 1})
	require.NoError(t, err)
	assert.Empty(t, owners)
	assert.Empty(t, ownedPartitions(h))
}

func TestStartOffset(t *testing.T) {
	cps := checkpoint.NewMemoryStore()
	coord := lease.NewMemoryCoordinator()
	ctx := context.Background()

	b := testBinding([]int{0})
	h := newTestHost("host-a", coord, cps, b)

	// fresh partition follows the binding's start position
	off, err := h.startOffset(ctx, &b, 0)
	require.NoError(t, err)
	assert.Equal(t, stream.OffsetEarliest, off)

	b.StartAt = model.StartLatest
	off, err = h.startOffset(ctx, &b, 0)
	require.NoError(t, err)
	assert.Equal(t, stream.OffsetLatest, off)

	// checkpointed partition resumes one past the stored offset
	require.NoError(t, cps.Save(ctx, checkpoint.Checkpoint{
		Key:    checkpoint.Key{Stream: b.Stream, ConsumerGroup: b.ConsumerGroup, Partition: 0},
		Offset: 41,
		Epoch:  1,
	}))

	off, err = h.startOffset(ctx, &b, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), off)
}
