package lease

import (
	"context"
	"sync"
	"time"
)

type memKey struct {
	stream    string
	group     string
	partition int
}

type memLease struct {
	owner     string
	epoch     int64
	expiresAt time.Time
}

// MemoryCoordinator is an in-process Coordinator for tests and single-node
// development runs.
type MemoryCoordinator struct {
	mu     sync.Mutex
	leases map[memKey]memLease
	epochs map[memKey]int64
	now    func() time.Time
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{
		leases: make(map[memKey]memLease),
		epochs: make(map[memKey]int64),
		now:    time.Now,
	}
}

func (c *MemoryCoordinator) Acquire(_ context.Context, stream, group string, partition int, owner string, ttl time.Duration) (Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := memKey{stream, group, partition}
	if cur, ok := c.leases[k]; ok && c.now().Before(cur.expiresAt) {
		return Lease{}, ErrNotAcquired
	}

	c.epochs[k]++
	l := memLease{owner: owner, epoch: c.epochs[k], expiresAt: c.now().Add(ttl)}
	c.leases[k] = l

	return Lease{
		Stream:        stream,
		ConsumerGroup: group,
		Partition:     partition,
		Owner:         owner,
		Epoch:         l.epoch,
		ExpiresAt:     l.expiresAt,
	}, nil
}

func (c *MemoryCoordinator) Renew(_ context.Context, l Lease, ttl time.Duration) (Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := memKey{l.Stream, l.ConsumerGroup, l.Partition}
	cur, ok := c.leases[k]
	if !ok || cur.owner != l.Owner || !c.now().Before(cur.expiresAt) {
		return Lease{}, ErrNotOwner
	}

	cur.expiresAt = c.now().Add(ttl)
	c.leases[k] = cur
	l.ExpiresAt = cur.expiresAt
	return l, nil
}

func (c *MemoryCoordinator) Release(_ context.Context, l Lease) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := memKey{l.Stream, l.ConsumerGroup, l.Partition}
	if cur, ok := c.leases[k]; ok && cur.owner == l.Owner {
		delete(c.leases, k)
	}
	return nil
}

func (c *MemoryCoordinator) Owners(_ context.Context, stream, group string, partitions []int) (map[int]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owners := make(map[int]string, len(partitions))
	for _, p := range partitions {
		if cur, ok := c.leases[memKey{stream, group, p}]; ok && c.now().Before(cur.expiresAt) {
			owners[p] = cur.owner
		}
	}
	return owners, nil
}
