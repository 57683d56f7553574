package lease

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired means another owner currently holds the partition.
	ErrNotAcquired = errors.New("lease: not acquired")
	// ErrNotOwner means a renew or release was attempted by a host that no
	// longer holds the lease.
	ErrNotOwner = errors.New("lease: not owner")
)

// Lease is a time-bounded claim on one partition for one consumer group.
// Epoch is a fencing token: it increases on every acquisition, so checkpoint
// writers can reject output from an owner that has been superseded.
type Lease struct {
	Stream        string    `json:"stream"`
	ConsumerGroup string    `json:"consumer_group"`
	Partition     int       `json:"partition"`
	Owner         string    `json:"owner"`
	Epoch         int64     `json:"epoch"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Coordinator arbitrates partition ownership across competing hosts.
type Coordinator interface {
	// Acquire claims a free partition. Returns ErrNotAcquired if it is held.
	Acquire(ctx context.Context, stream, group string, partition int, owner string, ttl time.Duration) (Lease, error)
	// Renew extends a held lease. Returns ErrNotOwner if the lease expired
	// and someone else (or nobody) holds it now.
	Renew(ctx context.Context, l Lease, ttl time.Duration) (Lease, error)
	// Release gives the partition up early. Releasing a lease that is no
	// longer held is not an error.
	Release(ctx context.Context, l Lease) error
	// Owners reports the current owner of each listed partition; partitions
	// without a live lease are absent from the map.
	Owners(ctx context.Context, stream, group string, partitions []int) (map[int]string, error)
}
