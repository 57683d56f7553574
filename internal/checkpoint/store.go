package checkpoint

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the partition has never been checkpointed.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrStaleEpoch means a writer with a lower lease epoch tried to save;
	// the caller has lost ownership of the partition.
	ErrStaleEpoch = errors.New("checkpoint: stale epoch")
)

// Key identifies one checkpoint: a partition as seen by one consumer group.
type Key struct {
	Stream        string `json:"stream"`
	ConsumerGroup string `json:"consumer_group"`
	Partition     int    `json:"partition"`
}

// Checkpoint is the durable last-processed position of a partition.
type Checkpoint struct {
	Key
	Offset    int64     `json:"offset"`
	Epoch     int64     `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists checkpoints. Save enforces epoch fencing: writes with an
// epoch lower than the stored one fail with ErrStaleEpoch, and writes with an
// equal epoch may only move the offset forward (regressions are ignored).
type Store interface {
	Load(ctx context.Context, key Key) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
	List(ctx context.Context, stream, group string) ([]Checkpoint, error)
}
