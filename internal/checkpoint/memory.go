package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. For tests and single-node
// development runs; positions do not survive a restart.
type MemoryStore struct {
	mu  sync.Mutex
	cps map[Key]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[Key]Checkpoint)}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.cps[key]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cps[cp.Key]
	if ok {
		if cp.Epoch < cur.Epoch {
			return ErrStaleEpoch
		}
		if cp.Epoch == cur.Epoch && cp.Offset <= cur.Offset {
			return nil // redelivery, keep the stored position
		}
	}

	cp.UpdatedAt = time.Now()
	s.cps[cp.Key] = cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, stream, group string) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Checkpoint
	for k, cp := range s.cps {
		if k.Stream == stream && k.ConsumerGroup == group {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partition < out[j].Partition })
	return out, nil
}
