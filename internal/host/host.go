package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/dispatcher"
	"github.com/streamgate/streamgate/internal/lease"
	"github.com/streamgate/streamgate/internal/metrics"
	"github.com/streamgate/streamgate/internal/model"
	"github.com/streamgate/streamgate/internal/stream"
)

// Binding is a fully resolved trigger binding: parsed enums, partition list,
// broker set, and the invoker pool for its target.
type Binding struct {
	Name          string
	Stream        string
	ConsumerGroup string
	Brokers       []string
	MinBytes      int
	MaxBytes      int
	Cardinality   model.Cardinality
	OnError       model.OnErrorPolicy
	StartAt       model.StartPosition
	MaxBatchSize  int
	MaxBatchWait  time.Duration
	Partitions    []int
	Invoker       dispatcher.Invoker
}

// FetcherFactory opens a partition reader positioned at offset, which may be
// an absolute position or one of the stream.Offset* sentinels.
type FetcherFactory func(b Binding, partition int, offset int64) (dispatcher.Fetcher, error)

type partitionWorker struct {
	lease  lease.Lease
	cancel context.CancelFunc
	done   chan struct{}
}

// Host runs the lease loop: every renew interval it renews held leases,
// reaps dead workers, and claims unowned partitions up to its fair share.
type Host struct {
	owner      string
	ttl        time.Duration
	renewEvery time.Duration
	coord      lease.Coordinator
	cps        checkpoint.Store
	records    dispatcher.Recorder
	newFetcher FetcherFactory
	bindings   []Binding
	log        *zap.Logger

	mu      sync.Mutex
	running map[string]map[int]*partitionWorker
	wg      sync.WaitGroup
}

func New(
	owner string,
	ttl, renewEvery time.Duration,
	coord lease.Coordinator,
	cps checkpoint.Store,
	records dispatcher.Recorder,
	newFetcher FetcherFactory,
	bindings []Binding,
	log *zap.Logger,
) *Host {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if renewEvery <= 0 || renewEvery >= ttl {
		renewEvery = ttl / 3
	}

	return &Host{
		owner:      owner,
		ttl:        ttl,
		renewEvery: renewEvery,
		coord:      coord,
		cps:        cps,
		records:    records,
		newFetcher: newFetcher,
		bindings:   bindings,
		log:        log.With(zap.String("owner", owner)),
		running:    make(map[string]map[int]*partitionWorker),
	}
}

func (h *Host) Owner() string       { return h.owner }
func (h *Host) Bindings() []Binding { return h.bindings }

// Run blocks until ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	h.log.Info("host starting", zap.Int("bindings", len(h.bindings)))

	tick := time.NewTicker(h.renewEvery)
	defer tick.Stop()

	h.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case <-tick.C:
			h.tick(ctx)
		}
	}
}

func (h *Host) tick(ctx context.Context) {
	for i := range h.bindings {
		h.rebalance(ctx, &h.bindings[i])
	}
}

// rebalance renews this host's leases for one binding and claims free
// partitions until it holds its fair share.
func (h *Host) rebalance(ctx context.Context, b *Binding) {
	h.mu.Lock()
	workers := h.running[b.Name]
	if workers == nil {
		workers = make(map[int]*partitionWorker)
		h.running[b.Name] = workers
	}
	h.mu.Unlock()

	// reap finished workers, renew the rest
	for p, w := range workers {
		select {
		case <-w.done:
			h.removeWorker(b.Name, p)
			continue
		default:
		}

		l, err := h.coord.Renew(ctx, w.lease, h.ttl)
		if err != nil {
			if !errors.Is(err, lease.ErrNotOwner) {
				h.log.Warn("lease renew failed", zap.String("binding", b.Name), zap.Int("partition", p), zap.Error(err))
			}
			w.cancel()
			h.removeWorker(b.Name, p)
			continue
		}
		w.lease = l
	}

	owners, err := h.coord.Owners(ctx, b.Stream, b.ConsumerGroup, b.Partitions)
	if err != nil {
		h.log.Warn("owner lookup failed", zap.String("binding", b.Name), zap.Error(err))
		metrics.OwnedPartitions.WithLabelValues(b.Name).Set(float64(len(workers)))
		return
	}

	fair := fairShare(len(b.Partitions), distinctOwners(owners, h.owner))

	for _, p := range b.Partitions {
		if len(workers) >= fair {
			break
		}
		if _, mine := workers[p]; mine {
			continue
		}
		if _, taken := owners[p]; taken {
			continue
		}

		l, err := h.coord.Acquire(ctx, b.Stream, b.ConsumerGroup, p, h.owner, h.ttl)
		if errors.Is(err, lease.ErrNotAcquired) {
			continue
		}
		if err != nil {
			h.log.Warn("lease acquire failed", zap.String("binding", b.Name), zap.Int("partition", p), zap.Error(err))
			continue
		}

		if err := h.startWorker(ctx, b, l); err != nil {
			h.log.Error("partition worker start failed", zap.String("binding", b.Name), zap.Int("partition", p), zap.Error(err))
			h.releaseLease(l)
		}
	}

	metrics.OwnedPartitions.WithLabelValues(b.Name).Set(float64(len(workers)))
}

func (h *Host) startWorker(ctx context.Context, b *Binding, l lease.Lease) error {
	offset, err := h.startOffset(ctx, b, l.Partition)
	if err != nil {
		return err
	}

	fetcher, err := h.newFetcher(*b, l.Partition, offset)
	if err != nil {
		return err
	}

	pc := model.PartitionContext{
		Stream:        b.Stream,
		ConsumerGroup: b.ConsumerGroup,
		Partition:     l.Partition,
		Owner:         h.owner,
	}

	d := dispatcher.New(
		dispatcher.Config{
			Binding:      b.Name,
			Cardinality:  b.Cardinality,
			OnError:      b.OnError,
			MaxBatchSize: b.MaxBatchSize,
			MaxBatchWait: b.MaxBatchWait,
		},
		pc, l.Epoch, fetcher, b.Invoker, h.cps, h.records, h.log,
	)

	wctx, cancel := context.WithCancel(ctx)
	w := &partitionWorker{lease: l, cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	h.running[b.Name][l.Partition] = w
	h.mu.Unlock()

	h.log.Info("partition acquired",
		zap.String("binding", b.Name),
		zap.Int("partition", l.Partition),
		zap.Int64("epoch", l.Epoch),
		zap.Int64("offset", offset))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(w.done)
		defer cancel()

		err := d.Run(wctx)
		_ = fetcher.Close()
		h.releaseLease(w.lease)

		if err != nil {
			h.log.Warn("partition worker stopped",
				zap.String("binding", b.Name),
				zap.Int("partition", l.Partition),
				zap.Error(err))
		}
	}()

	return nil
}

// startOffset resolves where the reader begins: one past the checkpoint, or
// the binding's start position for a fresh partition.
func (h *Host) startOffset(ctx context.Context, b *Binding, partition int) (int64, error) {
	cp, err := h.cps.Load(ctx, checkpoint.Key{
		Stream:        b.Stream,
		ConsumerGroup: b.ConsumerGroup,
		Partition:     partition,
	})
	if errors.Is(err, checkpoint.ErrNotFound) {
		if b.StartAt == model.StartLatest {
			return stream.OffsetLatest, nil
		}
		return stream.OffsetEarliest, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.Offset + 1, nil
}

func (h *Host) removeWorker(binding string, partition int) {
	h.mu.Lock()
	delete(h.running[binding], partition)
	h.mu.Unlock()
}

func (h *Host) releaseLease(l lease.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.coord.Release(ctx, l); err != nil {
		h.log.Warn("lease release failed",
			zap.String("stream", l.Stream),
			zap.Int("partition", l.Partition),
			zap.Error(err))
	}
}

func (h *Host) shutdown() {
	h.log.Info("host stopping")

	h.mu.Lock()
	for _, workers := range h.running {
		for _, w := range workers {
			w.cancel()
		}
	}
	h.mu.Unlock()

	h.wg.Wait()

	h.mu.Lock()
	h.running = make(map[string]map[int]*partitionWorker)
	h.mu.Unlock()
}

// PartitionStatus is one owned partition as reported by the admin API.
type PartitionStatus struct {
	Binding       string    `json:"binding"`
	Stream        string    `json:"stream"`
	ConsumerGroup string    `json:"consumer_group"`
	Partition     int       `json:"partition"`
	Owner         string    `json:"owner"`
	Epoch         int64     `json:"epoch"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Snapshot lists the partitions this host currently owns.
func (h *Host) Snapshot() []PartitionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []PartitionStatus
	for name, workers := range h.running {
		for _, w := range workers {
			out = append(out, PartitionStatus{
				Binding:       name,
				Stream:        w.lease.Stream,
				ConsumerGroup: w.lease.ConsumerGroup,
				Partition:     w.lease.Partition,
				Owner:         w.lease.Owner,
				Epoch:         w.lease.Epoch,
				ExpiresAt:     w.lease.ExpiresAt,
			})
		}
	}
	return out
}

// fairShare is the most partitions one host may hold: ceil(n / owners),
// counting this host among the owners.
func fairShare(partitions, owners int) int {
	if owners < 1 {
		owners = 1
	}
	return (partitions + owners - 1) / owners
}

// distinctOwners counts unique owners in the lease view, always including
// self so a newcomer claims a share instead of everything.
func distinctOwners(owners map[int]string, self string) int {
	seen := map[string]struct{}{self: {}}
	for _, o := range owners {
		seen[o] = struct{}{}
	}
	return len(seen)
}
