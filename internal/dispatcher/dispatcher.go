package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/metrics"
	"github.com/streamgate/streamgate/internal/model"
	"github.com/streamgate/streamgate/internal/util"
)

// ErrHalted is returned when an invocation fails past its retries and the
// binding's on_error policy is halt.
var ErrHalted = errors.New("dispatcher: halted by error policy")

// Fetcher yields successive events from one partition.
type Fetcher interface {
	Fetch(ctx context.Context) (model.Event, error)
	Close() error
}

// Invoker delivers one invocation to the binding's function target.
type Invoker interface {
	Invoke(ctx context.Context, inv model.Invocation) error
}

// Recorder persists dispatched batches to the invocation log. Optional.
type Recorder interface {
	Insert(ctx context.Context, rec model.InvocationRecord) error
}

type Config struct {
	Binding      string
	Cardinality  model.Cardinality
	OnError      model.OnErrorPolicy
	MaxBatchSize int
	MaxBatchWait time.Duration
}

// Dispatcher owns one leased partition:
// - fetches events from the partition reader,
// - buffers them until size or wait limits,
// - invokes the function target per the binding's cardinality,
// - advances the checkpoint under the lease epoch.
type Dispatcher struct {
	cfg     Config
	pc      model.PartitionContext
	epoch   int64
	fetcher Fetcher
	invoker Invoker
	cps     checkpoint.Store
	records Recorder
	log     *zap.Logger
	tracer  trace.Tracer
}

func New(
	cfg Config,
	pc model.PartitionContext,
	epoch int64,
	fetcher Fetcher,
	invoker Invoker,
	cps checkpoint.Store,
	records Recorder,
	log *zap.Logger,
) *Dispatcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = 250 * time.Millisecond
	}
	if !cfg.Cardinality.Valid() {
		cfg.Cardinality = model.CardinalityMany
	}
	if !cfg.OnError.Valid() {
		cfg.OnError = model.OnErrorSkip
	}

	return &Dispatcher{
		cfg:     cfg,
		pc:      pc,
		epoch:   epoch,
		fetcher: fetcher,
		invoker: invoker,
		cps:     cps,
		records: records,
		log: log.With(
			zap.String("binding", cfg.Binding),
			zap.Int("partition", pc.Partition),
		),
		tracer: otel.Tracer("streamgate/dispatcher"),
	}
}

// Run blocks until ctx is cancelled, the fetcher fails terminally, the
// checkpoint store fences us out, or the halt policy fires.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := make(chan model.Event, d.cfg.MaxBatchSize*2)
	go d.runFetcher(ctx, events)

	tick := time.NewTicker(d.cfg.MaxBatchWait)
	defer tick.Stop()

	var batch []model.Event

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		evs := batch
		batch = nil
		return d.dispatch(ctx, evs)
	}

	for {
		select {
		case <-ctx.Done():
			if n := len(batch); n > 0 {
				// undispatched events reappear on the next owner's read
				d.log.Info("shutdown with buffered events, they will be redelivered", zap.Int("count", n))
			}
			return nil

		case ev, ok := <-events:
			if !ok {
				// the fetcher only closes this channel on cancellation, so
				// dispatching here would invoke with a dead context
				if n := len(batch); n > 0 {
					d.log.Info("shutdown with buffered events, they will be redelivered", zap.Int("count", n))
				}
				return nil
			}
			metrics.EventsTotal.WithLabelValues(d.cfg.Binding).Inc()
			batch = append(batch, ev)
			if len(batch) >= d.cfg.MaxBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-tick.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) runFetcher(ctx context.Context, out chan<- model.Event) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, err := d.fetcher.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn("fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch invokes the target for one batch and advances the checkpoint.
func (d *Dispatcher) dispatch(ctx context.Context, evs []model.Event) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(
		attribute.String("streamgate.binding", d.cfg.Binding),
		attribute.Int("streamgate.partition", d.pc.Partition),
		attribute.Int("streamgate.events", len(evs)),
	))
	defer span.End()

	start := time.Now()
	metrics.BatchSize.WithLabelValues(d.cfg.Binding).Observe(float64(len(evs)))

	status := model.InvocationSucceeded

	switch d.cfg.Cardinality {
	case model.CardinalityOne:
		for i := range evs {
			err := d.invoker.Invoke(ctx, d.invocation(evs[i:i+1]))
			if err == nil {
				metrics.InvocationsTotal.WithLabelValues(d.cfg.Binding, model.InvocationSucceeded.String()).Inc()
				continue
			}
			if cerr := ctx.Err(); cerr != nil {
				// shutdown mid-batch, not a poison event; the rest of the
				// batch is redelivered to the next owner
				return cerr
			}
			metrics.InvocationsTotal.WithLabelValues(d.cfg.Binding, model.InvocationFailed.String()).Inc()

			if d.cfg.OnError == model.OnErrorHalt {
				// keep the positions we finished, then stop
				if i > 0 {
					if cerr := d.saveCheckpoint(ctx, evs[i-1].Offset); cerr != nil {
						return cerr
					}
				}
				d.record(ctx, evs, model.InvocationFailed, start)
				d.log.Error("invocation failed, halting partition",
					zap.Int64("offset", evs[i].Offset), zap.Error(err))
				return ErrHalted
			}

			status = model.InvocationSkipped
			d.log.Warn("invocation failed, skipping event",
				zap.Int64("offset", evs[i].Offset), zap.Error(err))
		}

	default: // many
		if err := d.invoker.Invoke(ctx, d.invocation(evs)); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			metrics.InvocationsTotal.WithLabelValues(d.cfg.Binding, model.InvocationFailed.String()).Inc()

			if d.cfg.OnError == model.OnErrorHalt {
				d.record(ctx, evs, model.InvocationFailed, start)
				d.log.Error("invocation failed, halting partition",
					zap.Int64("first_offset", evs[0].Offset),
					zap.Int64("last_offset", evs[len(evs)-1].Offset),
					zap.Error(err))
				return ErrHalted
			}

			status = model.InvocationSkipped
			d.log.Warn("invocation failed, skipping batch",
				zap.Int64("first_offset", evs[0].Offset),
				zap.Int64("last_offset", evs[len(evs)-1].Offset),
				zap.Error(err))
		} else {
			metrics.InvocationsTotal.WithLabelValues(d.cfg.Binding, model.InvocationSucceeded.String()).Inc()
		}
	}

	if err := d.saveCheckpoint(ctx, evs[len(evs)-1].Offset); err != nil {
		return err
	}
	d.record(ctx, evs, status, start)

	return nil
}

func (d *Dispatcher) invocation(evs []model.Event) model.Invocation {
	return model.Invocation{
		ID:        util.New(),
		Binding:   d.cfg.Binding,
		Partition: d.pc,
		Events:    evs,
	}
}

func (d *Dispatcher) saveCheckpoint(ctx context.Context, offset int64) error {
	err := d.cps.Save(ctx, checkpoint.Checkpoint{
		Key: checkpoint.Key{
			Stream:        d.pc.Stream,
			ConsumerGroup: d.pc.ConsumerGroup,
			Partition:     d.pc.Partition,
		},
		Offset: offset,
		Epoch:  d.epoch,
	})
	if errors.Is(err, checkpoint.ErrStaleEpoch) {
		d.log.Warn("lost partition ownership, stopping", zap.Int64("offset", offset))
		return err
	}
	if err != nil {
		d.log.Error("checkpoint save failed", zap.Int64("offset", offset), zap.Error(err))
		return err
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, evs []model.Event, status model.InvocationStatus, start time.Time) {
	if d.records == nil {
		return
	}

	rec := model.InvocationRecord{
		ID:          util.New(),
		Binding:     d.cfg.Binding,
		Stream:      d.pc.Stream,
		Partition:   int32(d.pc.Partition),
		FirstOffset: evs[0].Offset,
		LastOffset:  evs[len(evs)-1].Offset,
		EventCount:  int32(len(evs)),
		Status:      status,
		DurationMs:  time.Since(start).Milliseconds(),
		CreatedAt:   time.Now(),
	}
	if err := d.records.Insert(ctx, rec); err != nil {
		d.log.Warn("invocation log insert failed", zap.Error(err))
	}
}
