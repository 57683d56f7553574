package stream

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/streamgate/streamgate/internal/model"
)

// Offset sentinels for partitions that have never been checkpointed.
const (
	OffsetEarliest = kafka.FirstOffset
	OffsetLatest   = kafka.LastOffset
)

type ReaderConfig struct {
	Brokers   []string
	Topic     string
	Partition int
	Offset    int64         // absolute offset, or OffsetEarliest/OffsetLatest
	MinBytes  int           // default 1KB
	MaxBytes  int           // default 10MB
	MaxWait   time.Duration // default 50ms
}

// Reader consumes a single partition of a stream. It runs without a consumer
// group: positioning comes from the checkpoint store, not from broker-side
// offset commits.
type Reader struct {
	r *kafka.Reader
}

func NewPartitionReader(c ReaderConfig) (*Reader, error) {
	min := c.MinBytes
	if min <= 0 {
		min = 1 << 10 // 1KB
	}
	max := c.MaxBytes
	if max <= 0 {
		max = 10 << 20 // 10MB
	}
	mw := c.MaxWait
	if mw <= 0 {
		mw = 50 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   c.Brokers,
		Topic:     c.Topic,
		Partition: c.Partition,
		MinBytes:  min,
		MaxBytes:  max,
		MaxWait:   mw,
	})

	if err := r.SetOffset(c.Offset); err != nil {
		_ = r.Close()
		return nil, err
	}

	return &Reader{r: r}, nil
}

// Fetch blocks for the next event on the partition.
func (r *Reader) Fetch(ctx context.Context) (model.Event, error) {
	m, err := r.r.FetchMessage(ctx)
	if err != nil {
		return model.Event{}, err
	}
	return eventFromMessage(m), nil
}

func (r *Reader) Close() error { return r.r.Close() }

func eventFromMessage(m kafka.Message) model.Event {
	props := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		props[h.Key] = string(h.Value)
	}

	return model.Event{
		Stream:    m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		// Kafka has no separate sequence number; the offset serves as both.
		SequenceNumber: m.Offset,
		EnqueuedTime:   m.Time,
		Key:            string(m.Key),
		Body:           m.Value,
		Properties:     props,
	}
}
