package stream

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Writer publishes events to a stream. Used by the produce command.
type Writer struct {
	w *kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (w *Writer) Publish(ctx context.Context, key string, value []byte, props map[string]string) error {
	headers := make([]kafka.Header, 0, len(props))
	for k, v := range props {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return w.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	})
}

func (w *Writer) Close() error { return w.w.Close() }
