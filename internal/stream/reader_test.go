package stream

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestEventFromMessage(t *testing.T) {
	enq := time.Unix(1700000000, 0)

	ev := eventFromMessage(kafka.Message{
		Topic:     "orders.events",
		Partition: 3,
		Offset:    42,
		Time:      enq,
		Key:       []byte("cust-7"),
		Value:     []byte(`{"id":"x"}`),
		Headers: []kafka.Header{
			{Key: "source", Value: []byte("checkout")},
			{Key: "trace", Value: []byte("abc")},
		},
	})

	assert.Equal(t, "orders.events", ev.Stream)
	assert.Equal(t, 3, ev.Partition)
	assert.Equal(t, int64(42), ev.Offset)
	assert.Equal(t, int64(42), ev.SequenceNumber)
	assert.Equal(t, enq, ev.EnqueuedTime)
	assert.Equal(t, "cust-7", ev.Key)
	assert.Equal(t, []byte(`{"id":"x"}`), ev.Body)
	assert.Equal(t, map[string]string{"source": "checkout", "trace": "abc"}, ev.Properties)
}

func TestEventFromMessageNoHeaders(t *testing.T) {
	ev := eventFromMessage(kafka.Message{Topic: "orders.events", Offset: 0})

	assert.NotNil(t, ev.Properties, "properties never nil on the wire")
	assert.Empty(t, ev.Properties)
}
