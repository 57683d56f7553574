package model

import "time"

// Event is a single record read from a stream partition, carrying the
// metadata a function target receives alongside the payload.
type Event struct {
	Stream         string            `json:"stream"`
	Partition      int               `json:"partition"`
	Offset         int64             `json:"offset"`
	SequenceNumber int64             `json:"sequence_number"`
	EnqueuedTime   time.Time         `json:"enqueued_time"`
	Key            string            `json:"key,omitempty"`
	Body           []byte            `json:"body"`
	Properties     map[string]string `json:"properties"`
}

// PartitionContext identifies the partition an invocation was read from and
// the host instance that currently owns it.
type PartitionContext struct {
	Stream        string `json:"stream"`
	ConsumerGroup string `json:"consumer_group"`
	Partition     int    `json:"partition"`
	Owner         string `json:"owner"`
}

// Invocation is the payload POSTed to a function target. With cardinality
// "many" Events holds a whole batch; with "one" it holds a single event.
type Invocation struct {
	ID        string           `json:"id"`
	Binding   string           `json:"binding"`
	Partition PartitionContext `json:"partition"`
	Events    []Event          `json:"events"`
}
