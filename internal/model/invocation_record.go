package model

import "time"

type InvocationStatus string

const (
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
	InvocationSkipped   InvocationStatus = "skipped"
)

func (s InvocationStatus) String() string {
	return string(s)
}

func (s InvocationStatus) Valid() bool {
	return s == InvocationSucceeded || s == InvocationFailed || s == InvocationSkipped
}

// InvocationRecord is one dispatched batch as persisted in the invocation log.
type InvocationRecord struct {
	ID          string           `db:"id" json:"id"`
	Binding     string           `db:"binding" json:"binding"`
	Stream      string           `db:"stream" json:"stream"`
	Partition   int32            `db:"partition_id" json:"partition"`
	FirstOffset int64            `db:"first_offset" json:"first_offset"`
	LastOffset  int64            `db:"last_offset" json:"last_offset"`
	EventCount  int32            `db:"event_count" json:"event_count"`
	Status      InvocationStatus `db:"status" json:"status"`
	DurationMs  int64            `db:"duration_ms" json:"duration_ms"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
