package model

import "strings"

type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

func (c Cardinality) String() string { return string(c) }

// ParseCardinality normalizes input; empty => many.
// Returns (value, true) if valid; otherwise (many, false).
func ParseCardinality(s string) (Cardinality, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "many":
		return CardinalityMany, true
	case "one":
		return CardinalityOne, true
	default:
		return CardinalityMany, false
	}
}

func (c Cardinality) Valid() bool {
	return c == CardinalityOne || c == CardinalityMany
}

// OnErrorPolicy decides what happens to a partition after an invocation has
// exhausted its retries: skip past the batch or halt the partition worker.
type OnErrorPolicy string

const (
	OnErrorSkip OnErrorPolicy = "skip"
	OnErrorHalt OnErrorPolicy = "halt"
)

func (p OnErrorPolicy) String() string { return string(p) }

// ParseOnErrorPolicy normalizes input; empty => skip.
func ParseOnErrorPolicy(s string) (OnErrorPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return OnErrorSkip, true
	case "halt":
		return OnErrorHalt, true
	default:
		return OnErrorSkip, false
	}
}

func (p OnErrorPolicy) Valid() bool {
	return p == OnErrorSkip || p == OnErrorHalt
}

// StartPosition is where a reader starts on a partition that has never been
// checkpointed.
type StartPosition string

const (
	StartEarliest StartPosition = "earliest"
	StartLatest   StartPosition = "latest"
)

func (s StartPosition) String() string { return string(s) }

// ParseStartPosition normalizes input; empty => earliest.
func ParseStartPosition(s string) (StartPosition, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "earliest":
		return StartEarliest, true
	case "latest":
		return StartLatest, true
	default:
		return StartEarliest, false
	}
}

func (s StartPosition) Valid() bool {
	return s == StartEarliest || s == StartLatest
}
