package invoker

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// MicroBreaker shields an endpoint that keeps failing: a run of consecutive
// failures opens it for a fixed window, after which a single probe decides
// whether it closes again.
type MicroBreaker struct {
	mu sync.Mutex

	st        breakerState
	failures  int
	threshold int
	openFor   time.Duration
	openUntil time.Time
	probing   bool
}

func NewMicroBreaker(threshold int, openFor time.Duration) *MicroBreaker {
	return &MicroBreaker{threshold: threshold, openFor: openFor}
}

// Ready reports whether the endpoint may be offered work right now.
func (b *MicroBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateOpen:
		return !b.probing && time.Now().After(b.openUntil)
	case stateHalfOpen:
		return !b.probing
	default:
		return true
	}
}

// TryAcquire reserves the endpoint for one invocation. While open or
// half-open, at most one probe is admitted at a time.
func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stateClosed:
		return true
	case stateOpen:
		if b.probing || !time.Now().After(b.openUntil) {
			return false
		}
		b.st = stateHalfOpen
	case stateHalfOpen:
		if b.probing {
			return false
		}
	}
	b.probing = true
	return true
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	b.st = stateClosed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	b.failures++
	if b.st == stateHalfOpen || b.failures >= b.threshold {
		b.st = stateOpen
		b.openUntil = time.Now().Add(b.openFor)
		b.probing = false
	}
	b.mu.Unlock()
}
