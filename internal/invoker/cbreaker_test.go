package invoker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(2, time.Minute)

	assert.True(t, b.Ready())
	assert.True(t, b.TryAcquire())

	b.OnFailure()
	assert.True(t, b.Ready(), "one failure below threshold keeps it closed")

	b.OnFailure()
	assert.False(t, b.Ready())
	assert.False(t, b.TryAcquire())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 30*time.Millisecond)

	b.OnFailure()
	assert.False(t, b.Ready())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, b.Ready())

	// only one probe is admitted
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	b.OnSuccess()
	assert.True(t, b.Ready())
	assert.True(t, b.TryAcquire())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b := NewMicroBreaker(1, 30*time.Millisecond)

	b.OnFailure()
	time.Sleep(40 * time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.Ready())
	assert.False(t, b.TryAcquire())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewMicroBreaker(2, time.Minute)

	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()

	assert.True(t, b.Ready(), "success in between resets the failure run")
}
