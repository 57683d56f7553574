package invoker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgate/streamgate/internal/model"
)

func testInvocation() model.Invocation {
	return model.Invocation{
		ID:      "01K3ABCDEF0000000000000000",
		Binding: "orders",
		Partition: model.PartitionContext{
			Stream:        "orders.events",
			ConsumerGroup: "streamgate-orders",
			Partition:     0,
			Owner:         "host-a",
		},
		Events: []model.Event{{Stream: "orders.events", Offset: 7, SequenceNumber: 7}},
	}
}

func countingServer(t *testing.T, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Invocation-Id"))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoolRoundRobin(t *testing.T) {
	var hitsA, hitsB atomic.Int64
	srvA := countingServer(t, http.StatusOK, &hitsA)
	srvB := countingServer(t, http.StatusOK, &hitsB)

	p := NewPool("orders-fn", []Endpoint{
		NewHTTPEndpoint("fn-a", srvA.URL, "/invoke", 0, 0, 0),
		NewHTTPEndpoint("fn-b", srvB.URL, "/invoke", 0, 0, 0),
	}, 3)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Invoke(context.Background(), testInvocation()))
	}

	assert.Equal(t, int64(2), hitsA.Load())
	assert.Equal(t, int64(2), hitsB.Load())
}

func TestPoolRetriesAcrossEndpoints(t *testing.T) {
	var hitsBad, hitsGood atomic.Int64
	srvBad := countingServer(t, http.StatusInternalServerError, &hitsBad)
	srvGood := countingServer(t, http.StatusOK, &hitsGood)

	p := NewPool("orders-fn", []Endpoint{
		NewHTTPEndpoint("fn-bad", srvBad.URL, "/invoke", 0, 5, 0),
		NewHTTPEndpoint("fn-good", srvGood.URL, "/invoke", 0, 5, 0),
	}, 3)

	require.NoError(t, p.Invoke(context.Background(), testInvocation()))
	assert.Equal(t, int64(1), hitsBad.Load())
	assert.Equal(t, int64(1), hitsGood.Load())
}

func TestPoolNoHealthyEndpoints(t *testing.T) {
	var hits atomic.Int64
	srv := countingServer(t, http.StatusBadGateway, &hits)

	// threshold 1: the first failure trips the breaker for a long window
	p := NewPool("orders-fn", []Endpoint{
		NewHTTPEndpoint("fn-flaky", srv.URL, "/invoke", 0, 1, 60000),
	}, 3)

	err := p.Invoke(context.Background(), testInvocation())
	require.Error(t, err)

	err = p.Invoke(context.Background(), testInvocation())
	assert.ErrorIs(t, err, ErrNoHealthy)
	assert.Equal(t, int64(1), hits.Load())
}

func TestPoolEmpty(t *testing.T) {
	p := NewPool("orders-fn", nil, 2)

	err := p.Invoke(context.Background(), testInvocation())
	assert.ErrorIs(t, err, ErrNoHealthy)
}
