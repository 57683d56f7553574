package invoker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamgate/streamgate/internal/model"
)

var (
	ErrNoHealthy = fmt.Errorf("no healthy endpoints")
	ErrNoAcquire = fmt.Errorf("endpoint not acquired")
)

// Pool fans invocations out over a target group, round-robin over the
// endpoints whose breakers are closed, retrying up to maxAttempts.
type Pool struct {
	target            string
	endpoints         []Endpoint
	roundRobinCounter atomic.Uint64
	maxAttempts       int
	tracer            trace.Tracer
}

func NewPool(target string, endpoints []Endpoint, maxAttempts int) *Pool {
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	return &Pool{
		target:      target,
		endpoints:   endpoints,
		maxAttempts: maxAttempts,
		tracer:      otel.Tracer("streamgate/invoker"),
	}
}

func (p *Pool) Target() string { return p.target }

func (p *Pool) selectEndpoint() (Endpoint, error) {
	healthy := make([]Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if e.Ready() {
			healthy = append(healthy, e)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := p.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (p *Pool) tryOnce(ctx context.Context, inv model.Invocation) error {
	e, err := p.selectEndpoint()
	if err != nil {
		return err
	}

	if !e.Acquire() {
		return ErrNoAcquire
	}

	ctx, span := p.tracer.Start(ctx, "invoker.invoke", trace.WithAttributes(
		attribute.String("streamgate.target", p.target),
		attribute.String("streamgate.endpoint", e.Name()),
		attribute.String("streamgate.binding", inv.Binding),
		attribute.Int("streamgate.events", len(inv.Events)),
	))
	defer span.End()

	if err := e.Invoke(ctx, inv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// Invoke delivers one invocation, retrying across endpoints.
func (p *Pool) Invoke(ctx context.Context, inv model.Invocation) error {
	var last error
	for i := 0; i < p.maxAttempts; i++ {
		if err := p.tryOnce(ctx, inv); err == nil {
			return nil
		} else {
			last = err
		}
	}

	if last == nil {
		last = fmt.Errorf("invoke failed")
	}

	return last
}
