package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/streamgate/streamgate/internal/model"
)

// Endpoint is one function worker capable of receiving invocations.
type Endpoint interface {
	Name() string
	Ready() bool
	Acquire() bool
	Invoke(ctx context.Context, inv model.Invocation) error
}

// HTTPEndpoint delivers invocations as JSON POSTs, guarded by a breaker so a
// crashing function worker is skipped while it recovers.
type HTTPEndpoint struct {
	name   string
	url    string
	client *http.Client
	br     *MicroBreaker
}

func NewHTTPEndpoint(name, baseURL, path string, timeoutMs, failThreshold, openForMs int) *HTTPEndpoint {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPEndpoint{
		name:   name,
		url:    baseURL + path,
		client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:     NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (e *HTTPEndpoint) Name() string  { return e.name }
func (e *HTTPEndpoint) Ready() bool   { return e.br.Ready() }
func (e *HTTPEndpoint) Acquire() bool { return e.br.TryAcquire() }

func (e *HTTPEndpoint) Invoke(ctx context.Context, inv model.Invocation) error {
	if err := e.post(ctx, inv); err != nil {
		e.br.OnFailure()
		return err
	}

	e.br.OnSuccess()

	return nil
}

func (e *HTTPEndpoint) post(ctx context.Context, inv model.Invocation) error {
	b, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Invocation-Id", inv.ID)

	res, err := e.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("endpoint=%s status=%d", e.name, res.StatusCode)
	}

	return nil
}
