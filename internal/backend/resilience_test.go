package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// scriptedBackend replays a fixed list of responses and errors.
type scriptedBackend struct {
	name      string
	mu        sync.Mutex
	responses []any // Each entry is either Response or error
	callCount int
}

func (b *scriptedBackend) Send(ctx context.Context, msg Message) (Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.callCount >= len(b.responses) {
		return Response{}, fmt.Errorf("unexpected call %d (only %d responses configured)", b.callCount+1, len(b.responses))
	}

	resp := b.responses[b.callCount]
	b.callCount++

	switch v := resp.(type) {
	case Response:
		return v, nil
	case error:
		return Response{}, v
	default:
		return Response{}, fmt.Errorf("invalid response type: %T", v)
	}
}

func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) Name() string {
	if b.name == "" {
		return "scripted"
	}
	return b.name
}

func (b *scriptedBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     10 * time.Millisecond,
		MaxInterval:         50 * time.Millisecond,
		MaxElapsedTime:      500 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func TestResilient_TransientThenSuccess(t *testing.T) {
	inner := &scriptedBackend{
		responses: []any{
			errors.New("connection reset"),
			errors.New("connection reset"),
			Response{Content: "success"},
		},
	}
	r := NewResilient(inner, NewBreakerRegistry(0, nil), fastRetry(), nil)

	resp, err := r.Send(context.Background(), Message{Content: "test"})
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if resp.Content != "success" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", inner.CallCount())
	}
}

func TestResilient_CircuitOpensAndFailsFast(t *testing.T) {
	inner := &scriptedBackend{name: "flaky", responses: make([]any, 50)}
	for i := range inner.responses {
		inner.responses[i] = fmt.Errorf("persistent error %d", i+1)
	}
	registry := NewBreakerRegistry(3, nil)
	r := NewResilient(inner, registry, fastRetry(), nil)

	var lastErr error
	for range 5 {
		_, lastErr = r.Send(context.Background(), Message{Content: "test"})
		if errors.Is(lastErr, gobreaker.ErrOpenState) {
			break
		}
	}
	if !errors.Is(lastErr, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, last error: %v", lastErr)
	}
	if registry.Get("flaky").State() != gobreaker.StateOpen {
		t.Error("breaker not open")
	}

	calls := inner.CallCount()
	if _, err := r.Send(context.Background(), Message{Content: "test"}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected fail-fast, got %v", err)
	}
	if inner.CallCount() != calls {
		t.Error("open breaker still reached the provider")
	}
}

func TestResilient_DeadlineIsNotRetried(t *testing.T) {
	inner := &scriptedBackend{
		responses: []any{
			fmt.Errorf("command interrupted: %w", context.DeadlineExceeded),
			Response{Content: "never"},
		},
	}
	r := NewResilient(inner, NewBreakerRegistry(0, nil), fastRetry(), nil)

	_, err := r.Send(context.Background(), Message{Content: "test"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if inner.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", inner.CallCount())
	}
}

func TestResilient_CancelledContextStopsImmediately(t *testing.T) {
	inner := &scriptedBackend{responses: []any{Response{Content: "never"}}}
	r := NewResilient(inner, NewBreakerRegistry(0, nil), fastRetry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Send(ctx, Message{Content: "test"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inner.CallCount() != 0 {
		t.Errorf("expected no calls, got %d", inner.CallCount())
	}
}

func TestBreakerRegistry_PerProvider(t *testing.T) {
	registry := NewBreakerRegistry(0, nil)
	a := registry.Get("a")
	if registry.Get("a") != a {
		t.Error("same name should return the same breaker")
	}
	if registry.Get("b") == a {
		t.Error("different names should not share a breaker")
	}
}

func TestBreakerRegistry_CancellationDoesNotTrip(t *testing.T) {
	registry := NewBreakerRegistry(2, nil)
	cb := registry.Get("p")
	for range 5 {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, context.Canceled
		})
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestResilient_Delegates(t *testing.T) {
	inner := &scriptedBackend{name: "inner"}
	r := NewResilient(inner, NewBreakerRegistry(0, nil), fastRetry(), nil)
	if r.Name() != "inner" {
		t.Errorf("Name() = %q", r.Name())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
