package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 500ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 1min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// DefaultTripThreshold is the number of consecutive failures that opens a breaker.
const DefaultTripThreshold = 5

// BreakerRegistry manages one circuit breaker per provider name.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	threshold uint32
	openFor   time.Duration
	logger    *slog.Logger
}

// NewBreakerRegistry creates a registry whose breakers trip after threshold
// consecutive failures. A non-positive threshold uses DefaultTripThreshold.
func NewBreakerRegistry(threshold int, logger *slog.Logger) *BreakerRegistry {
	if threshold <= 0 {
		threshold = DefaultTripThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		threshold: uint32(threshold),
		openFor:   30 * time.Second,
		logger:    logger,
	}
}

// Get returns the circuit breaker for the given provider, creating it on
// first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	threshold := r.threshold
	logger := r.logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // probes allowed while half-open
		Timeout:     r.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and our own deadlines say nothing about provider health.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[name] = cb
	return cb
}

// Resilient wraps a Backend with retry and a circuit breaker. Transient
// transport errors are retried inside one Send; cancellation, deadlines and
// an open breaker end the call at once.
type Resilient struct {
	inner   Backend
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  *slog.Logger
}

// NewResilient wraps inner using the breaker registered under inner.Name().
func NewResilient(inner Backend, breakers *BreakerRegistry, retry RetryConfig, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{
		inner:   inner,
		breaker: breakers.Get(inner.Name()),
		retry:   retry,
		logger:  logger,
	}
}

// Send sends msg with exponential backoff retry and circuit breaker protection.
func (r *Resilient) Send(ctx context.Context, msg Message) (Response, error) {
	var resp Response
	tries := 0

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		tries++

		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.Send(ctx, msg)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("provider %s unavailable: %w", r.inner.Name(), err))
			}
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return backoff.Permanent(err)
			}
			r.logger.Debug("provider call failed, will retry", "provider", r.inner.Name(), "try", tries, "error", err)
			return err
		}

		resp = result.(Response)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Close closes the wrapped backend.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

// Name returns the wrapped backend's name.
func (r *Resilient) Name() string {
	return r.inner.Name()
}
