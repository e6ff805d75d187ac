// Package backend talks to the models that generate and review edits.
// Every call is stateless: one prompt in, one reply out.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownType is returned by New for an unsupported provider type.
var ErrUnknownType = errors.New("unknown backend type")

// Backend defines the interface that all backend adapters must implement.
type Backend interface {
	// Send sends a message and returns the model's reply.
	Send(ctx context.Context, msg Message) (Response, error)

	// Close releases any resources held by the adapter.
	Close() error

	// Name identifies the provider in logs and breaker state.
	Name() string
}

// New creates a backend for cfg.Type.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "ollama":
		return NewOllamaAdapter(cfg)
	case "claude":
		return NewClaudeAdapter(cfg, pm)
	case "command":
		return NewCommandAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
