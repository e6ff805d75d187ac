package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_Factory(t *testing.T) {
	pm := NewProcessManager()
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  error
	}{
		{name: "ollama", cfg: Config{Type: "ollama", Model: "qwen"}, wantName: "ollama"},
		{name: "claude", cfg: Config{Type: "claude", Name: "reviewer"}, wantName: "reviewer"},
		{name: "command", cfg: Config{Type: "command", Command: "llm"}, wantName: "command"},
		{name: "unknown", cfg: Config{Type: "codex"}, wantErr: ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, pm)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.wantName)
			}
			if err := b.Close(); err != nil {
				t.Errorf("Close() = %v", err)
			}
		})
	}
}

func TestNew_PropagatesAdapterErrors(t *testing.T) {
	if _, err := New(Config{Type: "ollama"}, nil); err == nil {
		t.Error("expected missing-model error")
	}
	if _, err := New(Config{Type: "command"}, nil); err == nil {
		t.Error("expected missing-command error")
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := withTimeout(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}

	ctx2, cancel2 := withTimeout(context.Background(), time.Minute)
	defer cancel2()
	if _, ok := ctx2.Deadline(); !ok {
		t.Error("expected a deadline")
	}
}
