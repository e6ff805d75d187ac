package backend

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClaudeAdapter_BuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  Message
		want []string
	}{
		{
			name: "prompt only",
			cfg:  Config{Type: "claude"},
			msg:  Message{Content: "Hello"},
			want: []string{"-p", "Hello", "--output-format", "json"},
		},
		{
			name: "model and configured system prompt",
			cfg:  Config{Type: "claude", Model: "sonnet", SystemPrompt: "You edit code"},
			msg:  Message{Content: "Hi"},
			want: []string{"-p", "Hi", "--output-format", "json", "--model", "sonnet", "--system-prompt", "You edit code"},
		},
		{
			name: "message system prompt wins",
			cfg:  Config{Type: "claude", SystemPrompt: "default"},
			msg:  Message{Content: "Hi", System: "reviewer"},
			want: []string{"-p", "Hi", "--output-format", "json", "--system-prompt", "reviewer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewClaudeAdapter(tt.cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			got := adapter.buildArgs(tt.msg)
			if !slices.Equal(got, tt.want) {
				t.Errorf("args = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseClaudeResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContent string
		wantModel   string
		wantError   bool
	}{
		{
			name:        "string result",
			input:       `{"type": "result", "result": "PASS", "model": "sonnet", "usage": {"input_tokens": 12, "output_tokens": 1}}`,
			wantContent: "PASS",
			wantModel:   "sonnet",
		},
		{
			name:        "content array",
			input:       `{"result": {"content": [{"type": "text", "text": "Part 1"}, {"type": "text", "text": "Part 2"}]}}`,
			wantContent: "Part 1Part 2",
		},
		{
			name:        "non-text content skipped",
			input:       `{"result": {"content": [{"type": "text", "text": "Text"}, {"type": "image", "data": "..."}]}}`,
			wantContent: "Text",
		},
		{
			name:      "reported error",
			input:     `{"result": "rate limited", "is_error": true}`,
			wantError: true,
		},
		{
			name:      "invalid JSON",
			input:     `not valid json`,
			wantError: true,
		},
		{
			name:      "unexpected result shape",
			input:     `{"result": 42}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseClaudeResponse([]byte(tt.input))
			if tt.wantError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if resp.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", resp.Content, tt.wantContent)
			}
			if resp.Model != tt.wantModel {
				t.Errorf("model = %q, want %q", resp.Model, tt.wantModel)
			}
		})
	}
}

func TestClaudeAdapter_SendRunsBinary(t *testing.T) {
	script := writeScript(t, `echo "{\"result\": \"got $2\", \"model\": \"fake\"}"`)
	adapter, err := NewClaudeAdapter(Config{Type: "claude", Name: "claude-gen", Command: script}, NewProcessManager())
	if err != nil {
		t.Fatal(err)
	}

	resp, err := adapter.Send(context.Background(), Message{Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "got hello" || resp.Model != "fake" {
		t.Errorf("resp = %+v", resp)
	}
	if adapter.Name() != "claude-gen" {
		t.Errorf("Name() = %q", adapter.Name())
	}
	if err := adapter.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestClaudeAdapter_SendFailure(t *testing.T) {
	script := writeScript(t, `echo "not logged in" >&2; exit 2`)
	adapter, err := NewClaudeAdapter(Config{Type: "claude", Command: script}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = adapter.Send(context.Background(), Message{Content: "hello"})
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("err = %v", err)
	}
}
