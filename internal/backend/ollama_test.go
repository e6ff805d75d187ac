package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaAdapter_Send(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "qwen2.5-coder",
			"message":           map[string]string{"role": "assistant", "content": "PASS"},
			"done":              true,
			"prompt_eval_count": 40,
			"eval_count":        2,
		})
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(Config{Type: "ollama", Model: "qwen2.5-coder", BaseURL: srv.URL + "/", SystemPrompt: "be strict"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	resp, err := a.Send(context.Background(), Message{Content: "review this", Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "PASS" || resp.PromptTokens != 40 || resp.CompletionTokens != 2 {
		t.Errorf("resp = %+v", resp)
	}

	if got.Stream {
		t.Error("request asked for streaming")
	}
	if got.Model != "qwen2.5-coder" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "review this" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Options == nil || got.Options.Temperature != 0.2 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestOllamaAdapter_BaseURLWithAPISuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "ok"}, "done": true}`))
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(Config{Type: "ollama", Model: "m", BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := a.Send(context.Background(), Message{Content: "x"})
	if err != nil || resp.Content != "ok" {
		t.Errorf("resp=%+v err=%v", resp, err)
	}
}

func TestOllamaAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
			want: "ollama API error 404",
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error": "out of memory"}`))
			},
			want: "out of memory",
		},
		{
			name: "bad JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{`))
			},
			want: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a, err := NewOllamaAdapter(Config{Type: "ollama", Model: "m", BaseURL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			_, err = a.Send(context.Background(), Message{Content: "x"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestOllamaAdapter_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a, err := NewOllamaAdapter(Config{Type: "ollama", Model: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := a.Send(ctx, Message{Content: "x"}); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestNewOllamaAdapter_Defaults(t *testing.T) {
	if _, err := NewOllamaAdapter(Config{Type: "ollama"}); err == nil {
		t.Error("expected error without model")
	}
	a, err := NewOllamaAdapter(Config{Type: "ollama", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if a.baseURL != DefaultOllamaURL {
		t.Errorf("baseURL = %q", a.baseURL)
	}
	if a.Name() != "ollama" {
		t.Errorf("Name() = %q", a.Name())
	}
}
