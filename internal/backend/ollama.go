package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// defaultHTTPTimeout bounds a single chat request when the provider sets none.
const defaultHTTPTimeout = 5 * time.Minute

// OllamaAdapter implements the Backend interface over Ollama's /api/chat.
type OllamaAdapter struct {
	name         string
	baseURL      string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaAdapter creates an Ollama adapter. A model is required.
func NewOllamaAdapter(cfg Config) (*OllamaAdapter, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama provider %q: model is required", cfg.name())
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/api")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &OllamaAdapter{
		name:         cfg.name(),
		baseURL:      baseURL,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Send posts one non-streaming chat request.
func (a *OllamaAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	req := ollamaRequest{
		Model:  a.model,
		Stream: false,
	}
	system := a.systemPrompt
	if msg.System != "" {
		system = msg.System
	}
	if system != "" {
		req.Messages = append(req.Messages, ollamaMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, ollamaMessage{Role: "user", Content: msg.Content})
	if msg.Temperature > 0 {
		req.Options = &ollamaOptions{Temperature: msg.Temperature}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var or ollamaResponse
	if err := json.Unmarshal(data, &or); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if or.Error != "" {
		return Response{}, fmt.Errorf("ollama error: %s", or.Error)
	}

	return Response{
		Content:          or.Message.Content,
		Model:            or.Model,
		PromptTokens:     or.PromptEvalCount,
		CompletionTokens: or.EvalCount,
	}, nil
}

// Close releases idle HTTP connections.
func (a *OllamaAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// Name returns the configured provider name.
func (a *OllamaAdapter) Name() string {
	return a.name
}
