package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ClaudeAdapter implements the Backend interface for the Claude Code CLI.
// Each Send is a separate one-shot invocation with no session carried over.
type ClaudeAdapter struct {
	name         string
	binary       string
	workDir      string
	model        string
	systemPrompt string
	timeoutCfg   Config
	procMgr      *ProcessManager
}

// claudeResponse represents the JSON printed by `claude -p --output-format json`.
// Depending on the CLI version, result is either a plain string or an object
// holding a content array:
//
//	{"type": "result", "result": "text", "model": "..."}
//	{"result": {"content": [{"type": "text", "text": "text"}]}}
type claudeResponse struct {
	Result  json.RawMessage `json:"result"`
	Model   string          `json:"model"`
	IsError bool            `json:"is_error"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeContent struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeAdapter creates a Claude Code backend adapter. cfg.Command
// overrides the binary name. The ProcessManager is optional.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	binary := cfg.Command
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeAdapter{
		name:         cfg.name(),
		binary:       binary,
		workDir:      cfg.WorkDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		timeoutCfg:   cfg,
		procMgr:      procMgr,
	}, nil
}

// Send runs the CLI once with msg as the prompt and returns its reply.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	ctx, cancel := withTimeout(ctx, a.timeoutCfg.Timeout)
	defer cancel()

	cmd := newCommand(ctx, a.binary, a.buildArgs(msg)...)
	if a.workDir != "" {
		cmd.Dir = a.workDir
	}

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{}, fmt.Errorf("claude command failed: %w", err)
	}

	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("failed to parse claude response: %w (stderr: %s)", err, strings.TrimSpace(string(stderr)))
	}
	return resp, nil
}

// Close is a no-op; there is one subprocess per call.
func (a *ClaudeAdapter) Close() error {
	return nil
}

// Name returns the configured provider name.
func (a *ClaudeAdapter) Name() string {
	return a.name
}

// buildArgs constructs the command-line arguments for the claude CLI.
func (a *ClaudeAdapter) buildArgs(msg Message) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	system := a.systemPrompt
	if msg.System != "" {
		system = msg.System
	}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}

	return args
}

// parseClaudeResponse extracts the reply text from the CLI's JSON output.
func parseClaudeResponse(data []byte) (Response, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	var content string
	var text string
	if err := json.Unmarshal(cr.Result, &text); err == nil {
		content = text
	} else {
		var cc claudeContent
		if err := json.Unmarshal(cr.Result, &cc); err != nil {
			return Response{}, fmt.Errorf("unexpected result shape: %w", err)
		}
		for _, item := range cc.Content {
			if item.Type == "text" {
				content += item.Text
			}
		}
	}

	if cr.IsError {
		return Response{}, fmt.Errorf("claude reported an error: %s", content)
	}

	return Response{
		Content:          content,
		Model:            cr.Model,
		PromptTokens:     cr.Usage.InputTokens,
		CompletionTokens: cr.Usage.OutputTokens,
	}, nil
}
