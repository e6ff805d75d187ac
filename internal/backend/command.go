package backend

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ansiEscape matches terminal colour and cursor sequences some CLIs emit
// even when stdout is not a terminal.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// CommandAdapter implements the Backend interface for any CLI that reads a
// prompt and prints a plain-text reply. Args may contain "{prompt}",
// "{model}" and "{system}" placeholders. When no arg carries "{prompt}" the
// prompt is written to stdin instead.
type CommandAdapter struct {
	name         string
	command      string
	args         []string
	model        string
	systemPrompt string
	workDir      string
	cfg          Config
	procMgr      *ProcessManager
}

// NewCommandAdapter creates a command adapter. cfg.Command is required.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command provider %q: command is required", cfg.name())
	}
	return &CommandAdapter{
		name:         cfg.name(),
		command:      cfg.Command,
		args:         append([]string(nil), cfg.Args...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		workDir:      cfg.WorkDir,
		cfg:          cfg,
		procMgr:      procMgr,
	}, nil
}

// Send runs the command once and returns its trimmed stdout.
func (a *CommandAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	ctx, cancel := withTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	args, stdin := a.buildArgs(msg)
	cmd := newCommand(ctx, a.command, args...)
	if a.workDir != "" {
		cmd.Dir = a.workDir
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdout, _, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{}, fmt.Errorf("%s command failed: %w", a.name, err)
	}

	content := strings.TrimSpace(ansiEscape.ReplaceAllString(string(stdout), ""))
	if content == "" {
		return Response{}, fmt.Errorf("%s returned no output", a.name)
	}
	return Response{Content: content, Model: a.model}, nil
}

// buildArgs substitutes placeholders and decides whether the prompt goes
// on stdin. A system prompt without a "{system}" slot is prepended to the
// prompt text.
func (a *CommandAdapter) buildArgs(msg Message) (args []string, stdin string) {
	system := a.systemPrompt
	if msg.System != "" {
		system = msg.System
	}

	hasPrompt, hasSystem := false, false
	for _, arg := range a.args {
		hasPrompt = hasPrompt || strings.Contains(arg, "{prompt}")
		hasSystem = hasSystem || strings.Contains(arg, "{system}")
	}

	prompt := msg.Content
	if system != "" && !hasSystem {
		prompt = system + "\n\n" + prompt
	}

	r := strings.NewReplacer("{prompt}", prompt, "{model}", a.model, "{system}", system)
	args = make([]string, 0, len(a.args))
	for _, arg := range a.args {
		args = append(args, r.Replace(arg))
	}

	if !hasPrompt {
		stdin = prompt
	}
	return args, stdin
}

// Close is a no-op; there is one subprocess per call.
func (a *CommandAdapter) Close() error {
	return nil
}

// Name returns the configured provider name.
func (a *CommandAdapter) Name() string {
	return a.name
}
