package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/minions/internal/backend"
	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/pipeline"
)

// RoleConfig holds the per-role model settings.
type RoleConfig struct {
	System      string  // System prompt; empty keeps the provider's
	Temperature float64 // Zero leaves the provider default
}

// Generator implements pipeline.Generator over a Backend.
type Generator struct {
	backend backend.Backend
	role    RoleConfig
	logger  *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(b backend.Backend, role RoleConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{backend: b, role: role, logger: logger}
}

// Generate renders the prompt, calls the model once and parses the reply.
func (g *Generator) Generate(ctx context.Context, req pipeline.GenerateRequest) (edit.Candidate, error) {
	prompt, err := RenderGenerate(GenerateData{
		Path:         req.Path,
		Instruction:  req.Instruction,
		Original:     req.Original,
		ErrorContext: req.ErrorContext,
	})
	if err != nil {
		return edit.Candidate{}, err
	}

	resp, err := g.backend.Send(ctx, backend.Message{
		Content:     prompt,
		System:      g.role.System,
		Temperature: g.role.Temperature,
	})
	if err != nil {
		return edit.Candidate{}, fmt.Errorf("%s: %w", g.backend.Name(), err)
	}

	c := ParseCandidate(resp.Content)
	c.TaskID = req.TaskID
	c.Attempt = req.Attempt

	g.logger.Debug("candidate generated",
		"task_id", req.TaskID,
		"attempt", req.Attempt,
		"provider", g.backend.Name(),
		"kind", c.Kind.String(),
		"edits", len(c.Edits),
		"completion_tokens", resp.CompletionTokens)
	return c, nil
}

// Reviewer implements gate.Reviewer over a Backend.
type Reviewer struct {
	backend backend.Backend
	role    RoleConfig
}

// NewReviewer creates a Reviewer.
func NewReviewer(b backend.Backend, role RoleConfig) *Reviewer {
	return &Reviewer{backend: b, role: role}
}

// Review asks the model to judge candidate against original and returns
// the raw reply.
func (r *Reviewer) Review(ctx context.Context, path, original, candidate, instruction string) (string, error) {
	prompt, err := RenderReview(ReviewData{
		Path:        path,
		Instruction: instruction,
		Original:    original,
		Diff:        RenderDiff(original, candidate),
	})
	if err != nil {
		return "", err
	}

	resp, err := r.backend.Send(ctx, backend.Message{
		Content:     prompt,
		System:      r.role.System,
		Temperature: r.role.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.backend.Name(), err)
	}
	return resp.Content, nil
}
