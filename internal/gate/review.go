package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/minions/internal/edit"
)

// ErrMalformedVerdict is the reason given when a reviewer's reply is
// neither PASS nor FAIL: <reason>.
var ErrMalformedVerdict = errors.New("malformed verdict")

// Reviewer asks a second model whether candidate correctly applies
// instruction to original without changing anything else. It returns the
// model's raw reply.
type Reviewer interface {
	Review(ctx context.Context, path, original, candidate, instruction string) (string, error)
}

// ReviewGate turns a Reviewer's reply into a Verdict.
type ReviewGate struct {
	reviewer Reviewer
}

// NewReviewGate creates a ReviewGate over reviewer.
func NewReviewGate(reviewer Reviewer) *ReviewGate {
	return &ReviewGate{reviewer: reviewer}
}

// Check runs the review. A transport error is returned as is; the caller
// decides how to account for it. Any reply is parsed with ParseVerdict.
func (g *ReviewGate) Check(ctx context.Context, path, original, candidate, instruction string) (edit.Verdict, error) {
	reply, err := g.reviewer.Review(ctx, path, original, candidate, instruction)
	if err != nil {
		return edit.Verdict{}, fmt.Errorf("review: %w", err)
	}
	return ParseVerdict(reply), nil
}

// ParseVerdict reads the first non-empty line of a reviewer reply.
//
//	PASS            passes (any case, trailing punctuation allowed)
//	FAIL: <reason>  fails with reason; the reason may continue on later lines
//	anything else   fails with "malformed verdict"
func ParseVerdict(reply string) edit.Verdict {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")

	first := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return edit.Fail(ErrMalformedVerdict.Error())
	}

	line := strings.TrimSpace(lines[first])
	upper := strings.ToUpper(line)

	if strings.TrimRight(upper, ".!") == "PASS" {
		return edit.Pass()
	}

	if strings.HasPrefix(upper, "FAIL:") {
		reason := strings.TrimSpace(line[len("FAIL:"):])
		if reason == "" {
			reason = strings.TrimSpace(strings.Join(lines[first+1:], "\n"))
		}
		if reason != "" {
			return edit.Fail(reason)
		}
	}

	return edit.Fail(ErrMalformedVerdict.Error())
}
