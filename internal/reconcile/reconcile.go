// Package reconcile turns a proposed edit into a complete file body.
//
// Strategies are tried in a fixed order and the first one that succeeds
// wins: Exact, Fuzzy, UnifiedDiff, FullReplace. A strategy that does not
// apply to the proposal (a full file has no search text, a search/replace
// edit has no hunks) is skipped. The same inputs always select the same
// strategy and produce the same output.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/aristath/minions/internal/edit"
)

// Reason classifies why a strategy did not produce content.
type Reason string

const (
	ReasonNotFound       Reason = "not-found"
	ReasonAmbiguous      Reason = "ambiguous"
	ReasonBelowThreshold Reason = "below-threshold"
	ReasonHunkMismatch   Reason = "hunk-mismatch"
	ReasonInapplicable   Reason = "inapplicable"
)

// Options tunes the fuzzy and unified-diff strategies.
type Options struct {
	FuzzyThreshold float64 // Minimum similarity in [0,1] for a fuzzy match
	FuzzyMargin    float64 // Required lead of the best window over the runner-up
	DriftLines     int     // Hunk search radius around its stated line number
}

// DefaultOptions returns the recommended defaults.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: 0.8,
		FuzzyMargin:    0.05,
		DriftLines:     3,
	}
}

// Result is a successful reconciliation. Content is always a complete,
// directly writable file body.
type Result struct {
	Strategy edit.Strategy
	Content  string
}

// Attempt records one strategy that was tried and why it failed.
type Attempt struct {
	Strategy edit.Strategy
	Reason   Reason
	Detail   string
}

func (a Attempt) String() string {
	if a.Detail == "" {
		return fmt.Sprintf("%s: %s", a.Strategy, a.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", a.Strategy, a.Reason, a.Detail)
}

// Failure is returned when no strategy could reconcile the proposal.
// Attempts lists every strategy tried, in order.
type Failure struct {
	Attempts []Attempt
}

func (f *Failure) Error() string {
	if len(f.Attempts) == 0 {
		return "no reconciliation strategy applied"
	}
	parts := make([]string, len(f.Attempts))
	for i, a := range f.Attempts {
		parts[i] = a.String()
	}
	return "no reconciliation strategy applied: " + strings.Join(parts, "; ")
}

// Tried returns the strategies attempted, in order.
func (f *Failure) Tried() []edit.Strategy {
	out := make([]edit.Strategy, len(f.Attempts))
	for i, a := range f.Attempts {
		out[i] = a.Strategy
	}
	return out
}

// Reconciler applies candidates to file content.
type Reconciler struct {
	opts Options
}

// New creates a Reconciler. Out-of-range options fall back to the defaults;
// a zero margin or drift is kept as given.
func New(opts Options) *Reconciler {
	def := DefaultOptions()
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = def.FuzzyThreshold
	}
	if opts.FuzzyMargin < 0 {
		opts.FuzzyMargin = def.FuzzyMargin
	}
	if opts.DriftLines < 0 {
		opts.DriftLines = def.DriftLines
	}
	return &Reconciler{opts: opts}
}

// Options returns the effective options.
func (r *Reconciler) Options() Options {
	return r.opts
}

// Reconcile applies candidate c to original. On failure the returned error
// is a *Failure.
func (r *Reconciler) Reconcile(original string, c edit.Candidate) (Result, error) {
	var attempts []Attempt

	if c.Kind == edit.KindLocalizedEdit && len(c.Edits) > 0 {
		content, strategy, tried, ok := r.applyEdits(original, c.Edits)
		if ok {
			return Result{Strategy: strategy, Content: content}, nil
		}
		attempts = append(attempts, tried...)
	}

	if c.Kind == edit.KindLocalizedEdit && strings.TrimSpace(c.Diff) != "" {
		content, attempt, ok := r.applyUnifiedDiff(original, c.Diff)
		if ok {
			return Result{Strategy: edit.StrategyUnifiedDiff, Content: content}, nil
		}
		attempts = append(attempts, attempt)
	}

	if c.Kind == edit.KindFullFile {
		return Result{Strategy: edit.StrategyFullReplace, Content: c.RawText}, nil
	}

	if len(attempts) == 0 {
		attempts = append(attempts, Attempt{
			Strategy: edit.StrategyFullReplace,
			Reason:   ReasonInapplicable,
			Detail:   "localized edit carries no search text and no hunks",
		})
	}
	return Result{}, &Failure{Attempts: attempts}
}

// Apply reconciles a single search/replace edit. It is a convenience for
// callers that do not build a Candidate.
func (r *Reconciler) Apply(original, search, replace string) (Result, error) {
	return r.Reconcile(original, edit.Candidate{
		Kind:  edit.KindLocalizedEdit,
		Edits: []edit.SearchReplace{{Search: search, Replace: replace}},
	})
}

// applyEdits applies every edit in order. Each edit runs its own
// Exact→Fuzzy cascade against the output of the previous edit. The reported
// strategy is the most permissive one any edit needed.
func (r *Reconciler) applyEdits(original string, edits []edit.SearchReplace) (string, edit.Strategy, []Attempt, bool) {
	content := original
	used := edit.StrategyExact

	for i, e := range edits {
		next, attempt, ok := applyExact(content, e)
		if ok {
			content = next
			continue
		}
		exactAttempt := attempt

		next, attempt, ok = r.applyFuzzy(content, e)
		if ok {
			content = next
			used = edit.StrategyFuzzy
			continue
		}

		if len(edits) > 1 {
			exactAttempt.Detail = prefixEdit(i, exactAttempt.Detail)
			attempt.Detail = prefixEdit(i, attempt.Detail)
		}
		return "", edit.StrategyNone, []Attempt{exactAttempt, attempt}, false
	}

	return content, used, nil, true
}

func prefixEdit(i int, detail string) string {
	if detail == "" {
		return fmt.Sprintf("edit %d", i+1)
	}
	return fmt.Sprintf("edit %d: %s", i+1, detail)
}
