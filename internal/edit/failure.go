package edit

import "fmt"

// Strategy names the reconciliation strategy that produced a file body.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyExact
	StrategyFuzzy
	StrategyUnifiedDiff
	StrategyFullReplace
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyExact:
		return "exact"
	case StrategyFuzzy:
		return "fuzzy"
	case StrategyUnifiedDiff:
		return "unified-diff"
	case StrategyFullReplace:
		return "full-replace"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// FailureKind classifies why an attempt failed. Every kind is retryable.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureGeneration
	FailureSyntax
	FailureReview
	FailureReconcile
	FailureCommit
	FailureCancelled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureGeneration:
		return "generation"
	case FailureSyntax:
		return "syntax"
	case FailureReview:
		return "review"
	case FailureReconcile:
		return "reconcile"
	case FailureCommit:
		return "commit"
	case FailureCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// AttemptError describes a failed attempt. Its message is what the next
// generation attempt receives as error context.
type AttemptError struct {
	Kind     FailureKind
	Reason   string
	Location []Location
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s failure: %s", e.Kind, e.Reason)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}
