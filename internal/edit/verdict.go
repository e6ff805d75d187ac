package edit

import (
	"fmt"
	"strings"
)

// Location points at a region in a file, 1-based. Zero values mean unknown.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line == 0 {
		return ""
	}
	if l.Column == 0 {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
}

// Verdict is the outcome of a gate.
type Verdict struct {
	Passed bool
	Reason string
	// Lines flagged by the gate, if any.
	Detail []Location
}

// Pass returns a passing verdict.
func Pass() Verdict {
	return Verdict{Passed: true}
}

// Fail returns a failing verdict with the given reason and locations.
func Fail(reason string, locs ...Location) Verdict {
	return Verdict{Passed: false, Reason: reason, Detail: locs}
}

// Lines returns the 1-based line numbers in Detail, without duplicates.
func (v Verdict) Lines() []int {
	seen := make(map[int]bool)
	var lines []int
	for _, loc := range v.Detail {
		if loc.Line > 0 && !seen[loc.Line] {
			seen[loc.Line] = true
			lines = append(lines, loc.Line)
		}
	}
	return lines
}

// Describe renders the reason together with any locations.
func (v Verdict) Describe() string {
	if v.Passed {
		return "passed"
	}
	if len(v.Detail) == 0 {
		return v.Reason
	}
	locs := make([]string, 0, len(v.Detail))
	for _, l := range v.Detail {
		if s := l.String(); s != "" {
			locs = append(locs, s)
		}
	}
	if len(locs) == 0 {
		return v.Reason
	}
	return fmt.Sprintf("%s (%s)", v.Reason, strings.Join(locs, "; "))
}
