package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/minions/internal/edit"
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// hunkLine is one body line of a hunk. Op is ' ', '-' or '+'.
type hunkLine struct {
	op        byte
	text      string
	noNewline bool
}

// Hunk is one contiguous block of a unified diff.
type Hunk struct {
	OldStart int  // 1-based line number from the header
	HasStart bool // False for bare "@@ ... @@" headers
	lines    []hunkLine
}

// oldLines returns the lines the hunk expects to find (context and removals).
func (h Hunk) oldLines() []string {
	var out []string
	for _, l := range h.lines {
		if l.op != '+' {
			out = append(out, l.text)
		}
	}
	return out
}

// ParseHunks extracts the hunks of a single-file unified diff. File headers
// (diff --git, index, ---, +++) are skipped.
func ParseHunks(diff string) ([]Hunk, error) {
	var hunks []Hunk
	var cur *Hunk

	raw := strings.Split(strings.ReplaceAll(diff, "\r\n", "\n"), "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}

	for _, line := range raw {
		switch {
		case strings.HasPrefix(line, "@@"):
			h := Hunk{}
			if m := hunkHeader.FindStringSubmatch(line); m != nil {
				start, err := strconv.Atoi(m[1])
				if err != nil {
					return nil, fmt.Errorf("parsing hunk header %q: %w", line, err)
				}
				h.OldStart = start
				h.HasStart = true
			}
			hunks = append(hunks, h)
			cur = &hunks[len(hunks)-1]

		case cur == nil:
			// Preamble before the first hunk.

		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "),
			strings.HasPrefix(line, "diff --git"), strings.HasPrefix(line, "index "):
			// File headers repeated between hunks.

		case strings.HasPrefix(line, `\`):
			if n := len(cur.lines); n > 0 {
				cur.lines[n-1].noNewline = true
			}

		case line == "":
			// Models drop the leading space of blank context lines.
			cur.lines = append(cur.lines, hunkLine{op: ' '})

		default:
			op := line[0]
			if op != ' ' && op != '-' && op != '+' {
				return nil, fmt.Errorf("unexpected line in hunk %d: %q", len(hunks), line)
			}
			cur.lines = append(cur.lines, hunkLine{op: op, text: line[1:]})
		}
	}

	if len(hunks) == 0 {
		return nil, fmt.Errorf("no hunks found")
	}
	for i, h := range hunks {
		if len(h.lines) == 0 {
			return nil, fmt.Errorf("hunk %d is empty", i+1)
		}
	}
	return hunks, nil
}

// applyUnifiedDiff locates every hunk in original and applies them all, or
// none. A hunk with a line number is searched within ±DriftLines of that
// line, shifted by the drift found for the previous hunk. A hunk without a
// line number may match anywhere after the previous hunk. Either way the
// match must be unique.
func (r *Reconciler) applyUnifiedDiff(original, diff string) (string, Attempt, bool) {
	fail := func(reason Reason, detail string) (string, Attempt, bool) {
		return "", Attempt{Strategy: edit.StrategyUnifiedDiff, Reason: reason, Detail: detail}, false
	}

	hunks, err := ParseHunks(diff)
	if err != nil {
		return fail(ReasonHunkMismatch, err.Error())
	}

	lines := splitLines(original)
	type placement struct {
		at   int
		hunk Hunk
	}
	placements := make([]placement, 0, len(hunks))

	floor := 0 // hunks must not overlap and must be in file order
	drift := 0
	k := r.opts.DriftLines

	for i, h := range hunks {
		old := h.oldLines()

		if len(old) == 0 {
			if !h.HasStart {
				return fail(ReasonHunkMismatch, fmt.Sprintf("hunk %d: insertion without a line number", i+1))
			}
			// "@@ -N,0" inserts after line N.
			at := h.OldStart + drift
			if at < floor || at > len(lines) {
				return fail(ReasonHunkMismatch, fmt.Sprintf("hunk %d: insertion point line %d out of range", i+1, h.OldStart))
			}
			placements = append(placements, placement{at: at, hunk: h})
			floor = at
			continue
		}

		var matches []int
		if h.HasStart {
			expected := h.OldStart - 1 + drift
			for at := expected - k; at <= expected+k; at++ {
				if at >= floor && matchAt(lines, at, old) {
					matches = append(matches, at)
				}
			}
		} else {
			for at := floor; at+len(old) <= len(lines); at++ {
				if matchAt(lines, at, old) {
					matches = append(matches, at)
				}
			}
		}

		switch len(matches) {
		case 0:
			if h.HasStart {
				return fail(ReasonHunkMismatch, fmt.Sprintf("hunk %d: context not found within ±%d lines of line %d", i+1, k, h.OldStart))
			}
			return fail(ReasonHunkMismatch, fmt.Sprintf("hunk %d: context not found", i+1))
		case 1:
		default:
			where := make([]string, len(matches))
			for j, at := range matches {
				where[j] = strconv.Itoa(at + 1)
			}
			return fail(ReasonAmbiguous, fmt.Sprintf("hunk %d: context matches at lines %s", i+1, strings.Join(where, ", ")))
		}

		at := matches[0]
		if h.HasStart {
			drift = at - (h.OldStart - 1)
		}
		placements = append(placements, placement{at: at, hunk: h})
		floor = at + len(old)
	}

	var b strings.Builder
	b.Grow(len(original))
	// A line written without a terminator only stays that way if nothing
	// follows it.
	open := false
	emit := func(line string) {
		if open {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		open = !strings.HasSuffix(line, "\n")
	}

	cursor := 0
	for _, p := range placements {
		for ; cursor < p.at; cursor++ {
			emit(lines[cursor])
		}
		for _, hl := range p.hunk.lines {
			switch hl.op {
			case ' ':
				emit(lines[cursor])
				cursor++
			case '-':
				cursor++
			case '+':
				if hl.noNewline {
					emit(hl.text)
				} else {
					emit(hl.text + "\n")
				}
			}
		}
	}
	for ; cursor < len(lines); cursor++ {
		emit(lines[cursor])
	}

	return b.String(), Attempt{}, true
}

// splitLines splits s into lines that keep their terminators.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// matchAt reports whether want matches lines starting at index at,
// ignoring trailing whitespace.
func matchAt(lines []string, at int, want []string) bool {
	if at < 0 || at+len(want) > len(lines) {
		return false
	}
	for i, w := range want {
		if normalizeLine(lines[at+i]) != normalizeLine(w) {
			return false
		}
	}
	return true
}

func normalizeLine(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}
