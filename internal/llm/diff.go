package llm

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffContext is the number of unchanged lines kept around each change.
const diffContext = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// RenderDiff returns a line diff from before to after: removed lines are
// prefixed with "-", added lines with "+" and context lines with a space.
// Runs of unchanged lines longer than the context window are collapsed into
// a "@@ ... @@" marker. Identical inputs give an empty string.
func RenderDiff(before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var all []diffLine
	for _, d := range diffs {
		for _, l := range splitLines(d.Text) {
			all = append(all, diffLine{op: d.Type, text: l})
		}
	}

	keep := make([]bool, len(all))
	for i, l := range all {
		if l.op == diffmatchpatch.DiffEqual {
			continue
		}
		for j := max(0, i-diffContext); j <= min(len(all)-1, i+diffContext); j++ {
			keep[j] = true
		}
	}

	var sb strings.Builder
	skipped := false
	for i, l := range all {
		if !keep[i] {
			skipped = true
			continue
		}
		if skipped {
			sb.WriteString("@@ ... @@\n")
			skipped = false
		}
		switch l.op {
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&sb, "-%s\n", l.text)
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&sb, "+%s\n", l.text)
		default:
			fmt.Fprintf(&sb, " %s\n", l.text)
		}
	}
	if skipped {
		sb.WriteString("@@ ... @@\n")
	}
	return sb.String()
}

// splitLines splits text into lines without their terminators.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
