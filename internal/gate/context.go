package gate

import (
	"fmt"
	"sort"
	"strings"
)

// ContextRadius is the number of lines shown on each side of a flagged line.
const ContextRadius = 3

// ErrorContext renders the flagged lines of content with their neighbours.
// Flagged lines are marked with ">>> ". Overlapping ranges are merged and
// separate ranges are divided by a blank line.
func ErrorContext(content string, lines []int) string {
	if len(lines) == 0 || content == "" {
		return ""
	}
	src := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	flagged := make(map[int]bool, len(lines))
	sorted := make([]int, 0, len(lines))
	for _, l := range lines {
		if l < 1 || l > len(src) || flagged[l] {
			continue
		}
		flagged[l] = true
		sorted = append(sorted, l)
	}
	if len(sorted) == 0 {
		return ""
	}
	sort.Ints(sorted)

	var b strings.Builder
	last := 0 // last rendered line
	for _, l := range sorted {
		start := max(1, l-ContextRadius, last+1)
		end := min(len(src), l+ContextRadius)
		if start > end {
			continue
		}
		if last > 0 && start > last+1 {
			b.WriteString("\n")
		}
		for n := start; n <= end; n++ {
			marker := "    "
			if flagged[n] {
				marker = ">>> "
			}
			fmt.Fprintf(&b, "%s%4d | %s\n", marker, n, src[n-1])
		}
		last = end
	}
	return b.String()
}
