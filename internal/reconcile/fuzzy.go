package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/minions/internal/edit"
)

// maxFuzzyCells bounds the alignment matrix (search runes x file runes).
// Larger inputs skip the fuzzy strategy instead of stalling a worker.
const maxFuzzyCells = 40_000_000

// window is a candidate region of the original, in rune offsets [start, end).
type window struct {
	start int
	end   int
	dist  int
	score float64
}

func (w window) length() int { return w.end - w.start }

func (w window) overlaps(o window) bool {
	return w.start < o.end && o.start < w.end
}

// applyFuzzy replaces the window of original most similar to e.Search.
//
// Similarity is 1 - editDistance/max(len(search), len(window)). Candidate
// windows come from a semi-global alignment that yields the cheapest window
// ending at every offset; windows outside len(search)±20% are discarded.
// The winner must reach the threshold and beat the best window that does not
// overlap it by at least the margin.
func (r *Reconciler) applyFuzzy(original string, e edit.SearchReplace) (string, Attempt, bool) {
	fail := func(reason Reason, detail string) (string, Attempt, bool) {
		return "", Attempt{Strategy: edit.StrategyFuzzy, Reason: reason, Detail: detail}, false
	}

	search := []rune(e.Search)
	text := []rune(original)
	m := len(search)
	if m == 0 {
		return fail(ReasonInapplicable, "empty search text")
	}
	if len(text) == 0 {
		return fail(ReasonNotFound, "empty file")
	}
	if m*len(text) > maxFuzzyCells {
		return fail(ReasonInapplicable, fmt.Sprintf("inputs too large (%d x %d runes)", m, len(text)))
	}

	minLen := int(math.Floor(float64(m) * 0.8))
	maxLen := int(math.Ceil(float64(m) * 1.2))
	if minLen < 1 {
		minLen = 1
	}

	var candidates []window
	for _, w := range alignWindows(search, text) {
		if l := w.length(); l < minLen || l > maxLen {
			continue
		}
		w.score = 1 - float64(w.dist)/float64(max(m, w.length()))
		candidates = append(candidates, w)
	}
	if len(candidates) == 0 {
		return fail(ReasonNotFound, "no window of comparable size")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.length() != b.length() {
			return a.length() < b.length()
		}
		return a.start < b.start
	})

	best := candidates[0]
	if best.score < r.opts.FuzzyThreshold {
		return fail(ReasonBelowThreshold, fmt.Sprintf("best similarity %.2f < %.2f", best.score, r.opts.FuzzyThreshold))
	}

	for _, c := range candidates[1:] {
		if c.overlaps(best) {
			continue
		}
		// Equal scores never resolve, whatever the margin.
		if gap := best.score - c.score; gap <= 0 || gap < r.opts.FuzzyMargin {
			return fail(ReasonAmbiguous, fmt.Sprintf(
				"similarity %.2f at line %d vs %.2f at line %d, margin %.2f",
				best.score, lineOf(text, best.start), c.score, lineOf(text, c.start), r.opts.FuzzyMargin))
		}
		break
	}

	out := make([]rune, 0, len(text)-best.length()+len([]rune(e.Replace)))
	out = append(out, text[:best.start]...)
	out = append(out, []rune(e.Replace)...)
	out = append(out, text[best.end:]...)
	return string(out), Attempt{}, true
}

// alignWindows runs a semi-global edit-distance alignment of search against
// text (free start and end in text) and returns, for every end offset, the
// window with the smallest distance. Ties keep the later start.
func alignWindows(search, text []rune) []window {
	m := len(search)
	prev := make([]int, m+1)
	prevStart := make([]int, m+1)
	cur := make([]int, m+1)
	curStart := make([]int, m+1)

	for i := 0; i <= m; i++ {
		prev[i] = i
	}

	windows := make([]window, 0, len(text))
	for j := 1; j <= len(text); j++ {
		cur[0] = 0
		curStart[0] = j
		for i := 1; i <= m; i++ {
			cost := 1
			if search[i-1] == text[j-1] {
				cost = 0
			}
			d, st := prev[i-1]+cost, prevStart[i-1]
			if v := cur[i-1] + 1; v < d || (v == d && curStart[i-1] > st) {
				d, st = v, curStart[i-1]
			}
			if v := prev[i] + 1; v < d || (v == d && prevStart[i] > st) {
				d, st = v, prevStart[i]
			}
			cur[i], curStart[i] = d, st
		}
		if curStart[m] < j {
			windows = append(windows, window{start: curStart[m], end: j, dist: cur[m]})
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}
	return windows
}

// lineOf returns the 1-based line of rune offset off.
func lineOf(text []rune, off int) int {
	line := 1
	for i := 0; i < off && i < len(text); i++ {
		if text[i] == '\n' {
			line++
		}
	}
	return line
}
