package reconcile

import (
	"fmt"
	"strings"

	"github.com/aristath/minions/internal/edit"
)

// applyExact replaces the single occurrence of e.Search. Zero or multiple
// occurrences fail the strategy so the cascade can fall through.
func applyExact(original string, e edit.SearchReplace) (string, Attempt, bool) {
	if e.Search == "" {
		return "", Attempt{Strategy: edit.StrategyExact, Reason: ReasonInapplicable, Detail: "empty search text"}, false
	}

	switch n := strings.Count(original, e.Search); n {
	case 0:
		return "", Attempt{Strategy: edit.StrategyExact, Reason: ReasonNotFound}, false
	case 1:
		return strings.Replace(original, e.Search, e.Replace, 1), Attempt{}, true
	default:
		return "", Attempt{
			Strategy: edit.StrategyExact,
			Reason:   ReasonAmbiguous,
			Detail:   fmt.Sprintf("%d occurrences", n),
		}, false
	}
}
