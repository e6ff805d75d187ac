package llm

import (
	"regexp"
	"strings"

	"github.com/aristath/minions/internal/edit"
)

var (
	searchMarker  = regexp.MustCompile(`^<{5,9}\s*SEARCH\b`)
	dividerMarker = regexp.MustCompile(`^={5,9}\s*$`)
	replaceMarker = regexp.MustCompile(`^>{5,9}\s*REPLACE\b`)
	hunkHeader    = regexp.MustCompile(`(?m)^@@ .*@@`)
	fenceLine     = regexp.MustCompile("^\\s*(`{3,}|~{3,})(.*)$")
)

// ParseCandidate turns a model reply into a Candidate. In order of
// preference it recognises SEARCH/REPLACE blocks, unified diff hunks, a
// fenced code block holding the whole file and finally the raw text as the
// whole file.
func ParseCandidate(reply string) edit.Candidate {
	reply = strings.ReplaceAll(reply, "\r\n", "\n")

	if edits, ok := parseSearchReplace(reply); ok {
		return edit.Candidate{RawText: reply, Kind: edit.KindLocalizedEdit, Edits: edits}
	}

	blocks := fencedBlocks(reply)
	for _, b := range blocks {
		if hunkHeader.MatchString(b) {
			return edit.Candidate{RawText: reply, Kind: edit.KindLocalizedEdit, Diff: b}
		}
	}
	if hunkHeader.MatchString(reply) {
		return edit.Candidate{RawText: reply, Kind: edit.KindLocalizedEdit, Diff: reply}
	}

	if len(blocks) > 0 {
		longest := blocks[0]
		for _, b := range blocks[1:] {
			if len(b) > len(longest) {
				longest = b
			}
		}
		return edit.Candidate{RawText: longest, Kind: edit.KindFullFile}
	}

	body := strings.Trim(reply, "\n")
	if strings.TrimSpace(body) == "" {
		return edit.Candidate{Kind: edit.KindFullFile}
	}
	return edit.Candidate{RawText: body + "\n", Kind: edit.KindFullFile}
}

// parseSearchReplace extracts every complete SEARCH/REPLACE block. Text
// outside the blocks, including code fences around them, is ignored.
func parseSearchReplace(reply string) ([]edit.SearchReplace, bool) {
	const (
		outside = iota
		inSearch
		inReplace
	)

	var (
		edits   []edit.SearchReplace
		search  strings.Builder
		replace strings.Builder
		state   = outside
	)

	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		switch state {
		case outside:
			if searchMarker.MatchString(trimmed) {
				search.Reset()
				replace.Reset()
				state = inSearch
			}
		case inSearch:
			if dividerMarker.MatchString(trimmed) {
				state = inReplace
				continue
			}
			search.WriteString(line)
			search.WriteByte('\n')
		case inReplace:
			if replaceMarker.MatchString(trimmed) {
				edits = append(edits, edit.SearchReplace{Search: search.String(), Replace: replace.String()})
				state = outside
				continue
			}
			replace.WriteString(line)
			replace.WriteByte('\n')
		}
	}

	return edits, len(edits) > 0
}

// fencedBlocks returns the bodies of all closed code fences. Each body ends
// with a newline.
func fencedBlocks(reply string) []string {
	var (
		blocks []string
		body   strings.Builder
		fence  string
		open   bool
	)

	for _, line := range strings.Split(reply, "\n") {
		m := fenceLine.FindStringSubmatch(line)
		if !open {
			if m != nil {
				fence = m[1]
				body.Reset()
				open = true
			}
			continue
		}
		if m != nil && strings.HasPrefix(m[1], fence[:1]) && len(m[1]) >= len(fence) && strings.TrimSpace(m[2]) == "" {
			blocks = append(blocks, body.String())
			open = false
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	return blocks
}
