package edit

import (
	"fmt"
	"strings"
)

// Kind tells the pipeline how a candidate should be checked and reconciled.
type Kind int

const (
	KindFullFile      Kind = iota // RawText is the complete new file body
	KindLocalizedEdit             // Edits and/or Diff describe a change to the original
)

func (k Kind) String() string {
	switch k {
	case KindFullFile:
		return "full-file"
	case KindLocalizedEdit:
		return "localized-edit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SearchReplace is one localized edit: replace Search with Replace.
type SearchReplace struct {
	Search  string
	Replace string
}

// Candidate is the output of one generation attempt.
type Candidate struct {
	TaskID  string
	Attempt int
	RawText string
	Kind    Kind

	// Localized edits, applied in order. Only meaningful for KindLocalizedEdit.
	Edits []SearchReplace
	// Unified diff hunks. Only meaningful for KindLocalizedEdit.
	Diff string
}

// Empty reports whether the candidate carries no usable content.
func (c Candidate) Empty() bool {
	switch c.Kind {
	case KindFullFile:
		return strings.TrimSpace(c.RawText) == ""
	case KindLocalizedEdit:
		if strings.TrimSpace(c.Diff) != "" {
			return false
		}
		for _, e := range c.Edits {
			if strings.TrimSpace(e.Search) != "" || strings.TrimSpace(e.Replace) != "" {
				return false
			}
		}
		return true
	default:
		return true
	}
}
