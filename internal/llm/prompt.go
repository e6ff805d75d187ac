// Package llm adapts a model backend to the generate and review roles of
// the edit pipeline: it renders prompts, parses model output into
// candidates and shows the reviewer a line diff.
package llm

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/generate.tmpl
var generateTmpl string

//go:embed prompts/review.tmpl
var reviewTmpl string

var (
	generatePrompt = template.Must(template.New("generate").Parse(generateTmpl))
	reviewPrompt   = template.Must(template.New("review").Parse(reviewTmpl))
)

// GenerateData is the template data for the generation prompt.
type GenerateData struct {
	Path         string
	Lang         string
	Instruction  string
	Original     string
	ErrorContext string
}

// ReviewData is the template data for the review prompt.
type ReviewData struct {
	Path        string
	Lang        string
	Instruction string
	Original    string
	Diff        string
}

// RenderGenerate builds the generation prompt.
func RenderGenerate(d GenerateData) (string, error) {
	d.Original = strings.TrimSuffix(d.Original, "\n")
	if d.Lang == "" {
		d.Lang = langTag(d.Path)
	}
	return execute(generatePrompt, d)
}

// RenderReview builds the review prompt.
func RenderReview(d ReviewData) (string, error) {
	d.Original = strings.TrimSuffix(d.Original, "\n")
	d.Diff = strings.TrimSuffix(d.Diff, "\n")
	if d.Lang == "" {
		d.Lang = langTag(d.Path)
	}
	return execute(reviewPrompt, d)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%s prompt template: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// langTag is the code fence info string for path.
func langTag(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
