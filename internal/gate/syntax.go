// Package gate implements the checks a candidate must pass before it is
// written: a language-aware syntax check and a model-based review.
package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"gopkg.in/yaml.v3"

	"github.com/aristath/minions/internal/edit"
)

// Checker checks whether content is structurally valid for the file at path.
// Implementations must be deterministic for the same path kind and content.
type Checker interface {
	Check(path, content string) edit.Verdict
}

// SyntaxChecker picks a parser by file kind. Go, JSON and YAML use real
// parsers. Other languages known to chroma are tokenised and checked for
// lexer errors and unbalanced brackets. Unknown kinds always pass.
type SyntaxChecker struct{}

// NewSyntaxChecker creates a SyntaxChecker.
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// FileKind returns the key used to select a parser: the lowercased
// extension, or the base name for files without one (Makefile, Dockerfile).
func FileKind(path string) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		return ext
	}
	return filepath.Base(path)
}

// Check implements Checker.
func (s *SyntaxChecker) Check(path, content string) edit.Verdict {
	switch FileKind(path) {
	case ".go":
		return checkGo(path, content)
	case ".json":
		return checkJSON(content)
	case ".yaml", ".yml":
		return checkYAML(content)
	}

	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return edit.Pass()
	}
	return checkTokens(lexer, content)
}

func checkGo(path, content string) edit.Verdict {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, filepath.Base(path), content, parser.AllErrors)
	if err == nil {
		return edit.Pass()
	}

	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		locs := make([]edit.Location, 0, len(list))
		for _, e := range list {
			locs = append(locs, edit.Location{Line: e.Pos.Line, Column: e.Pos.Column})
		}
		return edit.Fail("syntax error: "+list[0].Msg, locs...)
	}
	return edit.Fail("syntax error: " + err.Error())
}

func checkJSON(content string) edit.Verdict {
	var v any
	err := json.Unmarshal([]byte(content), &v)
	if err == nil {
		return edit.Pass()
	}

	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		line, col := position(content, int(syn.Offset))
		return edit.Fail("invalid JSON: "+syn.Error(), edit.Location{Line: line, Column: col})
	}
	return edit.Fail("invalid JSON: " + err.Error())
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

func checkYAML(content string) edit.Verdict {
	var node yaml.Node
	err := yaml.Unmarshal([]byte(content), &node)
	if err == nil {
		return edit.Pass()
	}

	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil {
			return edit.Fail("invalid YAML: "+msg, edit.Location{Line: line})
		}
	}
	return edit.Fail("invalid YAML: " + msg)
}

// proseLexers contain free text where brackets need not balance.
var proseLexers = map[string]bool{
	"plaintext":        true,
	"markdown":         true,
	"reStructuredText": true,
	"TeX":              true,
	"org":              true,
	"HTML":             true,
	"XML":              true,
	"Diff":             true,
	"INI":              true,
	"TOML":             true,
}

// shellLexers tokenise shell scripts, where "case" patterns close a ')'
// that was never opened.
var shellLexers = map[string]bool{
	"Bash":         true,
	"Bash Session": true,
	"Tcsh":         true,
}

var closers = map[rune]rune{')': '(', ']': '[', '}': '{'}

type openBracket struct {
	r    rune
	line int
	col  int
}

func checkTokens(lexer chroma.Lexer, content string) edit.Verdict {
	it, err := lexer.Tokenise(nil, content)
	if err != nil {
		return edit.Fail("tokenise: " + err.Error())
	}

	name := lexer.Config().Name
	balance := !proseLexers[name] && !shellLexers[name]
	var stack []openBracket
	line, col := 1, 1

	for tok := it(); tok != chroma.EOF; tok = it() {
		if tok.Type == chroma.Error {
			return edit.Fail(fmt.Sprintf("unexpected %q", strings.TrimSpace(tok.Value)), edit.Location{Line: line, Column: col})
		}
		skip := !balance || tok.Type.InSubCategory(chroma.LiteralString) || tok.Type.InCategory(chroma.Comment)

		for _, r := range tok.Value {
			if !skip {
				switch r {
				case '(', '[', '{':
					stack = append(stack, openBracket{r: r, line: line, col: col})
				case ')', ']', '}':
					if len(stack) == 0 || stack[len(stack)-1].r != closers[r] {
						return edit.Fail(fmt.Sprintf("unmatched '%c'", r), edit.Location{Line: line, Column: col})
					}
					stack = stack[:len(stack)-1]
				}
			}
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return edit.Fail(fmt.Sprintf("unclosed '%c'", open.r), edit.Location{Line: open.line, Column: open.col})
	}
	return edit.Pass()
}

// position converts a byte offset into a 1-based line and column.
func position(content string, offset int) (int, int) {
	if offset > len(content) {
		offset = len(content)
	}
	line, col := 1, 1
	for _, r := range content[:offset] {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
