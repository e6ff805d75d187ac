// Package manifest loads YAML task manifests and expands glob entries into
// one scheduler request per file.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/minions/internal/scheduler"
)

// FilePlaceholder is replaced by the matched path in a pattern entry's instruction.
const FilePlaceholder = "{file}"

// Entry is one manifest item. Exactly one of Path and Pattern is set.
type Entry struct {
	Path        string `yaml:"path"`
	Pattern     string `yaml:"pattern"`
	Instruction string `yaml:"instruction"`
	MaxRetries  *int   `yaml:"max_retries"`
}

// Manifest is a batch of edit tasks.
type Manifest struct {
	MaxRetries *int    `yaml:"max_retries"` // Default for entries that set none
	Tasks      []Entry `yaml:"tasks"`
}

// Load reads and validates a manifest file.
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", filename, err)
	}
	return m, nil
}

// Parse decodes and validates manifest YAML. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry.
func (m *Manifest) Validate() error {
	if len(m.Tasks) == 0 {
		return fmt.Errorf("no tasks")
	}
	if m.MaxRetries != nil && *m.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	for i, e := range m.Tasks {
		switch {
		case e.Path == "" && e.Pattern == "":
			return fmt.Errorf("task %d: one of path or pattern is required", i)
		case e.Path != "" && e.Pattern != "":
			return fmt.Errorf("task %d: path and pattern are mutually exclusive", i)
		case strings.TrimSpace(e.Instruction) == "":
			return fmt.Errorf("task %d: instruction is required", i)
		case e.MaxRetries != nil && *e.MaxRetries < 0:
			return fmt.Errorf("task %d: max_retries must not be negative", i)
		}
		if e.Pattern != "" {
			if _, err := path.Match(e.Pattern, ""); err != nil {
				return fmt.Errorf("task %d: bad pattern %q: %w", i, e.Pattern, err)
			}
		}
	}
	return nil
}

// Expand resolves the manifest against root into scheduler requests.
// Explicit paths come first in manifest order; each pattern contributes its
// matches in lexical order. A path named explicitly is never repeated by a
// pattern, and naming the same path twice explicitly is an error.
func (m *Manifest) Expand(root string, defaultRetries int) ([]scheduler.Request, error) {
	if m.MaxRetries != nil {
		defaultRetries = *m.MaxRetries
	}
	retries := func(e Entry) int {
		if e.MaxRetries != nil {
			return *e.MaxRetries
		}
		return defaultRetries
	}

	seen := make(map[string]bool)
	var reqs []scheduler.Request

	for i, e := range m.Tasks {
		if e.Path == "" {
			continue
		}
		p := filepath.ToSlash(filepath.Clean(e.Path))
		if seen[p] {
			return nil, fmt.Errorf("task %d: %s is already listed", i, p)
		}
		seen[p] = true
		reqs = append(reqs, scheduler.Request{Path: p, Instruction: e.Instruction, MaxRetries: retries(e)})
	}

	fsys := os.DirFS(root)
	for i, e := range m.Tasks {
		if e.Pattern == "" {
			continue
		}
		matches, err := Glob(fsys, e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		for _, p := range matches {
			if seen[p] {
				continue
			}
			seen[p] = true
			reqs = append(reqs, scheduler.Request{
				Path:        p,
				Instruction: strings.ReplaceAll(e.Instruction, FilePlaceholder, p),
				MaxRetries:  retries(e),
			})
		}
	}
	return reqs, nil
}

// Glob returns the regular files in fsys matching pattern, sorted. A "**"
// segment matches zero or more directories. Wildcards do not match names
// starting with a dot unless the pattern segment does too.
func Glob(fsys fs.FS, pattern string) ([]string, error) {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	segs := strings.Split(pattern, "/")

	var out []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		parts := strings.Split(p, "/")
		if d.IsDir() {
			if !prefixMatches(segs, parts) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && matchSegments(segs, parts) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", pattern, err)
	}
	sort.Strings(out)
	return out, nil
}

// matchSegments reports whether the path parts match the pattern segments.
func matchSegments(segs, parts []string) bool {
	if len(segs) == 0 {
		return len(parts) == 0
	}
	if segs[0] == "**" {
		if matchSegments(segs[1:], parts) {
			return true
		}
		return len(parts) > 0 && !hidden(parts[0]) && matchSegments(segs, parts[1:])
	}
	if len(parts) == 0 || !matchOne(segs[0], parts[0]) {
		return false
	}
	return matchSegments(segs[1:], parts[1:])
}

// prefixMatches reports whether a directory could contain matches.
func prefixMatches(segs, dirParts []string) bool {
	if len(dirParts) == 0 {
		return true
	}
	if len(segs) == 0 {
		return false
	}
	if segs[0] == "**" {
		if prefixMatches(segs[1:], dirParts) {
			return true
		}
		return !hidden(dirParts[0]) && prefixMatches(segs, dirParts[1:])
	}
	// The last segment names files, so a directory cannot satisfy it.
	if len(segs) == 1 || !matchOne(segs[0], dirParts[0]) {
		return false
	}
	return prefixMatches(segs[1:], dirParts[1:])
}

func matchOne(seg, name string) bool {
	if hidden(name) && !strings.HasPrefix(seg, ".") {
		return false
	}
	ok, _ := path.Match(seg, name)
	return ok
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
