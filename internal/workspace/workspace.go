// Package workspace confines file access to a root directory and performs
// the single atomic write that commits a task.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path, after resolving symbolic links,
// would leave the workspace root.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// syncFile flushes a temp file before it is renamed into place.
var syncFile = func(f *os.File) error { return f.Sync() }

// Root is a directory that all reads and writes are confined to.
type Root struct {
	dir       string // absolute, symlinks resolved
	backupDir string // relative to dir; empty disables backups
}

// New opens dir as a workspace root. backupDir is relative to the root; an
// empty value disables backups.
func New(dir, backupDir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", dir)
	}

	if backupDir != "" {
		if filepath.IsAbs(backupDir) || !within(resolved, filepath.Join(resolved, backupDir)) {
			return nil, fmt.Errorf("backup dir %s: %w", backupDir, ErrOutsideRoot)
		}
		backupDir = filepath.Clean(backupDir)
	}

	return &Root{dir: resolved, backupDir: backupDir}, nil
}

// Dir returns the resolved root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve returns the absolute path for p, which may be relative to the root
// or absolute. Symbolic links in the existing part of the path are followed;
// the result must stay inside the root.
func (r *Root) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.dir, target)
	}
	target = filepath.Clean(target)

	// Walk up to the deepest ancestor that exists and resolve it.
	existing := target
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", existing, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	resolved = filepath.Join(append([]string{resolved}, rest...)...)

	if !within(r.dir, resolved) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return resolved, nil
}

// Rel returns p relative to the root, after resolution.
func (r *Root) Rel(p string) (string, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return "", err
	}
	return filepath.Rel(r.dir, abs)
}

// Read returns the content of the file at p.
func (r *Root) Read(p string) (string, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	return string(data), nil
}

// WriteAtomic replaces the file at p with content. The data is written to a
// temp file in the same directory, flushed, and renamed over the target, so
// readers see either the old or the new content. The existing file mode is
// kept. The path is validated immediately before writing.
func (r *Root) WriteAtomic(p, content string) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".minions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	cleanup = false

	// Persist the rename. Not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// within reports whether target is base or inside it.
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
