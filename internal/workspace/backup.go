package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
)

// Backup is a saved copy of a file taken before a commit overwrote it.
type Backup struct {
	Path   string // Relative to the root
	Target string // File the backup was taken from, relative to the root
	Taken  time.Time
	Hash   string // First 8 hex digits of the BLAKE3 digest of the content
}

var backupName = regexp.MustCompile(`^(.+)\.(\d+)\.([0-9a-f]{8})\.bak$`)

// BackupsEnabled reports whether a backup directory is configured.
func (r *Root) BackupsEnabled() bool {
	return r.backupDir != ""
}

// Backup copies the current content of p into the backup directory, mirroring
// its relative location. It returns the backup path relative to the root, or
// "" when backups are disabled or p does not exist yet.
func (r *Root) Backup(p string) (string, error) {
	if r.backupDir == "" {
		return "", nil
	}
	rel, err := r.Rel(p)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(r.dir, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s for backup: %w", p, err)
	}

	sum := blake3.Sum256(data)
	name := fmt.Sprintf("%s.%d.%x.bak", filepath.Base(rel), time.Now().UnixMilli(), sum[:4])
	dest := filepath.Join(r.backupDir, filepath.Dir(rel), name)

	if err := r.WriteAtomic(dest, string(data)); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return dest, nil
}

// Backups lists every backup, newest first.
func (r *Root) Backups() ([]Backup, error) {
	if r.backupDir == "" {
		return nil, nil
	}
	base := filepath.Join(r.dir, r.backupDir)

	var out []Backup
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		if b, ok := r.parseBackup(rel); ok {
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Taken.Equal(out[j].Taken) {
			return out[i].Taken.After(out[j].Taken)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Restore writes the content of a backup back to the file it was taken
// from and returns that file's path relative to the root.
func (r *Root) Restore(backupPath string) (string, error) {
	if r.backupDir == "" {
		return "", fmt.Errorf("backups are disabled")
	}
	rel, err := r.Rel(backupPath)
	if err != nil {
		return "", err
	}
	b, ok := r.parseBackup(rel)
	if !ok {
		return "", fmt.Errorf("%s is not a backup in %s", backupPath, r.backupDir)
	}

	content, err := r.Read(rel)
	if err != nil {
		return "", err
	}
	if err := r.WriteAtomic(b.Target, content); err != nil {
		return "", fmt.Errorf("restoring %s: %w", b.Target, err)
	}
	return b.Target, nil
}

// parseBackup decodes a backup path relative to the root.
func (r *Root) parseBackup(rel string) (Backup, bool) {
	inBackups, err := filepath.Rel(r.backupDir, rel)
	if err != nil || !within(".", inBackups) {
		return Backup{}, false
	}
	m := backupName.FindStringSubmatch(filepath.Base(inBackups))
	if m == nil {
		return Backup{}, false
	}
	ms, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Backup{}, false
	}
	return Backup{
		Path:   rel,
		Target: filepath.Join(filepath.Dir(inBackups), m[1]),
		Taken:  time.UnixMilli(ms),
		Hash:   m[3],
	}, true
}
