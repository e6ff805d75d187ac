package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newRoot(t *testing.T, backupDir string) *Root {
	t.Helper()
	r, err := New(t.TempDir(), backupDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	r := newRoot(t, "")
	outside := t.TempDir()

	writeFile(t, filepath.Join(r.Dir(), "src", "a.go"), "package a\n")
	if err := os.Symlink(outside, filepath.Join(r.Dir(), "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(r.Dir(), "src"), filepath.Join(r.Dir(), "alias")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		path        string
		wantOutside bool
	}{
		{name: "existing file", path: "src/a.go"},
		{name: "new file in existing dir", path: "src/b.go"},
		{name: "new file in new dir", path: "pkg/new/c.go"},
		{name: "dot-dot escape", path: "../x.go", wantOutside: true},
		{name: "dot-dot inside", path: "src/../src/a.go"},
		{name: "absolute outside", path: filepath.Join(outside, "x.go"), wantOutside: true},
		{name: "symlink escape", path: "escape/x.go", wantOutside: true},
		{name: "symlink inside", path: "alias/a.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.path)
			if tt.wantOutside {
				if !errors.Is(err, ErrOutsideRoot) {
					t.Fatalf("err = %v, want ErrOutsideRoot", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(got, r.Dir()) {
				t.Errorf("resolved %s outside root %s", got, r.Dir())
			}
		})
	}
}

func TestWriteAtomic(t *testing.T) {
	r := newRoot(t, "")
	target := filepath.Join(r.Dir(), "f.py")
	writeFile(t, target, "old\n")
	if err := os.Chmod(target, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.WriteAtomic("f.py", "new\n"); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new\n" {
		t.Errorf("content = %q, want %q", data, "new\n")
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	assertNoTempFiles(t, r.Dir())
}

// TestWriteAtomic_NoPartialWrite fails the write after the data reached the
// temp file and checks that the target still holds the original content.
func TestWriteAtomic_NoPartialWrite(t *testing.T) {
	r := newRoot(t, "")
	target := filepath.Join(r.Dir(), "f.py")
	writeFile(t, target, "original\n")

	saved := syncFile
	syncFile = func(f *os.File) error { return errors.New("disk gone") }
	defer func() { syncFile = saved }()

	if err := r.WriteAtomic("f.py", "replacement that never lands\n"); err == nil {
		t.Fatal("expected error")
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("content = %q, want original", data)
	}
	assertNoTempFiles(t, r.Dir())
}

func TestWriteAtomic_RejectsEscape(t *testing.T) {
	r := newRoot(t, "")
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(r.Dir(), "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	err := r.WriteAtomic("link/evil.txt", "x")
	if !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("err = %v, want ErrOutsideRoot", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("file written outside root")
	}
}

func TestBackupAndRestore(t *testing.T) {
	r := newRoot(t, ".minion-backups")
	writeFile(t, filepath.Join(r.Dir(), "pkg", "f.py"), "v1\n")

	backup, err := r.Backup("pkg/f.py")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if !strings.HasPrefix(backup, filepath.Join(".minion-backups", "pkg", "f.py.")) || !strings.HasSuffix(backup, ".bak") {
		t.Errorf("backup path = %s", backup)
	}

	if err := r.WriteAtomic("pkg/f.py", "v2\n"); err != nil {
		t.Fatal(err)
	}

	list, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("backups = %d, want 1", len(list))
	}
	if list[0].Target != filepath.Join("pkg", "f.py") {
		t.Errorf("target = %s", list[0].Target)
	}
	if len(list[0].Hash) != 8 {
		t.Errorf("hash = %q, want 8 hex digits", list[0].Hash)
	}
	if time.Since(list[0].Taken) > time.Minute {
		t.Errorf("taken = %v", list[0].Taken)
	}

	target, err := r.Restore(backup)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if target != filepath.Join("pkg", "f.py") {
		t.Errorf("restored target = %s", target)
	}
	got, err := r.Read("pkg/f.py")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v1\n" {
		t.Errorf("content after restore = %q, want v1", got)
	}
}

func TestBackup_Disabled(t *testing.T) {
	r := newRoot(t, "")
	writeFile(t, filepath.Join(r.Dir(), "f.py"), "x\n")

	path, err := r.Backup("f.py")
	if err != nil || path != "" {
		t.Errorf("Backup = %q, %v; want empty, nil", path, err)
	}
	if _, err := r.Restore("anything.bak"); err == nil {
		t.Error("expected error restoring with backups disabled")
	}
}

func TestBackup_MissingFile(t *testing.T) {
	r := newRoot(t, ".bk")
	path, err := r.Backup("new.py")
	if err != nil || path != "" {
		t.Errorf("Backup = %q, %v; want empty, nil", path, err)
	}
	list, err := r.Backups()
	if err != nil || len(list) != 0 {
		t.Errorf("Backups = %v, %v", list, err)
	}
}

func TestNew_BackupDirOutsideRoot(t *testing.T) {
	if _, err := New(t.TempDir(), "../elsewhere"); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("err = %v, want ErrOutsideRoot", err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
