package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

// TestWriteFileAtomic tests that atomic writes create the target with the
// requested content and permissions and leave no temporary files behind.
func TestWriteFileAtomic(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")
	if err := WriteFileAtomic(target, []byte("data"), 0600, nil); err != nil {
		t.Fatal("atomic file write failed:", err)
	}

	// Verify contents.
	if data, err := os.ReadFile(target); err != nil {
		t.Fatal("unable to read back file:", err)
	} else if string(data) != "data" {
		t.Error("file contents mismatch:", string(data))
	}

	// Verify permissions.
	if info, err := os.Stat(target); err != nil {
		t.Fatal("unable to stat file:", err)
	} else if info.Mode().Perm() != 0600 {
		t.Error("unexpected file permissions:", info.Mode().Perm())
	}

	// Verify that no temporary files remain.
	contents, err := os.ReadDir(directory)
	if err != nil {
		t.Fatal("unable to read directory:", err)
	}
	for _, c := range contents {
		if IsTemporaryName(c.Name()) {
			t.Error("temporary file left behind:", c.Name())
		}
	}
}

// TestWriteFileAtomicNonExistentDirectory tests that atomic writes fail when
// the parent directory is missing.
func TestWriteFileAtomicNonExistentDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "file")
	if err := WriteFileAtomic(target, []byte{}, 0600, nil); err == nil {
		t.Error("atomic file write did not fail for non-existent path")
	}
}
