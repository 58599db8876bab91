package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteLibraryFile creates a library entry of the given size under root and
// returns its path. A size <= 0 writes a single byte.
func WriteLibraryFile(t testing.TB, root, name string, size int64) string {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
