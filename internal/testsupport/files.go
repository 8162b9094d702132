package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with content, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScan drops a small placeholder scan image at path.
func WriteScan(t testing.TB, path string) {
	t.Helper()
	WriteFile(t, path, "\xff\xd8\xff\xe0scan-bytes")
}
