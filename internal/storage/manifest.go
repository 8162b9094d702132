package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the viewer manifest written next to a container's pages.
// It lists the page base names in reading order, one per line.
const ManifestName = "pages.lst"

// WriteManifest writes the ordered page list for a container directory.
func WriteManifest(dir string, bases []string) error {
	path := filepath.Join(dir, ManifestName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, base := range bases {
		if _, err := fmt.Fprintln(w, base); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush manifest: %w", err)
	}
	return f.Close()
}

// ReadManifest returns the page base names recorded for a container
// directory, in order. Blank lines are skipped.
func ReadManifest(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var bases []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			bases = append(bases, line)
		}
	}
	return bases, nil
}
