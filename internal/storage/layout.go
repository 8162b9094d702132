package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"folio/internal/config"
)

// Layout resolves every document path under the library root as
// root/{owner}/{directory}/. All artifact naming derives from the document's
// sanitized base name.
type Layout struct {
	root string
}

// NewLayout builds a layout over the configured library directory.
func NewLayout(cfg *config.Config) Layout {
	return Layout{root: cfg.Paths.LibraryDir}
}

// NewLayoutAt builds a layout over an explicit root, mainly for tests.
func NewLayoutAt(root string) Layout {
	return Layout{root: root}
}

// Root returns the library root directory.
func (l Layout) Root() string {
	return l.root
}

// NewDirectoryName produces a unique directory name for a document: the
// sanitized base plus a random hex suffix, so two uploads of the same file
// never collide on disk.
func NewDirectoryName(name string) string {
	base := SanitizeName(name)
	if base == "" {
		base = "document"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return base + "-" + suffix
}

// DocumentDir resolves the directory holding a document's inputs and outputs.
func (l Layout) DocumentDir(owner, directoryName string) string {
	return filepath.Join(l.root, owner, directoryName)
}

// EnsureDocumentDir creates the document directory if needed.
func (l Layout) EnsureDocumentDir(owner, directoryName string) (string, error) {
	dir := l.DocumentDir(owner, directoryName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	return dir, nil
}

// RemoveDocumentDir deletes a document directory and everything in it.
// Missing directories are not an error.
func (l Layout) RemoveDocumentDir(owner, directoryName string) error {
	dir := l.DocumentDir(owner, directoryName)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove document dir: %w", err)
	}
	return nil
}

// Artifacts names the engine outputs for a document base name inside dir.
type Artifacts struct {
	Text   string
	PDF    string
	Markup string
	Thumb  string
	Debug  string
}

// ArtifactsFor returns the artifact paths the engine produces for a base name.
func ArtifactsFor(dir, base string) Artifacts {
	return Artifacts{
		Text:   filepath.Join(dir, base+".txt"),
		PDF:    filepath.Join(dir, base+".pdf"),
		Markup: filepath.Join(dir, base+".xml"),
		Thumb:  filepath.Join(dir, base+"-thumb.jpg"),
		Debug:  filepath.Join(dir, base+"-debug.jpg"),
	}
}

// sourceExtensions are the image types accepted as scan input.
var sourceExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp"}

// IsSourceImage reports whether a filename has a recognized scan extension.
func IsSourceImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range sourceExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// FindSource locates the ingested scan for a base name inside dir. The
// ingest step names the copy {base}{ext}, so the lookup is a probe over the
// known extensions.
func FindSource(dir, base string) (string, error) {
	for _, ext := range sourceExtensions {
		path := filepath.Join(dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no source image for %q in %s", base, dir)
}

// CopyFile streams src to dst with default permissions.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
