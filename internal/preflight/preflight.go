// Package preflight verifies that the environment folio depends on is
// usable: the recognition engine binary, its config file, and the
// directories the pipeline writes to.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"folio/internal/config"
)

// Result reports the outcome of a single check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all checks that apply to the given configuration.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckBinary("Engine binary", cfg.Subscript.Binary),
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Subscript.ConfigPath != "" {
		results = append(results, CheckFile("Engine config", cfg.Subscript.ConfigPath))
	}
	if cfg.Inbox.Enabled {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Inbox.Dir))
	}
	return results
}

// CheckBinary verifies that a command resolves on PATH or points at an
// executable file.
func CheckBinary(name, command string) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	if strings.ContainsRune(command, os.PathSeparator) {
		info, err := os.Stat(command)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", command)}
		}
		if info.IsDir() || info.Mode()&0o111 == 0 {
			return Result{Name: name, Detail: fmt.Sprintf("%q is not executable", command)}
		}
		return Result{Name: name, Passed: true, Detail: command}
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found on PATH", command)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckDirectoryAccess verifies the directory exists (creating it when
// absent) and is writable.
func CheckDirectoryAccess(name, dir string) Result {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return Result{Name: name, Detail: "directory not configured"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	probe := filepath.Join(dir, ".folio-preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = os.Remove(probe)
	return Result{Name: name, Passed: true, Detail: dir}
}

// CheckFile verifies a regular file exists and is readable.
func CheckFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not found", path)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s is a directory", path)}
	}
	file, err := os.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not readable: %v", path, err)}
	}
	file.Close()
	return Result{Name: name, Passed: true, Detail: path}
}
