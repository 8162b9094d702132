package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a minimal config pointing all paths into a temp
// directory and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
library_dir = %q
log_dir = %q

[inbox]
dir = %q
`, filepath.Join(base, "documents"), filepath.Join(base, "logs"), filepath.Join(base, "inbox"))
	path := filepath.Join(base, "folio.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	cmd := newRootCommand()
	want := []string{
		"daemon", "submit", "batch", "list", "show",
		"delete", "retry", "rebuild", "share", "status", "logs", "process", "config",
	}
	have := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		have[sub.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("command %q not registered", name)
		}
	}
}

func TestParseDocumentID(t *testing.T) {
	if _, err := parseDocumentID("abc"); err == nil {
		t.Fatal("want error for non-numeric id")
	}
	if _, err := parseDocumentID("-3"); err == nil {
		t.Fatal("want error for negative id")
	}
	id, err := parseDocumentID(" 42 ")
	if err != nil {
		t.Fatalf("parseDocumentID: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestStatusAgainstEmptyRegistry(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCommand(t, "-c", cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Documents: 0 total") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestListEmpty(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCommand(t, "-c", cfg, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No documents") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSubmitRequiresOwner(t *testing.T) {
	cfg := writeTestConfig(t)
	if _, err := runCommand(t, "-c", cfg, "submit", "scan.jpg"); err == nil {
		t.Fatal("submit without --owner should fail")
	}
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
}
