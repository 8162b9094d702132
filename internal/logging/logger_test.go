package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("document queued", String(FieldComponent, "orchestrator"), Int64("document_id", 7))

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator: document queued") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "document_id=7") {
		t.Fatalf("missing attribute in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Warn("merge failed", String("error_message", "exit status 1"))

	if !strings.Contains(buf.String(), `error_message="exit status 1"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := WithJob(WithDocumentID(context.Background(), 42), 9, "process_single")
	WithContext(ctx, logger).Info("job started")

	line := buf.String()
	for _, want := range []string{"document_id=42", "job_id=9", "job_kind=process_single"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in line %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
