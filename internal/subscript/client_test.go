package subscript_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"folio/internal/subscript"
)

type stubExecutor struct {
	lines []string
	errs  []error
	calls int
	args  [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	s.calls++
	cloned := append([]string(nil), args...)
	s.args = append(s.args, cloned)
	for _, line := range s.lines {
		onLine(line)
	}
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	if len(s.errs) > 1 {
		s.errs = s.errs[1:]
	}
	return err
}

func floatPtr(v float64) *float64 { return &v }

func TestCommandArgsFullContract(t *testing.T) {
	cmd := subscript.Command{
		SegmentationModel:  "historical-manuscript",
		TranscriptionModel: "gemini-pro-3",
		Inputs:             []string{"/in/p1.jpg", "/in/p2.jpg"},
		OutputDir:          "/out",
		Combine:            "register",
		Prompt:             "18th century parish records",
		Temperature:        floatPtr(0.2),
		Resize:             2048,
		Contrast:           floatPtr(1.5),
		Binarize:           true,
		Invert:             true,
	}
	want := []string{
		"historical-manuscript", "gemini-pro-3",
		"/in/p1.jpg", "/in/p2.jpg",
		"--output", "/out",
		"--combine", "register",
		"--prompt", "18th century parish records",
		"--temp", "0.2",
		"--resize", "2048",
		"--contrast", "1.5",
		"--binarize",
		"--invert",
	}
	if got := cmd.Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
}

func TestCommandArgsOnlyPDF(t *testing.T) {
	cmd := subscript.Command{
		SegmentationModel:  "seg",
		TranscriptionModel: "tr",
		Inputs:             []string{"/in/p1.jpg"},
		OutputDir:          "/out",
		OnlyPDF:            true,
	}
	want := []string{"seg", "tr", "/in/p1.jpg", "--output", "/out", "--onlypdf"}
	if got := cmd.Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
}

func TestCommandValidate(t *testing.T) {
	cases := []struct {
		name string
		cmd  subscript.Command
	}{
		{"missing seg model", subscript.Command{TranscriptionModel: "tr", Inputs: []string{"a"}, OutputDir: "o"}},
		{"missing transcription model", subscript.Command{SegmentationModel: "seg", Inputs: []string{"a"}, OutputDir: "o"}},
		{"no inputs", subscript.Command{SegmentationModel: "seg", TranscriptionModel: "tr", OutputDir: "o"}},
		{"blank input", subscript.Command{SegmentationModel: "seg", TranscriptionModel: "tr", Inputs: []string{" "}, OutputDir: "o"}},
		{"no output", subscript.Command{SegmentationModel: "seg", TranscriptionModel: "tr", Inputs: []string{"a"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cmd.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func validCommand() subscript.Command {
	return subscript.Command{
		SegmentationModel:  "seg",
		TranscriptionModel: "tr",
		Inputs:             []string{"/in/p.jpg"},
		OutputDir:          "/out",
	}
}

func TestRunPrependsConfigPath(t *testing.T) {
	exec := &stubExecutor{}
	client, err := subscript.New("subscript", "/etc/subscript.toml", subscript.Policy{}, subscript.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Run(context.Background(), validCommand(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("calls = %d, want 1", exec.calls)
	}
	got := exec.args[0]
	if got[0] != "--config" || got[1] != "/etc/subscript.toml" {
		t.Fatalf("args = %v, want leading --config pair", got)
	}
}

func TestRunRetriesUpToMaxAttempts(t *testing.T) {
	exec := &stubExecutor{errs: []error{errors.New("exit 1"), errors.New("exit 1"), nil}}
	client, err := subscript.New("subscript", "", subscript.Policy{MaxAttempts: 3}, subscript.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Run(context.Background(), validCommand(), nil); err != nil {
		t.Fatalf("Run after retries: %v", err)
	}
	if exec.calls != 3 {
		t.Fatalf("calls = %d, want 3", exec.calls)
	}
}

func TestRunReturnsLastErrorWhenExhausted(t *testing.T) {
	exec := &stubExecutor{errs: []error{errors.New("exit 2")}}
	client, err := subscript.New("subscript", "", subscript.Policy{MaxAttempts: 2}, subscript.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Run(context.Background(), validCommand(), nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if exec.calls != 2 {
		t.Fatalf("calls = %d, want 2", exec.calls)
	}
}

func TestRunErrorCarriesOutputTail(t *testing.T) {
	var lines []string
	for i := 1; i <= 15; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	exec := &stubExecutor{lines: lines, errs: []error{errors.New("exit 1")}}
	client, err := subscript.New("subscript", "", subscript.Policy{}, subscript.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = client.Run(context.Background(), validCommand(), nil)
	var runErr *subscript.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %T, want *RunError", err)
	}
	if len(runErr.Tail) != 10 {
		t.Fatalf("tail = %d lines, want 10", len(runErr.Tail))
	}
	if runErr.Tail[0] != "line 6" || runErr.Tail[9] != "line 15" {
		t.Fatalf("tail window = %v", runErr.Tail)
	}
	if !strings.Contains(runErr.Error(), "line 15") {
		t.Fatalf("error string misses tail: %v", runErr)
	}
}

func TestRunForwardsLines(t *testing.T) {
	exec := &stubExecutor{lines: []string{"segmenting", "transcribing"}}
	client, err := subscript.New("subscript", "", subscript.Policy{}, subscript.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var seen []string
	if err := client.Run(context.Background(), validCommand(), func(line string) {
		seen = append(seen, line)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"segmenting", "transcribing"}) {
		t.Fatalf("seen = %v", seen)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := subscript.New("  ", "", subscript.Policy{}); err == nil {
		t.Fatal("expected error for blank binary")
	}
}
