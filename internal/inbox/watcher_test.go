package inbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"folio/internal/inbox"
	"folio/internal/orchestrator"
	"folio/internal/registry"
	"folio/internal/testsupport"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []orchestrator.SubmitRequest
	err      error
}

func (r *recordingSubmitter) Submit(_ context.Context, req orchestrator.SubmitRequest) (*registry.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.requests = append(r.requests, req)
	return &registry.Document{ID: int64(len(r.requests)), Name: req.Name}, nil
}

func (r *recordingSubmitter) submitted() []orchestrator.SubmitRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.SubmitRequest(nil), r.requests...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func newWatcher(t *testing.T, submitter inbox.Submitter) (*inbox.Watcher, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithInbox("inbox"))
	w := inbox.NewWatcher(cfg, submitter, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, cfg.Inbox.Dir
}

func TestDroppedScanIsSubmittedAndRemoved(t *testing.T) {
	submitter := &recordingSubmitter{}
	_, dir := newWatcher(t, submitter)

	path := filepath.Join(dir, "deed.jpg")
	testsupport.WriteScan(t, path)

	waitFor(t, 5*time.Second, func() bool { return len(submitter.submitted()) == 1 })

	req := submitter.submitted()[0]
	if req.Owner != "inbox" {
		t.Fatalf("owner = %q", req.Owner)
	}
	if req.SourcePath != path {
		t.Fatalf("source = %q, want %q", req.SourcePath, path)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, err := os.Stat(path)
		return errors.Is(err, os.ErrNotExist)
	})
}

func TestNonImageFilesAreIgnored(t *testing.T) {
	submitter := &recordingSubmitter{}
	_, dir := newWatcher(t, submitter)

	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), "not a scan")
	testsupport.WriteFile(t, filepath.Join(dir, ".hidden.jpg"), "hidden")

	time.Sleep(2 * time.Second)
	if got := submitter.submitted(); len(got) != 0 {
		t.Fatalf("submitted %d files, want 0", len(got))
	}
}

func TestExistingFilesArePickedUpOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox("inbox"))

	path := filepath.Join(cfg.Inbox.Dir, "stranded.jpg")
	testsupport.WriteScan(t, path)

	submitter := &recordingSubmitter{}
	w := inbox.NewWatcher(cfg, submitter, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	waitFor(t, 5*time.Second, func() bool { return len(submitter.submitted()) == 1 })
}

func TestFailedSubmissionLeavesFile(t *testing.T) {
	submitter := &recordingSubmitter{err: errors.New("registry down")}
	_, dir := newWatcher(t, submitter)

	path := filepath.Join(dir, "deed.jpg")
	testsupport.WriteScan(t, path)

	time.Sleep(2 * time.Second)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should survive a failed submission: %v", err)
	}
}

func TestDoubleStartFails(t *testing.T) {
	submitter := &recordingSubmitter{}
	w, _ := newWatcher(t, submitter)
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}
