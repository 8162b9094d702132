package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusMerging, true},
		{StatusMerging, StatusCompleted, true},
		{StatusMerging, StatusError, true},
		{StatusCompleted, StatusUpdatingPDF, true},
		{StatusUpdatingPDF, StatusCompleted, true},
		{StatusUpdatingPDF, StatusError, true},
		{StatusError, StatusQueued, true},

		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusMerging, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusQueued, false},
		{StatusError, StatusProcessing, false},
		{StatusMerging, StatusProcessing, false},
		{StatusProcessing, StatusQueued, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionRejectsIllegalPair(t *testing.T) {
	store := newTestStore(t)
	doc := mustCreate(t, store, "doc", "archivist")

	err := store.Transition(context.Background(), doc.ID, StatusQueued, StatusCompleted)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}

	current, err := store.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusQueued {
		t.Fatalf("status mutated to %s by rejected transition", current.Status)
	}
}

func TestTransitionConflictWhenStatusMoved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if err := store.Transition(ctx, doc.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	err := store.Transition(ctx, doc.ID, StatusQueued, StatusProcessing)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestClaimProcessingAcceptsReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if err := store.ClaimProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// A job reclaimed from a dead worker replays against a document the
	// first run already moved to processing.
	if err := store.ClaimProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("replayed claim: %v", err)
	}

	current, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", current.Status)
	}
}

func TestClaimProcessingRejectsTerminalStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if err := store.ClaimProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, doc.ID, StatusProcessing, Outputs{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.ClaimProcessing(ctx, doc.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestTransitionMissingDocument(t *testing.T) {
	store := newTestStore(t)
	err := store.Transition(context.Background(), 4242, StatusQueued, StatusProcessing)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteRecordsOutputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if err := store.Transition(ctx, doc.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	outputs := Outputs{
		TextPath:   "/lib/a/doc.txt",
		PDFPath:    "/lib/a/doc.pdf",
		MarkupPath: "/lib/a/doc.xml",
	}
	if err := store.Complete(ctx, doc.ID, StatusProcessing, outputs); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	current, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", current.Status)
	}
	if current.OutputTextPath != outputs.TextPath ||
		current.OutputPDFPath != outputs.PDFPath ||
		current.OutputMarkupPath != outputs.MarkupPath {
		t.Fatalf("outputs not persisted: %+v", current)
	}
}

func TestFailAndRequeueClearsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if err := store.Transition(ctx, doc.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if err := store.Fail(ctx, doc.ID, StatusProcessing, "page 3: engine exited 1"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	current, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusError || current.ErrorMessage != "page 3: engine exited 1" {
		t.Fatalf("after fail: %+v", current)
	}

	if err := store.Requeue(ctx, doc.ID); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	current, err = store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusQueued {
		t.Fatalf("status = %s, want queued", current.Status)
	}
	if current.ErrorMessage != "" {
		t.Fatalf("error message survived requeue: %q", current.ErrorMessage)
	}
}

func TestRequeueOnlyFromError(t *testing.T) {
	store := newTestStore(t)
	doc := mustCreate(t, store, "doc", "archivist")

	err := store.Requeue(context.Background(), doc.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict for requeue of queued document", err)
	}
}

func TestClaimMergeSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent, _, err := store.CreateContainer(ctx, NewContainer{
		Name:          "codex",
		Owner:         "archivist",
		DirectoryName: "codex-0badf00d",
		Pages:         []NewPage{{Name: "p1"}, {Name: "p2"}},
	})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if err := store.BeginContainerProcessing(ctx, parent.ID); err != nil {
		t.Fatalf("BeginContainerProcessing: %v", err)
	}

	const claimers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimMerge(ctx, parent.ID)
			if err != nil {
				t.Errorf("ClaimMerge: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("merge claimed by %d workers, want exactly 1", wins)
	}

	current, err := store.GetByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusMerging {
		t.Fatalf("container status = %s, want merging", current.Status)
	}
}

func TestClaimMergeIgnoresNonContainers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "loose-page", "archivist")
	if err := store.Transition(ctx, doc.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("to processing: %v", err)
	}

	claimed, err := store.ClaimMerge(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ClaimMerge: %v", err)
	}
	if claimed {
		t.Fatal("claimed merge on a non-container document")
	}
}

func TestBeginContainerProcessingIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent, _, err := store.CreateContainer(ctx, NewContainer{
		Name:          "codex",
		Owner:         "archivist",
		DirectoryName: "codex-12345678",
		Pages:         []NewPage{{Name: "p1"}},
	})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.BeginContainerProcessing(ctx, parent.ID); err != nil {
			t.Fatalf("BeginContainerProcessing call %d: %v", i, err)
		}
	}
	current, err := store.GetByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", current.Status)
	}
}
