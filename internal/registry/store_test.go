package registry

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "folio.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func mustCreate(t *testing.T, store *Store, name, owner string) *Document {
	t.Helper()
	doc, err := store.CreateDocument(context.Background(), NewDocument{
		Name:          name,
		Owner:         owner,
		DirectoryName: name + "-abc12345",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func TestCreateDocumentStartsQueued(t *testing.T) {
	store := newTestStore(t)
	doc := mustCreate(t, store, "ledger-1821", "archivist")

	if doc.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if doc.Status != StatusQueued {
		t.Fatalf("status = %s, want %s", doc.Status, StatusQueued)
	}
	if doc.IsContainer || doc.IsChild() {
		t.Fatal("standalone document must be neither container nor child")
	}
	if doc.CreatedAt.IsZero() || doc.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	store := newTestStore(t)
	cases := []struct {
		name string
		doc  NewDocument
	}{
		{"missing name", NewDocument{Owner: "a", DirectoryName: "d"}},
		{"missing owner", NewDocument{Name: "n", DirectoryName: "d"}},
		{"missing directory", NewDocument{Name: "n", Owner: "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateDocument(context.Background(), tc.doc); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateContainerAssignsPageOrder(t *testing.T) {
	store := newTestStore(t)
	parent, children, err := store.CreateContainer(context.Background(), NewContainer{
		Name:          "parish-register",
		Owner:         "archivist",
		DirectoryName: "parish-register-deadbeef",
		Pages:         []NewPage{{Name: "page-003"}, {Name: "page-001"}, {Name: "page-002"}},
	})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if !parent.IsContainer {
		t.Fatal("parent must be a container")
	}
	if len(children) != 3 {
		t.Fatalf("children = %d, want 3", len(children))
	}
	for i, child := range children {
		if child.PageOrder != i+1 {
			t.Fatalf("child %d page order = %d, want %d", i, child.PageOrder, i+1)
		}
		if child.ParentID == nil || *child.ParentID != parent.ID {
			t.Fatalf("child %d not linked to parent", i)
		}
		if child.DirectoryName != parent.DirectoryName {
			t.Fatalf("child %d directory = %q, want %q", i, child.DirectoryName, parent.DirectoryName)
		}
	}

	ordered, err := store.ChildrenOf(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("ChildrenOf: %v", err)
	}
	wantNames := []string{"page-003", "page-001", "page-002"}
	for i, child := range ordered {
		if child.Name != wantNames[i] {
			t.Fatalf("ordered child %d = %q, want %q (submission order, not name order)", i, child.Name, wantNames[i])
		}
	}
}

func TestCreateContainerRequiresPages(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.CreateContainer(context.Background(), NewContainer{
		Name:          "empty",
		Owner:         "archivist",
		DirectoryName: "empty-00000000",
	})
	if err == nil {
		t.Fatal("expected error for container without pages")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	doc, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil for missing document, got %+v", doc)
	}
}

func TestListFiltersByOwner(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "a", "alice")
	mustCreate(t, store, "b", "bob")
	mustCreate(t, store, "c", "alice")

	docs, err := store.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("alice documents = %d, want 2", len(docs))
	}

	all, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all documents = %d, want 3", len(all))
	}
}

func TestSiblingProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent, children, err := store.CreateContainer(ctx, NewContainer{
		Name:          "codex",
		Owner:         "archivist",
		DirectoryName: "codex-cafe0001",
		Pages:         []NewPage{{Name: "p1"}, {Name: "p2"}, {Name: "p3"}},
	})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	total, completed, err := store.SiblingProgress(ctx, parent.ID)
	if err != nil {
		t.Fatalf("SiblingProgress: %v", err)
	}
	if total != 3 || completed != 0 {
		t.Fatalf("progress = %d/%d, want 0/3", completed, total)
	}

	for _, child := range children[:2] {
		if err := store.Transition(ctx, child.ID, StatusQueued, StatusProcessing); err != nil {
			t.Fatalf("to processing: %v", err)
		}
		if err := store.Complete(ctx, child.ID, StatusProcessing, Outputs{TextPath: "t"}); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	total, completed, err = store.SiblingProgress(ctx, parent.ID)
	if err != nil {
		t.Fatalf("SiblingProgress: %v", err)
	}
	if total != 3 || completed != 2 {
		t.Fatalf("progress = %d/%d, want 2/3", completed, total)
	}
}

func TestEnsureShareTokenIsStable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "deed", "archivist")

	first, err := store.EnsureShareToken(ctx, doc.ID, "token-one")
	if err != nil {
		t.Fatalf("EnsureShareToken: %v", err)
	}
	if first != "token-one" {
		t.Fatalf("token = %q, want token-one", first)
	}

	second, err := store.EnsureShareToken(ctx, doc.ID, "token-two")
	if err != nil {
		t.Fatalf("EnsureShareToken repeat: %v", err)
	}
	if second != "token-one" {
		t.Fatalf("repeat token = %q, want original token-one", second)
	}

	found, err := store.GetByShareToken(ctx, "token-one")
	if err != nil {
		t.Fatalf("GetByShareToken: %v", err)
	}
	if found == nil || found.ID != doc.ID {
		t.Fatal("share token lookup did not return the document")
	}
}

func TestDeleteRemovesContainerAndPages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent, children, err := store.CreateContainer(ctx, NewContainer{
		Name:          "bundle",
		Owner:         "archivist",
		DirectoryName: "bundle-feedface",
		Pages:         []NewPage{{Name: "p1"}, {Name: "p2"}},
	})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	removed, err := store.Delete(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to report removal")
	}

	for _, child := range children {
		doc, err := store.GetByID(ctx, child.ID)
		if err != nil {
			t.Fatalf("GetByID child: %v", err)
		}
		if doc != nil {
			t.Fatalf("child %d survived container delete", child.ID)
		}
	}

	removed, err = store.Delete(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Delete repeat: %v", err)
	}
	if removed {
		t.Fatal("second delete must report nothing removed")
	}
}

func TestHealthCountsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, store, "a", "archivist")
	b := mustCreate(t, store, "b", "archivist")
	mustCreate(t, store, "c", "archivist")

	if err := store.Transition(ctx, a.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("transition a: %v", err)
	}
	if err := store.Transition(ctx, b.ID, StatusQueued, StatusProcessing); err != nil {
		t.Fatalf("transition b: %v", err)
	}
	if err := store.Fail(ctx, b.ID, StatusProcessing, "boom"); err != nil {
		t.Fatalf("fail b: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Queued != 1 || health.Processing != 1 || health.Errored != 1 {
		t.Fatalf("health = %+v", health)
	}
}
