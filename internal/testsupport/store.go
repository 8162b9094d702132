package testsupport

import (
	"context"
	"testing"

	"folio/internal/config"
	"folio/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewQueuedDocument creates a queued standalone document for tests.
func NewQueuedDocument(t testing.TB, store *registry.Store, name, owner, directoryName string) *registry.Document {
	t.Helper()

	doc, err := store.CreateDocument(context.Background(), registry.NewDocument{
		Name:          name,
		Owner:         owner,
		DirectoryName: directoryName,
	})
	if err != nil {
		t.Fatalf("store.CreateDocument: %v", err)
	}
	return doc
}
