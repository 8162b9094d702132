// Package orchestrator is the front door for document work: it ingests
// uploads into the library, registers them, and enqueues the background jobs
// that drive them to completion.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/faults"
	"folio/internal/job"
	"folio/internal/logging"
	"folio/internal/registry"
	"folio/internal/storage"
)

// Orchestrator exposes the submission and lifecycle operations.
type Orchestrator struct {
	cfg    *config.Config
	store  *registry.Store
	layout storage.Layout
	logger *slog.Logger
}

// New constructs an orchestrator.
func New(cfg *config.Config, store *registry.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		layout: storage.NewLayout(cfg),
		logger: logger.With(logging.String(logging.FieldComponent, "orchestrator")),
	}
}

// SubmitRequest describes a single-document submission.
type SubmitRequest struct {
	Owner      string
	SourcePath string
	// Name defaults to the source filename.
	Name    string
	Options job.Options
}

// Submit ingests one scan and queues its transcription.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*registry.Document, error) {
	if err := validateSource(req.SourcePath); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "", err)
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "submit", "owner required", nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = filepath.Base(req.SourcePath)
	}

	dirName := storage.NewDirectoryName(name)
	dir, err := o.layout.EnsureDocumentDir(owner, dirName)
	if err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "submit", "prepare directory", err)
	}

	input, err := ingest(req.SourcePath, dir, storage.BaseName(name))
	if err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "submit", "ingest source", err)
	}

	doc, err := o.store.CreateDocument(ctx, registry.NewDocument{
		Name:          name,
		Owner:         owner,
		DirectoryName: dirName,
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "submit", "register document", err)
	}

	if err := o.enqueueProcess(ctx, job.KindProcessSingle, doc.ID, input, req.Options); err != nil {
		return nil, err
	}
	o.logger.Info("document submitted",
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.String("owner", owner),
		logging.String("name", name))
	return doc, nil
}

// BatchRequest describes a multi-page submission. Sources are in reading
// order; that order becomes page_order 1..N.
type BatchRequest struct {
	Owner     string
	GroupName string
	Sources   []string
	Options   job.Options
	// Combine runs the whole batch as one engine invocation instead of
	// per-page jobs plus a merge.
	Combine bool
}

// SubmitBatch ingests a group of scans as one container document.
func (o *Orchestrator) SubmitBatch(ctx context.Context, req BatchRequest) (*registry.Document, error) {
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "batch", "owner required", nil)
	}
	groupName := strings.TrimSpace(req.GroupName)
	if groupName == "" {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "batch", "group name required", nil)
	}
	if len(req.Sources) == 0 {
		return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "batch", "at least one source required", nil)
	}
	for _, source := range req.Sources {
		if err := validateSource(source); err != nil {
			return nil, faults.Wrap(faults.ErrValidation, "orchestrator", "batch", "", err)
		}
	}

	dirName := storage.NewDirectoryName(groupName)
	dir, err := o.layout.EnsureDocumentDir(owner, dirName)
	if err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "batch", "prepare directory", err)
	}

	pages := make([]registry.NewPage, 0, len(req.Sources))
	inputs := make([]string, 0, len(req.Sources))
	bases := make([]string, 0, len(req.Sources))
	for _, source := range req.Sources {
		pageName := filepath.Base(source)
		base := storage.BaseName(pageName)
		input, err := ingest(source, dir, base)
		if err != nil {
			return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "batch", "ingest page", err)
		}
		pages = append(pages, registry.NewPage{Name: pageName})
		inputs = append(inputs, input)
		bases = append(bases, base)
	}

	if err := storage.WriteManifest(dir, bases); err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "batch", "write manifest", err)
	}

	parent, children, err := o.store.CreateContainer(ctx, registry.NewContainer{
		Name:          groupName,
		Owner:         owner,
		DirectoryName: dirName,
		Pages:         pages,
	})
	if err != nil {
		return nil, faults.Wrap(faults.ErrOrchestration, "orchestrator", "batch", "register container", err)
	}

	if req.Combine {
		if err := o.enqueueProcess(ctx, job.KindProcessBatch, parent.ID, "", req.Options); err != nil {
			return nil, err
		}
	} else {
		for i, child := range children {
			if err := o.enqueueProcess(ctx, job.KindProcessSingle, child.ID, inputs[i], req.Options); err != nil {
				return nil, err
			}
		}
	}
	o.logger.Info("batch submitted",
		logging.Int64(logging.FieldDocumentID, parent.ID),
		logging.String("owner", owner),
		logging.Int("pages", len(children)),
		logging.Bool("combine", req.Combine))
	return parent, nil
}

// Rebuild queues a PDF regeneration for a completed document.
func (o *Orchestrator) Rebuild(ctx context.Context, id int64) error {
	if err := o.store.Transition(ctx, id, registry.StatusCompleted, registry.StatusUpdatingPDF); err != nil {
		return err
	}
	payload, err := job.Encode(job.RebuildPayload{DocumentID: id})
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, "orchestrator", "rebuild", "encode payload", err)
	}
	if _, err := o.store.Enqueue(ctx, job.KindRebuildPDF, id, payload); err != nil {
		return faults.Wrap(faults.ErrOrchestration, "orchestrator", "rebuild", "enqueue", err)
	}
	return nil
}

// Resubmit returns an errored document to the queue.
func (o *Orchestrator) Resubmit(ctx context.Context, id int64) error {
	doc, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return registry.ErrNotFound
	}

	if err := o.store.Requeue(ctx, id); err != nil {
		return err
	}

	if doc.IsContainer {
		// A container only errors during merge or combine; its pages keep
		// their statuses. Retry the container-level step directly.
		total, completed, err := o.store.SiblingProgress(ctx, id)
		if err != nil {
			return err
		}
		if total > 0 && completed == total {
			if err := o.store.BeginContainerProcessing(ctx, id); err != nil {
				return err
			}
			claimed, err := o.store.ClaimMerge(ctx, id)
			if err != nil {
				return err
			}
			if claimed {
				payload, err := job.Encode(job.MergePayload{DocumentID: id})
				if err != nil {
					return faults.Wrap(faults.ErrOrchestration, "orchestrator", "resubmit", "encode payload", err)
				}
				if _, err := o.store.Enqueue(ctx, job.KindMerge, id, payload); err != nil {
					return faults.Wrap(faults.ErrOrchestration, "orchestrator", "resubmit", "enqueue merge", err)
				}
			}
			return nil
		}
		// Combine retry: the container stays queued so the process_batch
		// handler can claim it like any fresh submission.
		return o.enqueueProcess(ctx, job.KindProcessBatch, id, "", job.Options{})
	}

	return o.enqueueProcess(ctx, job.KindProcessSingle, id, "", job.Options{})
}

// Delete removes a document, its pages, and its files. In-flight jobs notice
// the missing record and clean up after themselves.
func (o *Orchestrator) Delete(ctx context.Context, id int64) error {
	doc, err := o.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return registry.ErrNotFound
	}
	if doc.IsChild() {
		return faults.Wrap(faults.ErrValidation, "orchestrator", "delete", "pages are deleted with their container", nil)
	}

	if err := o.layout.RemoveDocumentDir(doc.Owner, doc.DirectoryName); err != nil {
		return faults.Wrap(faults.ErrOrchestration, "orchestrator", "delete", "remove files", err)
	}
	removed, err := o.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return registry.ErrNotFound
	}
	o.logger.Info("document deleted", logging.Int64(logging.FieldDocumentID, id))
	return nil
}

// Share assigns a stable share token to a document and returns it. Repeat
// calls return the token assigned first.
func (o *Orchestrator) Share(ctx context.Context, id int64) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return o.store.EnsureShareToken(ctx, id, token)
}

// Get fetches a document by id.
func (o *Orchestrator) Get(ctx context.Context, id int64) (*registry.Document, error) {
	return o.store.GetByID(ctx, id)
}

// GetShared fetches a document by its share token.
func (o *Orchestrator) GetShared(ctx context.Context, token string) (*registry.Document, error) {
	return o.store.GetByShareToken(ctx, token)
}

// List returns documents, optionally filtered by owner.
func (o *Orchestrator) List(ctx context.Context, owner string) ([]*registry.Document, error) {
	return o.store.List(ctx, owner)
}

func (o *Orchestrator) enqueueProcess(ctx context.Context, kind string, documentID int64, input string, opts job.Options) error {
	payload, err := job.Encode(job.ProcessPayload{DocumentID: documentID, InputPath: input, Options: opts})
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, "orchestrator", "enqueue", "encode payload", err)
	}
	if _, err := o.store.Enqueue(ctx, kind, documentID, payload); err != nil {
		return faults.Wrap(faults.ErrOrchestration, "orchestrator", "enqueue", kind, err)
	}
	return nil
}

func validateSource(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("source path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("source %s is a directory", path)
	}
	if !storage.IsSourceImage(path) {
		return fmt.Errorf("source %s is not a supported image", path)
	}
	return nil
}

// ingest copies a source scan into the document directory under its base
// name with a lowercased extension.
func ingest(source, dir, base string) (string, error) {
	ext := strings.ToLower(filepath.Ext(source))
	dst := filepath.Join(dir, base+ext)
	if err := storage.CopyFile(source, dst); err != nil {
		return "", fmt.Errorf("copy %s: %w", source, err)
	}
	return dst, nil
}
