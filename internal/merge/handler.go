// Package merge combines the finished pages of a container into one result
// set named after the container. Page markup keeps its per-page identifier
// prefixes, so the combined markup stays internally unique.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"folio/internal/config"
	"folio/internal/faults"
	"folio/internal/job"
	"folio/internal/logging"
	"folio/internal/registry"
	"folio/internal/storage"
	"folio/internal/subscript"
)

// Handler executes merge jobs.
type Handler struct {
	cfg      *config.Config
	store    *registry.Store
	layout   storage.Layout
	client   *subscript.Client
	logger   *slog.Logger
	validate func(path string, pages int) error
}

// Option configures the handler.
type Option func(*Handler)

// WithValidator replaces the combined PDF check (primarily for tests).
func WithValidator(validate func(path string, pages int) error) Option {
	return func(h *Handler) {
		if validate != nil {
			h.validate = validate
		}
	}
}

// New builds the merge handler.
func New(cfg *config.Config, store *registry.Store, client *subscript.Client, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		cfg:      cfg,
		store:    store,
		layout:   storage.NewLayout(cfg),
		client:   client,
		logger:   logger.With(logging.String(logging.FieldComponent, job.KindMerge)),
		validate: validateCombinedPDF,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Kind identifies the job kind this handler serves.
func (h *Handler) Kind() string {
	return job.KindMerge
}

// Execute combines a container's pages. The container is already in merging
// when the job runs; a re-run after reclaim overwrites the same outputs, so
// the operation is idempotent.
func (h *Handler) Execute(ctx context.Context, j *registry.Job) error {
	var payload job.MergePayload
	if err := job.Decode(j, &payload); err != nil {
		return faults.Wrap(faults.ErrValidation, job.KindMerge, "decode", "bad job payload", err)
	}

	doc, err := h.store.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, job.KindMerge, "load", "load container", err)
	}
	if doc == nil {
		return faults.Wrap(faults.ErrDeleted, job.KindMerge, "load", fmt.Sprintf("container %d gone", payload.DocumentID), nil)
	}
	if !doc.IsContainer {
		return faults.Wrap(faults.ErrValidation, job.KindMerge, "load", "merge job on non-container", registry.ErrNotContainer)
	}
	if doc.Status != registry.StatusMerging {
		return faults.Wrap(faults.ErrOrchestration, job.KindMerge, "load",
			fmt.Sprintf("container in %s, expected merging", doc.Status), registry.ErrConflict)
	}

	children, err := h.store.ChildrenOf(ctx, doc.ID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, job.KindMerge, "load", "load pages", err)
	}
	if len(children) == 0 {
		return h.fail(ctx, doc.ID,
			faults.Wrap(faults.ErrMerge, job.KindMerge, "load", "container has no pages", nil))
	}
	for _, child := range children {
		if child.Status != registry.StatusCompleted {
			return h.fail(ctx, doc.ID,
				faults.Wrap(faults.ErrMerge, job.KindMerge, "verify",
					fmt.Sprintf("page %d is %s, expected completed", child.PageOrder, child.Status), nil))
		}
	}

	dir := h.layout.DocumentDir(doc.Owner, doc.DirectoryName)
	if _, err := os.Stat(dir); err != nil {
		return faults.Wrap(faults.ErrDeleted, job.KindMerge, "resolve", "document directory gone", err)
	}

	// Page markup already exists, so the engine only rebuilds the combined
	// artifacts from it.
	inputs := make([]string, 0, len(children))
	for _, child := range children {
		input, err := storage.FindSource(dir, storage.BaseName(child.Name))
		if err != nil {
			return h.fail(ctx, doc.ID,
				faults.Wrap(faults.ErrMerge, job.KindMerge, "resolve", "page source missing", err))
		}
		inputs = append(inputs, input)
	}

	base := storage.BaseName(doc.Name)
	cmd := subscript.Command{
		SegmentationModel:  h.cfg.Subscript.SegmentationModel,
		TranscriptionModel: h.cfg.Subscript.TranscriptionModel,
		Inputs:             inputs,
		OutputDir:          dir,
		Combine:            base,
		OnlyPDF:            true,
	}

	logger := h.logger.With(logging.Int64(logging.FieldDocumentID, doc.ID))
	if err := h.client.Run(ctx, cmd, func(line string) {
		logger.Debug("engine", logging.String("line", line))
	}); err != nil {
		return h.fail(ctx, doc.ID, faults.Wrap(faults.ErrMerge, job.KindMerge, "engine", "combine failed", err))
	}

	artifacts := storage.ArtifactsFor(dir, base)
	if err := h.validate(artifacts.PDF, len(children)); err != nil {
		return h.fail(ctx, doc.ID, faults.Wrap(faults.ErrMerge, job.KindMerge, "verify", "combined pdf", err))
	}

	// The container's thumbnail is its first page's.
	firstThumb := storage.ArtifactsFor(dir, storage.BaseName(children[0].Name)).Thumb
	if _, err := os.Stat(firstThumb); err == nil {
		if err := storage.CopyFile(firstThumb, artifacts.Thumb); err != nil {
			logger.Warn("copy container thumbnail", logging.Error(err))
		}
	}

	outputs := registry.Outputs{
		TextPath:   artifacts.Text,
		PDFPath:    artifacts.PDF,
		MarkupPath: artifacts.Markup,
	}
	if err := h.store.Complete(ctx, doc.ID, registry.StatusMerging, outputs); err != nil {
		return faults.Wrap(faults.ErrOrchestration, job.KindMerge, "complete", "record completion", err)
	}
	logger.Info("container merged", logging.Int("pages", len(children)))
	return nil
}

// validateCombinedPDF checks the merged document has one page per child.
func validateCombinedPDF(path string, pages int) error {
	count, err := api.PageCountFile(path)
	if err != nil {
		return fmt.Errorf("page count: %w", err)
	}
	if count != pages {
		return fmt.Errorf("combined pdf has %d pages, expected %d", count, pages)
	}
	return nil
}

// fail records the merge failure on the container only; pages keep their
// individual statuses.
func (h *Handler) fail(ctx context.Context, docID int64, cause error) error {
	if err := h.store.Fail(ctx, docID, registry.StatusMerging, faults.Message(cause)); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			h.logger.Warn("record merge failure", logging.Error(err), logging.Int64(logging.FieldDocumentID, docID))
		}
	}
	return cause
}
