// Package transcribe handles process_single and process_batch jobs: it runs
// the engine over a document's source images and records the outcome. After
// a container page completes, the handler checks sibling progress and claims
// the merge when it finished last.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"folio/internal/config"
	"folio/internal/faults"
	"folio/internal/job"
	"folio/internal/logging"
	"folio/internal/registry"
	"folio/internal/storage"
	"folio/internal/subscript"
	"folio/internal/uniquify"
)

// Handler executes transcription jobs.
type Handler struct {
	cfg    *config.Config
	store  *registry.Store
	layout storage.Layout
	client *subscript.Client
	logger *slog.Logger
	kind   string
}

// NewSingle builds the handler for process_single jobs.
func NewSingle(cfg *config.Config, store *registry.Store, client *subscript.Client, logger *slog.Logger) *Handler {
	return newHandler(cfg, store, client, logger, job.KindProcessSingle)
}

// NewBatch builds the handler for process_batch jobs.
func NewBatch(cfg *config.Config, store *registry.Store, client *subscript.Client, logger *slog.Logger) *Handler {
	return newHandler(cfg, store, client, logger, job.KindProcessBatch)
}

func newHandler(cfg *config.Config, store *registry.Store, client *subscript.Client, logger *slog.Logger, kind string) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:    cfg,
		store:  store,
		layout: storage.NewLayout(cfg),
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, kind)),
		kind:   kind,
	}
}

// Kind identifies which job kind this handler serves.
func (h *Handler) Kind() string {
	return h.kind
}

// Execute runs the transcription for one job.
func (h *Handler) Execute(ctx context.Context, j *registry.Job) error {
	var payload job.ProcessPayload
	if err := job.Decode(j, &payload); err != nil {
		return faults.Wrap(faults.ErrValidation, h.kind, "decode", "bad job payload", err)
	}

	doc, err := h.store.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "load", "load document", err)
	}
	if doc == nil {
		return faults.Wrap(faults.ErrDeleted, h.kind, "load", fmt.Sprintf("document %d gone", payload.DocumentID), nil)
	}

	if h.kind == job.KindProcessBatch {
		return h.executeBatch(ctx, doc, payload)
	}
	return h.executeSingle(ctx, doc, payload)
}

func (h *Handler) executeSingle(ctx context.Context, doc *registry.Document, payload job.ProcessPayload) error {
	if err := h.store.ClaimProcessing(ctx, doc.ID); err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "claim", "document not claimable", err)
	}
	if doc.IsChild() {
		if err := h.store.BeginContainerProcessing(ctx, *doc.ParentID); err != nil {
			h.logger.Warn("container status update failed", logging.Error(err), logging.Int64(logging.FieldDocumentID, *doc.ParentID))
		}
	}

	dir := h.layout.DocumentDir(doc.Owner, doc.DirectoryName)
	if _, err := os.Stat(dir); err != nil {
		return faults.Wrap(faults.ErrDeleted, h.kind, "resolve", "document directory gone", err)
	}

	base := storage.BaseName(doc.Name)
	input := payload.InputPath
	if input == "" {
		var err error
		if input, err = storage.FindSource(dir, base); err != nil {
			return h.fail(ctx, doc.ID, registry.StatusProcessing,
				faults.Wrap(faults.ErrPipeline, h.kind, "resolve", "source image missing", err))
		}
	}

	cmd := h.command(payload.Options)
	cmd.Inputs = []string{input}
	cmd.OutputDir = dir

	if err := h.run(ctx, doc.ID, cmd); err != nil {
		return h.fail(ctx, doc.ID, registry.StatusProcessing, err)
	}

	artifacts := storage.ArtifactsFor(dir, base)
	if doc.IsChild() {
		if err := uniquify.File(artifacts.Markup, doc.PageOrder); err != nil {
			return h.fail(ctx, doc.ID, registry.StatusProcessing,
				faults.Wrap(faults.ErrPipeline, h.kind, "uniquify", "rewrite page identifiers", err))
		}
	}

	outputs := registry.Outputs{
		TextPath:   artifacts.Text,
		PDFPath:    artifacts.PDF,
		MarkupPath: artifacts.Markup,
	}
	if err := h.store.Complete(ctx, doc.ID, registry.StatusProcessing, outputs); err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "complete", "record completion", err)
	}
	h.logger.Info("document transcribed", logging.Int64(logging.FieldDocumentID, doc.ID))

	if doc.IsChild() {
		return h.maybeClaimMerge(ctx, *doc.ParentID)
	}
	return nil
}

// maybeClaimMerge enqueues the container merge when this page finished last.
// The conditional claim guarantees at most one enqueuer even when several
// pages complete at once.
func (h *Handler) maybeClaimMerge(ctx context.Context, parentID int64) error {
	total, completed, err := h.store.SiblingProgress(ctx, parentID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "siblings", "sibling progress", err)
	}
	if total == 0 || completed < total {
		return nil
	}

	claimed, err := h.store.ClaimMerge(ctx, parentID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "merge-claim", "claim merge", err)
	}
	if !claimed {
		return nil
	}

	payload, err := job.Encode(job.MergePayload{DocumentID: parentID})
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "merge-claim", "encode merge payload", err)
	}
	if _, err := h.store.Enqueue(ctx, job.KindMerge, parentID, payload); err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "merge-claim", "enqueue merge", err)
	}
	h.logger.Info("all pages complete, merge enqueued", logging.Int64(logging.FieldDocumentID, parentID))
	return nil
}

// executeBatch transcribes every page of a container in one engine run with
// a combined output named after the container.
func (h *Handler) executeBatch(ctx context.Context, doc *registry.Document, payload job.ProcessPayload) error {
	if !doc.IsContainer {
		return faults.Wrap(faults.ErrValidation, h.kind, "claim", "batch job on non-container", registry.ErrNotContainer)
	}
	if err := h.store.ClaimProcessing(ctx, doc.ID); err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "claim", "container not claimable", err)
	}

	children, err := h.store.ChildrenOf(ctx, doc.ID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "load", "load pages", err)
	}
	if len(children) == 0 {
		return h.fail(ctx, doc.ID, registry.StatusProcessing,
			faults.Wrap(faults.ErrValidation, h.kind, "load", "container has no pages", nil))
	}

	dir := h.layout.DocumentDir(doc.Owner, doc.DirectoryName)
	if _, err := os.Stat(dir); err != nil {
		return faults.Wrap(faults.ErrDeleted, h.kind, "resolve", "document directory gone", err)
	}

	inputs := make([]string, 0, len(children))
	for _, child := range children {
		input, err := storage.FindSource(dir, storage.BaseName(child.Name))
		if err != nil {
			return h.fail(ctx, doc.ID, registry.StatusProcessing,
				faults.Wrap(faults.ErrPipeline, h.kind, "resolve", "page source missing", err))
		}
		inputs = append(inputs, input)
	}

	base := storage.BaseName(doc.Name)
	cmd := h.command(payload.Options)
	cmd.Inputs = inputs
	cmd.OutputDir = dir
	cmd.Combine = base

	if err := h.run(ctx, doc.ID, cmd); err != nil {
		return h.fail(ctx, doc.ID, registry.StatusProcessing, err)
	}

	for _, child := range children {
		pageArtifacts := storage.ArtifactsFor(dir, storage.BaseName(child.Name))
		if _, err := os.Stat(pageArtifacts.Markup); err == nil {
			if err := uniquify.File(pageArtifacts.Markup, child.PageOrder); err != nil {
				return h.fail(ctx, doc.ID, registry.StatusProcessing,
					faults.Wrap(faults.ErrPipeline, h.kind, "uniquify", "rewrite page identifiers", err))
			}
		}
		if child.Status == registry.StatusCompleted {
			continue
		}
		if err := h.store.ClaimProcessing(ctx, child.ID); err != nil {
			return faults.Wrap(faults.ErrOrchestration, h.kind, "pages", "advance page", err)
		}
		outputs := registry.Outputs{
			TextPath:   pageArtifacts.Text,
			PDFPath:    pageArtifacts.PDF,
			MarkupPath: pageArtifacts.Markup,
		}
		if err := h.store.Complete(ctx, child.ID, registry.StatusProcessing, outputs); err != nil {
			return faults.Wrap(faults.ErrOrchestration, h.kind, "pages", "complete page", err)
		}
	}

	artifacts := storage.ArtifactsFor(dir, base)
	outputs := registry.Outputs{
		TextPath:   artifacts.Text,
		PDFPath:    artifacts.PDF,
		MarkupPath: artifacts.Markup,
	}
	if err := h.store.Complete(ctx, doc.ID, registry.StatusProcessing, outputs); err != nil {
		return faults.Wrap(faults.ErrOrchestration, h.kind, "complete", "record completion", err)
	}
	h.logger.Info("batch transcribed", logging.Int64(logging.FieldDocumentID, doc.ID), logging.Int("pages", len(children)))
	return nil
}

func (h *Handler) command(opts job.Options) subscript.Command {
	cmd := subscript.Command{
		SegmentationModel:  h.cfg.Subscript.SegmentationModel,
		TranscriptionModel: h.cfg.Subscript.TranscriptionModel,
	}
	opts.ApplyTo(&cmd)
	if opts.Model != "" {
		cmd.TranscriptionModel = opts.Model
	}
	return cmd
}

func (h *Handler) run(ctx context.Context, docID int64, cmd subscript.Command) error {
	logger := h.logger.With(logging.Int64(logging.FieldDocumentID, docID))
	err := h.client.Run(ctx, cmd, func(line string) {
		logger.Debug("engine", logging.String("line", line))
	})
	if err != nil {
		return faults.Wrap(faults.ErrPipeline, h.kind, "engine", "transcription failed", err)
	}
	return nil
}

// fail flips the document to error with the diagnostic message and returns
// the original fault so the job is recorded as failed too.
func (h *Handler) fail(ctx context.Context, docID int64, from registry.Status, cause error) error {
	if err := h.store.Fail(ctx, docID, from, faults.Message(cause)); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			h.logger.Warn("record failure", logging.Error(err), logging.Int64(logging.FieldDocumentID, docID))
		}
	}
	return cause
}
