// Package rebuild regenerates a document's PDF from its existing markup
// without re-running the transcription models.
package rebuild

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
)

// Handler executes rebuild_pdf jobs.
type Handler struct {
	cfg    *config.Config
	store  *registry.Store
	layout storage.Layout
	client *subscript.Client
	logger *slog.Logger
}

// New builds the rebuild handler.
func New(cfg *config.Config, store *registry.Store, client *subscript.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:    cfg,
		store:  store,
		layout: storage.NewLayout(cfg),
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, job.KindRebuildPDF)),
	}
}

// Kind identifies the job kind this handler serves.
func (h *Handler) Kind() string {
	return job.KindRebuildPDF
}

// Execute regenerates the PDF for a document already claimed into
// updating_pdf.
func (h *Handler) Execute(ctx context.Context, j *registry.Job) error {
	var payload job.RebuildPayload
	if err := job.Decode(j, &payload); err != nil {
		return faults.Wrap(faults.ErrValidation, job.KindRebuildPDF, "decode", "bad job payload", err)
	}

	doc, err := h.store.GetByID(ctx, payload.DocumentID)
	if err != nil {
		return faults.Wrap(faults.ErrOrchestration, job.KindRebuildPDF, "load", "load document", err)
	}
	if doc == nil {
		return faults.Wrap(faults.ErrDeleted, job.KindRebuildPDF, "load", fmt.Sprintf("document %d gone", payload.DocumentID), nil)
	}
	if doc.Status != registry.StatusUpdatingPDF {
		return faults.Wrap(faults.ErrOrchestration, job.KindRebuildPDF, "load",
			fmt.Sprintf("document in %s, expected updating_pdf", doc.Status), registry.ErrConflict)
	}

	dir := h.layout.DocumentDir(doc.Owner, doc.DirectoryName)
	if _, err := os.Stat(dir); err != nil {
		return faults.Wrap(faults.ErrDeleted, job.KindRebuildPDF, "resolve", "document directory gone", err)
	}

	base := storage.BaseName(doc.Name)
	var inputs []string
	if doc.IsContainer {
		children, err := h.store.ChildrenOf(ctx, doc.ID)
		if err != nil {
			return faults.Wrap(faults.ErrOrchestration, job.KindRebuildPDF, "load", "load pages", err)
		}
		for _, child := range children {
			input, err := storage.FindSource(dir, storage.BaseName(child.Name))
			if err != nil {
				return h.fail(ctx, doc.ID,
					faults.Wrap(faults.ErrPipeline, job.KindRebuildPDF, "resolve", "page source missing", err))
			}
			inputs = append(inputs, input)
		}
	} else {
		input, err := storage.FindSource(dir, base)
		if err != nil {
			return h.fail(ctx, doc.ID,
				faults.Wrap(faults.ErrPipeline, job.KindRebuildPDF, "resolve", "source image missing", err))
		}
		inputs = []string{input}
	}

	cmd := subscript.Command{
		SegmentationModel:  h.cfg.Subscript.SegmentationModel,
		TranscriptionModel: h.cfg.Subscript.TranscriptionModel,
		Inputs:             inputs,
		OutputDir:          dir,
		OnlyPDF:            true,
	}
	if doc.IsContainer {
		cmd.Combine = base
	}

	logger := h.logger.With(logging.Int64(logging.FieldDocumentID, doc.ID))
	if err := h.client.Run(ctx, cmd, func(line string) {
		logger.Debug("engine", logging.String("line", line))
	}); err != nil {
		return h.fail(ctx, doc.ID, faults.Wrap(faults.ErrPipeline, job.KindRebuildPDF, "engine", "pdf rebuild failed", err))
	}

	artifacts := storage.ArtifactsFor(dir, base)
	outputs := registry.Outputs{
		TextPath:   artifacts.Text,
		PDFPath:    artifacts.PDF,
		MarkupPath: artifacts.Markup,
	}
	if err := h.store.Complete(ctx, doc.ID, registry.StatusUpdatingPDF, outputs); err != nil {
		return faults.Wrap(faults.ErrOrchestration, job.KindRebuildPDF, "complete", "record completion", err)
	}
	logger.Info("pdf rebuilt")
	return nil
}

func (h *Handler) fail(ctx context.Context, docID int64, cause error) error {
	if err := h.store.Fail(ctx, docID, registry.StatusUpdatingPDF, faults.Message(cause)); err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			h.logger.Warn("record rebuild failure", logging.Error(err), logging.Int64(logging.FieldDocumentID, docID))
		}
	}
	return cause
}
