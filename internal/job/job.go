// Package job defines the durable background work kinds and their payloads.
// Payloads carry identifiers and submission options only; handlers resolve
// everything else from the registry so a reclaimed job replays cleanly.
package job

import (
	"context"
	"encoding/json"
	"fmt"

	"folio/internal/registry"
	"folio/internal/subscript"
)

const (
	// KindProcessSingle transcribes one document: a standalone submission
	// or one page of a container.
	KindProcessSingle = "process_single"
	// KindProcessBatch transcribes all pages of a container in one engine
	// invocation with a combined output.
	KindProcessBatch = "process_batch"
	// KindMerge combines the finished pages of a container.
	KindMerge = "merge"
	// KindRebuildPDF regenerates a document's PDF from existing markup.
	KindRebuildPDF = "rebuild_pdf"
)

// Handler executes one job kind.
type Handler interface {
	Kind() string
	Execute(ctx context.Context, j *registry.Job) error
}

// Options are the engine knobs chosen at submission time. Model overrides
// the configured transcription model when set.
type Options struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Resize      int      `json:"resize,omitempty"`
	Contrast    *float64 `json:"contrast,omitempty"`
	Binarize    bool     `json:"binarize,omitempty"`
	Invert      bool     `json:"invert,omitempty"`
}

// ApplyTo copies the submission options onto an engine command.
func (o Options) ApplyTo(cmd *subscript.Command) {
	cmd.Prompt = o.Prompt
	cmd.Temperature = o.Temperature
	cmd.Resize = o.Resize
	cmd.Contrast = o.Contrast
	cmd.Binarize = o.Binarize
	cmd.Invert = o.Invert
}

// ProcessPayload parameterizes process_single and process_batch jobs.
// InputPath points at the ingested source image; for batch jobs the handler
// resolves every page's source from the registry instead.
type ProcessPayload struct {
	DocumentID int64   `json:"document_id"`
	InputPath  string  `json:"input_path,omitempty"`
	Options    Options `json:"options,omitempty"`
}

// MergePayload parameterizes merge jobs. DocumentID is the container.
type MergePayload struct {
	DocumentID int64 `json:"document_id"`
}

// RebuildPayload parameterizes rebuild_pdf jobs.
type RebuildPayload struct {
	DocumentID int64 `json:"document_id"`
}

// Encode renders a payload for the jobs table.
func Encode(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// Decode parses a job's payload into the kind-specific struct.
func Decode(j *registry.Job, into any) error {
	if err := json.Unmarshal([]byte(j.Payload), into); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}
