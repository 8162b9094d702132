// Package faults defines the error taxonomy shared by folio's job handlers
// and the workflow manager that classifies their failures.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPipeline marks a non-zero exit from the external recognition pipeline.
	ErrPipeline = errors.New("pipeline failure")
	// ErrOrchestration marks a fault inside the orchestrator itself (missing
	// file, registry write failure, bad payload).
	ErrOrchestration = errors.New("orchestration fault")
	// ErrDeleted marks work whose owning document disappeared mid-job. Not a
	// failure; the workflow manager suppresses it after cleanup.
	ErrDeleted = errors.New("document deleted")
	// ErrMerge marks a container-level merge failure that must not propagate
	// to child statuses.
	ErrMerge = errors.New("merge fault")
	// ErrValidation marks rejected caller input.
	ErrValidation = errors.New("validation error")
)

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrOrchestration
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}

// Message extracts the human-readable portion of a classified error, without
// the sentinel prefix, suitable for persisting on a document record.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrPipeline, ErrOrchestration, ErrDeleted, ErrMerge, ErrValidation} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
