package registry

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a document.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusMerging     Status = "merging"
	StatusUpdatingPDF Status = "updating_pdf"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusMerging,
	StatusUpdatingPDF,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the single source of truth for the state machine.
// Claims (merge, rebuild) and failure recording all route through it.
var legalTransitions = map[Status][]Status{
	StatusQueued:      {StatusProcessing},
	StatusProcessing:  {StatusCompleted, StatusError, StatusMerging},
	StatusMerging:     {StatusCompleted, StatusError},
	StatusCompleted:   {StatusUpdatingPDF},
	StatusUpdatingPDF: {StatusCompleted, StatusError},
	StatusError:       {StatusQueued},
}

// CanTransition reports whether moving a document from one status to another
// is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is terminal for a processing pass.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsActive reports whether a status reflects an in-flight operation.
func (s Status) IsActive() bool {
	switch s {
	case StatusProcessing, StatusMerging, StatusUpdatingPDF:
		return true
	default:
		return false
	}
}

// Document is the sole persisted entity: a standalone scan, a multi-page
// container, or one page (child) of a container.
type Document struct {
	ID               int64
	Name             string
	Owner            string
	Status           Status
	ErrorMessage     string
	OutputTextPath   string
	OutputPDFPath    string
	OutputMarkupPath string
	IsContainer      bool
	PageOrder        int
	DirectoryName    string
	ParentID         *int64
	ShareToken       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsChild reports whether the document belongs to a container.
func (d *Document) IsChild() bool {
	return d != nil && d.ParentID != nil
}

// Outputs carries the artifact paths recorded when a document completes.
type Outputs struct {
	TextPath   string
	PDFPath    string
	MarkupPath string
}

// JobState represents the lifecycle of a queued job.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is a durable unit of background work. Payload holds the kind-specific
// parameters as JSON; only identifiers and paths, never shared state.
type Job struct {
	ID            int64
	Kind          string
	DocumentID    int64
	Payload       string
	State         JobState
	Attempts      int
	ErrorMessage  string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HealthSummary describes aggregated document counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Errored    int
}
