// Package workflow runs the background worker pool. Workers claim jobs from
// the registry, dispatch them to kind handlers, keep heartbeats fresh, and
// reconcile jobs whose document was deleted mid-flight.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"folio/internal/config"
	"folio/internal/faults"
	"folio/internal/job"
	"folio/internal/logging"
	"folio/internal/registry"
	"folio/internal/storage"
)

// Manager coordinates job processing across a fixed worker pool.
type Manager struct {
	cfg      *config.Config
	store    *registry.Store
	layout   storage.Layout
	logger   *slog.Logger
	handlers map[string]job.Handler

	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewManager constructs a manager over the given handlers.
func NewManager(cfg *config.Config, store *registry.Store, logger *slog.Logger, handlers ...job.Handler) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	byKind := make(map[string]job.Handler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind()] = h
	}
	return &Manager{
		cfg:               cfg,
		store:             store,
		layout:            storage.NewLayout(cfg),
		logger:            logger.With(logging.String(logging.FieldComponent, "workflow")),
		handlers:          byKind,
		pollInterval:      time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:        time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		return errors.New("no job handlers configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		worker := i
		group.Go(func() error {
			m.runWorker(groupCtx, worker)
			return nil
		})
	}
	group.Go(func() error {
		m.runReclaimer(groupCtx)
		return nil
	})

	m.cancel = cancel
	m.group = group
	m.running = true
	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	group := m.group
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	m.logger.Info("workflow stopped")
}

// ProcessNext claims and processes a single job synchronously. Returns false
// when the queue is empty.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	claimed, err := m.store.ClaimNextJob(ctx)
	if err != nil {
		return false, err
	}
	if claimed == nil {
		return false, nil
	}
	m.process(ctx, m.logger, claimed)
	return true, nil
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	logger := m.logger.With(logging.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := m.store.ClaimNextJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim next job", logging.Error(err))
			m.sleep(ctx, m.errorRetry)
			continue
		}
		if claimed == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}
		m.process(ctx, logger, claimed)
	}
}

// runReclaimer periodically returns jobs with stale heartbeats to pending.
func (m *Manager) runReclaimer(ctx context.Context) {
	if m.heartbeatTimeout <= 0 {
		return
	}
	interval := m.heartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		reclaimed, err := m.store.ReclaimStaleJobs(ctx, time.Now().Add(-m.heartbeatTimeout))
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("reclaim stale jobs", logging.Error(err))
			}
			continue
		}
		if len(reclaimed) > 0 {
			m.logger.Info("reclaimed stale jobs", logging.Int("count", len(reclaimed)))
		}
	}
}

func (m *Manager) process(ctx context.Context, logger *slog.Logger, claimed *registry.Job) {
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	logger = logging.WithContext(ctx, logger).With(
		logging.Int64(logging.FieldJobID, claimed.ID),
		logging.String(logging.FieldJobKind, claimed.Kind),
		logging.Int64(logging.FieldDocumentID, claimed.DocumentID),
	)

	handler, ok := m.handlers[claimed.Kind]
	if !ok {
		logger.Error("no handler for job kind")
		m.finish(ctx, logger, claimed.ID, registry.JobFailed, "unknown job kind "+claimed.Kind)
		return
	}

	// Snapshot the document location up front so the cleanup guard can still
	// find the directory after the record is gone.
	owner, dirName := m.documentLocation(ctx, claimed.DocumentID)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.runHeartbeat(hbCtx, &hbWG, claimed.ID)

	logger.Info("job started")
	err := handler.Execute(ctx, claimed)

	stopHeartbeat()
	hbWG.Wait()

	// Cleanup guard: if the document vanished while the job ran, remove its
	// leftover directory and swallow the failure. Deletion is a user action,
	// not a fault.
	if gone := m.documentGone(ctx, claimed.DocumentID); gone || errors.Is(err, faults.ErrDeleted) {
		if owner != "" && dirName != "" {
			if rmErr := m.layout.RemoveDocumentDir(owner, dirName); rmErr != nil {
				logger.Warn("cleanup of deleted document", logging.Error(rmErr))
			}
		}
		logger.Warn("document deleted during processing, job discarded")
		m.finish(ctx, logger, claimed.ID, registry.JobDone, "document deleted")
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Shutdown, not failure; the stale-heartbeat reclaimer returns
			// the job to pending.
			logger.Info("job interrupted by shutdown")
			return
		}
		logger.Error("job failed", logging.Error(err))
		m.finish(ctx, logger, claimed.ID, registry.JobFailed, faults.Message(err))
		return
	}

	logger.Info("job finished")
	m.finish(ctx, logger, claimed.ID, registry.JobDone, "")
}

func (m *Manager) runHeartbeat(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := m.store.JobHeartbeat(context.WithoutCancel(ctx), jobID); err != nil {
			m.logger.Warn("job heartbeat", logging.Error(err), logging.Int64(logging.FieldJobID, jobID))
		}
	}
}

func (m *Manager) documentLocation(ctx context.Context, id int64) (owner, dirName string) {
	doc, err := m.store.GetByID(ctx, id)
	if err != nil || doc == nil {
		return "", ""
	}
	return doc.Owner, doc.DirectoryName
}

func (m *Manager) documentGone(ctx context.Context, id int64) bool {
	doc, err := m.store.GetByID(context.WithoutCancel(ctx), id)
	return err == nil && doc == nil
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, jobID int64, state registry.JobState, message string) {
	if err := m.store.FinishJob(context.WithoutCancel(ctx), jobID, state, message); err != nil {
		logger.Warn("finish job", logging.Error(err))
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
