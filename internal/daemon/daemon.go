package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"folio/internal/config"
	"folio/internal/inbox"
	"folio/internal/logging"
	"folio/internal/registry"
	"folio/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *registry.Store
	workflow *workflow.Manager
	inbox    *inbox.Watcher
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	Documents    registry.HealthSummary
	Jobs         map[registry.JobState]int
}

// New constructs a daemon with initialized dependencies. The inbox watcher
// is optional and may be nil when drop-folder ingestion is disabled.
func New(cfg *config.Config, store *registry.Store, logger *slog.Logger, wf *workflow.Manager, watcher *inbox.Watcher) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "foliod.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		inbox:    watcher,
		logPath:  filepath.Join(cfg.Paths.LogDir, "folio.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager and,
// when configured, the inbox watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folio daemon instance is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.workflow.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.inbox != nil {
		if err := d.inbox.Start(ctx); err != nil {
			d.workflow.Stop()
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return fmt.Errorf("start inbox watcher: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("folio daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.inbox != nil {
		d.inbox.Stop()
	}
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("folio daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns current daemon diagnostics.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	docs, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("document health: %w", err)
	}
	jobs, err := d.store.JobStats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("job stats: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Documents:    docs,
		Jobs:         jobs,
	}, nil
}
