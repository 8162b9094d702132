// Package inbox watches a drop folder and submits scans that appear in it.
//
// Files are only submitted after a settle period with no further writes,
// so uploads that are still being copied are left alone. Successfully
// submitted files are removed from the inbox.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"folio/internal/config"
	"folio/internal/job"
	"folio/internal/logging"
	"folio/internal/orchestrator"
	"folio/internal/registry"
	"folio/internal/storage"
)

const defaultSettle = 3 * time.Second

// Submitter is the part of the orchestrator the watcher needs.
type Submitter interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*registry.Document, error)
}

// Watcher monitors the configured inbox directory for new scans.
type Watcher struct {
	cfg       *config.Config
	submitter Submitter
	logger    *slog.Logger
	settle    time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

// NewWatcher creates a watcher for cfg.Inbox. The submitter is usually the
// orchestrator.
func NewWatcher(cfg *config.Config, submitter Submitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	settle := time.Duration(cfg.Inbox.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		cfg:       cfg,
		submitter: submitter,
		logger:    logger.With(logging.String(logging.FieldComponent, "inbox")),
		settle:    settle,
		pending:   make(map[string]*time.Timer),
	}
}

// Start begins watching the inbox directory. Files already present are
// scheduled immediately so a restart does not strand earlier drops.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("inbox watcher already running")
	}

	dir := w.cfg.Inbox.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.run(ctx, fw)

	if err := w.sweep(ctx, dir); err != nil {
		w.logger.Warn("inbox sweep failed", logging.Error(err))
	}
	w.logger.Info("inbox watcher started", logging.String("dir", dir))
	return nil
}

// Stop shuts the watcher down and cancels any pending settle timers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	<-w.done
	w.running = false

	w.pendingMu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()
	w.logger.Info("inbox watcher stopped")
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !w.eligible(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// eligible reports whether path looks like a scan the watcher should pick
// up. Hidden files and non-image extensions are ignored.
func (w *Watcher) eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !storage.IsSourceImage(path) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return true
}

// schedule arms the settle timer for path. Another write before the timer
// fires pushes submission back by a full settle period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.pendingMu.Lock()
		delete(w.pending, path)
		w.pendingMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.submit(ctx, path)
	})
}

func (w *Watcher) submit(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	doc, err := w.submitter.Submit(ctx, orchestrator.SubmitRequest{
		Owner:      w.cfg.Inbox.Owner,
		SourcePath: path,
		Options:    job.Options{Model: w.cfg.Inbox.Model},
	})
	if err != nil {
		w.logger.Error("inbox submission failed",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	if err := os.Remove(path); err != nil {
		w.logger.Warn("could not remove submitted inbox file",
			logging.String("path", path),
			logging.Error(err))
	}
	w.logger.Info("inbox file submitted",
		logging.String("path", path),
		logging.Int64(logging.FieldDocumentID, doc.ID))
}

// sweep schedules files that were already in the inbox before Start.
func (w *Watcher) sweep(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if w.eligible(path) {
			w.schedule(ctx, path)
		}
	}
	return nil
}
