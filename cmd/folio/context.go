package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/merge"
	"folio/internal/orchestrator"
	"folio/internal/rebuild"
	"folio/internal/registry"
	"folio/internal/subscript"
	"folio/internal/transcribe"
	"folio/internal/workflow"
)

// commandContext lazily loads configuration and shared services so that
// commands which never touch them (help, config init) stay cheap.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	storeOnce sync.Once
	store     *registry.Store
	storeErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureStore() (*registry.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.storeOnce.Do(func() {
		c.store, c.storeErr = registry.Open(cfg)
	})
	return c.store, c.storeErr
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
}

func (c *commandContext) orchestrator() (*orchestrator.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(cfg, store, logging.NewNop()), nil
}

// workflowManager builds a manager with the full handler set, sharing one
// engine client across handlers.
func (c *commandContext) workflowManager(logger *slog.Logger) (*workflow.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.ensureStore()
	if err != nil {
		return nil, err
	}
	client, err := subscript.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine client: %w", err)
	}
	return workflow.NewManager(cfg, store, logger,
		transcribe.NewSingle(cfg, store, client, logger),
		transcribe.NewBatch(cfg, store, client, logger),
		merge.New(cfg, store, client, logger),
		rebuild.New(cfg, store, client, logger),
	), nil
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}
