package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"folio/internal/daemon"
	"folio/internal/inbox"
	"folio/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the processing daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			manager, err := ctx.workflowManager(logger)
			if err != nil {
				return err
			}

			var watcher *inbox.Watcher
			if cfg.Inbox.Enabled {
				orc, err := ctx.orchestrator()
				if err != nil {
					return err
				}
				watcher = inbox.NewWatcher(cfg, orc, logger)
			}

			d, err := daemon.New(cfg, store, logger, manager, watcher)
			if err != nil {
				return err
			}
			defer d.Close()

			runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
}
