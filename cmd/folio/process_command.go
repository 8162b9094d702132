package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/logging"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process pending jobs without the daemon",
		Long: `Drain the job queue in the foreground, one job at a time. Useful for
scripted runs and for working through a backlog while the daemon is down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			manager, err := ctx.workflowManager(logger)
			if err != nil {
				return err
			}

			processed := 0
			for {
				worked, err := manager.ProcessNext(cmd.Context())
				if err != nil {
					return err
				}
				if !worked {
					break
				}
				processed++
				if once {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s)\n", processed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process at most one job")
	return cmd
}
