package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/preflight"
	"folio/internal/registry"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show registry and job queue health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			docs, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := store.JobStats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registry: %s\n", store.Path())
			fmt.Fprintf(out, "Documents: %d total (%d queued, %d processing, %d completed, %d errored)\n",
				docs.Total, docs.Queued, docs.Processing, docs.Completed, docs.Errored)
			fmt.Fprintf(out, "Jobs: %d pending, %d running, %d done, %d failed\n",
				jobs[registry.JobPending], jobs[registry.JobRunning],
				jobs[registry.JobDone], jobs[registry.JobFailed])

			if checks {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Checks:")
				for _, result := range preflight.RunAll(cfg) {
					mark := "FAIL"
					if result.Passed {
						mark = "ok"
					}
					fmt.Fprintf(out, "  %-20s [%s] %s\n", result.Name+":", mark, result.Detail)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checks, "checks", false, "Run environment preflight checks")
	return cmd
}
