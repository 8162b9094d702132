package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/orchestrator"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var combine bool
	opts := &optionFlags{}

	cmd := &cobra.Command{
		Use:   "batch NAME FILE...",
		Short: "Submit a multi-page document",
		Long: `Submit a group of page scans as one container document. Pages are
ordered by the position of their files on the command line. With --combine
the engine processes all pages in a single run; otherwise each page is
transcribed independently and merged when the last one finishes.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			doc, err := orc.SubmitBatch(cmd.Context(), orchestrator.BatchRequest{
				Owner:     owner,
				GroupName: args[0],
				Sources:   args[1:],
				Options:   opts.options(cmd),
				Combine:   combine,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted container %d (%s) with %d pages\n",
				doc.ID, doc.Name, len(args)-1)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner of the document (required)")
	cmd.Flags().BoolVar(&combine, "combine", false, "Process all pages in a single engine run")
	opts.register(cmd)
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
