package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/orchestrator"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var name string
	opts := &optionFlags{}

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a scan for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			doc, err := orc.Submit(cmd.Context(), orchestrator.SubmitRequest{
				Owner:      owner,
				SourcePath: args[0],
				Name:       name,
				Options:    opts.options(cmd),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted document %d (%s)\n", doc.ID, doc.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner of the document (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name, defaults to the file name")
	opts.register(cmd)
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
