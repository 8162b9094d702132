package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			docs, err := orc.List(cmd.Context(), owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(docs))
			for _, doc := range docs {
				rows = append(rows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.Name,
					doc.Owner,
					renderKind(doc),
					renderStatus(doc.Status, colorize),
					renderTime(doc.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "NAME", "OWNER", "KIND", "STATUS", "UPDATED"},
				rows, 0))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only list documents for this owner")
	return cmd
}
