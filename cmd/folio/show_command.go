package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"folio/internal/registry"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show document details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			orc, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			doc, err := orc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("document %d not found", id)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "Document %d\n", doc.ID)
			fmt.Fprintf(out, "  Name:      %s\n", doc.Name)
			fmt.Fprintf(out, "  Owner:     %s\n", doc.Owner)
			fmt.Fprintf(out, "  Kind:      %s\n", renderKind(doc))
			fmt.Fprintf(out, "  Status:    %s\n", renderStatus(doc.Status, colorize))
			fmt.Fprintf(out, "  Directory: %s\n", doc.DirectoryName)
			fmt.Fprintf(out, "  Created:   %s\n", renderTime(doc.CreatedAt))
			fmt.Fprintf(out, "  Updated:   %s\n", renderTime(doc.UpdatedAt))
			if doc.ShareToken != "" {
				fmt.Fprintf(out, "  Share:     %s\n", doc.ShareToken)
			}
			if doc.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:     %s\n", doc.ErrorMessage)
			}
			if doc.Status == registry.StatusCompleted {
				fmt.Fprintln(out, "  Outputs:")
				fmt.Fprintf(out, "    Text:   %s\n", orDash(doc.OutputTextPath))
				fmt.Fprintf(out, "    PDF:    %s\n", orDash(doc.OutputPDFPath))
				fmt.Fprintf(out, "    Markup: %s\n", orDash(doc.OutputMarkupPath))
			}

			if doc.IsContainer {
				store, err := ctx.ensureStore()
				if err != nil {
					return err
				}
				children, err := store.ChildrenOf(cmd.Context(), doc.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(children))
				for _, child := range children {
					rows = append(rows, []string{
						strconv.FormatInt(child.ID, 10),
						strconv.Itoa(child.PageOrder),
						child.Name,
						renderStatus(child.Status, colorize),
					})
				}
				fmt.Fprintln(out, "  Pages:")
				fmt.Fprintln(out, renderTable([]string{"ID", "PAGE", "NAME", "STATUS"}, rows, 0, 1))
			}
			return nil
		},
	}
}
