package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		types []string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Semantic search over entities",
		Long: `Finds entities whose content is semantically similar to the text.
Requires the semantic index (semantic.enabled in config).

Examples:
  unistore -w acme search "customers interested in renewals"
  unistore -w acme search "overdue work" --type task --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withDeps(cmd.Context(), func(d *Deps) error {
				hits, err := d.Query.HandleSemantic(cmd.Context(), d.Workspace, text, types, limit)
				if err != nil {
					return err
				}
				return printResult(hits, func(w io.Writer) {
					if len(hits) == 0 {
						fmt.Fprintln(w, "No matching entities found.")
						return
					}
					for _, h := range hits {
						fmt.Fprintf(w, "%.3f  %s [%s] %s\n", h.Score, h.Entity.ID, h.Entity.Type, truncate(summarize(h.Entity.Data), 60))
					}
				})
			})
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Restrict to entity types")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of results")

	cmd.AddCommand(newReindexCmd())

	return cmd
}

func newReindexCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic index of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				n, err := d.Query.HandleReindex(cmd.Context(), d.Workspace, batchSize)
				if err != nil {
					return fmt.Errorf("reindexing: %w", err)
				}
				fmt.Printf("Reindexed %d entities\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", DefaultReindexBatch, "Entities embedded per batch")

	return cmd
}
