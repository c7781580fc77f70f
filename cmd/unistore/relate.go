package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newLinkCmd() *cobra.Command {
	var bidirectional bool

	cmd := &cobra.Command{
		Use:   "link <source-id> <edge> <target-id>",
		Short: "Add a target to an entity's relationship edge",
		Long: `Appends the target to the source entity's inline edge. Bidirectional
links also add the source to the target's reverse_<edge>.

Examples:
  unistore -w acme link <contact-id> deals <deal-id>
  unistore -w acme link <task-id> assignee <contact-id> --bidirectional=false`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, err := d.Graph.HandleLink(cmd.Context(), d.Workspace, args[0], args[1], args[2], bidirectional)
				if err != nil {
					return fmt.Errorf("linking entities: %w", err)
				}
				return printResult(e, func(w io.Writer) {
					fmt.Fprintf(w, "Linked %s -[%s]-> %s\n", args[0], args[1], args[2])
					if bidirectional {
						fmt.Fprintln(w, "  (bidirectional)")
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&bidirectional, "bidirectional", true, "Also link the target back to the source")

	return cmd
}

func newUnlinkCmd() *cobra.Command {
	var bidirectional bool

	cmd := &cobra.Command{
		Use:   "unlink <source-id> <edge> <target-id>",
		Short: "Remove a target from an entity's relationship edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, err := d.Graph.HandleUnlink(cmd.Context(), d.Workspace, args[0], args[1], args[2], bidirectional)
				if err != nil {
					return fmt.Errorf("unlinking entities: %w", err)
				}
				return printResult(e, func(w io.Writer) {
					fmt.Fprintf(w, "Unlinked %s -[%s]-> %s\n", args[0], args[1], args[2])
				})
			})
		},
	}

	cmd.Flags().BoolVar(&bidirectional, "bidirectional", true, "Also remove the reverse edge on the target")

	return cmd
}

func newRelatedCmd() *cobra.Command {
	var (
		edge  string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "List entities an entity points to",
		Long: `Lists the entities referenced by an entity's inline relationships.
With --depth above 1 the graph is walked breadth-first.

Examples:
  unistore -w acme related <contact-id>
  unistore -w acme related <contact-id> --edge deals
  unistore -w acme related <task-id> --depth 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				related, err := d.Graph.HandleRelated(cmd.Context(), d.Workspace, args[0], edge, depth)
				if err != nil {
					return fmt.Errorf("finding related entities: %w", err)
				}
				return printResult(related, func(w io.Writer) {
					if len(related) == 0 {
						fmt.Fprintln(w, "No related entities found.")
						return
					}
					fmt.Fprintln(w, args[0])
					for _, r := range related {
						indent := strings.Repeat("  ", r.Depth)
						fmt.Fprintf(w, "%s%s [%s] %s\n", indent, r.Entity.ID, r.Entity.Type, truncate(summarize(r.Entity.Data), 50))
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&edge, "edge", "", "Only follow this edge")
	cmd.Flags().IntVar(&depth, "depth", 1, "Traversal depth (1-5)")

	return cmd
}
