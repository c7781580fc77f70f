package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/application/handlers"
	"github.com/ersonp/unistore/internal/domain/entities"
)

func newRelationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations",
		Short: "Manage relationship rows",
		Long: `Lists relationship rows and manages explicit relationships.

Explicit relationships carry a strength score and metadata and never appear
in an entity's inline relationship map.`,
	}

	cmd.AddCommand(newRelationsCreateCmd())
	cmd.AddCommand(newRelationsListCmd())
	cmd.AddCommand(newRelationsDeleteCmd())
	cmd.AddCommand(newRelationsRebuildCmd())

	return cmd
}

func newRelationsCreateCmd() *cobra.Command {
	var (
		strength int
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "create <source-id> <type> <target-id>",
		Short: "Create an explicit relationship",
		Long: `Creates an explicit relationship between two entities.

Examples:
  unistore -w acme relations create <a> mentor <b> --strength 80
  unistore -w acme relations create <a> referred <b> --meta channel=email`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var score *int
			if cmd.Flags().Changed("strength") {
				score = &strength
			}
			return withDeps(cmd.Context(), func(d *Deps) error {
				rel, err := d.Graph.HandleCreate(cmd.Context(), d.Workspace, args[0], args[1], args[2], score, metadata)
				if err != nil {
					return fmt.Errorf("creating relationship: %w", err)
				}
				return printResult(rel, func(w io.Writer) {
					fmt.Fprintf(w, "Created relationship: %s\n", rel.ID)
					fmt.Fprintf(w, "  %s -[%s %d]-> %s\n", rel.SourceEntityID, rel.Type, rel.StrengthScore, rel.TargetEntityID)
				})
			})
		},
	}

	cmd.Flags().IntVar(&strength, "strength", 0, "Strength score 0-100 (default 50)")
	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "Metadata key=value (repeatable)")

	return cmd
}

func newRelationsListCmd() *cobra.Command {
	var opts handlers.ListOptions

	cmd := &cobra.Command{
		Use:   "list [entity-id]",
		Short: "List relationship rows",
		Long: `Lists relationship rows of the workspace, optionally touching one entity.

Examples:
  unistore -w acme relations list <id>
  unistore -w acme relations list --type mentor --min-strength 60
  unistore -w acme relations list --origin explicit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.EntityID = args[0]
			}
			return withDeps(cmd.Context(), func(d *Deps) error {
				result, err := d.Graph.HandleList(cmd.Context(), d.Workspace, opts)
				if err != nil {
					return err
				}
				if globalJSON {
					return printJSON(os.Stdout, result)
				}
				if len(result.Relationships) == 0 {
					fmt.Println("No relationships found.")
					return nil
				}
				printRelationsTable(os.Stdout, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by relationship type")
	cmd.Flags().StringVar(&opts.Origin, "origin", "", "Filter by origin (explicit, inline, inline_scalar)")
	cmd.Flags().IntVar(&opts.MinStrength, "min-strength", 0, "Minimum strength score")

	return cmd
}

func printRelationsTable(w io.Writer, result *handlers.ListResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tTYPE\tTARGET\tSTRENGTH\tORIGIN")
	for _, info := range result.Relationships {
		rel := info.Relationship
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rel.ID,
			entityLabel(rel.SourceEntityID, info.Source),
			rel.Type,
			entityLabel(rel.TargetEntityID, info.Target),
			rel.StrengthScore,
			rel.Origin,
		)
	}
	tw.Flush()
}

func entityLabel(id string, e *entities.Entity) string {
	if e == nil {
		return id + " (missing)"
	}
	return fmt.Sprintf("%s (%s)", id, e.Type)
}

func newRelationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <relationship-id>",
		Short: "Delete an explicit relationship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				if err := d.Graph.HandleDelete(cmd.Context(), d.Workspace, args[0]); err != nil {
					return fmt.Errorf("deleting relationship: %w", err)
				}
				fmt.Printf("Deleted relationship: %s\n", args[0])
				return nil
			})
		},
	}
}

func newRelationsRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <entity-id>",
		Short: "Re-derive an entity's inline relationships from its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, changed, err := d.Graph.HandleRebuild(cmd.Context(), d.Workspace, args[0])
				if err != nil {
					return fmt.Errorf("rebuilding relationships: %w", err)
				}
				return printResult(e, func(w io.Writer) {
					if changed {
						fmt.Fprintf(w, "Rebuilt %s (version %d)\n", e.ID, e.Version)
					} else {
						fmt.Fprintf(w, "%s is already consistent\n", e.ID)
					}
				})
			})
		},
	}
}
