package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/domain/entities"
)

func newTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage entity types",
		Long:  "List, add, or remove the entity types of a workspace.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd)
		},
	}

	cmd.AddCommand(newTypesListCmd())
	cmd.AddCommand(newTypesAddCmd())
	cmd.AddCommand(newTypesRemoveCmd())
	cmd.AddCommand(newTypesDescribeCmd())

	return cmd
}

func newTypesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all entity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypesList(cmd)
		},
	}
}

func runTypesList(cmd *cobra.Command) error {
	return withDeps(cmd.Context(), func(d *Deps) error {
		types, err := d.Types.HandleList(cmd.Context(), d.Workspace)
		if err != nil {
			return fmt.Errorf("listing types: %w", err)
		}

		return printResult(types, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION\tBUILT-IN\tSCHEMA")
			for i := range types {
				builtIn := ""
				if entities.IsDefaultType(types[i].Name) {
					builtIn = "yes"
				}
				schema := ""
				if len(types[i].Schema) > 0 {
					schema = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", types[i].Name, truncate(types[i].Description, 50), builtIn, schema)
			}
			tw.Flush()
		})
	})
}

func newTypesAddCmd() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "add <name> <description>",
		Short: "Add a custom entity type",
		Long: `Adds a custom entity type. Names are lowercase with underscores.
An optional JSON Schema validates the data document of the type's entities.

Examples:
  unistore -w acme types add vendor "Supplier of goods"
  unistore -w acme types add vendor "Supplier" --schema @vendor.schema.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				et, err := d.Types.HandleAdd(cmd.Context(), d.Workspace, args[0], args[1], schema)
				if err != nil {
					return fmt.Errorf("adding type: %w", err)
				}
				return printResult(et, func(w io.Writer) {
					fmt.Fprintf(w, "Added entity type: %s\n", et.Name)
				})
			})
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "JSON Schema inline or @file")

	return cmd
}

func newTypesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a custom entity type",
		Long:  "Removes a custom entity type. Built-in types cannot be removed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				if err := d.Types.HandleRemove(cmd.Context(), d.Workspace, args[0]); err != nil {
					return fmt.Errorf("removing type: %w", err)
				}
				fmt.Printf("Removed entity type: %s\n", args[0])
				return nil
			})
		},
	}
}

func newTypesDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show details about an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				et, err := d.Types.HandleDescribe(cmd.Context(), d.Workspace, args[0])
				if err != nil {
					return fmt.Errorf("describing type: %w", err)
				}

				return printResult(et, func(w io.Writer) {
					fmt.Fprintf(w, "Name:        %s\n", et.Name)
					fmt.Fprintf(w, "Description: %s\n", et.Description)
					fmt.Fprintf(w, "Built-in:    %v\n", entities.IsDefaultType(et.Name))
					if !et.CreatedAt.IsZero() {
						fmt.Fprintf(w, "Created:     %s\n", et.CreatedAt.Format("2006-01-02 15:04:05"))
					}
					if len(et.Schema) > 0 {
						fmt.Fprintf(w, "Schema:      %s\n", et.Schema)
					}
				})
			})
		},
	}
}
