package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/application/handlers"
)

func newCreateCmd() *cobra.Command {
	var in handlers.CreateInput

	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create an entity",
		Long: `Creates an entity of the given type in the workspace.

Examples:
  unistore -w acme create contact --data '{"firstName":"Ada","email":"ada@example.com"}'
  unistore -w acme create deal --data @deal.json --rel contact=<id> --meta source=import`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Type = args[0]
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, err := d.Entities.HandleCreate(cmd.Context(), d.Workspace, in)
				if err != nil {
					return fmt.Errorf("creating entity: %w", err)
				}
				return printResult(e, func(w io.Writer) {
					fmt.Fprintf(w, "Created %s %s\n", e.Type, e.ID)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&in.Data, "data", "d", "", "Entity data as a JSON object or @file")
	cmd.Flags().StringVar(&in.UserID, "user", "", "Owning user id")
	cmd.Flags().StringArrayVar(&in.Relationships, "rel", nil, "Inline relationship edge=id[,id...] (repeatable)")
	cmd.Flags().StringArrayVar(&in.Metadata, "meta", nil, "Metadata key=value (repeatable)")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, err := d.Entities.HandleGet(cmd.Context(), d.Workspace, args[0])
				if err != nil {
					return err
				}
				return printResult(e, func(w io.Writer) { printEntity(w, e) })
			})
		},
	}
}

func newFindCmd() *cobra.Command {
	var (
		in    handlers.FindInput
		count bool
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Query entities",
		Long: `Lists entities matching every given filter.

Examples:
  unistore -w acme find --type deal --where stage=won
  unistore -w acme find --rel deals=<id>
  unistore -w acme find --search ada --order-by updatedAt --order asc
  unistore -w acme find --type task --count`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				if count {
					n, err := d.Query.HandleCount(cmd.Context(), d.Workspace, in)
					if err != nil {
						return fmt.Errorf("counting entities: %w", err)
					}
					return printResult(map[string]int{"count": n}, func(w io.Writer) {
						fmt.Fprintln(w, n)
					})
				}

				result, err := d.Query.HandleFind(cmd.Context(), d.Workspace, in)
				if err != nil {
					return fmt.Errorf("finding entities: %w", err)
				}
				return printResult(result, func(w io.Writer) {
					if len(result.Entities) == 0 {
						fmt.Fprintln(w, "No entities found.")
						return
					}
					fmt.Fprintf(w, "Showing %d of %d entities:\n\n", len(result.Entities), result.Total)
					printEntityTable(w, result.Entities)
				})
			})
		},
	}

	cmd.Flags().StringSliceVarP(&in.Types, "type", "t", nil, "Filter by entity type (repeatable)")
	cmd.Flags().StringVar(&in.UserID, "user", "", "Filter by owning user id")
	cmd.Flags().StringArrayVar(&in.Where, "where", nil, "Data field equality key=value (repeatable)")
	cmd.Flags().StringArrayVar(&in.Relationships, "rel", nil, "Relationship membership edge=id (repeatable)")
	cmd.Flags().StringVarP(&in.Search, "search", "s", "", "Case-insensitive text search")
	cmd.Flags().StringVar(&in.OrderBy, "order-by", "", "Sort field (createdAt, updatedAt)")
	cmd.Flags().StringVar(&in.Order, "order", "", "Sort direction (asc, desc)")
	cmd.Flags().IntVarP(&in.Limit, "limit", "l", DefaultFindLimit, "Maximum number of entities")
	cmd.Flags().IntVar(&in.Offset, "offset", 0, "Number of entities to skip")
	cmd.Flags().BoolVar(&count, "count", false, "Print only the number of matches")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var in handlers.UpdateInput

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an entity",
		Long: `Merges the given data and metadata into the entity and replaces the
listed relationship edges. An edge given without ids is removed.

Examples:
  unistore -w acme update <id> --data '{"stage":"won"}' --expect-version 3
  unistore -w acme update <id> --rel deals=<id1>,<id2> --rel owner=`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = args[0]
			return withDeps(cmd.Context(), func(d *Deps) error {
				e, err := d.Entities.HandleUpdate(cmd.Context(), d.Workspace, in)
				if err != nil {
					return fmt.Errorf("updating entity: %w", err)
				}
				return printResult(e, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s to version %d\n", e.ID, e.Version)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&in.Data, "data", "d", "", "Data patch as a JSON object or @file")
	cmd.Flags().StringArrayVar(&in.Relationships, "rel", nil, "Replace edge=id[,id...] (repeatable)")
	cmd.Flags().StringArrayVar(&in.Metadata, "meta", nil, "Metadata key=value (repeatable)")
	cmd.Flags().Int64Var(&in.ExpectedVersion, "expect-version", 0, "Fail unless the stored version matches")
	cmd.Flags().BoolVar(&in.Retry, "retry", false, "Retry against the latest version on conflicts")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity",
		Long:  "Deletes an entity, its relationship rows and every inline reference to it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withDeps(cmd.Context(), func(d *Deps) error {
				if !force && !confirmAction(os.Stdin, fmt.Sprintf("Delete entity %s?", id)) {
					fmt.Println("Cancelled.")
					return nil
				}
				if err := d.Entities.HandleDelete(cmd.Context(), d.Workspace, id); err != nil {
					return fmt.Errorf("deleting entity: %w", err)
				}
				fmt.Printf("Deleted entity: %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func confirmAction(in io.Reader, prompt string) bool {
	reader := bufio.NewReader(in)
	fmt.Printf("%s [y/N]: ", prompt)
	response, _ := reader.ReadString('\n') // Error ignored: EOF/error treated as "no"
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
