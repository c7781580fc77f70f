package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/application/handlers"
)

func newImportCmd() *cobra.Command {
	var opts handlers.ImportOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import entities from JSON, NDJSON or CSV",
		Long: `Creates one entity per record of a JSON, NDJSON or CSV file.

Each record needs a type; the remaining fields become the data document.
JSON records may carry data, relationships and metadata objects directly.

Examples:
  unistore -w acme import contacts.csv
  unistore -w acme import deals.json --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(d *Deps) error {
				result, err := d.Import.Handle(cmd.Context(), d.Workspace, args[0], opts)
				if err != nil {
					return err
				}
				return printResult(result, func(w io.Writer) {
					verb := "Imported"
					if opts.DryRun {
						verb = "Validated"
					}
					fmt.Fprintf(w, "%s %d entities from %s\n", verb, result.Imported, args[0])
					for _, e := range result.Errors {
						if e.Line > 0 {
							fmt.Fprintf(w, "  line %d: %s: %s\n", e.Line, e.Field, e.Message)
						} else {
							fmt.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
						}
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "auto", "File format (json, ndjson, csv, auto)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate records without saving")

	return cmd
}
