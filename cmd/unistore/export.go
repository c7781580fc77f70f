package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

type exportFlags struct {
	format string
	output string
	types  []string
	upload bool
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a workspace snapshot",
		Long: `Exports the entities of a workspace to JSON, CSV, or markdown.
The JSON format is a full snapshot including relationships, activities and
entity types. --s3 uploads the JSON snapshot to the configured bucket.

Examples:
  unistore -w acme export -o acme.json
  unistore -w acme export -f csv -t contact
  unistore -w acme export --s3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringSliceVarP(&flags.types, "type", "t", nil, "Restrict to entity types")
	cmd.Flags().BoolVar(&flags.upload, "s3", false, "Upload the snapshot to S3")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	return withDeps(cmd.Context(), func(d *Deps) error {
		result, err := d.Export.Handle(cmd.Context(), d.Workspace, flags.types, flags.upload)
		if err != nil {
			return fmt.Errorf("exporting workspace: %w", err)
		}
		if result.Location != "" {
			fmt.Fprintf(os.Stderr, "Uploaded snapshot to %s\n", result.Location)
			if flags.output == "" {
				return nil
			}
		}
		return writeSnapshot(result.Snapshot, flags.format, flags.output)
	})
}

func writeSnapshot(snap *services.Snapshot, format, output string) (err error) {
	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	}

	if err := formatSnapshot(w, snap, format); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if output != "" {
		fmt.Printf("Exported %d entities to %s\n", len(snap.Entities), output)
	}
	return nil
}

func formatSnapshot(w io.Writer, snap *services.Snapshot, format string) error {
	switch format {
	case "json":
		return formatJSON(w, snap)
	case "csv":
		return formatCSV(w, snap.Entities)
	case "markdown":
		return formatMarkdown(w, snap.Entities)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func formatJSON(w io.Writer, snap *services.Snapshot) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

func formatCSV(w io.Writer, list []*entities.Entity) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "type", "user_id", "version", "created_at", "updated_at", "data", "relationships"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range list {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		rels, err := json.Marshal(e.Relationships)
		if err != nil {
			return err
		}
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		row := []string{
			e.ID,
			e.Type,
			userID,
			fmt.Sprintf("%d", e.Version),
			e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			string(data),
			string(rels),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatMarkdown(w io.Writer, list []*entities.Entity) error {
	if _, err := fmt.Fprintf(w, "# Exported Entities\n\nTotal: %d entities\n\n", len(list)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| ID | Type | Version | Data | Relationships |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "|----|------|---------|------|---------------|\n"); err != nil {
		return err
	}

	for _, e := range list {
		edges := make([]string, 0, len(e.Relationships))
		for _, edge := range e.Relationships.Edges() {
			edges = append(edges, fmt.Sprintf("%s: %d", edge, len(e.Relationships[edge].IDs)))
		}
		if _, err := fmt.Fprintf(w, "| %s | %s | %d | %s | %s |\n",
			e.ID,
			e.Type,
			e.Version,
			escapeMarkdown(summarize(e.Data)),
			escapeMarkdown(strings.Join(edges, ", ")),
		); err != nil {
			return err
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
