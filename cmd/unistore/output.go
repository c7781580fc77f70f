package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ersonp/unistore/internal/domain/entities"
)

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// printResult prints v as JSON when --json is set, otherwise calls text.
func printResult(v any, text func(w io.Writer)) error {
	if globalJSON {
		return printJSON(os.Stdout, v)
	}
	text(os.Stdout)
	return nil
}

func printEntity(w io.Writer, e *entities.Entity) {
	fmt.Fprintf(w, "ID:       %s\n", e.ID)
	fmt.Fprintf(w, "Type:     %s\n", e.Type)
	if e.UserID != nil {
		fmt.Fprintf(w, "User:     %s\n", *e.UserID)
	}
	fmt.Fprintf(w, "Version:  %d\n", e.Version)
	fmt.Fprintf(w, "Created:  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Updated:  %s\n", e.UpdatedAt.Format("2006-01-02 15:04:05"))

	if data, err := json.MarshalIndent(e.Data, "          ", "  "); err == nil {
		fmt.Fprintf(w, "Data:     %s\n", data)
	}
	if len(e.Relationships) > 0 {
		fmt.Fprintln(w, "Relationships:")
		for _, edge := range e.Relationships.Edges() {
			fmt.Fprintf(w, "  %s -> %s\n", edge, strings.Join(e.Relationships[edge].IDs, ", "))
		}
	}
}

func printEntityTable(w io.Writer, list []*entities.Entity) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tVERSION\tSUMMARY")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.ID, e.Type, e.Version, truncate(summarize(e.Data), 60))
	}
	tw.Flush()
}

// summarize renders a document as sorted key=value pairs.
func summarize(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+entities.TextValue(data[k]))
	}
	return strings.Join(parts, " ")
}

// truncate shortens a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
