// Package parsers provides parsers for importing entity records from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawRecord is an entity parsed from an external source before validation.
type RawRecord struct {
	Type          string         `json:"type"`
	UserID        string         `json:"user_id,omitempty"`
	Data          map[string]any `json:"data"`
	Relationships map[string]any `json:"relationships,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LineNum       int            `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing records from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawRecord, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "ndjson" (alias "jsonl"), "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "ndjson", "jsonl":
		return &NDJSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".ndjson", ".jsonl":
		return &NDJSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
