package main

// Default limits for CLI commands.
const (
	DefaultFindLimit     = 50
	DefaultActivityLimit = 20
	DefaultReindexBatch  = 100
)

// Valid export formats.
var validFormats = []string{"json", "csv", "markdown"}
