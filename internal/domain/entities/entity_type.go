package entities

import (
	"encoding/json"
	"time"
)

// EntityType describes the payload shape of one entity type. Built-in types
// have no workspace; custom types belong to the workspace that added them.
type EntityType struct {
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BuiltIn reports whether the type ships with the store.
func (t EntityType) BuiltIn() bool {
	return IsDefaultType(t.Name) && t.WorkspaceID == ""
}
