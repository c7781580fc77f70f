package entities

import (
	"encoding/json"
	"time"
)

// MetadataVersionKey is the metadata key that mirrors Entity.Version.
const MetadataVersionKey = "version"

// Entity is one polymorphic record in the shared store. Every module
// (CRM, chat, mail, tasks, calendar) persists its records as entities
// distinguished by Type, with a schema-less Data document.
type Entity struct {
	ID            string         `json:"id"`
	WorkspaceID   string         `json:"workspace_id"`
	UserID        *string        `json:"user_id,omitempty"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data"`
	Relationships Relationships  `json:"relationships"`
	Metadata      map[string]any `json:"metadata"`
	SearchVector  string         `json:"search_vector"`
	Version       int64          `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SyncVersion writes Version into Metadata so that readers of the
// metadata document always observe the current counter.
func (e *Entity) SyncVersion() {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[MetadataVersionKey] = e.Version
}

// Clone returns a deep copy of the entity. Data and Metadata are copied
// through a JSON round-trip so nested documents are not shared.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.UserID != nil {
		u := *e.UserID
		c.UserID = &u
	}
	c.Data = CloneDocument(e.Data)
	c.Metadata = CloneDocument(e.Metadata)
	c.Relationships = e.Relationships.Clone()
	c.SyncVersion()
	return &c
}

// CloneDocument deep-copies an open JSON document.
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case string, bool, float64, int, int64, json.Number, nil:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return t
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return t
		}
		return decoded
	}
}

// MergeDocument returns a shallow merge of patch over base. Keys present
// in patch replace keys in base; nested values are not merged.
func MergeDocument(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// MarshalJSON emits the entity with metadata.version populated.
func (e Entity) MarshalJSON() ([]byte, error) {
	type alias Entity
	a := alias(e)
	a.Metadata = MergeDocument(e.Metadata, map[string]any{MetadataVersionKey: e.Version})
	if a.Data == nil {
		a.Data = map[string]any{}
	}
	if a.Relationships == nil {
		a.Relationships = Relationships{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON restores Version from metadata.version.
func (e *Entity) UnmarshalJSON(b []byte) error {
	type alias Entity
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*e = Entity(a)
	if v, ok := e.Metadata[MetadataVersionKey]; ok {
		if n, ok := toInt64(v); ok {
			e.Version = n
		}
	}
	e.SyncVersion()
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
