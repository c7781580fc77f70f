package entities

import "time"

// RelationshipOrigin records which write path created a side-table row.
type RelationshipOrigin string

const (
	// OriginExplicit rows come from CreateRelationship and are never mirrored
	// into an entity's inline map.
	OriginExplicit RelationshipOrigin = "explicit"
	// OriginInline rows are list members of the source entity's inline map.
	OriginInline RelationshipOrigin = "inline"
	// OriginInlineScalar rows hold a scalar inline value.
	OriginInlineScalar RelationshipOrigin = "inline_scalar"
)

// IsInline reports whether rows of this origin feed the inline map.
func (o RelationshipOrigin) IsInline() bool {
	return o == OriginInline || o == OriginInlineScalar
}

// Valid reports whether o is a known origin.
func (o RelationshipOrigin) Valid() bool {
	return o == OriginExplicit || o.IsInline()
}

// Strength score bounds for explicit relationships.
const (
	MinStrengthScore = 0
	MaxStrengthScore = 100
)

// Relationship is one row of the relationship side table: a directed,
// typed edge between two entities of the same workspace.
type Relationship struct {
	ID             string             `json:"id"`
	Seq            int64              `json:"-"`
	WorkspaceID    string             `json:"workspace_id"`
	SourceEntityID string             `json:"source_entity_id"`
	TargetEntityID string             `json:"target_entity_id"`
	Type           string             `json:"relationship_type"`
	StrengthScore  int                `json:"strength_score"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	Origin         RelationshipOrigin `json:"origin"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// RelationshipFilter selects side-table rows within one workspace. Empty
// fields do not constrain the result.
type RelationshipFilter struct {
	WorkspaceID string
	ID          string
	// EntityID matches rows where the entity is either source or target.
	EntityID    string
	SourceID    string
	TargetID    string
	Type        string
	Origins     []RelationshipOrigin
	MinStrength int
}

// Matches evaluates the filter against a row.
func (f RelationshipFilter) Matches(r *Relationship) bool {
	if r.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.EntityID != "" && r.SourceEntityID != f.EntityID && r.TargetEntityID != f.EntityID {
		return false
	}
	if f.SourceID != "" && r.SourceEntityID != f.SourceID {
		return false
	}
	if f.TargetID != "" && r.TargetEntityID != f.TargetID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if len(f.Origins) > 0 {
		found := false
		for _, o := range f.Origins {
			if r.Origin == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return r.StrengthScore >= f.MinStrength
}

// InlineOrigins is the origin set of rows that back inline maps.
var InlineOrigins = []RelationshipOrigin{OriginInline, OriginInlineScalar}

// DeriveRelationships rebuilds an inline map from side-table rows. Rows
// must belong to one source entity and be ordered by Seq. Non-inline rows
// are ignored. An edge backed by exactly one scalar row renders as a
// scalar; any other edge renders as a list.
func DeriveRelationships(rows []Relationship) Relationships {
	out := Relationships{}
	counts := make(map[string]int)
	scalar := make(map[string]bool)
	for _, r := range rows {
		if !r.Origin.IsInline() {
			continue
		}
		t := out[r.Type]
		t.IDs = append(t.IDs, r.TargetEntityID)
		out[r.Type] = t
		counts[r.Type]++
		scalar[r.Type] = r.Origin == OriginInlineScalar
	}
	for edge, t := range out {
		t.Scalar = counts[edge] == 1 && scalar[edge]
		out[edge] = t
	}
	return out
}
