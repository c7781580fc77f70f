package entities

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// EdgeTargets is the value stored under one edge name of an entity's
// inline relationship map: either a single id or an ordered list of ids.
type EdgeTargets struct {
	IDs    []string
	Scalar bool
}

// One returns a scalar edge value.
func One(id string) EdgeTargets {
	return EdgeTargets{IDs: []string{id}, Scalar: true}
}

// Many returns a list edge value.
func Many(ids ...string) EdgeTargets {
	return EdgeTargets{IDs: append([]string{}, ids...)}
}

// Empty reports whether the edge has no targets.
func (t EdgeTargets) Empty() bool {
	return len(t.IDs) == 0
}

// Contains reports whether id is a member of the edge.
func (t EdgeTargets) Contains(id string) bool {
	return slices.Contains(t.IDs, id)
}

// MarshalJSON encodes a scalar edge as a string and a list edge as an array.
func (t EdgeTargets) MarshalJSON() ([]byte, error) {
	if t.Scalar && len(t.IDs) == 1 {
		return json.Marshal(t.IDs[0])
	}
	if t.IDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.IDs)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (t *EdgeTargets) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = One(s)
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return fmt.Errorf("relationship value must be a string or a list of strings: %w", err)
	}
	*t = Many(ids...)
	return nil
}

// ParseEdgeTargets converts a loosely typed value (string, []string, []any
// of strings, EdgeTargets or nil) into EdgeTargets. Nil yields an empty list.
func ParseEdgeTargets(v any) (EdgeTargets, error) {
	switch t := v.(type) {
	case nil:
		return EdgeTargets{}, nil
	case EdgeTargets:
		return t, nil
	case string:
		return One(t), nil
	case []string:
		return Many(t...), nil
	case []any:
		ids := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return EdgeTargets{}, fmt.Errorf("relationship list item %v is not a string", item)
			}
			ids = append(ids, s)
		}
		return Many(ids...), nil
	default:
		return EdgeTargets{}, fmt.Errorf("unsupported relationship value type %T", v)
	}
}

// Relationships is the inline edge map of an entity.
type Relationships map[string]EdgeTargets

// Clone returns a deep copy.
func (r Relationships) Clone() Relationships {
	if r == nil {
		return nil
	}
	out := make(Relationships, len(r))
	for k, v := range r {
		out[k] = EdgeTargets{IDs: append([]string(nil), v.IDs...), Scalar: v.Scalar}
	}
	return out
}

// Edges returns the edge names in sorted order.
func (r Relationships) Edges() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TargetIDs flattens the targets of the given edge, or of every edge when
// edge is empty, in edge-name order and then list order, without duplicates.
func (r Relationships) TargetIDs(edge string) []string {
	var names []string
	if edge != "" {
		names = []string{edge}
	} else {
		names = r.Edges()
	}

	seen := make(map[string]bool)
	var ids []string
	for _, name := range names {
		for _, id := range r[name].IDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Has reports whether the edge contains id, treating a scalar value as a
// single-member set.
func (r Relationships) Has(edge, id string) bool {
	return r[edge].Contains(id)
}

// ReverseEdge names the edge written on the target side of a bidirectional link.
func ReverseEdge(edge string) string {
	return "reverse_" + edge
}
