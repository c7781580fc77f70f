package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ersonp/unistore/internal/domain/search"
)

// OrderField is a sortable entity column.
type OrderField string

const (
	OrderByCreatedAt OrderField = "createdAt"
	OrderByUpdatedAt OrderField = "updatedAt"
)

// OrderDirection is ascending or descending.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// EntityQuery is the filter shape accepted by Find and Count. WorkspaceID
// is mandatory; every other field narrows the result when set.
type EntityQuery struct {
	WorkspaceID string
	UserID      *string
	// Types matches any of the listed types.
	Types []string
	// Where compares the text form of data[key] with the text form of
	// each value. Nil values are skipped.
	Where map[string]any
	// Relationships requires the id to be a member of the named edge.
	Relationships  map[string]string
	Search         string
	OrderBy        OrderField
	OrderDirection OrderDirection
	Limit          int
	Offset         int
}

// Normalize validates the query and fills defaults.
func (q EntityQuery) Normalize() (EntityQuery, error) {
	if q.WorkspaceID == "" {
		return q, NewValidationError("workspace_id", "required")
	}
	switch q.OrderBy {
	case "":
		q.OrderBy = OrderByCreatedAt
	case OrderByCreatedAt, OrderByUpdatedAt:
	default:
		return q, NewValidationError("order_by", "unsupported field %q", q.OrderBy)
	}
	switch q.OrderDirection {
	case "":
		q.OrderDirection = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return q, NewValidationError("order_direction", "unsupported direction %q", q.OrderDirection)
	}
	if q.Offset < 0 {
		return q, NewValidationError("offset", "must not be negative")
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q, nil
}

// Unpaged returns a copy without limit and offset.
func (q EntityQuery) Unpaged() EntityQuery {
	q.Limit = 0
	q.Offset = 0
	return q
}

// WhereClauses returns the non-nil where pairs sorted by key, with values
// converted to their text form.
func (q EntityQuery) WhereClauses() []WhereClause {
	keys := make([]string, 0, len(q.Where))
	for k, v := range q.Where {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]WhereClause, len(keys))
	for i, k := range keys {
		out[i] = WhereClause{Key: k, Value: TextValue(q.Where[k])}
	}
	return out
}

// RelationshipClauses returns relationship filters sorted by edge.
func (q EntityQuery) RelationshipClauses() []WhereClause {
	keys := make([]string, 0, len(q.Relationships))
	for k := range q.Relationships {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]WhereClause, len(keys))
	for i, k := range keys {
		out[i] = WhereClause{Key: k, Value: q.Relationships[k]}
	}
	return out
}

// WhereClause is a key and the text it must equal.
type WhereClause struct {
	Key   string
	Value string
}

// Matches evaluates every filter of the query except pagination.
func (q EntityQuery) Matches(e *Entity) bool {
	if e.WorkspaceID != q.WorkspaceID {
		return false
	}
	if q.UserID != nil && (e.UserID == nil || *e.UserID != *q.UserID) {
		return false
	}
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, c := range q.WhereClauses() {
		v, ok := e.Data[c.Key]
		if !ok || v == nil || TextValue(v) != c.Value {
			return false
		}
	}
	for _, c := range q.RelationshipClauses() {
		if !e.Relationships.Has(c.Key, c.Value) {
			return false
		}
	}
	if q.Search != "" {
		raw, _ := MarshalDocument(e.Data)
		if !search.Contains(e.SearchVector, q.Search) && !search.Contains(string(raw), q.Search) {
			return false
		}
	}
	return true
}

// Sort orders entities by the query's order field, breaking ties by id in
// the same direction.
func (q EntityQuery) Sort(list []*Entity) {
	desc := q.OrderDirection != OrderAsc
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		ta, tb := a.CreatedAt, b.CreatedAt
		if q.OrderBy == OrderByUpdatedAt {
			ta, tb = a.UpdatedAt, b.UpdatedAt
		}
		if !ta.Equal(tb) {
			if desc {
				return ta.After(tb)
			}
			return ta.Before(tb)
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
}

// Paginate applies offset then limit.
func (q EntityQuery) Paginate(list []*Entity) []*Entity {
	if q.Offset >= len(list) {
		return []*Entity{}
	}
	list = list[q.Offset:]
	if q.Limit > 0 && q.Limit < len(list) {
		list = list[:q.Limit]
	}
	return list
}

// TextValue renders a JSON value the way a document field is compared in
// where filters: strings as-is, numbers in shortest decimal form, booleans
// as true or false, anything else as compact JSON.
func TextValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// MarshalDocument encodes v as compact JSON without escaping &, < and >, so
// stored documents keep the text callers wrote.
func MarshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
