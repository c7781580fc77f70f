// Package search derives the searchable text of entity documents and holds
// the substring predicate shared by backends that filter in memory.
package search

import (
	"encoding/json"
	"sort"
	"strings"
)

// ExtractSearchableText walks a document depth-first and joins every string
// leaf with a single space. Object keys are visited in sorted order, list
// items in index order. Numbers, booleans and nulls are ignored.
func ExtractSearchableText(doc any) string {
	var parts []string
	collect(normalize(doc), &parts)
	return strings.Join(parts, " ")
}

func collect(v any, parts *[]string) {
	switch t := v.(type) {
	case string:
		*parts = append(*parts, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(t[k], parts)
		}
	case []any:
		for _, item := range t {
			collect(item, parts)
		}
	case []string:
		*parts = append(*parts, t...)
	}
}

// normalize converts typed Go values into the generic JSON shapes handled by
// collect.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, int, int64, json.Number, []string:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

// Contains reports whether term occurs in haystack, ignoring case. An empty
// term always matches.
func Contains(haystack, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(term))
}
