package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ersonp/unistore/internal/domain/entities"
)

// ParseDocument decodes a JSON object given inline or, with a leading '@',
// read from a file. An empty string yields a nil document.
func ParseDocument(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	raw := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		raw = data
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, entities.NewValidationError("data", "must be a JSON object: %v", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// ParseKeyValues turns key=value pairs into a document. Values that parse
// as JSON keep their JSON type; anything else is a string.
func ParseKeyValues(field string, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, err := splitPair(field, pair)
		if err != nil {
			return nil, err
		}
		out[key] = parseValue(value)
	}
	return out, nil
}

// ParseRelationships turns edge=id[,id...] pairs into an inline map. A
// single id becomes a scalar edge, several ids a list, and no ids an empty
// edge.
func ParseRelationships(pairs []string) (entities.Relationships, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(entities.Relationships, len(pairs))
	for _, pair := range pairs {
		edge, value, err := splitPair("relationships", pair)
		if err != nil {
			return nil, err
		}
		var ids []string
		for id := range strings.SplitSeq(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		switch len(ids) {
		case 0:
			out[edge] = entities.Many()
		case 1:
			if strings.Contains(value, ",") {
				out[edge] = entities.Many(ids...)
			} else {
				out[edge] = entities.One(ids[0])
			}
		default:
			out[edge] = entities.Many(ids...)
		}
	}
	return out, nil
}

// ParseMembership turns edge=id pairs into a relationship filter.
func ParseMembership(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		edge, id, err := splitPair("relationships", pair)
		if err != nil {
			return nil, err
		}
		out[edge] = strings.TrimSpace(id)
	}
	return out, nil
}

func splitPair(field, pair string) (string, string, error) {
	key, value, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", entities.NewValidationError(field, "expected key=value, got %q", pair)
	}
	return key, value, nil
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
