package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/payloads"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// validTypeNameRegex allows alphanumeric and underscores only.
var validTypeNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// compiledType is an entity type with its resolved schema. schema is nil
// for types registered without one.
type compiledType struct {
	entityType entities.EntityType
	schema     *jsonschema.Resolved
}

// EntityTypeService manages built-in and workspace entity types and
// validates documents against their schemas.
type EntityTypeService struct {
	relationalDB ports.RelationalDB
	strict       bool
	cache        map[string]*compiledType
	cacheMu      sync.RWMutex
}

var _ DataValidator = (*EntityTypeService)(nil)

// NewEntityTypeService creates a new EntityTypeService.
func NewEntityTypeService(relationalDB ports.RelationalDB, opts ...Option) *EntityTypeService {
	o := buildOptions(opts)
	return &EntityTypeService{
		relationalDB: relationalDB,
		strict:       o.strictTypes,
		cache:        make(map[string]*compiledType),
	}
}

// List returns the built-in types followed by the workspace's custom
// types, sorted by name.
func (s *EntityTypeService) List(ctx context.Context, workspaceID string) ([]entities.EntityType, error) {
	custom, err := s.relationalDB.ListEntityTypes(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing entity types: %w", err)
	}

	out := make([]entities.EntityType, 0, len(entities.DefaultEntityTypes)+len(custom))
	out = append(out, entities.DefaultEntityTypes...)
	out = append(out, custom...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns a specific entity type by name, or nil if not found.
func (s *EntityTypeService) Get(ctx context.Context, workspaceID, name string) (*entities.EntityType, error) {
	ct, err := s.lookup(ctx, workspaceID, name)
	if err != nil || ct == nil {
		return nil, err
	}
	et := ct.entityType
	return &et, nil
}

// Add registers a custom entity type in the workspace. schema may be empty,
// in which case documents of the type are accepted as-is.
func (s *EntityTypeService) Add(ctx context.Context, workspaceID, name, description string, schema json.RawMessage) (*entities.EntityType, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	name = strings.ToLower(strings.TrimSpace(name))

	if !validTypeNameRegex.MatchString(name) {
		return nil, entities.NewValidationError("name", "must be lowercase alphanumeric with underscores, starting with a letter")
	}
	if entities.IsDefaultType(name) {
		return nil, entities.NewValidationError("name", "%q is a built-in entity type", name)
	}

	existing, err := s.relationalDB.FindEntityType(ctx, workspaceID, name)
	if err != nil {
		return nil, fmt.Errorf("checking entity type: %w", err)
	}
	if existing != nil {
		return nil, entities.NewValidationError("name", "entity type %q already exists", name)
	}

	var resolved *jsonschema.Resolved
	if len(schema) > 0 {
		resolved, err = compileSchema(schema)
		if err != nil {
			return nil, entities.NewValidationError("schema", "%v", err)
		}
	}

	et := &entities.EntityType{
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		Schema:      schema,
		CreatedAt:   now(),
	}
	if err := s.relationalDB.SaveEntityType(ctx, et); err != nil {
		return nil, fmt.Errorf("saving entity type: %w", err)
	}

	s.cacheMu.Lock()
	s.cache[cacheKey(workspaceID, name)] = &compiledType{entityType: *et, schema: resolved}
	s.cacheMu.Unlock()
	return et, nil
}

// Remove deletes a custom entity type. Entities of the type are kept.
func (s *EntityTypeService) Remove(ctx context.Context, workspaceID, name string) error {
	if entities.IsDefaultType(name) {
		return entities.NewValidationError("name", "cannot remove built-in entity type %q", name)
	}

	existing, err := s.relationalDB.FindEntityType(ctx, workspaceID, name)
	if err != nil {
		return fmt.Errorf("checking entity type: %w", err)
	}
	if existing == nil {
		return entities.NewNotFoundError("entity type", name)
	}

	if err := s.relationalDB.DeleteEntityType(ctx, workspaceID, name); err != nil {
		return fmt.Errorf("deleting entity type: %w", err)
	}

	s.cacheMu.Lock()
	delete(s.cache, cacheKey(workspaceID, name))
	s.cacheMu.Unlock()
	return nil
}

// IsValid reports whether name is a built-in type or registered in the
// workspace.
func (s *EntityTypeService) IsValid(ctx context.Context, workspaceID, name string) bool {
	ct, err := s.lookup(ctx, workspaceID, name)
	return err == nil && ct != nil
}

// Validate checks data against the schema of entityType. Unknown types are
// open documents unless the service is strict. Built-in types must also
// decode into their typed payload.
func (s *EntityTypeService) Validate(ctx context.Context, workspaceID, entityType string, data map[string]any) error {
	check, err := s.Prepare(ctx, workspaceID, entityType)
	if err != nil {
		return err
	}
	return check(data)
}

// Prepare resolves entityType and returns a check that runs without
// touching storage, so it can be used inside a transaction.
func (s *EntityTypeService) Prepare(ctx context.Context, workspaceID, entityType string) (func(data map[string]any) error, error) {
	ct, err := s.lookup(ctx, workspaceID, entityType)
	if err != nil {
		return nil, err
	}
	if ct == nil {
		if s.strict {
			return nil, entities.NewValidationError("type", "unknown entity type %q", entityType)
		}
		return func(map[string]any) error { return nil }, nil
	}

	return func(data map[string]any) error {
		if ct.schema != nil {
			instance, err := jsonValue(data)
			if err != nil {
				return entities.NewValidationError("data", "%v", err)
			}
			if err := ct.schema.Validate(instance); err != nil {
				return entities.NewValidationError("data", "%s: %v", entityType, err)
			}
		}
		if ct.entityType.BuiltIn() {
			if _, err := payloads.Decode(entityType, data); err != nil && !errors.Is(err, payloads.ErrUnknownType) {
				return err
			}
		}
		return nil
	}, nil
}

// lookup returns the compiled type, or nil when the name is unknown in the
// workspace. Only hits are cached.
func (s *EntityTypeService) lookup(ctx context.Context, workspaceID, name string) (*compiledType, error) {
	key := cacheKey(workspaceID, name)
	if entities.IsDefaultType(name) {
		key = cacheKey("", name)
	}

	// Fast path: check cache with read lock
	s.cacheMu.RLock()
	ct, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if ok {
		return ct, nil
	}

	// Slow path: need to populate cache
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	// Double-check: another goroutine may have populated the cache
	if ct, ok := s.cache[key]; ok {
		return ct, nil
	}

	var et *entities.EntityType
	if entities.IsDefaultType(name) {
		for i := range entities.DefaultEntityTypes {
			if entities.DefaultEntityTypes[i].Name == name {
				builtin := entities.DefaultEntityTypes[i]
				et = &builtin
				break
			}
		}
	} else {
		found, err := s.relationalDB.FindEntityType(ctx, workspaceID, name)
		if err != nil {
			return nil, fmt.Errorf("finding entity type: %w", err)
		}
		et = found
	}
	if et == nil {
		return nil, nil
	}

	ct = &compiledType{entityType: *et}
	if len(et.Schema) > 0 {
		resolved, err := compileSchema(et.Schema)
		if err != nil {
			return nil, fmt.Errorf("compiling schema of %q: %w", name, err)
		}
		ct.schema = resolved
	}
	s.cache[key] = ct
	return ct, nil
}

func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	return resolved, nil
}

// jsonValue converts a document into the plain JSON value model the
// validator expects.
func jsonValue(data map[string]any) (any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return out, nil
}

func cacheKey(workspaceID, name string) string {
	return workspaceID + "\x00" + name
}
