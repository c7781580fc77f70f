package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/domain/search"
)

// CreateParams describes a new entity.
type CreateParams struct {
	WorkspaceID   string
	UserID        *string
	Type          string
	Data          map[string]any
	Relationships entities.Relationships
	Metadata      map[string]any
}

// UpdateParams is a partial update. Nil patches leave their document
// untouched. A relationship edge mapped to no targets is removed.
type UpdateParams struct {
	WorkspaceID     string
	ID              string
	Data            map[string]any
	Relationships   entities.Relationships
	Metadata        map[string]any
	ExpectedVersion int64
}

// EntityService manages entity operations.
type EntityService struct {
	relationalDB  ports.RelationalDB
	validator     DataValidator
	indexer       Indexer
	documentIndex bool
	logger        *zap.Logger
}

// NewEntityService creates a new EntityService.
func NewEntityService(relationalDB ports.RelationalDB, opts ...Option) *EntityService {
	o := buildOptions(opts)
	return &EntityService{
		relationalDB:  relationalDB,
		validator:     o.validator,
		indexer:       o.indexer,
		documentIndex: o.documentIndex,
		logger:        o.logger,
	}
}

// Create validates and stores a new entity together with the side-table
// rows of its inline relationships.
func (s *EntityService) Create(ctx context.Context, p CreateParams) (*entities.Entity, error) {
	if p.WorkspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	entityType := strings.TrimSpace(p.Type)
	if entityType == "" {
		return nil, entities.NewValidationError("type", "required")
	}

	data := entities.CloneDocument(p.Data)
	if data == nil {
		data = map[string]any{}
	}
	if err := s.validate(ctx, p.WorkspaceID, entityType, data); err != nil {
		return nil, err
	}

	rels, err := normalizeRelationships(p.Relationships)
	if err != nil {
		return nil, err
	}

	at := now()
	e := &entities.Entity{
		ID:            newID(),
		WorkspaceID:   p.WorkspaceID,
		UserID:        p.UserID,
		Type:          entityType,
		Data:          data,
		Relationships: entities.Relationships{},
		Metadata:      stripVersion(p.Metadata),
		SearchVector:  search.ExtractSearchableText(data),
		Version:       1,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	for _, edge := range rels.Edges() {
		if !rels[edge].Empty() {
			e.Relationships[edge] = rels[edge]
		}
	}
	e.SyncVersion()

	err = s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		if err := tx.InsertEntity(ctx, e); err != nil {
			return fmt.Errorf("inserting entity: %w", err)
		}
		for _, edge := range e.Relationships.Edges() {
			if err := insertInlineEdge(ctx, tx, e, edge, e.Relationships[edge], at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("entity created",
		zap.String("workspace_id", e.WorkspaceID),
		zap.String("entity_id", e.ID),
		zap.String("type", e.Type))
	s.index(ctx, e)
	return e, nil
}

// FindByID returns the entity with the given id in the workspace.
func (s *EntityService) FindByID(ctx context.Context, workspaceID, id string) (*entities.Entity, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	e, err := s.relationalDB.FindEntityByID(ctx, workspaceID, id)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	if e == nil {
		return nil, entities.NewNotFoundError("entity", id)
	}
	return e, nil
}

// Find evaluates a query. An empty result is an empty, non-nil slice.
func (s *EntityService) Find(ctx context.Context, query entities.EntityQuery) ([]*entities.Entity, error) {
	q, err := query.Normalize()
	if err != nil {
		return nil, err
	}
	found, err := s.relationalDB.FindEntities(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("finding entities: %w", err)
	}
	if found == nil {
		found = []*entities.Entity{}
	}
	return found, nil
}

// Count returns how many entities match the query, ignoring pagination.
func (s *EntityService) Count(ctx context.Context, query entities.EntityQuery) (int, error) {
	found, err := s.Find(ctx, query.Unpaged())
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

// Update applies the supplied patches in one compare-and-swap write.
func (s *EntityService) Update(ctx context.Context, p UpdateParams) (*entities.Entity, error) {
	if p.WorkspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	if p.ID == "" {
		return nil, entities.NewValidationError("id", "required")
	}
	rels, err := normalizeRelationships(p.Relationships)
	if err != nil {
		return nil, err
	}

	check, err := s.prepareCheck(ctx, p)
	if err != nil {
		return nil, err
	}

	var updated *entities.Entity
	err = s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		current, err := tx.FindEntityByID(ctx, p.WorkspaceID, p.ID)
		if err != nil {
			return fmt.Errorf("finding entity: %w", err)
		}
		if current == nil {
			return entities.NewNotFoundError("entity", p.ID)
		}
		if p.ExpectedVersion > 0 && p.ExpectedVersion != current.Version {
			return &entities.ConflictError{ID: p.ID, Expected: p.ExpectedVersion, Actual: current.Version}
		}

		at := now()
		next := current.Clone()

		if p.Data != nil {
			patch := entities.CloneDocument(p.Data)
			next.Data = entities.MergeDocument(current.Data, patch)
			if err := check(next.Data); err != nil {
				return err
			}
			if s.documentIndex {
				next.SearchVector = search.ExtractSearchableText(next.Data)
			} else {
				next.SearchVector = search.ExtractSearchableText(patch)
			}
		}

		if rels != nil {
			for _, edge := range rels.Edges() {
				if err := replaceInlineEdge(ctx, tx, next, edge, rels[edge], at); err != nil {
					return err
				}
			}
			derived, err := derivedMap(ctx, tx, next)
			if err != nil {
				return err
			}
			next.Relationships = derived
		}

		if p.Metadata != nil {
			next.Metadata = entities.MergeDocument(current.Metadata, stripVersion(p.Metadata))
		}

		if err := writeNextVersion(ctx, tx, current, next, at); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.Data != nil {
		s.index(ctx, updated)
	}
	return updated, nil
}

// UpdateWithRetry applies p against the latest stored version, re-reading
// and retrying up to attempts times while the write loses version races.
// Any ExpectedVersion in p is ignored.
func (s *EntityService) UpdateWithRetry(ctx context.Context, p UpdateParams, attempts int) (*entities.Entity, error) {
	if attempts <= 0 {
		attempts = DefaultConflictRetries
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		current, err := s.FindByID(ctx, p.WorkspaceID, p.ID)
		if err != nil {
			return nil, err
		}
		p.ExpectedVersion = current.Version

		updated, err := s.Update(ctx, p)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, entities.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("update lost version race, retrying",
			zap.String("entity_id", p.ID),
			zap.Int("attempt", i+1))
	}
	return nil, lastErr
}

// Delete hard-deletes an entity. Side-table rows on either end are removed
// and entities whose inline map pointed at it are rewritten. Returns false
// when the entity did not exist.
func (s *EntityService) Delete(ctx context.Context, workspaceID, id string) (bool, error) {
	if workspaceID == "" {
		return false, entities.NewValidationError("workspace_id", "required")
	}

	removed := false
	err := s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		current, err := tx.FindEntityByID(ctx, workspaceID, id)
		if err != nil {
			return fmt.Errorf("finding entity: %w", err)
		}
		if current == nil {
			return nil
		}

		incoming, err := tx.FindRelationships(ctx, entities.RelationshipFilter{
			WorkspaceID: workspaceID,
			TargetID:    id,
			Origins:     entities.InlineOrigins,
		})
		if err != nil {
			return fmt.Errorf("finding incoming relationships: %w", err)
		}

		if _, err := tx.DeleteRelationships(ctx, entities.RelationshipFilter{WorkspaceID: workspaceID, EntityID: id}); err != nil {
			return fmt.Errorf("deleting entity relationships: %w", err)
		}
		if _, err := tx.DeleteEntity(ctx, workspaceID, id); err != nil {
			return fmt.Errorf("deleting entity: %w", err)
		}

		at := now()
		seen := map[string]bool{id: true}
		for _, rel := range incoming {
			if seen[rel.SourceEntityID] {
				continue
			}
			seen[rel.SourceEntityID] = true
			if _, _, err := refreshInlineMap(ctx, tx, workspaceID, rel.SourceEntityID, at); err != nil {
				return err
			}
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.logger.Debug("entity deleted", zap.String("workspace_id", workspaceID), zap.String("entity_id", id))
		if s.indexer != nil {
			if err := s.indexer.Remove(ctx, workspaceID, id); err != nil {
				s.logger.Warn("removing entity from index", zap.String("entity_id", id), zap.Error(err))
			}
		}
	}
	return removed, nil
}

// prepareCheck resolves the validator for the entity's type before the
// update transaction opens. The type of an entity never changes.
func (s *EntityService) prepareCheck(ctx context.Context, p UpdateParams) (func(map[string]any) error, error) {
	noop := func(map[string]any) error { return nil }
	if s.validator == nil || p.Data == nil {
		return noop, nil
	}
	current, err := s.relationalDB.FindEntityByID(ctx, p.WorkspaceID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	if current == nil {
		return nil, entities.NewNotFoundError("entity", p.ID)
	}
	return s.validator.Prepare(ctx, p.WorkspaceID, current.Type)
}

func (s *EntityService) validate(ctx context.Context, workspaceID, entityType string, data map[string]any) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(ctx, workspaceID, entityType, data)
}

func (s *EntityService) index(ctx context.Context, e *entities.Entity) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, e); err != nil {
		s.logger.Warn("indexing entity", zap.String("entity_id", e.ID), zap.Error(err))
	}
}

// stripVersion copies a metadata document without the reserved version key.
func stripVersion(meta map[string]any) map[string]any {
	out := entities.CloneDocument(meta)
	if out == nil {
		return map[string]any{}
	}
	delete(out, entities.MetadataVersionKey)
	return out
}
