package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// MaxNeighborhoodDepth caps breadth-first expansion.
const MaxNeighborhoodDepth = 5

// RelationshipOptions are the optional fields of an explicit relationship.
type RelationshipOptions struct {
	// StrengthScore defaults to DefaultStrengthScore when nil.
	StrengthScore *int
	Metadata      map[string]any
}

// RelatedEntity is an entity reached from an anchor and its hop distance.
type RelatedEntity struct {
	Entity *entities.Entity `json:"entity"`
	Depth  int              `json:"depth"`
}

// GraphService manages the inline relationship map of entities and the
// relationship side table behind it.
type GraphService struct {
	relationalDB ports.RelationalDB
	retries      int
	logger       *zap.Logger
}

// NewGraphService creates a new GraphService.
func NewGraphService(relationalDB ports.RelationalDB, opts ...Option) *GraphService {
	o := buildOptions(opts)
	return &GraphService{
		relationalDB: relationalDB,
		retries:      o.conflictRetries,
		logger:       o.logger,
	}
}

// Link appends targetID under sourceID's edge and, when bidirectional,
// sourceID under targetID's reverse edge. Linking a target that is already
// present writes nothing. Returns the source entity as stored.
func (s *GraphService) Link(ctx context.Context, workspaceID, sourceID, targetID, edge string, bidirectional bool) (*entities.Entity, error) {
	edge, err := validateEdge(workspaceID, edge)
	if err != nil {
		return nil, err
	}

	var source *entities.Entity
	err = s.withRetry(ctx, "link", func() error {
		return s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
			src, tgt, err := loadEndpoints(ctx, tx, workspaceID, sourceID, targetID)
			if err != nil {
				return err
			}

			at := now()
			src, err = appendEdge(ctx, tx, src, edge, targetID, at)
			if err != nil {
				return err
			}
			if bidirectional {
				if tgt.ID == src.ID {
					tgt = src
				}
				tgt, err = appendEdge(ctx, tx, tgt, entities.ReverseEdge(edge), sourceID, at)
				if err != nil {
					return err
				}
				if tgt.ID == src.ID {
					src = tgt
				}
			}
			source = src
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

// Unlink removes targetID from sourceID's edge and, when bidirectional,
// sourceID from targetID's reverse edge. Missing entities or edges are a
// no-op. Returns the source entity as stored, or nil when it is missing.
func (s *GraphService) Unlink(ctx context.Context, workspaceID, sourceID, targetID, edge string, bidirectional bool) (*entities.Entity, error) {
	edge, err := validateEdge(workspaceID, edge)
	if err != nil {
		return nil, err
	}

	var source *entities.Entity
	err = s.withRetry(ctx, "unlink", func() error {
		return s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
			at := now()
			src, err := tx.FindEntityByID(ctx, workspaceID, sourceID)
			if err != nil {
				return fmt.Errorf("finding source entity: %w", err)
			}
			if src != nil {
				if src, err = removeEdge(ctx, tx, src, edge, targetID, at); err != nil {
					return err
				}
			}

			if bidirectional {
				var tgt *entities.Entity
				if src != nil && targetID == sourceID {
					tgt = src
				} else if tgt, err = tx.FindEntityByID(ctx, workspaceID, targetID); err != nil {
					return fmt.Errorf("finding target entity: %w", err)
				}
				if tgt != nil {
					if tgt, err = removeEdge(ctx, tx, tgt, entities.ReverseEdge(edge), sourceID, at); err != nil {
						return err
					}
					if tgt.ID == sourceID {
						src = tgt
					}
				}
			}
			source = src
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

// FindRelated returns the entities referenced by id's inline map, limited to
// edge when it is set. Dangling targets are dropped; a missing anchor yields
// an empty result.
func (s *GraphService) FindRelated(ctx context.Context, workspaceID, id, edge string) ([]*entities.Entity, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	anchor, err := s.relationalDB.FindEntityByID(ctx, workspaceID, id)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	if anchor == nil {
		return []*entities.Entity{}, nil
	}
	return s.fetchOrdered(ctx, workspaceID, anchor.Relationships.TargetIDs(edge))
}

// Neighborhood expands breadth-first from id over every inline edge and
// returns each reached entity once, with the hop at which it was first seen.
func (s *GraphService) Neighborhood(ctx context.Context, workspaceID, id string, depth int) ([]RelatedEntity, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	if depth < 1 || depth > MaxNeighborhoodDepth {
		return nil, entities.NewValidationError("depth", "must be between 1 and %d", MaxNeighborhoodDepth)
	}

	anchor, err := s.relationalDB.FindEntityByID(ctx, workspaceID, id)
	if err != nil {
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	result := []RelatedEntity{}
	if anchor == nil {
		return result, nil
	}

	visited := map[string]bool{anchor.ID: true}
	frontier := []*entities.Entity{anchor}
	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var ids []string
		for _, e := range frontier {
			for _, target := range e.Relationships.TargetIDs("") {
				if !visited[target] {
					visited[target] = true
					ids = append(ids, target)
				}
			}
		}
		if len(ids) == 0 {
			break
		}

		next, err := s.fetchOrdered(ctx, workspaceID, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range next {
			result = append(result, RelatedEntity{Entity: e, Depth: hop})
		}
		frontier = next
	}
	return result, nil
}

// CreateRelationship stores an explicit side-table row. Explicit rows never
// appear in the inline map.
func (s *GraphService) CreateRelationship(ctx context.Context, workspaceID, sourceID, targetID, relType string, opts RelationshipOptions) (*entities.Relationship, error) {
	relType, err := validateEdge(workspaceID, relType)
	if err != nil {
		return nil, err
	}
	score := DefaultStrengthScore
	if opts.StrengthScore != nil {
		score = *opts.StrengthScore
	}
	if score < entities.MinStrengthScore || score > entities.MaxStrengthScore {
		return nil, entities.NewValidationError("strength_score", "must be between %d and %d",
			entities.MinStrengthScore, entities.MaxStrengthScore)
	}

	at := now()
	rel := &entities.Relationship{
		ID:             newID(),
		WorkspaceID:    workspaceID,
		SourceEntityID: sourceID,
		TargetEntityID: targetID,
		Type:           relType,
		StrengthScore:  score,
		Metadata:       entities.CloneDocument(opts.Metadata),
		Origin:         entities.OriginExplicit,
		CreatedAt:      at,
		UpdatedAt:      at,
	}

	err = s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		if _, _, err := loadEndpoints(ctx, tx, workspaceID, sourceID, targetID); err != nil {
			return err
		}
		if err := tx.InsertRelationship(ctx, rel); err != nil {
			return fmt.Errorf("saving relationship: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// ListRelationships returns the side-table rows matching filter.
func (s *GraphService) ListRelationships(ctx context.Context, filter entities.RelationshipFilter) ([]entities.Relationship, error) {
	if filter.WorkspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	for _, o := range filter.Origins {
		if !o.Valid() {
			return nil, entities.NewValidationError("origin", "unknown origin %q", o)
		}
	}
	rels, err := s.relationalDB.FindRelationships(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}
	if rels == nil {
		rels = []entities.Relationship{}
	}
	return rels, nil
}

// DeleteRelationship removes one explicit row. Inline rows belong to the
// inline map and are removed with Unlink.
func (s *GraphService) DeleteRelationship(ctx context.Context, workspaceID, id string) error {
	if workspaceID == "" {
		return entities.NewValidationError("workspace_id", "required")
	}
	return s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		rows, err := tx.FindRelationships(ctx, entities.RelationshipFilter{
			WorkspaceID: workspaceID,
			ID:          id,
			Origins:     []entities.RelationshipOrigin{entities.OriginExplicit},
		})
		if err != nil {
			return fmt.Errorf("finding relationship: %w", err)
		}
		if len(rows) == 0 {
			return entities.NewNotFoundError("relationship", id)
		}
		if _, err := tx.DeleteRelationship(ctx, workspaceID, id); err != nil {
			return fmt.Errorf("deleting relationship: %w", err)
		}
		return nil
	})
}

// RebuildRelationships recomputes id's inline map from its side-table rows
// and writes it when the stored map has drifted. Reports whether a write
// happened.
func (s *GraphService) RebuildRelationships(ctx context.Context, workspaceID, id string) (*entities.Entity, bool, error) {
	if workspaceID == "" {
		return nil, false, entities.NewValidationError("workspace_id", "required")
	}
	var (
		rebuilt *entities.Entity
		changed bool
	)
	err := s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		e, wrote, err := refreshInlineMap(ctx, tx, workspaceID, id, now())
		if err != nil {
			return err
		}
		if e == nil {
			return entities.NewNotFoundError("entity", id)
		}
		rebuilt, changed = e, wrote
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.logger.Info("inline relationships rebuilt",
			zap.String("workspace_id", workspaceID),
			zap.String("entity_id", id))
	}
	return rebuilt, changed, nil
}

func (s *GraphService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, entities.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Debug("graph write lost version race",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

// fetchOrdered batch-loads ids and returns the found entities in ids order.
func (s *GraphService) fetchOrdered(ctx context.Context, workspaceID string, ids []string) ([]*entities.Entity, error) {
	if len(ids) == 0 {
		return []*entities.Entity{}, nil
	}
	found, err := s.relationalDB.FindEntitiesByIDs(ctx, workspaceID, ids)
	if err != nil {
		return nil, fmt.Errorf("finding related entities: %w", err)
	}
	byID := make(map[string]*entities.Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	out := make([]*entities.Entity, 0, len(found))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// appendEdge adds target to e's edge. A target that is already present
// leaves e unchanged.
func appendEdge(ctx context.Context, tx ports.RelationalTx, e *entities.Entity, edge, target string, at time.Time) (*entities.Entity, error) {
	rows, err := inlineRows(ctx, tx, e.WorkspaceID, e.ID, edge)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.TargetEntityID == target {
			return e, nil
		}
	}

	if err := insertInlineRow(ctx, tx, e, edge, target, entities.OriginInline, at); err != nil {
		return nil, err
	}
	rows = append(rows, entities.Relationship{Type: edge, TargetEntityID: target, Origin: entities.OriginInline})

	next := e.Clone()
	next.Relationships = setEdge(next.Relationships, edge, rows)
	if err := writeNextVersion(ctx, tx, e, next, at); err != nil {
		return nil, err
	}
	return next, nil
}

// removeEdge drops target from e's edge. An absent target leaves e
// unchanged.
func removeEdge(ctx context.Context, tx ports.RelationalTx, e *entities.Entity, edge, target string, at time.Time) (*entities.Entity, error) {
	rows, err := inlineRows(ctx, tx, e.WorkspaceID, e.ID, edge)
	if err != nil {
		return nil, err
	}

	kept := rows[:0:0]
	removed := false
	for _, r := range rows {
		if r.TargetEntityID != target {
			kept = append(kept, r)
			continue
		}
		if _, err := tx.DeleteRelationship(ctx, e.WorkspaceID, r.ID); err != nil {
			return nil, fmt.Errorf("deleting %s row: %w", edge, err)
		}
		removed = true
	}
	if !removed {
		return e, nil
	}

	next := e.Clone()
	next.Relationships = setEdge(next.Relationships, edge, kept)
	if err := writeNextVersion(ctx, tx, e, next, at); err != nil {
		return nil, err
	}
	return next, nil
}

// loadEndpoints fetches both ends of an edge, failing when either is
// missing from the workspace.
func loadEndpoints(ctx context.Context, tx ports.RelationalTx, workspaceID, sourceID, targetID string) (*entities.Entity, *entities.Entity, error) {
	src, err := tx.FindEntityByID(ctx, workspaceID, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding source entity: %w", err)
	}
	if src == nil {
		return nil, nil, entities.NewNotFoundError("entity", sourceID)
	}
	if targetID == sourceID {
		return src, src, nil
	}
	tgt, err := tx.FindEntityByID(ctx, workspaceID, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("finding target entity: %w", err)
	}
	if tgt == nil {
		return nil, nil, entities.NewNotFoundError("entity", targetID)
	}
	return src, tgt, nil
}

func validateEdge(workspaceID, edge string) (string, error) {
	if workspaceID == "" {
		return "", entities.NewValidationError("workspace_id", "required")
	}
	edge = strings.TrimSpace(edge)
	if edge == "" {
		return "", entities.NewValidationError("edge", "required")
	}
	return edge, nil
}
