package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// DefaultStrengthScore is given to rows that carry no explicit score.
const DefaultStrengthScore = 50

// normalizeRelationships trims edge names and ids, drops blank ids and
// collapses duplicates. Edges left without targets are kept so that an
// update can use them as removals.
func normalizeRelationships(rels entities.Relationships) (entities.Relationships, error) {
	if rels == nil {
		return nil, nil
	}
	out := make(entities.Relationships, len(rels))
	for edge, targets := range rels {
		name := strings.TrimSpace(edge)
		if name == "" {
			return nil, entities.NewValidationError("relationships", "edge name must not be empty")
		}
		seen := make(map[string]bool, len(targets.IDs))
		ids := make([]string, 0, len(targets.IDs))
		for _, id := range targets.IDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		out[name] = entities.EdgeTargets{IDs: ids, Scalar: targets.Scalar && len(ids) == 1}
	}
	return out, nil
}

// insertInlineEdge writes one side-table row per target of an edge.
func insertInlineEdge(ctx context.Context, tx ports.RelationalTx, e *entities.Entity, edge string, targets entities.EdgeTargets, at time.Time) error {
	origin := entities.OriginInline
	if targets.Scalar && len(targets.IDs) == 1 {
		origin = entities.OriginInlineScalar
	}
	for _, target := range targets.IDs {
		if err := insertInlineRow(ctx, tx, e, edge, target, origin, at); err != nil {
			return err
		}
	}
	return nil
}

func insertInlineRow(ctx context.Context, tx ports.RelationalTx, e *entities.Entity, edge, target string, origin entities.RelationshipOrigin, at time.Time) error {
	rel := &entities.Relationship{
		ID:             newID(),
		WorkspaceID:    e.WorkspaceID,
		SourceEntityID: e.ID,
		TargetEntityID: target,
		Type:           edge,
		StrengthScore:  DefaultStrengthScore,
		Origin:         origin,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if err := tx.InsertRelationship(ctx, rel); err != nil {
		return fmt.Errorf("inserting %s row: %w", edge, err)
	}
	return nil
}

// replaceInlineEdge swaps the inline rows of one edge for targets. An empty
// targets value only deletes.
func replaceInlineEdge(ctx context.Context, tx ports.RelationalTx, e *entities.Entity, edge string, targets entities.EdgeTargets, at time.Time) error {
	_, err := tx.DeleteRelationships(ctx, entities.RelationshipFilter{
		WorkspaceID: e.WorkspaceID,
		SourceID:    e.ID,
		Type:        edge,
		Origins:     entities.InlineOrigins,
	})
	if err != nil {
		return fmt.Errorf("clearing %s rows: %w", edge, err)
	}
	return insertInlineEdge(ctx, tx, e, edge, targets, at)
}

// inlineRows loads the inline rows of a source entity, optionally for one
// edge, in insertion order.
func inlineRows(ctx context.Context, tx ports.RelationalTx, workspaceID, sourceID, edge string) ([]entities.Relationship, error) {
	rows, err := tx.FindRelationships(ctx, entities.RelationshipFilter{
		WorkspaceID: workspaceID,
		SourceID:    sourceID,
		Type:        edge,
		Origins:     entities.InlineOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("loading inline rows: %w", err)
	}
	return rows, nil
}

// derivedMap rebuilds the whole inline map of an entity from its rows.
func derivedMap(ctx context.Context, tx ports.RelationalTx, e *entities.Entity) (entities.Relationships, error) {
	rows, err := inlineRows(ctx, tx, e.WorkspaceID, e.ID, "")
	if err != nil {
		return nil, err
	}
	return entities.DeriveRelationships(rows), nil
}

// setEdge replaces one edge of the inline map with the value derived from
// rows, removing the key when rows is empty.
func setEdge(rels entities.Relationships, edge string, rows []entities.Relationship) entities.Relationships {
	if rels == nil {
		rels = entities.Relationships{}
	}
	derived := entities.DeriveRelationships(rows)
	if targets, ok := derived[edge]; ok {
		rels[edge] = targets
	} else {
		delete(rels, edge)
	}
	return rels
}

// writeNextVersion stores next as the successor of current: version+1,
// fresh updated_at, guarded by the version that was read.
func writeNextVersion(ctx context.Context, tx ports.RelationalTx, current, next *entities.Entity, at time.Time) error {
	next.Version = current.Version + 1
	next.UpdatedAt = at
	next.SyncVersion()
	if err := tx.UpdateEntity(ctx, next, current.Version); err != nil {
		return fmt.Errorf("updating entity %s: %w", current.ID, err)
	}
	return nil
}

// refreshInlineMap rewrites the inline map of an entity from its rows when
// the two disagree. It reports whether a write happened and returns the
// stored entity, or nil when the entity does not exist.
func refreshInlineMap(ctx context.Context, tx ports.RelationalTx, workspaceID, id string, at time.Time) (*entities.Entity, bool, error) {
	current, err := tx.FindEntityByID(ctx, workspaceID, id)
	if err != nil {
		return nil, false, fmt.Errorf("finding entity: %w", err)
	}
	if current == nil {
		return nil, false, nil
	}
	derived, err := derivedMap(ctx, tx, current)
	if err != nil {
		return nil, false, err
	}
	if sameRelationships(current.Relationships, derived) {
		return current, false, nil
	}

	next := current.Clone()
	next.Relationships = derived
	if err := writeNextVersion(ctx, tx, current, next, at); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func sameRelationships(a, b entities.Relationships) bool {
	if len(a) != len(b) {
		return false
	}
	for edge, ta := range a {
		tb, ok := b[edge]
		if !ok || ta.Scalar != tb.Scalar || len(ta.IDs) != len(tb.IDs) {
			return false
		}
		for i := range ta.IDs {
			if ta.IDs[i] != tb.IDs[i] {
				return false
			}
		}
	}
	return true
}
