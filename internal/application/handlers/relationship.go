package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/domain/services"
)

// RelationshipHandler handles links and explicit relationships.
type RelationshipHandler struct {
	service      *services.GraphService
	relationalDB ports.RelationalDB
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(service *services.GraphService, relationalDB ports.RelationalDB) *RelationshipHandler {
	return &RelationshipHandler{
		service:      service,
		relationalDB: relationalDB,
	}
}

// ListOptions configures relationship listing behavior.
type ListOptions struct {
	EntityID    string
	Type        string // Filter by relationship type (empty = all)
	Origin      string // explicit, inline, inline_scalar (empty = all)
	MinStrength int
}

// RelationshipInfo contains a relationship with its resolved endpoints.
type RelationshipInfo struct {
	Relationship entities.Relationship `json:"relationship"`
	Source       *entities.Entity      `json:"source,omitempty"`
	Target       *entities.Entity      `json:"target,omitempty"`
}

// ListResult contains the result of listing relationships.
type ListResult struct {
	Relationships []RelationshipInfo `json:"relationships"`
}

// HandleLink adds target to source's edge.
func (h *RelationshipHandler) HandleLink(ctx context.Context, workspaceID, sourceID, edge, targetID string, bidirectional bool) (*entities.Entity, error) {
	return h.service.Link(ctx, workspaceID, sourceID, targetID, edge, bidirectional)
}

// HandleUnlink removes target from source's edge.
func (h *RelationshipHandler) HandleUnlink(ctx context.Context, workspaceID, sourceID, edge, targetID string, bidirectional bool) (*entities.Entity, error) {
	return h.service.Unlink(ctx, workspaceID, sourceID, targetID, edge, bidirectional)
}

// HandleRelated returns the entities reachable from id. With depth 1 the
// result follows edge order; deeper traversals are breadth-first.
func (h *RelationshipHandler) HandleRelated(ctx context.Context, workspaceID, id, edge string, depth int) ([]services.RelatedEntity, error) {
	if depth <= 1 {
		list, err := h.service.FindRelated(ctx, workspaceID, id, edge)
		if err != nil {
			return nil, err
		}
		out := make([]services.RelatedEntity, len(list))
		for i, e := range list {
			out[i] = services.RelatedEntity{Entity: e, Depth: 1}
		}
		return out, nil
	}
	if edge != "" {
		return nil, entities.NewValidationError("edge", "cannot be combined with depth > 1")
	}
	return h.service.Neighborhood(ctx, workspaceID, id, depth)
}

// HandleCreate creates an explicit relationship.
func (h *RelationshipHandler) HandleCreate(
	ctx context.Context,
	workspaceID string,
	sourceID string,
	relType string,
	targetID string,
	strength *int,
	metadata []string,
) (*entities.Relationship, error) {
	meta, err := ParseKeyValues("metadata", metadata)
	if err != nil {
		return nil, err
	}
	return h.service.CreateRelationship(ctx, workspaceID, sourceID, targetID, relType, services.RelationshipOptions{
		StrengthScore: strength,
		Metadata:      meta,
	})
}

// HandleDelete removes an explicit relationship by ID.
func (h *RelationshipHandler) HandleDelete(ctx context.Context, workspaceID, id string) error {
	return h.service.DeleteRelationship(ctx, workspaceID, id)
}

// HandleRebuild re-derives an entity's inline map from the side table.
func (h *RelationshipHandler) HandleRebuild(ctx context.Context, workspaceID, id string) (*entities.Entity, bool, error) {
	return h.service.RebuildRelationships(ctx, workspaceID, id)
}

// HandleList returns relationships with their endpoints resolved.
func (h *RelationshipHandler) HandleList(ctx context.Context, workspaceID string, opts ListOptions) (*ListResult, error) {
	filter := entities.RelationshipFilter{
		WorkspaceID: workspaceID,
		EntityID:    opts.EntityID,
		Type:        opts.Type,
		MinStrength: opts.MinStrength,
	}
	if opts.Origin != "" {
		filter.Origins = []entities.RelationshipOrigin{entities.RelationshipOrigin(opts.Origin)}
	}

	relationships, err := h.service.ListRelationships(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	result := &ListResult{
		Relationships: make([]RelationshipInfo, 0, len(relationships)),
	}
	if len(relationships) == 0 {
		return result, nil
	}

	// Collect unique entity IDs to fetch
	seen := make(map[string]bool)
	ids := make([]string, 0, len(relationships)*2)
	for i := range relationships {
		for _, id := range []string{relationships[i].SourceEntityID, relationships[i].TargetEntityID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	found, err := h.relationalDB.FindEntitiesByIDs(ctx, workspaceID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching entities: %w", err)
	}
	byID := make(map[string]*entities.Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	for i := range relationships {
		result.Relationships = append(result.Relationships, RelationshipInfo{
			Relationship: relationships[i],
			Source:       byID[relationships[i].SourceEntityID],
			Target:       byID[relationships[i].TargetEntityID],
		})
	}
	return result, nil
}
