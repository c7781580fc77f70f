package handlers

import (
	"context"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

// EntityHandler handles entity operations at the application layer.
type EntityHandler struct {
	entityService *services.EntityService
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(entityService *services.EntityService) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
	}
}

// CreateInput is the raw form of a create command.
type CreateInput struct {
	Type          string
	UserID        string
	Data          string   // JSON object or @file
	Relationships []string // edge=id[,id...]
	Metadata      []string // key=value
}

// UpdateInput is the raw form of an update command.
type UpdateInput struct {
	ID              string
	Data            string
	Relationships   []string
	Metadata        []string
	ExpectedVersion int64
	// Retry re-reads and retries on version conflicts instead of failing.
	Retry bool
}

// HandleCreate parses the input and creates an entity.
func (h *EntityHandler) HandleCreate(ctx context.Context, workspaceID string, in CreateInput) (*entities.Entity, error) {
	data, err := ParseDocument(in.Data)
	if err != nil {
		return nil, err
	}
	rels, err := ParseRelationships(in.Relationships)
	if err != nil {
		return nil, err
	}
	meta, err := ParseKeyValues("metadata", in.Metadata)
	if err != nil {
		return nil, err
	}

	p := services.CreateParams{
		WorkspaceID:   workspaceID,
		Type:          in.Type,
		Data:          data,
		Relationships: rels,
		Metadata:      meta,
	}
	if in.UserID != "" {
		p.UserID = &in.UserID
	}
	return h.entityService.Create(ctx, p)
}

// HandleGet returns a single entity.
func (h *EntityHandler) HandleGet(ctx context.Context, workspaceID, id string) (*entities.Entity, error) {
	return h.entityService.FindByID(ctx, workspaceID, id)
}

// HandleUpdate parses the input and applies a partial update.
func (h *EntityHandler) HandleUpdate(ctx context.Context, workspaceID string, in UpdateInput) (*entities.Entity, error) {
	data, err := ParseDocument(in.Data)
	if err != nil {
		return nil, err
	}
	rels, err := ParseRelationships(in.Relationships)
	if err != nil {
		return nil, err
	}
	meta, err := ParseKeyValues("metadata", in.Metadata)
	if err != nil {
		return nil, err
	}

	p := services.UpdateParams{
		WorkspaceID:     workspaceID,
		ID:              in.ID,
		Data:            data,
		Relationships:   rels,
		Metadata:        meta,
		ExpectedVersion: in.ExpectedVersion,
	}
	if in.Retry {
		return h.entityService.UpdateWithRetry(ctx, p, 0)
	}
	return h.entityService.Update(ctx, p)
}

// HandleDelete removes an entity. It returns a NotFoundError when the
// entity does not exist.
func (h *EntityHandler) HandleDelete(ctx context.Context, workspaceID, id string) error {
	removed, err := h.entityService.Delete(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if !removed {
		return entities.NewNotFoundError("entity", id)
	}
	return nil
}
