package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

// EntityTypeHandler handles entity type operations.
type EntityTypeHandler struct {
	service *services.EntityTypeService
}

// NewEntityTypeHandler creates a new EntityTypeHandler.
func NewEntityTypeHandler(service *services.EntityTypeService) *EntityTypeHandler {
	return &EntityTypeHandler{
		service: service,
	}
}

// HandleList returns built-in and custom entity types.
func (h *EntityTypeHandler) HandleList(ctx context.Context, workspaceID string) ([]entities.EntityType, error) {
	return h.service.List(ctx, workspaceID)
}

// HandleAdd creates a new custom entity type. schema is inline JSON, a
// path prefixed with '@', or empty for an open document.
func (h *EntityTypeHandler) HandleAdd(ctx context.Context, workspaceID, name, description, schema string) (*entities.EntityType, error) {
	raw, err := readSchema(schema)
	if err != nil {
		return nil, err
	}
	return h.service.Add(ctx, workspaceID, name, description, raw)
}

// HandleRemove deletes a custom entity type.
func (h *EntityTypeHandler) HandleRemove(ctx context.Context, workspaceID, name string) error {
	return h.service.Remove(ctx, workspaceID, name)
}

// HandleDescribe returns details about a specific entity type.
func (h *EntityTypeHandler) HandleDescribe(ctx context.Context, workspaceID, name string) (*entities.EntityType, error) {
	et, err := h.service.Get(ctx, workspaceID, strings.ToLower(name))
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, entities.NewNotFoundError("entity type", name)
	}
	return et, nil
}

func readSchema(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(s, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		return json.RawMessage(data), nil
	}
	return json.RawMessage(s), nil
}
