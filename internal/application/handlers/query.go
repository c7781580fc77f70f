package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

// ErrSemanticDisabled is returned by semantic search when no index is configured.
var ErrSemanticDisabled = errors.New("semantic search is not enabled (set semantic.enabled in config)")

// QueryHandler handles entity queries.
type QueryHandler struct {
	entityService   *services.EntityService
	semanticService *services.SemanticService
}

// NewQueryHandler creates a new query handler. semanticService may be nil.
func NewQueryHandler(entityService *services.EntityService, semanticService *services.SemanticService) *QueryHandler {
	return &QueryHandler{
		entityService:   entityService,
		semanticService: semanticService,
	}
}

// FindInput is the raw form of a find command.
type FindInput struct {
	Types         []string
	UserID        string
	Where         []string // key=value
	Relationships []string // edge=id
	Search        string
	OrderBy       string
	Order         string
	Limit         int
	Offset        int
}

// EntityListResult contains a page of entities and the unpaged total.
type EntityListResult struct {
	Entities []*entities.Entity `json:"entities"`
	Total    int                `json:"total"`
}

// BuildQuery converts raw input into an entity query.
func BuildQuery(workspaceID string, in FindInput) (entities.EntityQuery, error) {
	where, err := ParseKeyValues("where", in.Where)
	if err != nil {
		return entities.EntityQuery{}, err
	}
	rels, err := ParseMembership(in.Relationships)
	if err != nil {
		return entities.EntityQuery{}, err
	}

	q := entities.EntityQuery{
		WorkspaceID:    workspaceID,
		Types:          in.Types,
		Where:          where,
		Relationships:  rels,
		Search:         in.Search,
		OrderBy:        entities.OrderField(in.OrderBy),
		OrderDirection: entities.OrderDirection(in.Order),
		Limit:          in.Limit,
		Offset:         in.Offset,
	}
	if in.UserID != "" {
		q.UserID = &in.UserID
	}
	return q, nil
}

// HandleFind returns the requested page together with the total count.
func (h *QueryHandler) HandleFind(ctx context.Context, workspaceID string, in FindInput) (*EntityListResult, error) {
	q, err := BuildQuery(workspaceID, in)
	if err != nil {
		return nil, err
	}

	list, err := h.entityService.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	total := len(list)
	if q.Limit > 0 || q.Offset > 0 {
		if total, err = h.entityService.Count(ctx, q); err != nil {
			return nil, err
		}
	}

	return &EntityListResult{
		Entities: list,
		Total:    total,
	}, nil
}

// HandleCount returns the number of entities matching the input.
func (h *QueryHandler) HandleCount(ctx context.Context, workspaceID string, in FindInput) (int, error) {
	q, err := BuildQuery(workspaceID, in)
	if err != nil {
		return 0, err
	}
	return h.entityService.Count(ctx, q)
}

// HandleSemantic runs a semantic search over the workspace.
func (h *QueryHandler) HandleSemantic(ctx context.Context, workspaceID, text string, types []string, limit int) ([]services.SearchHit, error) {
	if h.semanticService == nil {
		return nil, ErrSemanticDisabled
	}
	hits, err := h.semanticService.Search(ctx, workspaceID, text, types, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return hits, nil
}

// HandleReindex rebuilds the workspace's semantic index.
func (h *QueryHandler) HandleReindex(ctx context.Context, workspaceID string, batchSize int) (int, error) {
	if h.semanticService == nil {
		return 0, ErrSemanticDisabled
	}
	return h.semanticService.Reindex(ctx, workspaceID, batchSize)
}
