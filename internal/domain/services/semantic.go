package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// DefaultSearchLimit is the default number of results to return.
const DefaultSearchLimit = 10

// SearchHit is an entity returned by semantic search.
type SearchHit struct {
	Entity *entities.Entity `json:"entity"`
	Score  float32          `json:"score"`
}

// SemanticService keeps an embedding index of entity search vectors and
// answers similarity queries against it.
type SemanticService struct {
	embedder     ports.Embedder
	vectorDB     ports.VectorDB
	relationalDB ports.RelationalDB
	logger       *zap.Logger
}

var _ Indexer = (*SemanticService)(nil)

// NewSemanticService creates a new semantic service.
func NewSemanticService(embedder ports.Embedder, vectorDB ports.VectorDB, relationalDB ports.RelationalDB, opts ...Option) *SemanticService {
	o := buildOptions(opts)
	return &SemanticService{
		embedder:     embedder,
		vectorDB:     vectorDB,
		relationalDB: relationalDB,
		logger:       o.logger,
	}
}

// Index embeds the entity's search vector and upserts it.
func (s *SemanticService) Index(ctx context.Context, e *entities.Entity) error {
	embedding, err := s.embedder.Embed(ctx, e.SearchVector)
	if err != nil {
		return fmt.Errorf("generating embedding: %w", err)
	}
	err = s.vectorDB.Upsert(ctx, ports.VectorDocument{
		EntityID:    e.ID,
		WorkspaceID: e.WorkspaceID,
		Type:        e.Type,
		Embedding:   embedding,
	})
	if err != nil {
		return fmt.Errorf("indexing entity: %w", err)
	}
	return nil
}

// Remove drops the entity from the index.
func (s *SemanticService) Remove(ctx context.Context, _ string, entityID string) error {
	if err := s.vectorDB.Delete(ctx, entityID); err != nil {
		return fmt.Errorf("removing entity from index: %w", err)
	}
	return nil
}

// Search finds entities of the workspace whose search vector is similar to
// text. Hits whose entity no longer exists are dropped.
func (s *SemanticService) Search(ctx context.Context, workspaceID, text string, types []string, limit int) ([]SearchHit, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}

	hits, err := s.vectorDB.Search(ctx, embedding, ports.VectorFilter{WorkspaceID: workspaceID, Types: types}, limit)
	if err != nil {
		return nil, fmt.Errorf("searching entities: %w", err)
	}
	if len(hits) == 0 {
		return []SearchHit{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.EntityID
	}
	found, err := s.relationalDB.FindEntitiesByIDs(ctx, workspaceID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading search hits: %w", err)
	}
	byID := make(map[string]*entities.Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if e, ok := byID[h.EntityID]; ok {
			out = append(out, SearchHit{Entity: e, Score: h.Score})
		}
	}
	return out, nil
}

// Reindex drops the workspace's embeddings and rebuilds them from the
// store in batches. Returns the number of entities indexed.
func (s *SemanticService) Reindex(ctx context.Context, workspaceID string, batchSize int) (int, error) {
	if workspaceID == "" {
		return 0, entities.NewValidationError("workspace_id", "required")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	if err := s.vectorDB.DeleteByWorkspace(ctx, workspaceID); err != nil {
		return 0, fmt.Errorf("clearing workspace index: %w", err)
	}

	indexed := 0
	for offset := 0; ; offset += batchSize {
		q, err := entities.EntityQuery{
			WorkspaceID:    workspaceID,
			OrderDirection: entities.OrderAsc,
			Limit:          batchSize,
			Offset:         offset,
		}.Normalize()
		if err != nil {
			return indexed, err
		}
		batch, err := s.relationalDB.FindEntities(ctx, q)
		if err != nil {
			return indexed, fmt.Errorf("listing entities: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.SearchVector
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("generating embeddings: %w", err)
		}
		docs := make([]ports.VectorDocument, len(batch))
		for i, e := range batch {
			docs[i] = ports.VectorDocument{
				EntityID:    e.ID,
				WorkspaceID: e.WorkspaceID,
				Type:        e.Type,
				Embedding:   embeddings[i],
			}
		}
		if err := s.vectorDB.UpsertBatch(ctx, docs); err != nil {
			return indexed, fmt.Errorf("indexing batch at offset %d: %w", offset, err)
		}
		indexed += len(batch)

		s.logger.Debug("reindexed batch",
			zap.String("workspace_id", workspaceID),
			zap.Int("offset", offset),
			zap.Int("count", len(batch)))
		if len(batch) < batchSize {
			break
		}
	}
	return indexed, nil
}
