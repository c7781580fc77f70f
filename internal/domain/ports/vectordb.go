package ports

import "context"

// VectorDocument is one embedded entity in the semantic index.
type VectorDocument struct {
	EntityID    string
	WorkspaceID string
	Type        string
	Embedding   []float32
}

// VectorFilter restricts a semantic search. WorkspaceID is required.
type VectorFilter struct {
	WorkspaceID string
	Types       []string
}

// VectorHit is a search result ordered by descending score.
type VectorHit struct {
	EntityID string
	Score    float32
}

// VectorDB defines the interface for vector database operations.
type VectorDB interface {
	// Upsert stores or replaces the embedding of an entity.
	Upsert(ctx context.Context, doc VectorDocument) error

	// UpsertBatch stores or replaces several embeddings in one call.
	UpsertBatch(ctx context.Context, docs []VectorDocument) error

	// Search performs a semantic search within a workspace.
	Search(ctx context.Context, embedding []float32, filter VectorFilter, limit int) ([]VectorHit, error)

	// Delete removes an entity's embedding by entity ID.
	Delete(ctx context.Context, entityID string) error

	// DeleteByWorkspace removes every embedding of a workspace.
	DeleteByWorkspace(ctx context.Context, workspaceID string) error
}
