package ports

import (
	"context"

	"github.com/ersonp/unistore/internal/domain/entities"
)

// RelationalDB defines the interface for the transactional store holding
// entities, the relationship side table, activities and custom entity types.
// Every method is scoped by workspace; no method reads across tenants.
type RelationalDB interface {
	RelationalTx

	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Atomically runs fn inside a single transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx RelationalTx) error) error
}

// RelationalTx is the set of data operations available both directly on the
// store and inside Atomically.
type RelationalTx interface {
	// Entity operations

	// InsertEntity stores a new entity.
	InsertEntity(ctx context.Context, entity *entities.Entity) error

	// FindEntityByID returns the entity or nil when the (workspace, id) pair
	// has no row.
	FindEntityByID(ctx context.Context, workspaceID, id string) (*entities.Entity, error)

	// FindEntitiesByIDs returns the entities that exist in the workspace,
	// in no particular order.
	FindEntitiesByIDs(ctx context.Context, workspaceID string, ids []string) ([]*entities.Entity, error)

	// FindEntities evaluates a normalized query, including ordering and
	// pagination.
	FindEntities(ctx context.Context, query entities.EntityQuery) ([]*entities.Entity, error)

	// UpdateEntity writes data, relationships, metadata, search vector,
	// version and updated_at in one statement, guarded by expectedVersion.
	// Returns a *entities.ConflictError when the stored version differs.
	UpdateEntity(ctx context.Context, entity *entities.Entity, expectedVersion int64) error

	// DeleteEntity removes the entity and reports whether a row was removed.
	DeleteEntity(ctx context.Context, workspaceID, id string) (bool, error)

	// Relationship side table

	// InsertRelationship stores a row and assigns its Seq.
	InsertRelationship(ctx context.Context, rel *entities.Relationship) error

	// FindRelationships returns matching rows ordered by Seq.
	FindRelationships(ctx context.Context, filter entities.RelationshipFilter) ([]entities.Relationship, error)

	// DeleteRelationships removes matching rows and returns how many.
	DeleteRelationships(ctx context.Context, filter entities.RelationshipFilter) (int, error)

	// DeleteRelationship removes one row by id.
	DeleteRelationship(ctx context.Context, workspaceID, id string) (bool, error)

	// Activities

	// AppendActivity stores an activity. Activities are never updated.
	AppendActivity(ctx context.Context, activity *entities.Activity) error

	// ListActivities returns activities newest first. An empty entityID lists
	// the whole workspace; limit <= 0 means unlimited.
	ListActivities(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error)

	// Custom entity types

	// SaveEntityType saves or updates a custom entity type.
	SaveEntityType(ctx context.Context, entityType *entities.EntityType) error

	// FindEntityType finds a custom entity type by name, or nil.
	FindEntityType(ctx context.Context, workspaceID, name string) (*entities.EntityType, error)

	// ListEntityTypes lists the workspace's custom entity types by name.
	ListEntityTypes(ctx context.Context, workspaceID string) ([]entities.EntityType, error)

	// DeleteEntityType deletes a custom entity type by name.
	DeleteEntityType(ctx context.Context, workspaceID, name string) error
}
