// Package postgres provides a PostgreSQL implementation of the RelationalDB
// interface on a pgx pool driven through bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/infrastructure/config"
)

// Repository implements ports.RelationalDB using PostgreSQL.
type Repository struct {
	db   *bun.DB
	q    bun.IDB
	inTx bool
	pool *pgxpool.Pool
}

var _ ports.RelationalDB = (*Repository)(nil)

// NewRepository connects a pgx pool and wraps it in bun.
func NewRepository(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	if logger != nil {
		db.AddQueryHook(newQueryLogger(logger))
	}

	repo := NewWithDB(db)
	repo.pool = pool
	return repo, nil
}

// NewWithDB wraps an existing bun database.
func NewWithDB(db *bun.DB) *Repository {
	return &Repository{db: db, q: db}
}

// Close closes the database and the pool behind it.
func (r *Repository) Close() error {
	err := r.db.Close()
	if r.pool != nil {
		r.pool.Close()
	}
	return err
}

// DB exposes the underlying database/sql handle for migrations.
func (r *Repository) DB() *sql.DB {
	return r.db.DB
}

// EnsureSchema applies the embedded migrations.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	return Migrate(ctx, r.db.DB)
}

// Atomically runs fn inside a transaction. Calls made on a repository that
// is already inside a transaction join it.
func (r *Repository) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.RelationalTx) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	var fnErr error
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fnErr = fn(ctx, &Repository{db: r.db, q: tx, inTx: true})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return entities.StorageError("running transaction", err)
	}
	return err
}

// InsertEntity stores a new entity.
func (r *Repository) InsertEntity(ctx context.Context, entity *entities.Entity) error {
	if _, err := r.q.NewInsert().Model(newEntityModel(entity)).Exec(ctx); err != nil {
		return entities.StorageError("inserting entity", err)
	}
	return nil
}

// FindEntityByID finds an entity by its ID within a workspace.
func (r *Repository) FindEntityByID(ctx context.Context, workspaceID, id string) (*entities.Entity, error) {
	var rows []entityModel
	err := r.q.NewSelect().
		Model(&rows).
		Where("e.workspace_id = ?", workspaceID).
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, entities.StorageError("querying entity", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toEntity(), nil
}

// FindEntitiesByIDs finds multiple entities by their IDs in a single query.
func (r *Repository) FindEntitiesByIDs(ctx context.Context, workspaceID string, ids []string) ([]*entities.Entity, error) {
	if len(ids) == 0 {
		return []*entities.Entity{}, nil
	}
	var rows []entityModel
	err := r.q.NewSelect().
		Model(&rows).
		Where("e.workspace_id = ?", workspaceID).
		Where("e.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, entities.StorageError("querying entities", err)
	}
	return toEntities(rows), nil
}

// FindEntities evaluates a normalized query.
func (r *Repository) FindEntities(ctx context.Context, q entities.EntityQuery) ([]*entities.Entity, error) {
	var rows []entityModel
	query := r.q.NewSelect().Model(&rows)
	applyEntityFilter(query, q)
	query.OrderExpr(orderExpr(q))
	if q.Limit > 0 {
		query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query.Offset(q.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, entities.StorageError("querying entities", err)
	}
	return toEntities(rows), nil
}

// applyEntityFilter compiles every filter of the query into WHERE clauses.
func applyEntityFilter(query *bun.SelectQuery, q entities.EntityQuery) {
	query.Where("e.workspace_id = ?", q.WorkspaceID)

	if q.UserID != nil {
		query.Where("e.user_id = ?", *q.UserID)
	}
	if len(q.Types) > 0 {
		query.Where("e.type IN (?)", bun.In(q.Types))
	}

	// ->> renders JSON booleans and numbers in the same text form as
	// entities.TextValue.
	for _, c := range q.WhereClauses() {
		query.Where("e.data ->> ? = ?", c.Key, c.Value)
	}

	for _, c := range q.RelationshipClauses() {
		query.Where(`EXISTS (
			SELECT 1 FROM relationships AS rel
			WHERE rel.workspace_id = e.workspace_id AND rel.source_entity_id = e.id
				AND rel.relationship_type = ? AND rel.target_entity_id = ?
				AND rel.origin IN (?))`,
			c.Key, c.Value, bun.In(inlineOrigins()))
	}

	if q.Search != "" {
		query.Where("(strpos(lower(e.search_vector), lower(?)) > 0 OR strpos(lower(e.data::text), lower(?)) > 0)",
			q.Search, q.Search)
	}
}

func orderExpr(q entities.EntityQuery) string {
	column := "e.created_at"
	if q.OrderBy == entities.OrderByUpdatedAt {
		column = "e.updated_at"
	}
	dir := "DESC"
	if q.OrderDirection == entities.OrderAsc {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s, e.id %s", column, dir, dir)
}

// UpdateEntity writes every mutable column guarded by the expected version.
func (r *Repository) UpdateEntity(ctx context.Context, entity *entities.Entity, expectedVersion int64) error {
	result, err := r.q.NewUpdate().
		Model(newEntityModel(entity)).
		Column("user_id", "data", "relationships", "metadata", "search_vector", "version", "updated_at").
		Where("e.workspace_id = ?", entity.WorkspaceID).
		Where("e.id = ?", entity.ID).
		Where("e.version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return entities.StorageError("updating entity", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return entities.StorageError("updating entity", err)
	}
	if n == 0 {
		return &entities.ConflictError{ID: entity.ID, Expected: expectedVersion}
	}
	return nil
}

// DeleteEntity deletes an entity by ID.
func (r *Repository) DeleteEntity(ctx context.Context, workspaceID, id string) (bool, error) {
	result, err := r.q.NewDelete().
		Model((*entityModel)(nil)).
		Where("e.workspace_id = ?", workspaceID).
		Where("e.id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, entities.StorageError("deleting entity", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, entities.StorageError("deleting entity", err)
	}
	return n > 0, nil
}

func toEntities(rows []entityModel) []*entities.Entity {
	out := make([]*entities.Entity, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out
}

func inlineOrigins() []string {
	out := make([]string, len(entities.InlineOrigins))
	for i, o := range entities.InlineOrigins {
		out[i] = string(o)
	}
	return out
}
