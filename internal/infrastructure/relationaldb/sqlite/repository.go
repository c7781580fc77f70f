// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/infrastructure/config"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	q    dbtx
	inTx bool
	path string
}

var _ ports.RelationalDB = (*Repository)(nil)

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// One connection serialises writers and keeps :memory: databases intact.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		q:    db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Polymorphic entities; timestamps are unix nanoseconds
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		user_id TEXT,
		type TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		relationships TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		search_vector TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_workspace ON entities(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_entities_workspace_type ON entities(workspace_id, type);
	CREATE INDEX IF NOT EXISTS idx_entities_workspace_user ON entities(workspace_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(workspace_id, created_at);

	-- Relationship side table; seq keeps insertion order per edge
	CREATE TABLE IF NOT EXISTS relationships (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		workspace_id TEXT NOT NULL,
		source_entity_id TEXT NOT NULL,
		target_entity_id TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		strength_score INTEGER NOT NULL DEFAULT 0 CHECK (strength_score BETWEEN 0 AND 100),
		metadata TEXT NOT NULL DEFAULT '{}',
		origin TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(workspace_id, source_entity_id, relationship_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(workspace_id, target_entity_id);

	-- Append-only activity log
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		source_module TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activities_entity ON activities(workspace_id, entity_id, timestamp);

	-- Workspace-scoped custom entity types
	CREATE TABLE IF NOT EXISTS entity_types (
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		schema TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (workspace_id, name)
	);
	`

	_, err := r.q.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Atomically runs fn inside a transaction. Calls made on a repository that
// is already inside a transaction join it.
func (r *Repository) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.RelationalTx) error) (err error) {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return entities.StorageError("beginning transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = entities.StorageError("committing transaction", cerr)
		}
	}()

	return fn(ctx, &Repository{db: r.db, q: tx, inTx: true, path: r.path})
}

const entityColumns = `e.id, e.workspace_id, e.user_id, e.type, e.data, e.relationships, e.metadata,
		e.search_vector, e.version, e.created_at, e.updated_at`

// InsertEntity stores a new entity.
func (r *Repository) InsertEntity(ctx context.Context, entity *entities.Entity) error {
	data, rels, meta, err := encodeEntity(entity)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entities (id, workspace_id, user_id, type, data, relationships, metadata,
			search_vector, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.ExecContext(ctx, query,
		entity.ID,
		entity.WorkspaceID,
		nullString(entity.UserID),
		entity.Type,
		data,
		rels,
		meta,
		entity.SearchVector,
		entity.Version,
		entity.CreatedAt.UnixNano(),
		entity.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return entities.StorageError("inserting entity", err)
	}
	return nil
}

// FindEntityByID finds an entity by its ID within a workspace.
func (r *Repository) FindEntityByID(ctx context.Context, workspaceID, id string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE e.workspace_id = ? AND e.id = ?`
	list, err := r.queryEntities(ctx, query, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// FindEntitiesByIDs finds multiple entities by their IDs in a single query.
func (r *Repository) FindEntitiesByIDs(ctx context.Context, workspaceID string, ids []string) ([]*entities.Entity, error) {
	if len(ids) == 0 {
		return []*entities.Entity{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, workspaceID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`SELECT %s FROM entities e WHERE e.workspace_id = ? AND e.id IN (%s)`,
		entityColumns, strings.Join(placeholders, ","))
	return r.queryEntities(ctx, query, args...)
}

// FindEntities evaluates a normalized query.
func (r *Repository) FindEntities(ctx context.Context, q entities.EntityQuery) ([]*entities.Entity, error) {
	where, args := buildEntityFilter(q)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + entityColumns + ` FROM entities e WHERE `)
	sb.WriteString(where)
	sb.WriteString(orderClause(q))

	switch {
	case q.Limit > 0:
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, q.Limit, q.Offset)
	case q.Offset > 0:
		sb.WriteString(` LIMIT -1 OFFSET ?`)
		args = append(args, q.Offset)
	}

	return r.queryEntities(ctx, sb.String(), args...)
}

// buildEntityFilter compiles every filter of the query into a WHERE body.
func buildEntityFilter(q entities.EntityQuery) (string, []any) {
	conds := []string{"e.workspace_id = ?"}
	args := []any{q.WorkspaceID}

	if q.UserID != nil {
		conds = append(conds, "e.user_id = ?")
		args = append(args, *q.UserID)
	}

	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		conds = append(conds, "e.type IN ("+strings.Join(placeholders, ",")+")")
	}

	// CAST renders JSON numbers as 1.0e+21, not in entities.TextValue form,
	// so numeric fields only match a where value that is a canonical number
	// and are compared numerically.
	for _, c := range q.WhereClauses() {
		path := jsonPath(c.Key)
		if n, ok := numericArg(c.Value); ok {
			conds = append(conds, `(CASE json_type(e.data, ?)
				WHEN 'integer' THEN json_extract(e.data, ?) = ?
				WHEN 'real' THEN json_extract(e.data, ?) = ?
				WHEN 'text' THEN json_extract(e.data, ?) = ?
				ELSE 0 END)`)
			args = append(args, path, path, n, path, n, path, c.Value)
			continue
		}
		conds = append(conds, `(CASE json_type(e.data, ?)
			WHEN 'true' THEN 'true'
			WHEN 'false' THEN 'false'
			WHEN 'integer' THEN NULL
			WHEN 'real' THEN NULL
			ELSE CAST(json_extract(e.data, ?) AS TEXT) END) = ?`)
		args = append(args, path, path, c.Value)
	}

	for _, c := range q.RelationshipClauses() {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM relationships r
			WHERE r.workspace_id = e.workspace_id AND r.source_entity_id = e.id
				AND r.relationship_type = ? AND r.target_entity_id = ?
				AND r.origin IN ('inline', 'inline_scalar'))`)
		args = append(args, c.Key, c.Value)
	}

	if q.Search != "" {
		conds = append(conds, `(`+containsFunc+`(e.search_vector, ?) OR `+containsFunc+`(e.data, ?))`)
		args = append(args, q.Search, q.Search)
	}

	return strings.Join(conds, " AND "), args
}

func orderClause(q entities.EntityQuery) string {
	column := "e.created_at"
	if q.OrderBy == entities.OrderByUpdatedAt {
		column = "e.updated_at"
	}
	dir := "DESC"
	if q.OrderDirection == entities.OrderAsc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, e.id %s", column, dir, dir)
}

// numericArg parses a where value that a JSON number renders to under
// entities.TextValue.
func numericArg(value string) (float64, bool) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	if entities.TextValue(n) != value {
		return 0, false
	}
	return n, true
}

// jsonPath quotes a top-level key as a SQLite JSON path.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

// UpdateEntity writes every mutable column guarded by the expected version.
func (r *Repository) UpdateEntity(ctx context.Context, entity *entities.Entity, expectedVersion int64) error {
	data, rels, meta, err := encodeEntity(entity)
	if err != nil {
		return err
	}

	query := `
		UPDATE entities
		SET user_id = ?, data = ?, relationships = ?, metadata = ?, search_vector = ?,
			version = ?, updated_at = ?
		WHERE workspace_id = ? AND id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		nullString(entity.UserID),
		data,
		rels,
		meta,
		entity.SearchVector,
		entity.Version,
		entity.UpdatedAt.UnixNano(),
		entity.WorkspaceID,
		entity.ID,
		expectedVersion,
	)
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
	result, err := r.q.ExecContext(ctx, `DELETE FROM entities WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	if err != nil {
		return false, entities.StorageError("deleting entity", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, entities.StorageError("deleting entity", err)
	}
	return n > 0, nil
}

// queryEntities is a helper to execute entity queries.
func (r *Repository) queryEntities(ctx context.Context, query string, args ...any) ([]*entities.Entity, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entities.StorageError("querying entities", err)
	}
	defer rows.Close()

	result := make([]*entities.Entity, 0, 16)
	for rows.Next() {
		var (
			e                    entities.Entity
			userID               sql.NullString
			data, rels, meta     string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.WorkspaceID,
			&userID,
			&e.Type,
			&data,
			&rels,
			&meta,
			&e.SearchVector,
			&e.Version,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, entities.StorageError("scanning entity", err)
		}
		if userID.Valid {
			u := userID.String
			e.UserID = &u
		}
		if err := decodeEntity(&e, data, rels, meta); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		e.UpdatedAt = time.Unix(0, updatedAt).UTC()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, entities.StorageError("iterating entities", err)
	}
	return result, nil
}

func encodeEntity(e *entities.Entity) (data, rels, meta string, err error) {
	doc := e.Data
	if doc == nil {
		doc = map[string]any{}
	}
	d, err := entities.MarshalDocument(doc)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling entity data: %w", err)
	}
	relMap := e.Relationships
	if relMap == nil {
		relMap = entities.Relationships{}
	}
	rl, err := json.Marshal(relMap)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling relationships: %w", err)
	}
	e.SyncVersion()
	m, err := entities.MarshalDocument(e.Metadata)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(d), string(rl), string(m), nil
}

func decodeEntity(e *entities.Entity, data, rels, meta string) error {
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return fmt.Errorf("unmarshaling entity data: %w", err)
	}
	if err := json.Unmarshal([]byte(rels), &e.Relationships); err != nil {
		return fmt.Errorf("unmarshaling relationships: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return fmt.Errorf("unmarshaling metadata: %w", err)
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Relationships == nil {
		e.Relationships = entities.Relationships{}
	}
	e.SyncVersion()
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
