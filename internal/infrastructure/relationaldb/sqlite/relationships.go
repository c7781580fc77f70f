package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/unistore/internal/domain/entities"
)

const relationshipColumns = `seq, id, workspace_id, source_entity_id, target_entity_id, relationship_type,
		strength_score, metadata, origin, created_at, updated_at`

// InsertRelationship stores a side-table row and assigns its Seq.
func (r *Repository) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	meta, err := json.Marshal(orEmpty(rel.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling relationship metadata: %w", err)
	}

	query := `
		INSERT INTO relationships (id, workspace_id, source_entity_id, target_entity_id, relationship_type,
			strength_score, metadata, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.q.ExecContext(ctx, query,
		rel.ID,
		rel.WorkspaceID,
		rel.SourceEntityID,
		rel.TargetEntityID,
		rel.Type,
		rel.StrengthScore,
		string(meta),
		string(rel.Origin),
		rel.CreatedAt.UnixNano(),
		rel.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return entities.StorageError("inserting relationship", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return entities.StorageError("reading relationship seq", err)
	}
	rel.Seq = seq
	return nil
}

// FindRelationships returns matching rows ordered by insertion.
func (r *Repository) FindRelationships(ctx context.Context, f entities.RelationshipFilter) ([]entities.Relationship, error) {
	where, args := buildRelationshipFilter(f)
	query := `SELECT ` + relationshipColumns + ` FROM relationships WHERE ` + where + ` ORDER BY seq ASC`
	return r.queryRelationships(ctx, query, args...)
}

// DeleteRelationships removes matching rows.
func (r *Repository) DeleteRelationships(ctx context.Context, f entities.RelationshipFilter) (int, error) {
	where, args := buildRelationshipFilter(f)
	result, err := r.q.ExecContext(ctx, `DELETE FROM relationships WHERE `+where, args...)
	if err != nil {
		return 0, entities.StorageError("deleting relationships", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, entities.StorageError("deleting relationships", err)
	}
	return int(n), nil
}

// DeleteRelationship deletes a relationship by ID.
func (r *Repository) DeleteRelationship(ctx context.Context, workspaceID, id string) (bool, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM relationships WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	if err != nil {
		return false, entities.StorageError("deleting relationship", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, entities.StorageError("deleting relationship", err)
	}
	return n > 0, nil
}

func buildRelationshipFilter(f entities.RelationshipFilter) (string, []any) {
	conds := []string{"workspace_id = ?"}
	args := []any{f.WorkspaceID}

	if f.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, f.ID)
	}
	if f.EntityID != "" {
		conds = append(conds, "(source_entity_id = ? OR target_entity_id = ?)")
		args = append(args, f.EntityID, f.EntityID)
	}
	if f.SourceID != "" {
		conds = append(conds, "source_entity_id = ?")
		args = append(args, f.SourceID)
	}
	if f.TargetID != "" {
		conds = append(conds, "target_entity_id = ?")
		args = append(args, f.TargetID)
	}
	if f.Type != "" {
		conds = append(conds, "relationship_type = ?")
		args = append(args, f.Type)
	}
	if len(f.Origins) > 0 {
		placeholders := make([]string, len(f.Origins))
		for i, o := range f.Origins {
			placeholders[i] = "?"
			args = append(args, string(o))
		}
		conds = append(conds, "origin IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MinStrength > 0 {
		conds = append(conds, "strength_score >= ?")
		args = append(args, f.MinStrength)
	}
	return strings.Join(conds, " AND "), args
}

// queryRelationships is a helper to execute relationship queries.
func (r *Repository) queryRelationships(ctx context.Context, query string, args ...any) ([]entities.Relationship, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entities.StorageError("querying relationships", err)
	}
	defer rows.Close()

	relationships := make([]entities.Relationship, 0, 16)
	for rows.Next() {
		var (
			rel                  entities.Relationship
			meta, origin         string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(
			&rel.Seq,
			&rel.ID,
			&rel.WorkspaceID,
			&rel.SourceEntityID,
			&rel.TargetEntityID,
			&rel.Type,
			&rel.StrengthScore,
			&meta,
			&origin,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, entities.StorageError("scanning relationship", err)
		}
		if err := json.Unmarshal([]byte(meta), &rel.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling relationship metadata: %w", err)
		}
		rel.Origin = entities.RelationshipOrigin(origin)
		rel.CreatedAt = time.Unix(0, createdAt).UTC()
		rel.UpdatedAt = time.Unix(0, updatedAt).UTC()
		relationships = append(relationships, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, entities.StorageError("iterating relationships", err)
	}
	return relationships, nil
}

// AppendActivity stores an activity.
func (r *Repository) AppendActivity(ctx context.Context, a *entities.Activity) error {
	participants, err := json.Marshal(orEmptyList(a.Participants))
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	query := `
		INSERT INTO activities (id, workspace_id, entity_id, activity_type, source_module, content,
			participants, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.q.ExecContext(ctx, query,
		a.ID,
		a.WorkspaceID,
		a.EntityID,
		a.ActivityType,
		a.SourceModule,
		a.Content,
		string(participants),
		a.Timestamp.UnixNano(),
	)
	if err != nil {
		return entities.StorageError("inserting activity", err)
	}
	return nil
}

// ListActivities returns activities newest first.
func (r *Repository) ListActivities(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	query := `
		SELECT id, workspace_id, entity_id, activity_type, source_module, content, participants, timestamp
		FROM activities
		WHERE workspace_id = ?`
	args := []any{workspaceID}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entities.StorageError("querying activities", err)
	}
	defer rows.Close()

	activities := make([]entities.Activity, 0, 16)
	for rows.Next() {
		var (
			a            entities.Activity
			participants string
			ts           int64
		)
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.EntityID, &a.ActivityType, &a.SourceModule,
			&a.Content, &participants, &ts); err != nil {
			return nil, entities.StorageError("scanning activity", err)
		}
		if err := json.Unmarshal([]byte(participants), &a.Participants); err != nil {
			return nil, fmt.Errorf("unmarshaling participants: %w", err)
		}
		a.Timestamp = time.Unix(0, ts).UTC()
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, entities.StorageError("iterating activities", err)
	}
	return activities, nil
}

// SaveEntityType saves or updates a custom entity type.
func (r *Repository) SaveEntityType(ctx context.Context, entityType *entities.EntityType) error {
	query := `
		INSERT INTO entity_types (workspace_id, name, description, schema, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, name) DO UPDATE SET
			description = excluded.description,
			schema = excluded.schema
	`
	var schema sql.NullString
	if len(entityType.Schema) > 0 {
		schema = sql.NullString{String: string(entityType.Schema), Valid: true}
	}
	_, err := r.q.ExecContext(ctx, query,
		entityType.WorkspaceID,
		entityType.Name,
		entityType.Description,
		schema,
		entityType.CreatedAt.UnixNano(),
	)
	if err != nil {
		return entities.StorageError("saving entity type", err)
	}
	return nil
}

// FindEntityType finds a custom entity type by name.
func (r *Repository) FindEntityType(ctx context.Context, workspaceID, name string) (*entities.EntityType, error) {
	list, err := r.queryEntityTypes(ctx, `
		SELECT workspace_id, name, description, schema, created_at
		FROM entity_types
		WHERE workspace_id = ? AND name = ?
	`, workspaceID, name)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// ListEntityTypes lists the workspace's custom entity types.
func (r *Repository) ListEntityTypes(ctx context.Context, workspaceID string) ([]entities.EntityType, error) {
	return r.queryEntityTypes(ctx, `
		SELECT workspace_id, name, description, schema, created_at
		FROM entity_types
		WHERE workspace_id = ?
		ORDER BY name ASC
	`, workspaceID)
}

// DeleteEntityType deletes a custom entity type by name.
func (r *Repository) DeleteEntityType(ctx context.Context, workspaceID, name string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM entity_types WHERE workspace_id = ? AND name = ?`, workspaceID, name)
	if err != nil {
		return entities.StorageError("deleting entity type", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return entities.StorageError("deleting entity type", err)
	}
	if rows == 0 {
		return entities.NewNotFoundError("entity type", name)
	}
	return nil
}

func (r *Repository) queryEntityTypes(ctx context.Context, query string, args ...any) ([]entities.EntityType, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entities.StorageError("querying entity types", err)
	}
	defer rows.Close()

	entityTypes := make([]entities.EntityType, 0, 16)
	for rows.Next() {
		var (
			et                  entities.EntityType
			description, schema sql.NullString
			createdAt           int64
		)
		if err := rows.Scan(&et.WorkspaceID, &et.Name, &description, &schema, &createdAt); err != nil {
			return nil, entities.StorageError("scanning entity type", err)
		}
		et.Description = description.String
		if schema.Valid {
			et.Schema = json.RawMessage(schema.String)
		}
		et.CreatedAt = time.Unix(0, createdAt).UTC()
		entityTypes = append(entityTypes, et)
	}
	if err := rows.Err(); err != nil {
		return nil, entities.StorageError("iterating entity types", err)
	}
	return entityTypes, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
