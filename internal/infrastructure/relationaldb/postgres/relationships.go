package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ersonp/unistore/internal/domain/entities"
)

// InsertRelationship stores a side-table row and assigns its Seq.
func (r *Repository) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	m := newRelationshipModel(rel)
	if _, err := r.q.NewInsert().Model(m).Returning("seq").Exec(ctx); err != nil {
		return entities.StorageError("inserting relationship", err)
	}
	rel.Seq = m.Seq
	return nil
}

// FindRelationships returns matching rows ordered by insertion.
func (r *Repository) FindRelationships(ctx context.Context, f entities.RelationshipFilter) ([]entities.Relationship, error) {
	var rows []relationshipModel
	err := r.q.NewSelect().
		Model(&rows).
		ApplyQueryBuilder(relationshipFilter(f)).
		OrderExpr("r.seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, entities.StorageError("querying relationships", err)
	}
	out := make([]entities.Relationship, len(rows))
	for i := range rows {
		out[i] = rows[i].toRelationship()
	}
	return out, nil
}

// DeleteRelationships removes matching rows.
func (r *Repository) DeleteRelationships(ctx context.Context, f entities.RelationshipFilter) (int, error) {
	result, err := r.q.NewDelete().
		Model((*relationshipModel)(nil)).
		ApplyQueryBuilder(relationshipFilter(f)).
		Exec(ctx)
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
	n, err := r.DeleteRelationships(ctx, entities.RelationshipFilter{WorkspaceID: workspaceID, ID: id})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func relationshipFilter(f entities.RelationshipFilter) func(bun.QueryBuilder) bun.QueryBuilder {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		q = q.Where("r.workspace_id = ?", f.WorkspaceID)
		if f.ID != "" {
			q = q.Where("r.id = ?", f.ID)
		}
		if f.EntityID != "" {
			q = q.Where("(r.source_entity_id = ? OR r.target_entity_id = ?)", f.EntityID, f.EntityID)
		}
		if f.SourceID != "" {
			q = q.Where("r.source_entity_id = ?", f.SourceID)
		}
		if f.TargetID != "" {
			q = q.Where("r.target_entity_id = ?", f.TargetID)
		}
		if f.Type != "" {
			q = q.Where("r.relationship_type = ?", f.Type)
		}
		if len(f.Origins) > 0 {
			origins := make([]string, len(f.Origins))
			for i, o := range f.Origins {
				origins[i] = string(o)
			}
			q = q.Where("r.origin IN (?)", bun.In(origins))
		}
		if f.MinStrength > 0 {
			q = q.Where("r.strength_score >= ?", f.MinStrength)
		}
		return q
	}
}

// AppendActivity stores an activity.
func (r *Repository) AppendActivity(ctx context.Context, a *entities.Activity) error {
	m := &activityModel{
		ID:           a.ID,
		WorkspaceID:  a.WorkspaceID,
		EntityID:     a.EntityID,
		ActivityType: a.ActivityType,
		SourceModule: a.SourceModule,
		Content:      a.Content,
		Participants: orEmptyList(a.Participants),
		Timestamp:    a.Timestamp,
	}
	if _, err := r.q.NewInsert().Model(m).Exec(ctx); err != nil {
		return entities.StorageError("inserting activity", err)
	}
	return nil
}

// ListActivities returns activities newest first.
func (r *Repository) ListActivities(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	var rows []activityModel
	query := r.q.NewSelect().
		Model(&rows).
		Where("a.workspace_id = ?", workspaceID)
	if entityID != "" {
		query.Where("a.entity_id = ?", entityID)
	}
	query.OrderExpr(`a."timestamp" DESC, a.id DESC`)
	if limit > 0 {
		query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, entities.StorageError("querying activities", err)
	}

	out := make([]entities.Activity, len(rows))
	for i, m := range rows {
		out[i] = entities.Activity{
			ID:           m.ID,
			WorkspaceID:  m.WorkspaceID,
			EntityID:     m.EntityID,
			ActivityType: m.ActivityType,
			SourceModule: m.SourceModule,
			Content:      m.Content,
			Participants: orEmptyList(m.Participants),
			Timestamp:    m.Timestamp.UTC(),
		}
	}
	return out, nil
}

// SaveEntityType saves or updates a custom entity type.
func (r *Repository) SaveEntityType(ctx context.Context, et *entities.EntityType) error {
	m := &entityTypeModel{
		WorkspaceID: et.WorkspaceID,
		Name:        et.Name,
		Description: et.Description,
		Schema:      et.Schema,
		CreatedAt:   et.CreatedAt,
	}
	_, err := r.q.NewInsert().
		Model(m).
		On("CONFLICT (workspace_id, name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("schema = EXCLUDED.schema").
		Exec(ctx)
	if err != nil {
		return entities.StorageError("saving entity type", err)
	}
	return nil
}

// FindEntityType finds a custom entity type by name.
func (r *Repository) FindEntityType(ctx context.Context, workspaceID, name string) (*entities.EntityType, error) {
	list, err := r.selectEntityTypes(ctx, workspaceID, name)
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
	return r.selectEntityTypes(ctx, workspaceID, "")
}

// DeleteEntityType deletes a custom entity type by name.
func (r *Repository) DeleteEntityType(ctx context.Context, workspaceID, name string) error {
	result, err := r.q.NewDelete().
		Model((*entityTypeModel)(nil)).
		Where("t.workspace_id = ?", workspaceID).
		Where("t.name = ?", name).
		Exec(ctx)
	if err != nil {
		return entities.StorageError("deleting entity type", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return entities.StorageError("deleting entity type", err)
	}
	if n == 0 {
		return entities.NewNotFoundError("entity type", name)
	}
	return nil
}

func (r *Repository) selectEntityTypes(ctx context.Context, workspaceID, name string) ([]entities.EntityType, error) {
	var rows []entityTypeModel
	query := r.q.NewSelect().
		Model(&rows).
		Where("t.workspace_id = ?", workspaceID)
	if name != "" {
		query.Where("t.name = ?", name)
	}
	if err := query.OrderExpr("t.name ASC").Scan(ctx); err != nil {
		return nil, entities.StorageError("querying entity types", err)
	}

	out := make([]entities.EntityType, len(rows))
	for i, m := range rows {
		out[i] = entities.EntityType{
			WorkspaceID: m.WorkspaceID,
			Name:        m.Name,
			Description: m.Description,
			Schema:      m.Schema,
			CreatedAt:   m.CreatedAt.UTC(),
		}
	}
	return out, nil
}
