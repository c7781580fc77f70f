package postgres

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/ersonp/unistore/internal/domain/entities"
)

type entityModel struct {
	bun.BaseModel `bun:"table:entities,alias:e"`

	ID            string                 `bun:"id,pk"`
	WorkspaceID   string                 `bun:"workspace_id,notnull"`
	UserID        *string                `bun:"user_id"`
	Type          string                 `bun:"type,notnull"`
	Data          map[string]any         `bun:"data,type:jsonb,notnull"`
	Relationships entities.Relationships `bun:"relationships,type:jsonb,notnull"`
	Metadata      map[string]any         `bun:"metadata,type:jsonb,notnull"`
	SearchVector  string                 `bun:"search_vector,notnull"`
	Version       int64                  `bun:"version,notnull"`
	CreatedAt     time.Time              `bun:"created_at,notnull"`
	UpdatedAt     time.Time              `bun:"updated_at,notnull"`
}

func newEntityModel(e *entities.Entity) *entityModel {
	e.SyncVersion()
	m := &entityModel{
		ID:            e.ID,
		WorkspaceID:   e.WorkspaceID,
		UserID:        e.UserID,
		Type:          e.Type,
		Data:          orEmpty(e.Data),
		Relationships: e.Relationships,
		Metadata:      orEmpty(e.Metadata),
		SearchVector:  e.SearchVector,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if m.Relationships == nil {
		m.Relationships = entities.Relationships{}
	}
	return m
}

func (m *entityModel) toEntity() *entities.Entity {
	e := &entities.Entity{
		ID:            m.ID,
		WorkspaceID:   m.WorkspaceID,
		UserID:        m.UserID,
		Type:          m.Type,
		Data:          orEmpty(m.Data),
		Relationships: m.Relationships,
		Metadata:      m.Metadata,
		SearchVector:  m.SearchVector,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if e.Relationships == nil {
		e.Relationships = entities.Relationships{}
	}
	e.SyncVersion()
	return e
}

type relationshipModel struct {
	bun.BaseModel `bun:"table:relationships,alias:r"`

	Seq            int64          `bun:"seq,autoincrement"`
	ID             string         `bun:"id,pk"`
	WorkspaceID    string         `bun:"workspace_id,notnull"`
	SourceEntityID string         `bun:"source_entity_id,notnull"`
	TargetEntityID string         `bun:"target_entity_id,notnull"`
	Type           string         `bun:"relationship_type,notnull"`
	StrengthScore  int            `bun:"strength_score,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	Origin         string         `bun:"origin,notnull"`
	CreatedAt      time.Time      `bun:"created_at,notnull"`
	UpdatedAt      time.Time      `bun:"updated_at,notnull"`
}

func newRelationshipModel(rel *entities.Relationship) *relationshipModel {
	return &relationshipModel{
		ID:             rel.ID,
		WorkspaceID:    rel.WorkspaceID,
		SourceEntityID: rel.SourceEntityID,
		TargetEntityID: rel.TargetEntityID,
		Type:           rel.Type,
		StrengthScore:  rel.StrengthScore,
		Metadata:       orEmpty(rel.Metadata),
		Origin:         string(rel.Origin),
		CreatedAt:      rel.CreatedAt,
		UpdatedAt:      rel.UpdatedAt,
	}
}

func (m *relationshipModel) toRelationship() entities.Relationship {
	return entities.Relationship{
		Seq:            m.Seq,
		ID:             m.ID,
		WorkspaceID:    m.WorkspaceID,
		SourceEntityID: m.SourceEntityID,
		TargetEntityID: m.TargetEntityID,
		Type:           m.Type,
		StrengthScore:  m.StrengthScore,
		Metadata:       m.Metadata,
		Origin:         entities.RelationshipOrigin(m.Origin),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type activityModel struct {
	bun.BaseModel `bun:"table:activities,alias:a"`

	ID           string    `bun:"id,pk"`
	WorkspaceID  string    `bun:"workspace_id,notnull"`
	EntityID     string    `bun:"entity_id,notnull"`
	ActivityType string    `bun:"activity_type,notnull"`
	SourceModule string    `bun:"source_module,notnull"`
	Content      string    `bun:"content,notnull"`
	Participants []string  `bun:"participants,type:jsonb,notnull"`
	Timestamp    time.Time `bun:"timestamp,notnull"`
}

type entityTypeModel struct {
	bun.BaseModel `bun:"table:entity_types,alias:t"`

	WorkspaceID string          `bun:"workspace_id,pk"`
	Name        string          `bun:"name,pk"`
	Description string          `bun:"description,notnull"`
	Schema      json.RawMessage `bun:"schema,type:jsonb,nullzero"`
	CreatedAt   time.Time       `bun:"created_at,notnull"`
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
