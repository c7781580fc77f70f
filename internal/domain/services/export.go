package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// Snapshot is a point-in-time copy of one workspace.
type Snapshot struct {
	WorkspaceID   string                  `json:"workspace_id"`
	ExportedAt    time.Time               `json:"exported_at"`
	Entities      []*entities.Entity      `json:"entities"`
	Relationships []entities.Relationship `json:"relationships"`
	Activities    []entities.Activity     `json:"activities"`
	EntityTypes   []entities.EntityType   `json:"entity_types"`
}

// ExportService reads workspace snapshots and ships them to blob storage.
type ExportService struct {
	relationalDB ports.RelationalDB
	objectStore  ports.ObjectStore
}

// NewExportService creates a new export service. objectStore may be nil
// when uploads are not configured.
func NewExportService(relationalDB ports.RelationalDB, objectStore ports.ObjectStore) *ExportService {
	return &ExportService{
		relationalDB: relationalDB,
		objectStore:  objectStore,
	}
}

// Snapshot reads the workspace's entities, explicit relationships,
// activities and custom types in one transaction.
func (s *ExportService) Snapshot(ctx context.Context, workspaceID string, types []string) (*Snapshot, error) {
	q, err := entities.EntityQuery{
		WorkspaceID:    workspaceID,
		Types:          types,
		OrderDirection: entities.OrderAsc,
	}.Normalize()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{WorkspaceID: workspaceID, ExportedAt: now()}
	err = s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		var err error
		if snap.Entities, err = tx.FindEntities(ctx, q); err != nil {
			return fmt.Errorf("listing entities: %w", err)
		}
		snap.Relationships, err = tx.FindRelationships(ctx, entities.RelationshipFilter{
			WorkspaceID: workspaceID,
			Origins:     []entities.RelationshipOrigin{entities.OriginExplicit},
		})
		if err != nil {
			return fmt.Errorf("listing relationships: %w", err)
		}
		if snap.Activities, err = tx.ListActivities(ctx, workspaceID, "", 0); err != nil {
			return fmt.Errorf("listing activities: %w", err)
		}
		if snap.EntityTypes, err = tx.ListEntityTypes(ctx, workspaceID); err != nil {
			return fmt.Errorf("listing entity types: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snap.Entities == nil {
		snap.Entities = []*entities.Entity{}
	}
	if snap.Relationships == nil {
		snap.Relationships = []entities.Relationship{}
	}
	if snap.Activities == nil {
		snap.Activities = []entities.Activity{}
	}
	if snap.EntityTypes == nil {
		snap.EntityTypes = []entities.EntityType{}
	}
	return snap, nil
}

// Upload writes the snapshot as JSON to the object store and returns its
// location.
func (s *ExportService) Upload(ctx context.Context, snap *Snapshot) (string, error) {
	if s.objectStore == nil {
		return "", errors.New("object storage is not configured")
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	location, err := s.objectStore.Put(ctx, SnapshotKey(snap), body, "application/json")
	if err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	return location, nil
}

// SnapshotKey names the object a snapshot is uploaded to.
func SnapshotKey(snap *Snapshot) string {
	return fmt.Sprintf("%s/%s.json", snap.WorkspaceID, snap.ExportedAt.UTC().Format("20060102T150405Z"))
}
