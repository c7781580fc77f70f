// Package memory provides an in-process implementation of ports.RelationalDB.
// It evaluates queries with entities.EntityQuery directly and backs the
// service tests and the "memory" storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// Store is a mutex-guarded in-memory store. Transactions run against a copy
// of the state that replaces the live state on commit.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ ports.RelationalDB = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Atomically runs fn against a private copy of the state and publishes the
// copy only when fn succeeds.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.RelationalTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) locked(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// InsertEntity stores a new entity.
func (s *Store) InsertEntity(ctx context.Context, e *entities.Entity) error {
	return s.locked(ctx, func(st *state) error { return st.InsertEntity(ctx, e) })
}

// FindEntityByID returns the entity or nil.
func (s *Store) FindEntityByID(ctx context.Context, workspaceID, id string) (*entities.Entity, error) {
	var out *entities.Entity
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.FindEntityByID(ctx, workspaceID, id)
		return err
	})
	return out, err
}

// FindEntitiesByIDs returns the entities present in the workspace.
func (s *Store) FindEntitiesByIDs(ctx context.Context, workspaceID string, ids []string) ([]*entities.Entity, error) {
	var out []*entities.Entity
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.FindEntitiesByIDs(ctx, workspaceID, ids)
		return err
	})
	return out, err
}

// FindEntities evaluates a query.
func (s *Store) FindEntities(ctx context.Context, q entities.EntityQuery) ([]*entities.Entity, error) {
	var out []*entities.Entity
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.FindEntities(ctx, q)
		return err
	})
	return out, err
}

// UpdateEntity performs a version-guarded write.
func (s *Store) UpdateEntity(ctx context.Context, e *entities.Entity, expectedVersion int64) error {
	return s.locked(ctx, func(st *state) error { return st.UpdateEntity(ctx, e, expectedVersion) })
}

// DeleteEntity removes an entity.
func (s *Store) DeleteEntity(ctx context.Context, workspaceID, id string) (bool, error) {
	var removed bool
	err := s.locked(ctx, func(st *state) error {
		var err error
		removed, err = st.DeleteEntity(ctx, workspaceID, id)
		return err
	})
	return removed, err
}

// InsertRelationship stores a side-table row.
func (s *Store) InsertRelationship(ctx context.Context, rel *entities.Relationship) error {
	return s.locked(ctx, func(st *state) error { return st.InsertRelationship(ctx, rel) })
}

// FindRelationships returns matching rows ordered by Seq.
func (s *Store) FindRelationships(ctx context.Context, f entities.RelationshipFilter) ([]entities.Relationship, error) {
	var out []entities.Relationship
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.FindRelationships(ctx, f)
		return err
	})
	return out, err
}

// DeleteRelationships removes matching rows.
func (s *Store) DeleteRelationships(ctx context.Context, f entities.RelationshipFilter) (int, error) {
	var n int
	err := s.locked(ctx, func(st *state) error {
		var err error
		n, err = st.DeleteRelationships(ctx, f)
		return err
	})
	return n, err
}

// DeleteRelationship removes one row by id.
func (s *Store) DeleteRelationship(ctx context.Context, workspaceID, id string) (bool, error) {
	var removed bool
	err := s.locked(ctx, func(st *state) error {
		var err error
		removed, err = st.DeleteRelationship(ctx, workspaceID, id)
		return err
	})
	return removed, err
}

// AppendActivity stores an activity.
func (s *Store) AppendActivity(ctx context.Context, a *entities.Activity) error {
	return s.locked(ctx, func(st *state) error { return st.AppendActivity(ctx, a) })
}

// ListActivities returns activities newest first.
func (s *Store) ListActivities(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	var out []entities.Activity
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.ListActivities(ctx, workspaceID, entityID, limit)
		return err
	})
	return out, err
}

// SaveEntityType saves or updates a custom entity type.
func (s *Store) SaveEntityType(ctx context.Context, et *entities.EntityType) error {
	return s.locked(ctx, func(st *state) error { return st.SaveEntityType(ctx, et) })
}

// FindEntityType finds a custom entity type by name.
func (s *Store) FindEntityType(ctx context.Context, workspaceID, name string) (*entities.EntityType, error) {
	var out *entities.EntityType
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.FindEntityType(ctx, workspaceID, name)
		return err
	})
	return out, err
}

// ListEntityTypes lists custom entity types.
func (s *Store) ListEntityTypes(ctx context.Context, workspaceID string) ([]entities.EntityType, error) {
	var out []entities.EntityType
	err := s.locked(ctx, func(st *state) error {
		var err error
		out, err = st.ListEntityTypes(ctx, workspaceID)
		return err
	})
	return out, err
}

// DeleteEntityType deletes a custom entity type.
func (s *Store) DeleteEntityType(ctx context.Context, workspaceID, name string) error {
	return s.locked(ctx, func(st *state) error { return st.DeleteEntityType(ctx, workspaceID, name) })
}

// state holds the data and implements ports.RelationalTx without locking.
type state struct {
	entities      map[string]*entities.Entity
	relationships []entities.Relationship
	seq           int64
	activities    []entities.Activity
	types         map[string]entities.EntityType
}

var _ ports.RelationalTx = (*state)(nil)

func newState() *state {
	return &state{
		entities: make(map[string]*entities.Entity),
		types:    make(map[string]entities.EntityType),
	}
}

func key(workspaceID, id string) string {
	return workspaceID + "\x00" + id
}

func (st *state) clone() *state {
	c := &state{
		entities:      make(map[string]*entities.Entity, len(st.entities)),
		relationships: make([]entities.Relationship, len(st.relationships)),
		seq:           st.seq,
		activities:    append([]entities.Activity(nil), st.activities...),
		types:         make(map[string]entities.EntityType, len(st.types)),
	}
	for k, e := range st.entities {
		c.entities[k] = e
	}
	copy(c.relationships, st.relationships)
	for k, t := range st.types {
		c.types[k] = t
	}
	return c
}

func (st *state) InsertEntity(_ context.Context, e *entities.Entity) error {
	k := key(e.WorkspaceID, e.ID)
	if _, ok := st.entities[k]; ok {
		return fmt.Errorf("inserting entity: duplicate id %s", e.ID)
	}
	st.entities[k] = e.Clone()
	return nil
}

func (st *state) FindEntityByID(_ context.Context, workspaceID, id string) (*entities.Entity, error) {
	e, ok := st.entities[key(workspaceID, id)]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (st *state) FindEntitiesByIDs(_ context.Context, workspaceID string, ids []string) ([]*entities.Entity, error) {
	out := make([]*entities.Entity, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := st.entities[key(workspaceID, id)]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (st *state) FindEntities(_ context.Context, q entities.EntityQuery) ([]*entities.Entity, error) {
	out := make([]*entities.Entity, 0)
	for _, e := range st.entities {
		if q.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	q.Sort(out)
	return q.Paginate(out), nil
}

func (st *state) UpdateEntity(_ context.Context, e *entities.Entity, expectedVersion int64) error {
	k := key(e.WorkspaceID, e.ID)
	current, ok := st.entities[k]
	if !ok || current.Version != expectedVersion {
		return &entities.ConflictError{ID: e.ID, Expected: expectedVersion}
	}
	stored := e.Clone()
	stored.CreatedAt = current.CreatedAt
	st.entities[k] = stored
	return nil
}

func (st *state) DeleteEntity(_ context.Context, workspaceID, id string) (bool, error) {
	k := key(workspaceID, id)
	if _, ok := st.entities[k]; !ok {
		return false, nil
	}
	delete(st.entities, k)
	return true, nil
}

func (st *state) InsertRelationship(_ context.Context, rel *entities.Relationship) error {
	for _, r := range st.relationships {
		if r.ID == rel.ID {
			return fmt.Errorf("inserting relationship: duplicate id %s", rel.ID)
		}
	}
	st.seq++
	rel.Seq = st.seq
	row := *rel
	row.Metadata = entities.CloneDocument(rel.Metadata)
	st.relationships = append(st.relationships, row)
	return nil
}

func (st *state) FindRelationships(_ context.Context, f entities.RelationshipFilter) ([]entities.Relationship, error) {
	out := make([]entities.Relationship, 0)
	for i := range st.relationships {
		if f.Matches(&st.relationships[i]) {
			r := st.relationships[i]
			r.Metadata = entities.CloneDocument(r.Metadata)
			out = append(out, r)
		}
	}
	return out, nil
}

func (st *state) DeleteRelationships(_ context.Context, f entities.RelationshipFilter) (int, error) {
	kept := st.relationships[:0:0]
	removed := 0
	for i := range st.relationships {
		if f.Matches(&st.relationships[i]) {
			removed++
			continue
		}
		kept = append(kept, st.relationships[i])
	}
	st.relationships = kept
	return removed, nil
}

func (st *state) DeleteRelationship(_ context.Context, workspaceID, id string) (bool, error) {
	for i, r := range st.relationships {
		if r.ID == id && r.WorkspaceID == workspaceID {
			st.relationships = append(st.relationships[:i:i], st.relationships[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (st *state) AppendActivity(_ context.Context, a *entities.Activity) error {
	row := *a
	row.Participants = append([]string(nil), a.Participants...)
	st.activities = append(st.activities, row)
	return nil
}

func (st *state) ListActivities(_ context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	out := make([]entities.Activity, 0)
	for _, a := range st.activities {
		if a.WorkspaceID != workspaceID || (entityID != "" && a.EntityID != entityID) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) SaveEntityType(_ context.Context, et *entities.EntityType) error {
	st.types[key(et.WorkspaceID, et.Name)] = *et
	return nil
}

func (st *state) FindEntityType(_ context.Context, workspaceID, name string) (*entities.EntityType, error) {
	et, ok := st.types[key(workspaceID, name)]
	if !ok {
		return nil, nil
	}
	return &et, nil
}

func (st *state) ListEntityTypes(_ context.Context, workspaceID string) ([]entities.EntityType, error) {
	out := make([]entities.EntityType, 0)
	for _, et := range st.types {
		if et.WorkspaceID == workspaceID {
			out = append(out, et)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (st *state) DeleteEntityType(_ context.Context, workspaceID, name string) error {
	k := key(workspaceID, name)
	if _, ok := st.types[k]; !ok {
		return entities.NewNotFoundError("entity type", name)
	}
	delete(st.types, k)
	return nil
}
