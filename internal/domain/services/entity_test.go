package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/mocks"
)

func TestEntityService_ContactLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	ada := ts.create(t, wsA, entities.TypeContact, map[string]any{"firstName": "Ada", "email": "ada@x.com"})
	ts.create(t, wsA, entities.TypeContact, map[string]any{"firstName": "Grace", "email": "grace@x.com"})

	found, err := ts.entities.Find(ctx, entities.EntityQuery{
		WorkspaceID: wsA,
		Types:       []string{entities.TypeContact},
		Where:       map[string]any{"email": "ada@x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ada.ID}, ids(found))

	_, err = ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: ada.ID, Data: map[string]any{"lastName": "Lovelace"}})
	require.NoError(t, err)

	got := ts.get(t, wsA, ada.ID)
	assert.Equal(t, "Ada", got.Data["firstName"])
	assert.Equal(t, "Lovelace", got.Data["lastName"])

	removed, err := ts.entities.Delete(ctx, wsA, ada.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = ts.entities.FindByID(ctx, wsA, ada.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestEntityService_Create(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	userID := "u1"
	e, err := ts.entities.Create(ctx, CreateParams{
		WorkspaceID:   wsA,
		UserID:        &userID,
		Type:          entities.TypeTask,
		Data:          map[string]any{"title": "Call Ada", "status": "todo"},
		Relationships: entities.Relationships{"assignee": entities.One("c1"), "watchers": entities.Many("c2", "c3", "c2")},
		Metadata:      map[string]any{"source": "crm", "version": 99},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, int64(1), e.Version)
	assert.Equal(t, int64(1), e.Metadata[entities.MetadataVersionKey])
	assert.Equal(t, "crm", e.Metadata["source"])
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)
	assert.Equal(t, "todo Call Ada", e.SearchVector)
	assert.Equal(t, entities.One("c1"), e.Relationships["assignee"])
	assert.Equal(t, entities.Many("c2", "c3"), e.Relationships["watchers"])

	rows, err := ts.db.FindRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, SourceID: e.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, e.Relationships, entities.DeriveRelationships(rows))

	stored := ts.get(t, wsA, e.ID)
	assert.Equal(t, e.Relationships, stored.Relationships)
	assert.Equal(t, "u1", *stored.UserID)
}

func TestEntityService_CreateNilDataBecomesEmpty(t *testing.T) {
	ts := setupServices(t)

	e := ts.create(t, wsA, "note", nil)
	assert.Equal(t, map[string]any{}, e.Data)
	assert.Equal(t, "", e.SearchVector)
}

func TestEntityService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
		field  string
	}{
		{"missing workspace", CreateParams{Type: "note"}, "workspace_id"},
		{"missing type", CreateParams{WorkspaceID: wsA, Type: "  "}, "type"},
		{"contact tags not a list", CreateParams{WorkspaceID: wsA, Type: entities.TypeContact, Data: map[string]any{"tags": "vip"}}, "data"},
		{"deal title not a string", CreateParams{WorkspaceID: wsA, Type: entities.TypeDeal, Data: map[string]any{"title": 5}}, "data"},
		{"deal amount as text", CreateParams{WorkspaceID: wsA, Type: entities.TypeDeal, Data: map[string]any{"title": "x", "amount": "ten"}}, "data"},
		{"blank edge name", CreateParams{WorkspaceID: wsA, Type: "note", Relationships: entities.Relationships{" ": entities.One("x")}}, "relationships"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupServices(t)
			_, err := ts.entities.Create(context.Background(), tt.params)
			require.ErrorIs(t, err, entities.ErrValidation)

			var verr *entities.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEntityService_CreateBuiltInOpenValues(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	tests := []struct {
		typ  string
		data map[string]any
	}{
		{entities.TypeTask, map[string]any{"status": "completed", "priority": "urgent"}},
		{entities.TypeDeal, map[string]any{"stage": "negotiation", "amount": -250}},
		{entities.TypeContact, map[string]any{"email": "no-at-sign"}},
		{entities.TypeCalendarEvent, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			e, err := ts.entities.Create(ctx, CreateParams{WorkspaceID: wsA, Type: tt.typ, Data: tt.data})
			require.NoError(t, err)
			for k, v := range tt.data {
				assert.Equal(t, entities.TextValue(v), entities.TextValue(e.Data[k]))
			}
		})
	}
}

func TestEntityService_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	a := ts.create(t, wsA, "note", map[string]any{"text": "shared words"})
	ts.create(t, wsB, "note", map[string]any{"text": "shared words"})

	_, err := ts.entities.FindByID(ctx, wsB, a.ID)
	require.ErrorIs(t, err, entities.ErrNotFound)
	assert.NotContains(t, err.Error(), wsA)

	found, err := ts.entities.Find(ctx, entities.EntityQuery{WorkspaceID: wsB, Search: "shared"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, wsB, found[0].WorkspaceID)

	_, err = ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsB, ID: a.ID, Data: map[string]any{"text": "x"}})
	assert.ErrorIs(t, err, entities.ErrNotFound)

	removed, err := ts.entities.Delete(ctx, wsB, a.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NotNil(t, ts.get(t, wsA, a.ID))
}

func TestEntityService_FindAndCount(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	first := ts.create(t, wsA, entities.TypeDeal, map[string]any{"title": "Renewal", "amount": 100, "stage": "lead"})
	second := ts.create(t, wsA, entities.TypeDeal, map[string]any{"title": "Upsell", "amount": 50, "stage": "won"})
	third := ts.create(t, wsA, entities.TypeTask, map[string]any{"title": "Follow up on renewal"})

	tests := []struct {
		name  string
		query entities.EntityQuery
		want  []string
	}{
		{"default order is newest first", entities.EntityQuery{WorkspaceID: wsA}, []string{third.ID, second.ID, first.ID}},
		{"ascending", entities.EntityQuery{WorkspaceID: wsA, OrderDirection: entities.OrderAsc}, []string{first.ID, second.ID, third.ID}},
		{"type filter", entities.EntityQuery{WorkspaceID: wsA, Types: []string{entities.TypeDeal}}, []string{second.ID, first.ID}},
		{"numeric where", entities.EntityQuery{WorkspaceID: wsA, Where: map[string]any{"amount": 100}}, []string{first.ID}},
		{"numeric where as text", entities.EntityQuery{WorkspaceID: wsA, Where: map[string]any{"amount": "50"}}, []string{second.ID}},
		{"search is case-insensitive", entities.EntityQuery{WorkspaceID: wsA, Search: "RENEWAL"}, []string{third.ID, first.ID}},
		{"limit and offset", entities.EntityQuery{WorkspaceID: wsA, Limit: 1, Offset: 1}, []string{second.ID}},
		{"no match", entities.EntityQuery{WorkspaceID: wsA, Where: map[string]any{"stage": "lost"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := ts.entities.Find(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(found))
		})
	}

	n, err := ts.entities.Count(ctx, entities.EntityQuery{WorkspaceID: wsA, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = ts.entities.Find(ctx, entities.EntityQuery{})
	assert.ErrorIs(t, err, entities.ErrValidation)
	_, err = ts.entities.Find(ctx, entities.EntityQuery{WorkspaceID: wsA, Offset: -1})
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestEntityService_FindByRelationshipMembership(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	scalar, err := ts.entities.Create(ctx, CreateParams{WorkspaceID: wsA, Type: "note", Relationships: entities.Relationships{"about": entities.One("c1")}})
	require.NoError(t, err)
	list, err := ts.entities.Create(ctx, CreateParams{WorkspaceID: wsA, Type: "note", Relationships: entities.Relationships{"about": entities.Many("c0", "c1")}})
	require.NoError(t, err)
	ts.create(t, wsA, "note", nil)

	found, err := ts.entities.Find(ctx, entities.EntityQuery{
		WorkspaceID:    wsA,
		Relationships:  map[string]string{"about": "c1"},
		OrderDirection: entities.OrderAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{scalar.ID, list.ID}, ids(found))
}

func TestEntityService_Update(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	e, err := ts.entities.Create(ctx, CreateParams{
		WorkspaceID:   wsA,
		Type:          entities.TypeContact,
		Data:          map[string]any{"firstName": "Ada", "company": "Analytical"},
		Relationships: entities.Relationships{"employer": entities.One("org1"), "friends": entities.Many("c1")},
		Metadata:      map[string]any{"source": "crm"},
	})
	require.NoError(t, err)

	updated, err := ts.entities.Update(ctx, UpdateParams{
		WorkspaceID:   wsA,
		ID:            e.ID,
		Data:          map[string]any{"lastName": "Lovelace"},
		Relationships: entities.Relationships{"friends": {}, "mentors": entities.Many("c9")},
		Metadata:      map[string]any{"imported": true, "version": 42},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, int64(2), updated.Metadata[entities.MetadataVersionKey])
	assert.Equal(t, e.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(e.UpdatedAt))
	assert.Equal(t, map[string]any{"firstName": "Ada", "company": "Analytical", "lastName": "Lovelace"}, updated.Data)
	assert.Equal(t, "Lovelace", updated.SearchVector)
	assert.Equal(t, entities.Relationships{"employer": entities.One("org1"), "mentors": entities.Many("c9")}, updated.Relationships)
	assert.Equal(t, "crm", updated.Metadata["source"])
	assert.Equal(t, true, updated.Metadata["imported"])

	stored := ts.get(t, wsA, e.ID)
	assert.Equal(t, updated.Relationships, stored.Relationships)
	assert.Equal(t, int64(2), stored.Version)
}

func TestEntityService_UpdateDocumentIndexing(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t, WithDocumentIndexing(true))

	e := ts.create(t, wsA, "note", map[string]any{"a": "alpha"})
	updated, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"b": "beta"}})
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", updated.SearchVector)
}

func TestEntityService_UpdateWithoutDataKeepsSearchVector(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	e := ts.create(t, wsA, "note", map[string]any{"a": "alpha"})
	updated, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Metadata: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "alpha", updated.SearchVector)
}

func TestEntityService_UpdateValidatesMergedDocument(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	e := ts.create(t, wsA, entities.TypeTask, map[string]any{"title": "Call"})
	_, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"status": "someday"}})
	require.ErrorIs(t, err, entities.ErrValidation)

	assert.Equal(t, int64(1), ts.get(t, wsA, e.ID).Version)
}

func TestEntityService_UpdateExpectedVersion(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	e := ts.create(t, wsA, "note", nil)

	_, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "1"}, ExpectedVersion: 1})
	require.NoError(t, err)

	_, err = ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "2"}, ExpectedVersion: 1})
	require.ErrorIs(t, err, entities.ErrConflict)

	var conflict *entities.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)
	assert.Equal(t, "1", ts.get(t, wsA, e.ID).Data["n"])
}

func TestEntityService_UpdateLostRace(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	e := ts.create(t, wsA, "note", nil)

	ts.db.Conflicts = 1
	_, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "1"}})
	require.ErrorIs(t, err, entities.ErrConflict)
	assert.Equal(t, int64(1), ts.get(t, wsA, e.ID).Version)

	updated, err := ts.entities.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
}

func TestEntityService_UpdateWithRetry(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	e := ts.create(t, wsA, "note", nil)

	ts.db.Conflicts = 2
	updated, err := ts.entities.UpdateWithRetry(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "1"}, ExpectedVersion: 7}, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	ts.db.Conflicts = 5
	_, err = ts.entities.UpdateWithRetry(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"n": "2"}}, 2)
	assert.ErrorIs(t, err, entities.ErrConflict)
}

func TestEntityService_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	e := ts.create(t, wsA, "counter", nil)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			_, err := ts.entities.UpdateWithRetry(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{key: "x"}}, 50)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := ts.get(t, wsA, e.ID)
	assert.Equal(t, int64(writers+1), got.Version)
	assert.Len(t, got.Data, writers)
}

func TestEntityService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)

	target := ts.create(t, wsA, entities.TypeContact, map[string]any{"firstName": "Ada"})
	other := ts.create(t, wsA, entities.TypeContact, map[string]any{"firstName": "Grace"})
	deal, err := ts.entities.Create(ctx, CreateParams{
		WorkspaceID:   wsA,
		Type:          entities.TypeDeal,
		Data:          map[string]any{"title": "Renewal"},
		Relationships: entities.Relationships{"contacts": entities.Many(target.ID, other.ID), "owner": entities.One(target.ID)},
	})
	require.NoError(t, err)
	_, err = ts.graph.CreateRelationship(ctx, wsA, other.ID, target.ID, "knows", RelationshipOptions{})
	require.NoError(t, err)

	removed, err := ts.entities.Delete(ctx, wsA, target.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	rows, err := ts.db.FindRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, EntityID: target.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)

	stored := ts.get(t, wsA, deal.ID)
	assert.Equal(t, entities.Relationships{"contacts": entities.Many(other.ID)}, stored.Relationships)
	assert.Equal(t, int64(2), stored.Version)

	removed, err = ts.entities.Delete(ctx, wsA, target.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEntityService_Indexer(t *testing.T) {
	ctx := context.Background()
	emb := &mocks.Embedder{EmbeddingResult: []float32{0.1, 0.2}}
	vdb := mocks.NewVectorDB()
	ts := setupServices(t)
	semantic := NewSemanticService(emb, vdb, ts.db)
	svc := NewEntityService(ts.db, WithIndexer(semantic))

	e, err := svc.Create(ctx, CreateParams{WorkspaceID: wsA, Type: "note", Data: map[string]any{"text": "hello"}})
	require.NoError(t, err)
	require.Contains(t, vdb.Docs, e.ID)
	assert.Equal(t, wsA, vdb.Docs[e.ID].WorkspaceID)

	_, err = svc.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Metadata: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, 1, vdb.UpsertCallCount)

	vdb.Err = errors.New("qdrant down")
	_, err = svc.Update(ctx, UpdateParams{WorkspaceID: wsA, ID: e.ID, Data: map[string]any{"text": "bye"}})
	require.NoError(t, err)

	vdb.Err = nil
	removed, err := svc.Delete(ctx, wsA, e.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NotContains(t, vdb.Docs, e.ID)
}
