package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/unistore/internal/domain/entities"
)

func TestGraphService_LinkAndUnlink(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, entities.TypeContact, nil)
	b := ts.create(t, wsA, entities.TypeContact, nil)

	src, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "friend", true)
	require.NoError(t, err)
	assert.Equal(t, entities.Many(b.ID), src.Relationships["friend"])
	assert.Equal(t, int64(2), src.Version)
	assert.Equal(t, entities.Many(a.ID), ts.get(t, wsA, b.ID).Relationships["reverse_friend"])

	// Linking again writes nothing.
	again, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "friend", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
	assert.Equal(t, []string{b.ID}, ts.get(t, wsA, a.ID).Relationships["friend"].IDs)
	assert.Equal(t, int64(2), ts.get(t, wsA, b.ID).Version)

	src, err = ts.graph.Unlink(ctx, wsA, a.ID, b.ID, "friend", true)
	require.NoError(t, err)
	assert.Empty(t, src.Relationships)
	assert.Empty(t, ts.get(t, wsA, b.ID).Relationships)

	rows, err := ts.db.FindRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGraphService_LinkOneWay(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)

	_, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "cites", false)
	require.NoError(t, err)

	assert.Empty(t, ts.get(t, wsA, b.ID).Relationships)
	assert.Equal(t, int64(1), ts.get(t, wsA, b.ID).Version)
}

func TestGraphService_LinkOntoScalar(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	b := ts.create(t, wsA, "note", nil)
	c := ts.create(t, wsA, "note", nil)
	a, err := ts.entities.Create(ctx, CreateParams{WorkspaceID: wsA, Type: "note", Relationships: entities.Relationships{"owner": entities.One(b.ID)}})
	require.NoError(t, err)
	before := a.Relationships.Clone()

	linked, err := ts.graph.Link(ctx, wsA, a.ID, c.ID, "owner", false)
	require.NoError(t, err)
	assert.Equal(t, entities.Many(b.ID, c.ID), linked.Relationships["owner"])

	unlinked, err := ts.graph.Unlink(ctx, wsA, a.ID, c.ID, "owner", false)
	require.NoError(t, err)
	assert.Equal(t, before, unlinked.Relationships)

	unlinked, err = ts.graph.Unlink(ctx, wsA, a.ID, b.ID, "owner", false)
	require.NoError(t, err)
	assert.NotContains(t, unlinked.Relationships, "owner")
}

func TestGraphService_SelfLink(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)

	src, err := ts.graph.Link(ctx, wsA, a.ID, a.ID, "related", true)
	require.NoError(t, err)
	assert.Equal(t, entities.Many(a.ID), src.Relationships["related"])
	assert.Equal(t, entities.Many(a.ID), src.Relationships["reverse_related"])
	assert.Equal(t, int64(3), src.Version)

	src, err = ts.graph.Unlink(ctx, wsA, a.ID, a.ID, "related", true)
	require.NoError(t, err)
	assert.Empty(t, src.Relationships)
	assert.Equal(t, int64(5), ts.get(t, wsA, a.ID).Version)
}

func TestGraphService_LinkErrors(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	foreign := ts.create(t, wsB, "note", nil)

	_, err := ts.graph.Link(ctx, wsA, a.ID, "missing", "friend", true)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = ts.graph.Link(ctx, wsA, a.ID, foreign.ID, "friend", true)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = ts.graph.Link(ctx, wsA, a.ID, a.ID, " ", true)
	assert.ErrorIs(t, err, entities.ErrValidation)

	assert.Empty(t, ts.get(t, wsA, a.ID).Relationships)
}

func TestGraphService_UnlinkMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)

	src, err := ts.graph.Unlink(ctx, wsA, a.ID, "missing", "friend", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.Version)

	src, err = ts.graph.Unlink(ctx, wsA, "missing", a.ID, "friend", true)
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestGraphService_LinkRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)

	ts.db.Conflicts = DefaultConflictRetries - 1
	src, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "friend", false)
	require.NoError(t, err)
	assert.True(t, src.Relationships.Has("friend", b.ID))

	rows, err := ts.db.FindRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, SourceID: a.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	ts.db.Conflicts = DefaultConflictRetries
	_, err = ts.graph.Link(ctx, wsA, b.ID, a.ID, "friend", false)
	assert.ErrorIs(t, err, entities.ErrConflict)
	assert.Empty(t, ts.get(t, wsA, b.ID).Relationships)
}

func TestGraphService_FindRelated(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	b := ts.create(t, wsA, "note", map[string]any{"n": "b"})
	c := ts.create(t, wsA, "note", map[string]any{"n": "c"})
	d := ts.create(t, wsA, "note", map[string]any{"n": "d"})
	a, err := ts.entities.Create(ctx, CreateParams{
		WorkspaceID: wsA,
		Type:        "note",
		Relationships: entities.Relationships{
			"zeta":  entities.Many(d.ID, "dangling"),
			"alpha": entities.Many(c.ID, b.ID),
			"beta":  entities.One(c.ID),
		},
	})
	require.NoError(t, err)

	all, err := ts.graph.FindRelated(ctx, wsA, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, b.ID, d.ID}, ids(all))

	zeta, err := ts.graph.FindRelated(ctx, wsA, a.ID, "zeta")
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, ids(zeta))

	none, err := ts.graph.FindRelated(ctx, wsA, "missing", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	foreign, err := ts.graph.FindRelated(ctx, wsB, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

func TestGraphService_Neighborhood(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)
	c := ts.create(t, wsA, "note", nil)
	d := ts.create(t, wsA, "note", nil)

	_, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "next", false)
	require.NoError(t, err)
	_, err = ts.graph.Link(ctx, wsA, b.ID, c.ID, "next", false)
	require.NoError(t, err)
	_, err = ts.graph.Link(ctx, wsA, c.ID, d.ID, "next", false)
	require.NoError(t, err)
	_, err = ts.graph.Link(ctx, wsA, c.ID, a.ID, "back", false)
	require.NoError(t, err)

	got, err := ts.graph.Neighborhood(ctx, wsA, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].Entity.ID)
	assert.Equal(t, 1, got[0].Depth)
	assert.Equal(t, c.ID, got[1].Entity.ID)
	assert.Equal(t, 2, got[1].Depth)

	got, err = ts.graph.Neighborhood(ctx, wsA, a.ID, MaxNeighborhoodDepth)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = ts.graph.Neighborhood(ctx, wsA, a.ID, 0)
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestGraphService_ExplicitRelationships(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, entities.TypeContact, nil)
	b := ts.create(t, wsA, entities.TypeContact, nil)

	strong := 90
	rel, err := ts.graph.CreateRelationship(ctx, wsA, a.ID, b.ID, "colleague", RelationshipOptions{
		StrengthScore: &strong,
		Metadata:      map[string]any{"since": "2019"},
	})
	require.NoError(t, err)
	assert.Equal(t, entities.OriginExplicit, rel.Origin)
	assert.Equal(t, 90, rel.StrengthScore)

	weak, err := ts.graph.CreateRelationship(ctx, wsA, b.ID, a.ID, "colleague", RelationshipOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultStrengthScore, weak.StrengthScore)

	assert.Empty(t, ts.get(t, wsA, a.ID).Relationships)

	listed, err := ts.graph.ListRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, EntityID: a.ID, MinStrength: 60})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, rel.ID, listed[0].ID)

	require.NoError(t, ts.graph.DeleteRelationship(ctx, wsA, rel.ID))
	assert.ErrorIs(t, ts.graph.DeleteRelationship(ctx, wsA, rel.ID), entities.ErrNotFound)
	assert.ErrorIs(t, ts.graph.DeleteRelationship(ctx, wsB, weak.ID), entities.ErrNotFound)
}

func TestGraphService_CreateRelationshipValidation(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)

	tooStrong := entities.MaxStrengthScore + 1
	_, err := ts.graph.CreateRelationship(ctx, wsA, a.ID, b.ID, "x", RelationshipOptions{StrengthScore: &tooStrong})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = ts.graph.CreateRelationship(ctx, wsA, a.ID, b.ID, "", RelationshipOptions{})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = ts.graph.CreateRelationship(ctx, wsA, a.ID, "missing", "x", RelationshipOptions{})
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = ts.graph.ListRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, Origins: []entities.RelationshipOrigin{"bogus"}})
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestGraphService_InlineRowsCannotBeDeletedDirectly(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)
	_, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "cites", false)
	require.NoError(t, err)

	rows, err := ts.graph.ListRelationships(ctx, entities.RelationshipFilter{WorkspaceID: wsA, Origins: entities.InlineOrigins})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.ErrorIs(t, ts.graph.DeleteRelationship(ctx, wsA, rows[0].ID), entities.ErrNotFound)
}

func TestGraphService_RebuildRelationships(t *testing.T) {
	ctx := context.Background()
	ts := setupServices(t)
	a := ts.create(t, wsA, "note", nil)
	b := ts.create(t, wsA, "note", nil)
	linked, err := ts.graph.Link(ctx, wsA, a.ID, b.ID, "cites", false)
	require.NoError(t, err)

	_, changed, err := ts.graph.RebuildRelationships(ctx, wsA, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// Drift the cached map behind the service's back.
	drifted := linked.Clone()
	drifted.Relationships = entities.Relationships{"stale": entities.One("x")}
	drifted.Version = linked.Version + 1
	require.NoError(t, ts.db.UpdateEntity(ctx, drifted, linked.Version))

	rebuilt, changed, err := ts.graph.RebuildRelationships(ctx, wsA, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, entities.Relationships{"cites": entities.Many(b.ID)}, rebuilt.Relationships)
	assert.Equal(t, drifted.Version+1, rebuilt.Version)

	_, _, err = ts.graph.RebuildRelationships(ctx, wsA, "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}
