package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

func TestEntityLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()

		created := s.create(t, s.wsA, "contact", map[string]any{"firstName": "Ada", "company": "Analytical"}, nil)
		assert.Equal(t, int64(1), created.Version)
		assert.EqualValues(t, 1, created.Metadata["version"])

		got := s.get(t, s.wsA, created.ID)
		assert.Equal(t, "Ada", got.Data["firstName"])
		assert.Equal(t, created.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

		updated, err := s.entities.Update(ctx, services.UpdateParams{
			WorkspaceID:     s.wsA,
			ID:              created.ID,
			Data:            map[string]any{"lastName": "Lovelace"},
			ExpectedVersion: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		got = s.get(t, s.wsA, created.ID)
		assert.Equal(t, "Ada", got.Data["firstName"])
		assert.Equal(t, "Lovelace", got.Data["lastName"])
		assert.Equal(t, int64(2), got.Version)

		removed, err := s.entities.Delete(ctx, s.wsA, created.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = s.entities.FindByID(ctx, s.wsA, created.ID)
		assert.ErrorIs(t, err, entities.ErrNotFound)

		removed, err = s.entities.Delete(ctx, s.wsA, created.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestUpdate_StaleVersionConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		e := s.create(t, s.wsA, "task", map[string]any{"title": "Write report"}, nil)

		_, err := s.entities.Update(ctx, services.UpdateParams{
			WorkspaceID: s.wsA, ID: e.ID, Data: map[string]any{"status": "in_progress"}, ExpectedVersion: 1,
		})
		require.NoError(t, err)

		_, err = s.entities.Update(ctx, services.UpdateParams{
			WorkspaceID: s.wsA, ID: e.ID, Data: map[string]any{"status": "done"}, ExpectedVersion: 1,
		})
		require.ErrorIs(t, err, entities.ErrConflict)

		var conflict *entities.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(2), conflict.Actual)

		assert.Equal(t, "in_progress", s.get(t, s.wsA, e.ID).Data["status"])
	})
}

func TestUpdateWithRetry_ConcurrentWriters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		e := s.create(t, s.wsA, "contact", map[string]any{}, nil)

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.entities.UpdateWithRetry(ctx, services.UpdateParams{
					WorkspaceID: s.wsA,
					ID:          e.ID,
					Metadata:    map[string]any{"writer": i},
				}, writers+1)
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, int64(writers+1), s.get(t, s.wsA, e.ID).Version)
	})
}

func TestWorkspaceIsolation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		e := s.create(t, s.wsA, "contact", map[string]any{"firstName": "Grace"}, nil)
		s.create(t, s.wsB, "contact", map[string]any{"firstName": "Grace"}, nil)

		_, err := s.entities.FindByID(ctx, s.wsB, e.ID)
		assert.ErrorIs(t, err, entities.ErrNotFound)

		_, err = s.entities.Update(ctx, services.UpdateParams{WorkspaceID: s.wsB, ID: e.ID, Data: map[string]any{"x": 1}})
		assert.ErrorIs(t, err, entities.ErrNotFound)

		removed, err := s.entities.Delete(ctx, s.wsB, e.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		q, err := entities.EntityQuery{WorkspaceID: s.wsA, Where: map[string]any{"firstName": "Grace"}}.Normalize()
		require.NoError(t, err)
		found, err := s.entities.Find(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{e.ID}, ids(found))
	})
}

func TestFindEntitiesByIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		a := s.create(t, s.wsA, "contact", nil, nil)
		b := s.create(t, s.wsA, "contact", nil, nil)
		foreign := s.create(t, s.wsB, "contact", nil, nil)

		found, err := s.db.FindEntitiesByIDs(context.Background(), s.wsA, []string{a.ID, b.ID, foreign.ID, "missing"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(found))
	})
}

func TestActivities(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		contact := s.create(t, s.wsA, "contact", nil, nil)

		first, err := s.activity.Log(ctx, services.LogParams{
			WorkspaceID:  s.wsA,
			EntityID:     contact.ID,
			ActivityType: "call",
			SourceModule: "crm",
			Content:      "Intro call",
		})
		require.NoError(t, err)
		second, err := s.activity.Log(ctx, services.LogParams{
			WorkspaceID:  s.wsA,
			EntityID:     contact.ID,
			ActivityType: "email",
			SourceModule: "mail",
			Content:      "Follow-up",
			Participants: []string{contact.ID},
		})
		require.NoError(t, err)

		list, err := s.activity.List(ctx, s.wsA, contact.ID, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
		assert.Equal(t, []string{contact.ID}, list[0].Participants)

		other, err := s.activity.List(ctx, s.wsB, "", 0)
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}
