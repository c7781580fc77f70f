package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

func find(t *testing.T, s *stack, q entities.EntityQuery) []*entities.Entity {
	t.Helper()
	q, err := q.Normalize()
	require.NoError(t, err)
	found, err := s.entities.Find(context.Background(), q)
	require.NoError(t, err)
	return found
}

func TestQuery_WhereAndTypes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		won := s.create(t, s.wsA, "deal", map[string]any{"title": "Renewal", "stage": "won", "amount": 500}, nil)
		s.create(t, s.wsA, "deal", map[string]any{"title": "Upsell", "stage": "lead", "amount": 120}, nil)
		task := s.create(t, s.wsA, "task", map[string]any{"title": "Call back", "status": "todo"}, nil)

		assert.Equal(t, []string{won.ID}, ids(find(t, s, entities.EntityQuery{
			WorkspaceID: s.wsA,
			Where:       map[string]any{"stage": "won"},
		})))
		assert.Equal(t, []string{won.ID}, ids(find(t, s, entities.EntityQuery{
			WorkspaceID: s.wsA,
			Where:       map[string]any{"amount": 500},
		})))
		assert.Equal(t, []string{task.ID}, ids(find(t, s, entities.EntityQuery{
			WorkspaceID: s.wsA,
			Types:       []string{"task"},
		})))
		assert.Len(t, find(t, s, entities.EntityQuery{
			WorkspaceID: s.wsA,
			Types:       []string{"deal", "task"},
		}), 3)
		assert.Empty(t, find(t, s, entities.EntityQuery{
			WorkspaceID: s.wsA,
			Types:       []string{"deal"},
			Where:       map[string]any{"status": "todo"},
		}))
	})
}

func TestQuery_UserScope(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		owner := "user-1"
		mine, err := s.entities.Create(ctx, services.CreateParams{WorkspaceID: s.wsA, UserID: &owner, Type: "contact"})
		require.NoError(t, err)
		s.create(t, s.wsA, "contact", nil, nil)

		assert.Equal(t, []string{mine.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, UserID: &owner})))
	})
}

func TestQuery_RelationshipMembership(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		deal := s.create(t, s.wsA, "deal", map[string]any{"title": "Renewal"}, nil)
		other := s.create(t, s.wsA, "deal", map[string]any{"title": "Upsell"}, nil)
		owner := s.create(t, s.wsA, "contact", nil, nil)

		listed := s.create(t, s.wsA, "contact", nil, entities.Relationships{"deals": entities.Many(other.ID, deal.ID)})
		scalar := s.create(t, s.wsA, "task", map[string]any{"title": "Prep"}, entities.Relationships{"deals": entities.One(deal.ID)})
		s.create(t, s.wsA, "contact", nil, entities.Relationships{"deals": entities.Many(other.ID)})
		s.create(t, s.wsA, "contact", nil, entities.Relationships{"owner": entities.One(deal.ID)})

		found := find(t, s, entities.EntityQuery{
			WorkspaceID:   s.wsA,
			Relationships: map[string]string{"deals": deal.ID},
		})
		assert.ElementsMatch(t, []string{listed.ID, scalar.ID}, ids(found))

		// Explicit relationships never satisfy an inline filter.
		_, err := s.graph.CreateRelationship(context.Background(), s.wsA, owner.ID, deal.ID, "deals", services.RelationshipOptions{})
		require.NoError(t, err)
		found = find(t, s, entities.EntityQuery{
			WorkspaceID:   s.wsA,
			Relationships: map[string]string{"deals": deal.ID},
		})
		assert.ElementsMatch(t, []string{listed.ID, scalar.ID}, ids(found))
	})
}

func TestQuery_Search(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		hit := s.create(t, s.wsA, "contact", map[string]any{"firstName": "Margaret", "company": "Hamilton Labs"}, nil)
		s.create(t, s.wsA, "contact", map[string]any{"firstName": "Alan", "company": "Bletchley"}, nil)

		assert.Equal(t, []string{hit.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Search: "hamilton"})))
		assert.Empty(t, find(t, s, entities.EntityQuery{WorkspaceID: s.wsB, Search: "hamilton"}))
	})
}

func TestQuery_SearchTextForms(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		ctx := context.Background()
		zola := s.create(t, s.wsA, "contact", map[string]any{"firstName": "Émile", "lastName": "Zola"}, nil)
		carrier := s.create(t, s.wsA, "contact", map[string]any{"company": "AT&T", "title": "x"}, nil)

		_, err := s.entities.Update(ctx, services.UpdateParams{
			WorkspaceID: s.wsA,
			ID:          carrier.ID,
			Data:        map[string]any{"title": "y"},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{zola.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Search: "émile"})))
		assert.Equal(t, []string{zola.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Search: "ÉMILE"})))
		assert.Equal(t, []string{carrier.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Search: "AT&T"})))
	})
}

func TestQuery_WhereNumberForms(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		huge := s.create(t, s.wsA, "measurement", map[string]any{"n": 1e21}, nil)
		tiny := s.create(t, s.wsA, "measurement", map[string]any{"n": 1e-7}, nil)
		s.create(t, s.wsA, "measurement", map[string]any{"n": 0.3}, nil)

		assert.Equal(t, []string{huge.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Where: map[string]any{"n": 1e21}})))
		assert.Equal(t, []string{tiny.ID}, ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, Where: map[string]any{"n": "0.0000001"}})))
	})
}

func TestQuery_PagingAndCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *stack) {
		var all []string
		for i := 0; i < 5; i++ {
			all = append(all, s.create(t, s.wsA, "contact", map[string]any{"n": i}, nil).ID)
		}

		q := entities.EntityQuery{WorkspaceID: s.wsA, OrderDirection: entities.OrderAsc, Limit: 2}
		first := ids(find(t, s, q))
		q.Offset = 2
		second := ids(find(t, s, q))
		q.Offset = 4
		third := ids(find(t, s, q))

		require.Len(t, first, 2)
		require.Len(t, second, 2)
		require.Len(t, third, 1)
		assert.ElementsMatch(t, all, append(append(first, second...), third...))

		desc := ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA}))
		asc := ids(find(t, s, entities.EntityQuery{WorkspaceID: s.wsA, OrderDirection: entities.OrderAsc}))
		require.Len(t, desc, 5)
		for i := range asc {
			assert.Equal(t, asc[i], desc[len(desc)-1-i])
		}

		cq, err := entities.EntityQuery{WorkspaceID: s.wsA, Limit: 1}.Normalize()
		require.NoError(t, err)
		n, err := s.entities.Count(context.Background(), cq)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})
}
