package a

import "context"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	FindEntityByID(ctx context.Context, workspaceID, id string) (string, error)
	FindEntitiesByIDs(ctx context.Context, workspaceID string, ids []string) ([]string, error)
}

type Index interface {
	Upsert(ctx context.Context, id string) error
}

func bad(ctx context.Context, ids []string, e Embedder, s Store, idx Index) {
	for _, id := range ids {
		e.Embed(ctx, id)               // want "potential N\\+1: Embed called inside loop - consider EmbedBatch"
		s.FindEntityByID(ctx, "w", id) // want "potential N\\+1: FindEntityByID called inside loop - consider FindEntitiesByIDs"
	}
	for i := 0; i < len(ids); i++ {
		idx.Upsert(ctx, ids[i]) // want "potential N\\+1: Upsert called inside loop - consider UpsertBatch"
	}
}

func good(ctx context.Context, ids []string, e Embedder, s Store) {
	e.EmbedBatch(ctx, ids)
	s.FindEntitiesByIDs(ctx, "w", ids)

	for attempt := 1; ; attempt++ {
		if _, err := s.FindEntityByID(ctx, "w", ids[0]); err == nil || attempt > 3 {
			break
		}
	}
}

func retry(ctx context.Context, s Store) {
	for {
		if _, err := s.FindEntityByID(ctx, "w", "id"); err == nil {
			return
		}
	}
}
