package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/domain/services"
	"github.com/ersonp/unistore/internal/infrastructure/config"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/postgres"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/sqlite"
)

// Environment switches for backends that need a running server.
const (
	postgresDSNEnv = "UNISTORE_TEST_POSTGRES_DSN"
	qdrantEnv      = "UNISTORE_TEST_QDRANT"
)

type backend struct {
	name string
	open func(t *testing.T) ports.RelationalDB
}

// backends returns every store the suite can reach. SQLite always runs;
// Postgres runs when UNISTORE_TEST_POSTGRES_DSN is set.
func backends() []backend {
	list := []backend{{name: "sqlite", open: openSQLite}}
	if os.Getenv(postgresDSNEnv) != "" {
		list = append(list, backend{name: "postgres", open: openPostgres})
	}
	return list
}

func openSQLite(t *testing.T) ports.RelationalDB {
	t.Helper()
	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "unistore.db")})
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func openPostgres(t *testing.T) ports.RelationalDB {
	t.Helper()
	ctx := context.Background()
	repo, err := postgres.NewRepository(ctx, config.PostgresConfig{DSN: os.Getenv(postgresDSNEnv)}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stack is the service layer wired over one backend. Each test gets fresh
// workspaces so shared Postgres databases need no cleanup.
type stack struct {
	db       ports.RelationalDB
	types    *services.EntityTypeService
	entities *services.EntityService
	graph    *services.GraphService
	activity *services.ActivityService
	wsA      string
	wsB      string
}

func newStack(t *testing.T, db ports.RelationalDB, opts ...services.Option) *stack {
	t.Helper()
	opts = append([]services.Option{services.WithLogger(zaptest.NewLogger(t))}, opts...)
	types := services.NewEntityTypeService(db, opts...)
	return &stack{
		db:       db,
		types:    types,
		entities: services.NewEntityService(db, append(opts, services.WithValidator(types))...),
		graph:    services.NewGraphService(db, opts...),
		activity: services.NewActivityService(db),
		wsA:      "it-" + uuid.NewString(),
		wsB:      "it-" + uuid.NewString(),
	}
}

// forEachBackend runs fn as a subtest against every reachable backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *stack)) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newStack(t, b.open(t)))
		})
	}
}

func (s *stack) create(t *testing.T, ws, typ string, data map[string]any, rels entities.Relationships) *entities.Entity {
	t.Helper()
	e, err := s.entities.Create(context.Background(), services.CreateParams{
		WorkspaceID:   ws,
		Type:          typ,
		Data:          data,
		Relationships: rels,
	})
	require.NoError(t, err)
	return e
}

func (s *stack) get(t *testing.T, ws, id string) *entities.Entity {
	t.Helper()
	e, err := s.entities.FindByID(context.Background(), ws, id)
	require.NoError(t, err)
	return e
}

func ids(list []*entities.Entity) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}
