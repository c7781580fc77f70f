package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/mocks"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/memory"
)

const (
	wsA = "tenant-a"
	wsB = "tenant-b"
)

// testServices wires every service against one in-memory store wrapped by
// a failure-injecting mock.
type testServices struct {
	db       *mocks.RelationalDB
	types    *EntityTypeService
	entities *EntityService
	graph    *GraphService
	activity *ActivityService
}

func setupServices(t *testing.T, opts ...Option) *testServices {
	t.Helper()
	useTestClock(t)

	db := mocks.NewRelationalDB(memory.New())
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	types := NewEntityTypeService(db, opts...)
	return &testServices{
		db:       db,
		types:    types,
		entities: NewEntityService(db, append(opts, WithValidator(types))...),
		graph:    NewGraphService(db, opts...),
		activity: NewActivityService(db),
	}
}

// useTestClock replaces the store clock with one that advances a second
// per reading.
func useTestClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var (
		mu sync.Mutex
		n  int
	)
	orig := timeNow
	timeNow = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	t.Cleanup(func() { timeNow = orig })
}

func (ts *testServices) create(t *testing.T, ws, typ string, data map[string]any) *entities.Entity {
	t.Helper()
	e, err := ts.entities.Create(context.Background(), CreateParams{WorkspaceID: ws, Type: typ, Data: data})
	require.NoError(t, err)
	return e
}

func (ts *testServices) get(t *testing.T, ws, id string) *entities.Entity {
	t.Helper()
	e, err := ts.entities.FindByID(context.Background(), ws, id)
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
