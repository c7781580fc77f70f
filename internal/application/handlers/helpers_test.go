package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/mocks"
	"github.com/ersonp/unistore/internal/domain/services"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/memory"
)

const ws = "acme"

type fixture struct {
	db       *memory.Store
	entities *EntityHandler
	query    *QueryHandler
	graph    *RelationshipHandler
	types    *EntityTypeHandler
	activity *ActivityHandler
	imports  *ImportHandler
	exports  *ExportHandler

	embedder    *mocks.Embedder
	vectorDB    *mocks.VectorDB
	objectStore *mocks.ObjectStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := memory.New()
	logger := services.WithLogger(zaptest.NewLogger(t))
	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.1, 0.2, 0.3}}
	vectorDB := mocks.NewVectorDB()
	objectStore := &mocks.ObjectStore{}

	typeService := services.NewEntityTypeService(db, logger)
	semantic := services.NewSemanticService(embedder, vectorDB, db, logger)
	entityService := services.NewEntityService(db, logger,
		services.WithValidator(typeService),
		services.WithIndexer(semantic))

	return &fixture{
		db:          db,
		entities:    NewEntityHandler(entityService),
		query:       NewQueryHandler(entityService, semantic),
		graph:       NewRelationshipHandler(services.NewGraphService(db, logger), db),
		types:       NewEntityTypeHandler(typeService),
		activity:    NewActivityHandler(services.NewActivityService(db)),
		imports:     NewImportHandler(services.NewImportService(entityService)),
		exports:     NewExportHandler(services.NewExportService(db, objectStore)),
		embedder:    embedder,
		vectorDB:    vectorDB,
		objectStore: objectStore,
	}
}

func (f *fixture) create(t *testing.T, typ, data string, rels ...string) *entities.Entity {
	t.Helper()
	e, err := f.entities.HandleCreate(context.Background(), ws, CreateInput{
		Type:          typ,
		Data:          data,
		Relationships: rels,
	})
	require.NoError(t, err)
	return e
}

func entityIDs(list []*entities.Entity) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}
