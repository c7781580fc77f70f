package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/application/handlers"
	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/domain/services"
	"github.com/ersonp/unistore/internal/infrastructure/blobstore/s3"
	"github.com/ersonp/unistore/internal/infrastructure/config"
	embedder "github.com/ersonp/unistore/internal/infrastructure/embedder/openai"
	"github.com/ersonp/unistore/internal/infrastructure/logging"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/memory"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/postgres"
	"github.com/ersonp/unistore/internal/infrastructure/relationaldb/sqlite"
	"github.com/ersonp/unistore/internal/infrastructure/vectordb/qdrant"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Workspace string

	Entities *handlers.EntityHandler
	Query    *handlers.QueryHandler
	Graph    *handlers.RelationshipHandler
	Types    *handlers.EntityTypeHandler
	Activity *handlers.ActivityHandler
	Import   *handlers.ImportHandler
	Export   *handlers.ExportHandler
	Schema   *handlers.SchemaHandler
}

// withDeps loads config, resolves the workspace and builds dependencies,
// then calls the provided function. It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return buildDeps(ctx, true, fn)
}

// withStore builds dependencies for commands that do not act on a
// workspace, such as migrate.
func withStore(ctx context.Context, fn func(*Deps) error) error {
	return buildDeps(ctx, false, fn)
}

func buildDeps(ctx context.Context, needWorkspace bool, fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workspace := globalWorkspace
	if workspace == "" {
		workspace = cfg.DefaultWorkspace
	}
	if needWorkspace && workspace == "" {
		return errors.New("workspace is required (use --workspace or set default_workspace)")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	relationalDB, err := openRelationalDB(ctx, cfg, cwd, logger)
	if err != nil {
		return err
	}
	defer relationalDB.Close()

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithStrictTypes(cfg.Schema.Strict),
		services.WithDocumentIndexing(cfg.Search.IndexMode == config.IndexModeDocument),
	}

	var semantic *services.SemanticService
	if cfg.Semantic.Enabled {
		emb, err := embedder.NewEmbedder(cfg.Semantic.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		vectorDB, err := qdrant.NewRepository(cfg.Semantic.Qdrant)
		if err != nil {
			return fmt.Errorf("creating qdrant repository: %w", err)
		}
		defer vectorDB.Close()

		semantic = services.NewSemanticService(emb, vectorDB, relationalDB, opts...)
	}

	var objectStore ports.ObjectStore
	if cfg.Export.S3.Bucket != "" {
		store, err := s3.NewStore(ctx, cfg.Export.S3, logger)
		if err != nil {
			return fmt.Errorf("creating s3 store: %w", err)
		}
		objectStore = store
	}

	typeService := services.NewEntityTypeService(relationalDB, opts...)
	entityOpts := append(opts, services.WithValidator(typeService))
	if semantic != nil {
		entityOpts = append(entityOpts, services.WithIndexer(semantic))
	}
	entityService := services.NewEntityService(relationalDB, entityOpts...)

	deps := &Deps{
		Config:    cfg,
		Logger:    logger,
		Workspace: workspace,
		Entities:  handlers.NewEntityHandler(entityService),
		Query:     handlers.NewQueryHandler(entityService, semantic),
		Graph:     handlers.NewRelationshipHandler(services.NewGraphService(relationalDB, opts...), relationalDB),
		Types:     handlers.NewEntityTypeHandler(typeService),
		Activity:  handlers.NewActivityHandler(services.NewActivityService(relationalDB)),
		Import:    handlers.NewImportHandler(services.NewImportService(entityService)),
		Export:    handlers.NewExportHandler(services.NewExportService(relationalDB, objectStore)),
		Schema:    handlers.NewSchemaHandler(relationalDB),
	}

	return fn(deps)
}

// openRelationalDB opens the configured backend. Embedded backends get
// their schema on open; Postgres is migrated with 'unistore migrate'.
func openRelationalDB(ctx context.Context, cfg *config.Config, basePath string, logger *zap.Logger) (ports.RelationalDB, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(ctx, cfg.Storage.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("creating postgres repository: %w", err)
		}
		return repo, nil

	case config.DriverMemory:
		return memory.New(), nil

	default:
		repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: cfg.SQLitePath(basePath)})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite repository: %w", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("ensuring sqlite schema: %w", err)
		}
		return repo, nil
	}
}
