package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/application/handlers"
	"github.com/ersonp/unistore/internal/infrastructure/config"
	embedder "github.com/ersonp/unistore/internal/infrastructure/embedder/openai"
	"github.com/ersonp/unistore/internal/infrastructure/vectordb/qdrant"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new unistore project",
		Long: `Creates a .unistore directory with default configuration. When the
semantic index is enabled (UNISTORE_SEMANTIC_ENABLED=true) the Qdrant
collection is created as well.`,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	result, err := handlers.NewInitHandler(nil, 0).Handle(ctx, cwd)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (driver: %s)\n", result.ConfigPath, result.Driver)

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Semantic.Enabled {
		emb, err := embedder.NewEmbedder(cfg.Semantic.Embedder)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		repo, err := qdrant.NewRepository(cfg.Semantic.Qdrant)
		if err != nil {
			return fmt.Errorf("connecting to qdrant: %w", err)
		}
		defer repo.Close()

		if err := handlers.NewInitHandler(repo, emb.Dimensions()).EnsureCollection(ctx); err != nil {
			return err
		}
		fmt.Printf("Created Qdrant collection: %s\n", cfg.Semantic.Qdrant.Collection)
	}

	fmt.Println("unistore initialized successfully!")
	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the relational schema",
		Long:  "Creates or upgrades the tables of the configured storage backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(d *Deps) error {
				if err := d.Schema.Handle(cmd.Context()); err != nil {
					return err
				}
				fmt.Printf("Schema is up to date (driver: %s)\n", d.Config.Storage.Driver)
				return nil
			})
		},
	}
}
