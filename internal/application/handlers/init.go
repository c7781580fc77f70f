// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/unistore/internal/domain/ports"
	"github.com/ersonp/unistore/internal/infrastructure/config"
)

// InitHandler handles project initialization.
type InitHandler struct {
	collectionManager ports.CollectionManager
	vectorSize        uint64
}

// NewInitHandler creates a new init handler. collectionManager may be nil
// when the semantic index is disabled.
func NewInitHandler(collectionManager ports.CollectionManager, vectorSize uint64) *InitHandler {
	return &InitHandler{
		collectionManager: collectionManager,
		vectorSize:        vectorSize,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath     string
	Driver         string
	CollectionName string
}

// Handle writes the default config and prepares the semantic collection.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("unistore already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	result := &InitResult{
		ConfigPath: config.ConfigFilePath(basePath),
		Driver:     cfg.Storage.Driver,
	}
	if h.collectionManager != nil {
		if err := h.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		result.CollectionName = cfg.Semantic.Qdrant.Collection
	}
	return result, nil
}

// EnsureCollection creates the semantic collection if it does not exist.
func (h *InitHandler) EnsureCollection(ctx context.Context) error {
	if h.collectionManager == nil {
		return errors.New("semantic index is not configured")
	}
	if err := h.collectionManager.EnsureCollection(ctx, h.vectorSize); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

// SchemaHandler applies the relational schema.
type SchemaHandler struct {
	relationalDB ports.RelationalDB
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(relationalDB ports.RelationalDB) *SchemaHandler {
	return &SchemaHandler{relationalDB: relationalDB}
}

// Handle creates or migrates the relational schema.
func (h *SchemaHandler) Handle(ctx context.Context) error {
	if err := h.relationalDB.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}
