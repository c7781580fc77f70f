package mocks

import (
	"context"
	"sync"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// RelationalDB wraps a real ports.RelationalDB and injects failures into
// entity writes. Conflicts simulates lost version races: the next
// Conflicts calls to UpdateEntity fail with a *entities.ConflictError.
type RelationalDB struct {
	ports.RelationalDB

	mu              sync.Mutex
	Conflicts       int
	UpdateEntityErr error

	// Call tracking
	UpdateEntityCallCount int
}

// NewRelationalDB wraps db.
func NewRelationalDB(db ports.RelationalDB) *RelationalDB {
	return &RelationalDB{RelationalDB: db}
}

// Atomically runs fn against a transaction that shares the injected
// failures.
func (m *RelationalDB) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.RelationalTx) error) error {
	return m.RelationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		return fn(ctx, &failingTx{RelationalTx: tx, m: m})
	})
}

// UpdateEntity applies the injected failures before delegating.
func (m *RelationalDB) UpdateEntity(ctx context.Context, entity *entities.Entity, expectedVersion int64) error {
	if err := m.injected(entity, expectedVersion); err != nil {
		return err
	}
	return m.RelationalDB.UpdateEntity(ctx, entity, expectedVersion)
}

func (m *RelationalDB) injected(entity *entities.Entity, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateEntityCallCount++
	if m.UpdateEntityErr != nil {
		return m.UpdateEntityErr
	}
	if m.Conflicts > 0 {
		m.Conflicts--
		return &entities.ConflictError{ID: entity.ID, Expected: expectedVersion, Actual: expectedVersion + 1}
	}
	return nil
}

type failingTx struct {
	ports.RelationalTx
	m *RelationalDB
}

func (t *failingTx) UpdateEntity(ctx context.Context, entity *entities.Entity, expectedVersion int64) error {
	if err := t.m.injected(entity, expectedVersion); err != nil {
		return err
	}
	return t.RelationalTx.UpdateEntity(ctx, entity, expectedVersion)
}
