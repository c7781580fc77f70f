package mocks

import (
	"context"
	"sync"

	"github.com/ersonp/unistore/internal/domain/ports"
)

// VectorDB is a mock implementation of ports.VectorDB. Documents are kept
// in memory; Search returns the configured Hits when set, otherwise every
// stored document that passes the filter with a score of 1.
type VectorDB struct {
	Hits []ports.VectorHit
	Err  error

	mu   sync.Mutex
	Docs map[string]ports.VectorDocument

	// Call tracking
	UpsertCallCount      int
	UpsertBatchCallCount int
	DeleteCallCount      int
	LastFilter           ports.VectorFilter
	LastLimit            int
}

// NewVectorDB creates an empty mock VectorDB.
func NewVectorDB() *VectorDB {
	return &VectorDB{Docs: make(map[string]ports.VectorDocument)}
}

// Upsert stores doc by entity id.
func (m *VectorDB) Upsert(ctx context.Context, doc ports.VectorDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCallCount++
	if m.Err != nil {
		return m.Err
	}
	if m.Docs == nil {
		m.Docs = make(map[string]ports.VectorDocument)
	}
	m.Docs[doc.EntityID] = doc
	return nil
}

// UpsertBatch stores every document and counts one call.
func (m *VectorDB) UpsertBatch(ctx context.Context, docs []ports.VectorDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertBatchCallCount++
	if m.Err != nil {
		return m.Err
	}
	if m.Docs == nil {
		m.Docs = make(map[string]ports.VectorDocument)
	}
	for _, doc := range docs {
		m.Docs[doc.EntityID] = doc
	}
	return nil
}

// Search returns the configured hits or the stored documents matching filter.
func (m *VectorDB) Search(ctx context.Context, embedding []float32, filter ports.VectorFilter, limit int) ([]ports.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = filter
	m.LastLimit = limit
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Hits != nil {
		return m.Hits, nil
	}

	var hits []ports.VectorHit
	for _, doc := range m.Docs {
		if doc.WorkspaceID != filter.WorkspaceID || !typeAllowed(doc.Type, filter.Types) {
			continue
		}
		hits = append(hits, ports.VectorHit{EntityID: doc.EntityID, Score: 1})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Delete removes one document.
func (m *VectorDB) Delete(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCallCount++
	if m.Err != nil {
		return m.Err
	}
	delete(m.Docs, entityID)
	return nil
}

// DeleteByWorkspace removes every document of a workspace.
func (m *VectorDB) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, doc := range m.Docs {
		if doc.WorkspaceID == workspaceID {
			delete(m.Docs, id)
		}
	}
	return nil
}

func typeAllowed(t string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}
