package mocks

import (
	"context"
	"sync"
)

// ObjectStore is a mock implementation of ports.ObjectStore.
type ObjectStore struct {
	Err error

	mu      sync.Mutex
	Objects map[string][]byte
	Types   map[string]string
}

// Put keeps body in memory and returns a mem:// location.
func (m *ObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
		m.Types = make(map[string]string)
	}
	m.Objects[key] = append([]byte(nil), body...)
	m.Types[key] = contentType
	return "mem://" + key, nil
}
