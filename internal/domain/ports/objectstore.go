package ports

import "context"

// ObjectStore uploads export snapshots to blob storage.
type ObjectStore interface {
	// Put writes body under key and returns the object's location.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}
