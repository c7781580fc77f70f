package ports

import "context"

// CollectionManager provisions the vector collection behind the semantic
// index. One collection holds the entity vectors of every workspace; points
// carry their workspace and entity type as payload, so the collection only
// needs to exist with the embedder's dimension before the first upsert.
type CollectionManager interface {
	// EnsureCollection creates the collection with vectors of vectorSize
	// dimensions unless it already exists.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// DeleteCollection drops the collection and every indexed entity vector.
	DeleteCollection(ctx context.Context) error
}
