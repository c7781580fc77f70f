package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ersonp/unistore/internal/domain/entities"
)

// DefaultConflictRetries bounds the internal retry loop of Link and Unlink.
const DefaultConflictRetries = 3

var (
	timeNow = time.Now
	newID   = func() string { return uuid.New().String() }
)

// now returns the store clock: UTC with microsecond precision so that
// timestamps survive every backend unchanged.
func now() time.Time {
	return timeNow().UTC().Truncate(time.Microsecond)
}

// Indexer receives entities after their write has committed.
type Indexer interface {
	Index(ctx context.Context, entity *entities.Entity) error
	Remove(ctx context.Context, workspaceID, entityID string) error
}

// DataValidator checks entity documents against their type. Prepare
// resolves the type up front and returns a check that does no I/O.
type DataValidator interface {
	Validate(ctx context.Context, workspaceID, entityType string, data map[string]any) error
	Prepare(ctx context.Context, workspaceID, entityType string) (func(data map[string]any) error, error)
}

// Option configures a service.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	indexer         Indexer
	validator       DataValidator
	documentIndex   bool
	conflictRetries int
	strictTypes     bool
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIndexer notifies indexer after every committed entity write.
func WithIndexer(indexer Indexer) Option {
	return func(o *options) {
		o.indexer = indexer
	}
}

// WithValidator validates documents on create and update.
func WithValidator(validator DataValidator) Option {
	return func(o *options) {
		o.validator = validator
	}
}

// WithDocumentIndexing recomputes the search vector of an update from the
// merged document instead of the patch.
func WithDocumentIndexing(enabled bool) Option {
	return func(o *options) {
		o.documentIndex = enabled
	}
}

// WithConflictRetries sets how many times graph writes are attempted when
// they lose a version race.
func WithConflictRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.conflictRetries = n
		}
	}
}

// WithStrictTypes rejects entity types that are neither built in nor
// registered in the workspace.
func WithStrictTypes(strict bool) Option {
	return func(o *options) {
		o.strictTypes = strict
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:          zap.NewNop(),
		conflictRetries: DefaultConflictRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
