package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/ports"
)

// LogParams describes an activity to append.
type LogParams struct {
	WorkspaceID  string
	EntityID     string
	ActivityType string
	SourceModule string
	Content      string
	Participants []string
	// Timestamp defaults to now.
	Timestamp time.Time
}

// ActivityService appends to and reads the per-entity activity log.
type ActivityService struct {
	relationalDB ports.RelationalDB

	entropyMu sync.Mutex
	entropy   io.Reader
}

// NewActivityService creates a new ActivityService.
func NewActivityService(relationalDB ports.RelationalDB) *ActivityService {
	return &ActivityService{
		relationalDB: relationalDB,
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
}

// Log appends an activity to an existing entity. Activity ids are ULIDs so
// they sort by time.
func (s *ActivityService) Log(ctx context.Context, p LogParams) (*entities.Activity, error) {
	if p.WorkspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	if p.EntityID == "" {
		return nil, entities.NewValidationError("entity_id", "required")
	}
	activityType := strings.TrimSpace(p.ActivityType)
	if activityType == "" {
		return nil, entities.NewValidationError("activity_type", "required")
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = now()
	} else {
		ts = ts.UTC().Truncate(time.Microsecond)
	}

	a := &entities.Activity{
		ID:           s.newULID(ts),
		WorkspaceID:  p.WorkspaceID,
		EntityID:     p.EntityID,
		ActivityType: activityType,
		SourceModule: p.SourceModule,
		Content:      p.Content,
		Participants: append([]string{}, p.Participants...),
		Timestamp:    ts,
	}

	err := s.relationalDB.Atomically(ctx, func(ctx context.Context, tx ports.RelationalTx) error {
		e, err := tx.FindEntityByID(ctx, p.WorkspaceID, p.EntityID)
		if err != nil {
			return fmt.Errorf("finding entity: %w", err)
		}
		if e == nil {
			return entities.NewNotFoundError("entity", p.EntityID)
		}
		if err := tx.AppendActivity(ctx, a); err != nil {
			return fmt.Errorf("appending activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns activities newest first. An empty entityID lists the whole
// workspace.
func (s *ActivityService) List(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	list, err := s.relationalDB.ListActivities(ctx, workspaceID, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	if list == nil {
		list = []entities.Activity{}
	}
	return list, nil
}

func (s *ActivityService) newULID(ts time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), s.entropy).String()
}
