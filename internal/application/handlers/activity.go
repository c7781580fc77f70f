package handlers

import (
	"context"
	"time"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/domain/services"
)

// ActivityHandler appends to and lists the activity log.
type ActivityHandler struct {
	service *services.ActivityService
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(service *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// LogInput is the raw form of an activity log command.
type LogInput struct {
	EntityID     string
	Type         string
	Source       string
	Content      string
	Participants []string
	// At is an RFC 3339 timestamp; empty means now.
	At string
}

// HandleLog appends an activity.
func (h *ActivityHandler) HandleLog(ctx context.Context, workspaceID string, in LogInput) (*entities.Activity, error) {
	p := services.LogParams{
		WorkspaceID:  workspaceID,
		EntityID:     in.EntityID,
		ActivityType: in.Type,
		SourceModule: in.Source,
		Content:      in.Content,
		Participants: in.Participants,
	}
	if in.At != "" {
		ts, err := time.Parse(time.RFC3339, in.At)
		if err != nil {
			return nil, entities.NewValidationError("timestamp", "must be RFC 3339: %v", err)
		}
		p.Timestamp = ts
	}
	return h.service.Log(ctx, p)
}

// HandleList returns activities newest first.
func (h *ActivityHandler) HandleList(ctx context.Context, workspaceID, entityID string, limit int) ([]entities.Activity, error) {
	return h.service.List(ctx, workspaceID, entityID, limit)
}
