package handlers

import (
	"context"

	"github.com/ersonp/unistore/internal/domain/services"
)

// ExportHandler reads workspace snapshots and uploads them.
type ExportHandler struct {
	service *services.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(service *services.ExportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// ExportResult is a snapshot and, when uploaded, where it went.
type ExportResult struct {
	Snapshot *services.Snapshot
	Location string
}

// Handle snapshots the workspace, restricted to types when given, and
// uploads the snapshot when upload is set.
func (h *ExportHandler) Handle(ctx context.Context, workspaceID string, types []string, upload bool) (*ExportResult, error) {
	snap, err := h.service.Snapshot(ctx, workspaceID, types)
	if err != nil {
		return nil, err
	}
	result := &ExportResult{Snapshot: snap}
	if upload {
		if result.Location, err = h.service.Upload(ctx, snap); err != nil {
			return nil, err
		}
	}
	return result, nil
}
