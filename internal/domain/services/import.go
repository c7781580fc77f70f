package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/unistore/internal/domain/entities"
	"github.com/ersonp/unistore/internal/infrastructure/parsers"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun bool // Validate without saving
}

// ImportError represents an error for a specific record during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported int
	IDs      []string
	Errors   []ImportError
}

// ImportService creates entities from parsed records.
type ImportService struct {
	entities *EntityService
}

// NewImportService creates a new import service.
func NewImportService(entityService *EntityService) *ImportService {
	return &ImportService{entities: entityService}
}

// Import validates every record and creates the valid ones. Records that
// fail validation are reported in the result and do not stop the import;
// storage failures abort it.
func (s *ImportService) Import(ctx context.Context, workspaceID string, records []parsers.RawRecord, opts ImportOptions) (*ImportResult, error) {
	if workspaceID == "" {
		return nil, entities.NewValidationError("workspace_id", "required")
	}
	result := &ImportResult{}

	for i := range records {
		raw := &records[i]
		lineNum := raw.LineNum
		if lineNum == 0 {
			lineNum = i + 1
		}

		params, importErr := toCreateParams(workspaceID, raw, lineNum)
		if importErr != nil {
			result.Errors = append(result.Errors, *importErr)
			continue
		}

		if opts.DryRun {
			data := params.Data
			if data == nil {
				data = map[string]any{}
			}
			if err := s.entities.validate(ctx, workspaceID, params.Type, data); err != nil {
				if !recordError(result, err, lineNum) {
					return nil, err
				}
				continue
			}
			result.Imported++
			continue
		}

		e, err := s.entities.Create(ctx, params)
		if err != nil {
			if !recordError(result, err, lineNum) {
				return nil, fmt.Errorf("importing line %d: %w", lineNum, err)
			}
			continue
		}
		result.Imported++
		result.IDs = append(result.IDs, e.ID)
	}

	return result, nil
}

// toCreateParams converts a raw record, reporting missing or malformed
// fields.
func toCreateParams(workspaceID string, raw *parsers.RawRecord, lineNum int) (CreateParams, *ImportError) {
	if strings.TrimSpace(raw.Type) == "" {
		return CreateParams{}, &ImportError{Line: lineNum, Field: "type", Message: "missing required field: type"}
	}

	p := CreateParams{
		WorkspaceID: workspaceID,
		Type:        raw.Type,
		Data:        raw.Data,
		Metadata:    raw.Metadata,
	}
	if raw.UserID != "" {
		userID := raw.UserID
		p.UserID = &userID
	}

	if len(raw.Relationships) > 0 {
		p.Relationships = make(entities.Relationships, len(raw.Relationships))
		for edge, v := range raw.Relationships {
			targets, err := entities.ParseEdgeTargets(v)
			if err != nil {
				return CreateParams{}, &ImportError{Line: lineNum, Field: "relationships." + edge, Message: err.Error()}
			}
			p.Relationships[edge] = targets
		}
	}
	return p, nil
}

// recordError appends validation failures to the result and reports
// whether err was one.
func recordError(result *ImportResult, err error, lineNum int) bool {
	var verr *entities.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	result.Errors = append(result.Errors, ImportError{Line: lineNum, Field: verr.Field, Message: verr.Error()})
	return true
}
