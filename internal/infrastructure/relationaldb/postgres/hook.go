package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const slowQueryThreshold = time.Second

// queryLogger implements bun.QueryHook on top of zap.
type queryLogger struct {
	logger *zap.Logger
}

func newQueryLogger(logger *zap.Logger) *queryLogger {
	return &queryLogger{logger: logger.Named("postgres")}
}

func (h *queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.Error("query failed",
			zap.String("query", event.Query),
			zap.Duration("duration", duration),
			zap.Error(event.Err))
		return
	}
	if duration > slowQueryThreshold {
		h.logger.Warn("slow query",
			zap.String("query", event.Query),
			zap.Duration("duration", duration))
		return
	}
	h.logger.Debug("query",
		zap.String("query", event.Query),
		zap.Duration("duration", duration))
}
