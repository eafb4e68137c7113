package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/lessongate-backend/pkg/logger"
)

// queryLogger sends GORM's output to the service logger. The context GORM
// passes in is the request context, so request and event ids come along.
// Misses and unique violations are expected control flow and stay quiet.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Debug(ctx, "gorm: "+fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, "gorm: "+fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, "gorm.error", fmt.Errorf(msg, args...))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !IsUniqueViolation(err, ""):
		sqlText, rows := fc()
		q.logg.Error(q.fields(ctx, sqlText, rows, took), "db.query_failed", err)
	case q.slow > 0 && took > q.slow && q.level >= gormlogger.Warn:
		sqlText, rows := fc()
		q.logg.Warn(q.fields(ctx, sqlText, rows, took), "db.slow_query")
	case q.level >= gormlogger.Info:
		sqlText, rows := fc()
		q.logg.Debug(q.fields(ctx, sqlText, rows, took), "db.query")
	}
}

func (q *queryLogger) fields(ctx context.Context, sqlText string, rows int64, took time.Duration) context.Context {
	return q.logg.WithFields(ctx, map[string]any{
		"sql":         sqlText,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
}
