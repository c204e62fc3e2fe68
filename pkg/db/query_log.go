package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/stocksync-backend/pkg/logger"
)

// queryLog routes gorm's logging through the service logger. Only slow
// statements and real failures are written; a missing row is not an error.
type queryLog struct {
	logg *logger.Logger
	slow time.Duration
	mode gormlogger.LogLevel
}

func newQueryLog(logg *logger.Logger, slow time.Duration) *queryLog {
	if logg == nil {
		return &queryLog{mode: gormlogger.Silent}
	}
	return &queryLog{logg: logg, slow: slow, mode: gormlogger.Warn}
}

// LogMode backs db.Debug() and friends. Without a logger it stays silent.
func (q *queryLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	if q.logg == nil {
		return q
	}
	clone := *q
	clone.mode = level
	return &clone
}

func (q *queryLog) Info(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Info {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLog) Warn(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLog) Error(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Error {
		q.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (q *queryLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.mode <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && took > q.slow
	if !failed && !slow && q.mode < gormlogger.Info {
		return
	}

	sql, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
	switch {
	case failed && q.mode >= gormlogger.Error:
		q.logg.Error(ctx, "sql statement failed", err)
	case slow && q.mode >= gormlogger.Warn:
		q.logg.Warn(ctx, "slow sql statement")
	case q.mode >= gormlogger.Info:
		q.logg.Debug(ctx, "sql statement")
	}
}
