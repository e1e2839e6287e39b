package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm/logger"
)

// slowQueryThreshold marks where a query gets a warn-level record.
const slowQueryThreshold = time.Second

// maxSQLLogLength bounds SQL strings in logs; bulk deletes from the
// retention prune can interpolate large IN lists.
const maxSQLLogLength = 200

// slogGormLogger adapts GORM's logger interface onto slog. On SQLITE_BUSY
// errors it also dumps pool statistics, rate limited to once a minute.
type slogGormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel

	sqlDB *sql.DB

	mu           sync.Mutex
	lastStatsLog time.Time
}

func newGormLogger(level string, log *slog.Logger) *slogGormLogger {
	return &slogGormLogger{logger: log, level: gormLogLevel(level)}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// SetSQLDB hands over the pool handle used for contention diagnostics.
func (l *slogGormLogger) SetSQLDB(db *sql.DB) { l.sqlDB = db }

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &slogGormLogger{logger: l.logger, level: level, sqlDB: l.sqlDB}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	isSlow := elapsed > slowQueryThreshold

	// fc() runs GORM's ExplainSQL, which interpolates every parameter into
	// the SQL string. Decide whether the record will be emitted first.
	var willLog bool
	switch {
	case err != nil:
		willLog = l.level >= logger.Error
	case isSlow:
		willLog = l.level >= logger.Warn && l.logger.Enabled(ctx, slog.LevelWarn)
	default:
		willLog = l.level >= logger.Info && l.logger.Enabled(ctx, slog.LevelDebug)
	}
	if !willLog {
		return
	}

	sqlStr, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", truncateSQL(sqlStr)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}

	switch {
	case err != nil:
		kind := classifyDBError(err)
		if kind == "SQLITE_BUSY" {
			l.logStatsOnContention()
		}
		attrs = append(attrs,
			slog.String("error_type", kind),
			slog.String("error", err.Error()),
		)
		l.logger.LogAttrs(ctx, slog.LevelError, "database error", attrs...)
	case isSlow:
		l.logger.LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
	default:
		l.logger.LogAttrs(ctx, slog.LevelDebug, "database query", attrs...)
	}
}

func classifyDBError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"):
		return "SQLITE_BUSY"
	case strings.Contains(msg, "context canceled"):
		return "CONTEXT_CANCELED"
	case strings.Contains(msg, "context deadline exceeded"):
		return "TIMEOUT"
	case strings.Contains(msg, "record not found"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "... (truncated)"
}

func (l *slogGormLogger) logStatsOnContention() {
	if l.sqlDB == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastStatsLog) < time.Minute {
		return
	}
	l.lastStatsLog = time.Now()

	stats := l.sqlDB.Stats()
	l.logger.Warn("SQLite connection pool stats (on lock contention)",
		slog.Int("max_open_conns", stats.MaxOpenConnections),
		slog.Int("open_conns", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
		slog.Int("idle", stats.Idle),
		slog.Int64("wait_count", stats.WaitCount),
		slog.String("wait_duration", stats.WaitDuration.String()),
	)
}
