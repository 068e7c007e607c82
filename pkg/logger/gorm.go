package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// maxSQLLength caps the statement text attached to a log entry.
const maxSQLLength = 1000

// GormLogger routes gorm's query log through zap, tagging entries with the
// request's context fields.
type GormLogger struct {
	ZapLogger     *zap.Logger
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
}

// NewGormLoggerWithConfig maps the service log level onto gorm's. Debug and
// info log every statement; anything unrecognised logs warnings and errors.
func NewGormLoggerWithConfig(zapLogger *zap.Logger, slowQuerySeconds float64, logLevel string) *GormLogger {
	return &GormLogger{
		ZapLogger:     zapLogger,
		SlowThreshold: time.Duration(slowQuerySeconds * float64(time.Second)),
		LogLevel:      gormLevel(logLevel),
	}
}

func gormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.LogLevel = level
	return &cp
}

func (l *GormLogger) logf(ctx context.Context, at gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.LogLevel < at {
		return
	}
	WithContext(ctx, l.ZapLogger).Log(level, fmt.Sprintf(msg, data...))
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

// Trace implements gormlogger.Interface. Missing rows are expected on lookups
// and never logged as failures; unique violations surface as conflicts to the
// client, so they are warnings.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	level, msg, ok := l.classify(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	if len(sql) > maxSQLLength {
		sql = sql[:maxSQLLength] + "..."
		fields = append(fields, zap.Bool("sql_truncated", true))
	}
	fields = append(fields, zap.String("sql", sql))

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		fields = append(fields, zap.Error(err))
	case level == zapcore.WarnLevel:
		fields = append(fields, zap.Duration("threshold", l.SlowThreshold))
	}

	WithContext(ctx, l.ZapLogger).Log(level, msg, fields...)
}

func (l *GormLogger) classify(elapsed time.Duration, err error) (zapcore.Level, string, bool) {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return zapcore.WarnLevel, "gorm constraint violation", l.LogLevel >= gormlogger.Warn
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return zapcore.ErrorLevel, "gorm query error", l.LogLevel >= gormlogger.Error
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		return zapcore.WarnLevel, "gorm slow query", l.LogLevel >= gormlogger.Warn
	default:
		return zapcore.InfoLevel, "gorm query", l.LogLevel >= gormlogger.Info
	}
}
