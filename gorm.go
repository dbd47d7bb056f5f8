package queryreporter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rahmatrdn/go-query-reporter/internal/usecase"
)

// GormLogger wraps a gorm logger with the slow query hook. The inner logger
// keeps full control of GORM's own log output; the reporter only observes.
// Passing nil uses gorm's default logger.
func (r *Reporter) GormLogger(inner gormlogger.Interface) gormlogger.Interface {
	if inner == nil {
		inner = gormlogger.Default
	}
	return &gormLogger{inner: inner, uc: r.usecase, log: r.log}
}

type gormLogger struct {
	inner gormlogger.Interface
	uc    usecase.ReporterUsecase
	log   *zap.Logger
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{inner: l.inner.LogMode(level), uc: l.uc, log: l.log}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.inner.Info(ctx, msg, data...)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.inner.Warn(ctx, msg, data...)
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.inner.Error(ctx, msg, data...)
}

// Trace is GORM's per statement callback and the pipeline's entry point.
// GORM hands over the interpolated SQL, so no separate parameter list is
// available on this path.
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	l.inner.Trace(ctx, begin, fc, err)

	elapsed := time.Since(begin)
	sql, rows := fc()
	durationMs := float64(elapsed.Nanoseconds()) / float64(time.Millisecond)

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.log.Error("query failed",
			zap.String("query", sql),
			zap.Float64("duration_ms", durationMs),
			zap.Error(err))
		return
	}

	l.log.Info("query executed",
		zap.Float64("duration_ms", durationMs),
		zap.Int64("rows", rows))

	l.uc.OnQuery(ctx, durationMs, sql, nil)
}
