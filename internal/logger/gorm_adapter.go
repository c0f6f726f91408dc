package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormAdapter routes GORM output through a module Logger. Statements go to
// TRACE, slow statements and failures to WARN.
//
//	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
//	    Logger: logger.NewGormAdapter(central.Module("datastore"), 200*time.Millisecond),
//	})
type GormAdapter struct {
	logger        Logger
	slowThreshold time.Duration
}

// NewGormAdapter creates the adapter. A zero slowThreshold disables slow statement warnings.
func NewGormAdapter(l Logger, slowThreshold time.Duration) *GormAdapter {
	if l == nil {
		l = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormAdapter{logger: l, slowThreshold: slowThreshold}
}

// LogMode is ignored; verbosity follows the module level.
func (a *GormAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (a *GormAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	l := a.logger.WithContext(ctx)
	fields := []Field{
		String("sql", sql),
		Int64("rows", rows),
		Duration("elapsed", elapsed),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.Warn("statement failed", append(fields, Error(err))...)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		l.Warn("slow statement", append(fields, Duration("threshold", a.slowThreshold))...)
	default:
		l.Trace("statement", fields...)
	}
}
