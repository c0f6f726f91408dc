// Package datastore persists records with GORM: the on-device buffer of local
// submissions (SQLite) and the shared observation database (MySQL, or SQLite
// for single node setups) that acts as a remote source.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
)

const (
	componentName = "datastore"

	// slowQueryThreshold marks statements logged at WARN.
	slowQueryThreshold = 200 * time.Millisecond

	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// MySQLConfig holds connection settings of the shared database.
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// DSN renders the go-sql-driver DSN.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

func gormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormAdapter(log, slowQueryThreshold),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func openSQLite(path string, log logger.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.Newf("sqlite path is empty").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, errors.New(err).
					Component(componentName).
					Category(errors.CategoryDatabase).
					Context("operation", "create_data_dir").
					Context("path", dir).
					Build()
			}
		}
	}

	// WAL lets the API read while a sync pass writes.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}
	return db, nil
}

func openMySQL(cfg MySQLConfig, log logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig(log))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component(componentName).
			Category(errors.CategoryDatabase).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dbError wraps a GORM failure in the datastore's error shape.
func dbError(err error, store, operation string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Priority(errors.PriorityHigh).
		Context("store", store).
		Context("operation", operation).
		Build()
}

// observe records the outcome and duration of one store operation.
func observe(rec metrics.Recorder, operation string, start time.Time, err error) {
	rec.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		rec.RecordOperation(operation, metrics.StatusError)
		rec.RecordError(operation, string(errorCategory(err)))
		return
	}
	rec.RecordOperation(operation, metrics.StatusSuccess)
}

func errorCategory(err error) errors.ErrorCategory {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return errors.CategoryGeneric
}
