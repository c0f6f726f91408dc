package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
)

const storeLocal = "local"

// LocalStore is the device-side buffer of submitted records.
type LocalStore struct {
	db      *gorm.DB
	log     logger.Logger
	metrics metrics.Recorder
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithLocalMetrics records operation metrics.
func WithLocalMetrics(rec metrics.Recorder) LocalOption {
	return func(s *LocalStore) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// OpenLocal opens (and migrates) the SQLite buffer at path.
func OpenLocal(path string, log logger.Logger, opts ...LocalOption) (*LocalStore, error) {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	log = log.Module(storeLocal)

	db, err := openSQLite(path, log)
	if err != nil {
		return nil, err
	}
	s, err := NewLocalStore(db, log, opts...)
	if err != nil {
		_ = closeDB(db)
		return nil, err
	}
	log.Info("local buffer opened", logger.String("path", path))
	return s, nil
}

// NewLocalStore wraps an existing connection and migrates the schema.
func NewLocalStore(db *gorm.DB, log logger.Logger, opts ...LocalOption) (*LocalStore, error) {
	if log == nil {
		log = logger.Global().Module(componentName).Module(storeLocal)
	}
	if err := db.AutoMigrate(&LocalRecord{}); err != nil {
		return nil, dbError(err, storeLocal, "migrate")
	}
	s := &LocalStore{db: db, log: log, metrics: metrics.NopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns every buffered record, newest first. Rows that no longer pass
// validation are logged and skipped.
func (s *LocalStore) List(ctx context.Context) (_ []record.Record, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpList, start, err) }()

	var rows []LocalRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC, kind ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, storeLocal, metrics.OpList)
	}

	out := make([]record.Record, 0, len(rows))
	for i := range rows {
		rec, err := record.Normalize(rows[i].raw())
		if err != nil {
			s.log.Warn("skipping invalid buffered record",
				logger.String("record", record.Key(record.Kind(rows[i].Kind), rows[i].ID)),
				logger.Error(err))
			continue
		}
		out = append(out, rec)
	}
	if sr, ok := s.metrics.(*metrics.StoreRecorder); ok {
		sr.SetRecordCount(len(out))
	}
	return out, nil
}

// Get returns one record or a not-found error.
func (s *LocalStore) Get(ctx context.Context, kind record.Kind, id string) (_ record.Record, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpGet, start, err) }()

	var row LocalRecord
	err = s.db.WithContext(ctx).Where("kind = ? AND id = ?", string(kind), id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record.Record{}, record.NewNotFoundError(record.Key(kind, id))
	}
	if err != nil {
		return record.Record{}, dbError(err, storeLocal, metrics.OpGet)
	}
	return record.Normalize(row.raw())
}

// Save inserts or replaces rec.
func (s *LocalStore) Save(ctx context.Context, rec record.Record) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpSave, start, err) }()

	row := localFromRecord(rec)
	if err := s.upsert(s.db.WithContext(ctx), []LocalRecord{row}); err != nil {
		return dbError(err, storeLocal, metrics.OpSave)
	}
	return nil
}

// SaveAll replaces all of recs in one transaction.
func (s *LocalStore) SaveAll(ctx context.Context, recs []record.Record) (err error) {
	if len(recs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpSaveAll, start, err) }()

	rows := make([]LocalRecord, len(recs))
	for i := range recs {
		rows[i] = localFromRecord(recs[i])
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsert(tx, rows)
	})
	if err != nil {
		return dbError(err, storeLocal, metrics.OpSaveAll)
	}
	return nil
}

func (s *LocalStore) upsert(tx *gorm.DB, rows []LocalRecord) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "id"}},
		UpdateAll: true,
	}).Create(&rows).Error
}

// Close releases the connection.
func (s *LocalStore) Close() error {
	return closeDB(s.db)
}
