package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biotrack/biotrack/internal/errors"
	"github.com/biotrack/biotrack/internal/logger"
	"github.com/biotrack/biotrack/internal/observability/metrics"
	"github.com/biotrack/biotrack/internal/record"
	"github.com/biotrack/biotrack/internal/remote"
)

const storeRemote = "remote"

// RemoteConfig selects the shared database.
type RemoteConfig struct {
	Driver string // "mysql" or "sqlite"
	Path   string // sqlite file
	MySQL  MySQLConfig
}

// RemoteStore is a remote.Source backed by the shared observation table.
type RemoteStore struct {
	db      *gorm.DB
	log     logger.Logger
	metrics metrics.Recorder
	newID   func() string
}

var _ remote.Source = (*RemoteStore)(nil)

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithRemoteMetrics records operation metrics.
func WithRemoteMetrics(rec metrics.Recorder) RemoteOption {
	return func(s *RemoteStore) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithIDGenerator overrides uuid based id assignment.
func WithIDGenerator(fn func() string) RemoteOption {
	return func(s *RemoteStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// OpenRemote connects to the shared database described by cfg.
func OpenRemote(cfg RemoteConfig, log logger.Logger, opts ...RemoteOption) (*RemoteStore, error) {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	log = log.Module(storeRemote)

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverMySQL:
		db, err = openMySQL(cfg.MySQL, log)
	case DriverSQLite, "":
		db, err = openSQLite(cfg.Path, log)
	default:
		return nil, errors.Newf("unsupported remote database driver %q", cfg.Driver).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	s, err := NewRemoteStore(db, log, opts...)
	if err != nil {
		_ = closeDB(db)
		return nil, err
	}
	log.Info("remote database opened", logger.String("driver", cfg.Driver))
	return s, nil
}

// NewRemoteStore wraps an existing connection and migrates the schema.
func NewRemoteStore(db *gorm.DB, log logger.Logger, opts ...RemoteOption) (*RemoteStore, error) {
	if log == nil {
		log = logger.Global().Module(componentName).Module(storeRemote)
	}
	if err := db.AutoMigrate(&RemoteRecord{}); err != nil {
		return nil, dbError(err, storeRemote, "migrate")
	}
	s := &RemoteStore{db: db, log: log, metrics: metrics.NopRecorder{}, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func rawsOf(rows []RemoteRecord) []record.Raw {
	out := make([]record.Raw, len(rows))
	for i := range rows {
		out[i] = rows[i].raw()
	}
	return out
}

// FetchAll returns every row of kind.
func (s *RemoteStore) FetchAll(ctx context.Context, kind record.Kind) (_ []record.Raw, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpFetch, start, err) }()

	var rows []RemoteRecord
	if err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, storeRemote, metrics.OpFetch)
	}
	return rawsOf(rows), nil
}

// FetchByOwner returns every row submitted by ownerID.
func (s *RemoteStore) FetchByOwner(ctx context.Context, ownerID string) (_ []record.Raw, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpFetch, start, err) }()

	var rows []RemoteRecord
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, storeRemote, metrics.OpFetch)
	}
	return rawsOf(rows), nil
}

// Upload inserts rec and returns its new id. Uploading the same local record
// twice returns the id of the first upload.
func (s *RemoteStore) Upload(ctx context.Context, rec record.Record) (_ string, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpUpload, start, err) }()

	var remoteID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RemoteRecord
		lookup := tx.Where("kind = ? AND client_ref = ?", string(rec.Kind), rec.ID).Limit(1).Find(&existing)
		if lookup.Error != nil {
			return lookup.Error
		}
		if lookup.RowsAffected > 0 {
			remoteID = existing.ID
			return nil
		}

		row := remoteFromRecord(rec, s.newID())
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		remoteID = row.ID
		return nil
	})
	if err != nil {
		return "", dbError(err, storeRemote, metrics.OpUpload)
	}
	s.log.Debug("record uploaded",
		logger.String("record", record.IdentityKey(rec)),
		logger.String("remote_id", remoteID))
	return remoteID, nil
}

// SetStatus writes a review decision to both status columns.
func (s *RemoteStore) SetStatus(ctx context.Context, remoteID string, update remote.StatusUpdate) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, metrics.OpSetState, start, err) }()

	status := string(update.Status)
	q := s.db.WithContext(ctx).Model(&RemoteRecord{}).Where("id = ?", remoteID)
	if update.Kind != "" {
		q = q.Where("kind = ?", string(update.Kind))
	}
	res := q.Updates(map[string]any{
		"status":          status,
		"approval_status": status,
		"reviewed_by":     update.ReviewerID,
		"reviewed_at":     update.ReviewedAt,
		"review_notes":    update.Notes,
	})
	if res.Error != nil {
		return dbError(res.Error, storeRemote, metrics.OpSetState)
	}
	if res.RowsAffected == 0 {
		return record.NewNotFoundError(record.Key(update.Kind, remoteID))
	}
	return nil
}

// Close releases the connection.
func (s *RemoteStore) Close() error {
	return closeDB(s.db)
}
