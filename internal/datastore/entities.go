package datastore

import (
	"time"

	"github.com/biotrack/biotrack/internal/record"
)

// LocalRecord is a row of the on-device buffer. Its primary key is (kind, id).
type LocalRecord struct {
	Kind                string  `gorm:"primaryKey;type:varchar(10)"`
	ID                  string  `gorm:"primaryKey;type:varchar(64)"`
	Origin              string  `gorm:"type:varchar(10);not null;index"`
	RemoteID            string  `gorm:"type:varchar(64);index"`
	OwnerID             string  `gorm:"type:varchar(64);not null;index"`
	OwnerName           string  `gorm:"type:varchar(128)"`
	CommonName          string  `gorm:"type:varchar(255);not null"`
	ScientificName      string  `gorm:"type:varchar(255)"`
	Description         string  `gorm:"type:text"`
	Lat                 float64 `gorm:"not null"`
	Lon                 float64 `gorm:"not null"`
	LocationDescription string  `gorm:"type:varchar(255)"`
	HeightM             *float64
	DiameterCm          *float64
	HealthStatus        string `gorm:"type:varchar(64)"`
	AnimalClass         string `gorm:"type:varchar(64)"`
	Habitat             string `gorm:"type:varchar(128)"`
	Behavior            string `gorm:"type:varchar(255)"`
	ImageRef            string `gorm:"type:varchar(512)"`
	Status              string `gorm:"type:varchar(16);not null;index"`
	ReviewerID          string `gorm:"type:varchar(64)"`
	ReviewedAt          *time.Time
	ReviewNotes         string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"not null;index"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (LocalRecord) TableName() string {
	return "local_records"
}

// RemoteRecord is a row of the shared observation table. Older clients only
// wrote approval_status; newer ones write status as well, so both columns exist.
type RemoteRecord struct {
	ID                  string  `gorm:"primaryKey;type:varchar(64)"`
	Kind                string  `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_remote_client_ref"`
	ClientRef           *string `gorm:"type:varchar(64);uniqueIndex:idx_remote_client_ref"`
	OwnerID             string  `gorm:"type:varchar(64);not null;index"`
	OwnerName           string  `gorm:"type:varchar(128)"`
	CommonName          string  `gorm:"type:varchar(255);not null"`
	ScientificName      string  `gorm:"type:varchar(255)"`
	Description         string  `gorm:"type:text"`
	Lat                 float64
	Lon                 float64
	LocationDescription string `gorm:"type:varchar(255)"`
	HeightM             *float64
	DiameterCm          *float64
	HealthStatus        string  `gorm:"type:varchar(64)"`
	AnimalClass         string  `gorm:"type:varchar(64)"`
	Habitat             string  `gorm:"type:varchar(128)"`
	Behavior            string  `gorm:"type:varchar(255)"`
	ImageRef            string  `gorm:"type:varchar(512)"`
	Status              *string `gorm:"type:varchar(16)"`
	ApprovalStatus      *string `gorm:"type:varchar(16);index"`
	ReviewedBy          string  `gorm:"type:varchar(64)"`
	ReviewedAt          *time.Time
	ReviewNotes         string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"not null;index"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (RemoteRecord) TableName() string {
	return "observations"
}

func floatPtr(v float64) *float64 {
	return &v
}

func localFromRecord(r record.Record) LocalRecord {
	raw := record.RawFrom(r)
	return LocalRecord{
		Kind:                string(r.Kind),
		ID:                  r.ID,
		Origin:              string(r.Origin),
		RemoteID:            r.RemoteID,
		OwnerID:             r.OwnerID,
		OwnerName:           r.OwnerName,
		CommonName:          r.CommonName,
		ScientificName:      r.ScientificName,
		Description:         r.Description,
		Lat:                 r.Location.Lat,
		Lon:                 r.Location.Lon,
		LocationDescription: r.Location.Description,
		HeightM:             raw.HeightM,
		DiameterCm:          raw.DiameterCm,
		HealthStatus:        raw.HealthStatus,
		AnimalClass:         raw.AnimalClass,
		Habitat:             raw.Habitat,
		Behavior:            raw.Behavior,
		ImageRef:            r.ImageRef,
		Status:              string(r.Status),
		ReviewerID:          r.ReviewerID,
		ReviewedAt:          r.ReviewedAt,
		ReviewNotes:         r.ReviewNotes,
		CreatedAt:           r.CreatedAt,
	}
}

func (e *LocalRecord) raw() record.Raw {
	status := e.Status
	return record.Raw{
		ID:                  e.ID,
		RemoteID:            e.RemoteID,
		Origin:              e.Origin,
		OwnerID:             e.OwnerID,
		OwnerName:           e.OwnerName,
		Kind:                e.Kind,
		CommonName:          e.CommonName,
		ScientificName:      e.ScientificName,
		Description:         e.Description,
		Lat:                 floatPtr(e.Lat),
		Lon:                 floatPtr(e.Lon),
		LocationDescription: e.LocationDescription,
		HeightM:             e.HeightM,
		DiameterCm:          e.DiameterCm,
		HealthStatus:        e.HealthStatus,
		AnimalClass:         e.AnimalClass,
		Habitat:             e.Habitat,
		Behavior:            e.Behavior,
		ImageRef:            e.ImageRef,
		Status:              &status,
		CreatedAt:           e.CreatedAt.UTC(),
		ReviewerID:          e.ReviewerID,
		ReviewedAt:          utcPtr(e.ReviewedAt),
		ReviewNotes:         e.ReviewNotes,
	}
}

func remoteFromRecord(r record.Record, id string) RemoteRecord {
	raw := record.RawFrom(r)
	status := string(r.Status)
	approval := status
	clientRef := r.ID
	return RemoteRecord{
		ID:                  id,
		Kind:                string(r.Kind),
		ClientRef:           &clientRef,
		OwnerID:             r.OwnerID,
		OwnerName:           r.OwnerName,
		CommonName:          r.CommonName,
		ScientificName:      r.ScientificName,
		Description:         r.Description,
		Lat:                 r.Location.Lat,
		Lon:                 r.Location.Lon,
		LocationDescription: r.Location.Description,
		HeightM:             raw.HeightM,
		DiameterCm:          raw.DiameterCm,
		HealthStatus:        raw.HealthStatus,
		AnimalClass:         raw.AnimalClass,
		Habitat:             raw.Habitat,
		Behavior:            raw.Behavior,
		ImageRef:            r.ImageRef,
		Status:              &status,
		ApprovalStatus:      &approval,
		ReviewedBy:          r.ReviewerID,
		ReviewedAt:          r.ReviewedAt,
		ReviewNotes:         r.ReviewNotes,
		CreatedAt:           r.CreatedAt,
	}
}

func (e *RemoteRecord) raw() record.Raw {
	return record.Raw{
		ID:                  e.ID,
		Origin:              string(record.OriginRemote),
		OwnerID:             e.OwnerID,
		OwnerName:           e.OwnerName,
		Kind:                e.Kind,
		CommonName:          e.CommonName,
		ScientificName:      e.ScientificName,
		Description:         e.Description,
		Lat:                 floatPtr(e.Lat),
		Lon:                 floatPtr(e.Lon),
		LocationDescription: e.LocationDescription,
		HeightM:             e.HeightM,
		DiameterCm:          e.DiameterCm,
		HealthStatus:        e.HealthStatus,
		AnimalClass:         e.AnimalClass,
		Habitat:             e.Habitat,
		Behavior:            e.Behavior,
		ImageRef:            e.ImageRef,
		Status:              e.Status,
		ApprovalStatus:      e.ApprovalStatus,
		CreatedAt:           e.CreatedAt.UTC(),
		ReviewerID:          e.ReviewedBy,
		ReviewedAt:          utcPtr(e.ReviewedAt),
		ReviewNotes:         e.ReviewNotes,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
