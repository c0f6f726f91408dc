// Package record defines the canonical biodiversity observation and the pure
// functions that build, identify and edit it.
package record

import (
	"time"
)

// Kind is the observation family.
type Kind string

const (
	KindFlora Kind = "flora"
	KindFauna Kind = "fauna"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindFlora, KindFauna}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindFlora || k == KindFauna
}

// Origin tells where a record's identity was assigned.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Status is the review state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// UnknownReviewer marks reviewed records whose payload did not name a reviewer.
const UnknownReviewer = "unknown"

// Location is a WGS84 point with an optional free-form description.
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description,omitempty"`
}

// Details carries the kind specific part of a record.
type Details interface {
	Kind() Kind
}

// FloraDetails holds plant measurements.
type FloraDetails struct {
	HeightM      float64 `json:"heightM,omitempty"`
	DiameterCm   float64 `json:"diameterCm,omitempty"`
	HealthStatus string  `json:"healthStatus,omitempty"`
}

func (FloraDetails) Kind() Kind { return KindFlora }

// FaunaDetails holds animal observations.
type FaunaDetails struct {
	AnimalClass string `json:"animalClass,omitempty"`
	Habitat     string `json:"habitat,omitempty"`
	Behavior    string `json:"behavior,omitempty"`
}

func (FaunaDetails) Kind() Kind { return KindFauna }

// Record is one observation. Values are treated as immutable: every operation
// in this module returns a modified copy.
type Record struct {
	ID             string
	Origin         Origin
	RemoteID       string
	OwnerID        string
	OwnerName      string
	Kind           Kind
	CommonName     string
	ScientificName string
	Description    string
	Location       Location
	Details        Details
	ImageRef       string
	Status         Status
	CreatedAt      time.Time
	ReviewerID     string
	ReviewedAt     *time.Time
	ReviewNotes    string
}

// Flora returns the flora details when the record is a plant.
func (r Record) Flora() (FloraDetails, bool) {
	d, ok := r.Details.(FloraDetails)
	return d, ok
}

// Fauna returns the fauna details when the record is an animal.
func (r Record) Fauna() (FaunaDetails, bool) {
	d, ok := r.Details.(FaunaDetails)
	return d, ok
}

// RemoteIdentity returns the id the remote source knows this record by, or ""
// for records that were never synced.
func (r Record) RemoteIdentity() string {
	if r.RemoteID != "" {
		return r.RemoteID
	}
	if r.Origin == OriginRemote {
		return r.ID
	}
	return ""
}

// IsLocalOnly reports whether the record has not reached the remote source yet.
func (r Record) IsLocalOnly() bool {
	return r.Origin == OriginLocal && r.RemoteID == ""
}

// Reviewed reports whether reviewer fields are populated.
func (r Record) Reviewed() bool {
	return r.ReviewerID != "" && r.ReviewedAt != nil
}

// IdentityKey returns "<kind>:<id>", the key used to deduplicate records across sources.
func IdentityKey(r Record) string {
	return string(r.Kind) + ":" + r.ID
}

// RemoteKey returns the identity key a record would carry in the remote source,
// or "" when it has none.
func RemoteKey(r Record) string {
	id := r.RemoteIdentity()
	if id == "" {
		return ""
	}
	return string(r.Kind) + ":" + id
}

// Key builds an identity key from its parts.
func Key(kind Kind, id string) string {
	return string(kind) + ":" + id
}
