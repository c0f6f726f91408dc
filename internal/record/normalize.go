package record

import (
	"math"
	"strings"
	"time"
)

// Raw is an observation payload before normalization. Optional scalars are
// pointers so that "absent" and "zero" stay distinguishable.
type Raw struct {
	ID             string
	RemoteID       string
	Origin         string
	OwnerID        string
	OwnerName      string
	Kind           string
	CommonName     string
	ScientificName string
	Description    string

	Lat                 *float64
	Lon                 *float64
	LocationDescription string

	HeightM      *float64
	DiameterCm   *float64
	HealthStatus string
	AnimalClass  string
	Habitat      string
	Behavior     string

	ImageRef string

	// Status and ApprovalStatus are the two field names legacy payloads use.
	Status         *string
	ApprovalStatus *string

	CreatedAt   time.Time
	ReviewerID  string
	ReviewedAt  *time.Time
	ReviewNotes string
}

// RawFrom converts a record back into payload form. Normalize(RawFrom(r)) == r
// for any normalized record r.
func RawFrom(r Record) Raw {
	status := string(r.Status)
	raw := Raw{
		ID:                  r.ID,
		RemoteID:            r.RemoteID,
		Origin:              string(r.Origin),
		OwnerID:             r.OwnerID,
		OwnerName:           r.OwnerName,
		Kind:                string(r.Kind),
		CommonName:          r.CommonName,
		ScientificName:      r.ScientificName,
		Description:         r.Description,
		Lat:                 &r.Location.Lat,
		Lon:                 &r.Location.Lon,
		LocationDescription: r.Location.Description,
		ImageRef:            r.ImageRef,
		Status:              &status,
		CreatedAt:           r.CreatedAt,
		ReviewerID:          r.ReviewerID,
		ReviewNotes:         r.ReviewNotes,
	}
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		raw.ReviewedAt = &at
	}
	switch d := r.Details.(type) {
	case FloraDetails:
		raw.HeightM = &d.HeightM
		raw.DiameterCm = &d.DiameterCm
		raw.HealthStatus = d.HealthStatus
	case FaunaDetails:
		raw.AnimalClass = d.AnimalClass
		raw.Habitat = d.Habitat
		raw.Behavior = d.Behavior
	}
	return raw
}

var statusSynonyms = map[string]Status{
	"pending":  StatusPending,
	"approved": StatusApproved,
	"rejected": StatusRejected,
	"accepted": StatusApproved,
	"verified": StatusApproved,
	"declined": StatusRejected,
}

// ParseStatus maps a status string, including legacy synonyms, to its canonical value.
func ParseStatus(s string) (Status, error) {
	st, ok := statusSynonyms[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", NewValidationError("status", "unknown value %q", s)
	}
	return st, nil
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", NewValidationError("kind", "must be flora or fauna, got %q", s)
	}
	return k, nil
}

// canonicalStatus resolves status ?? approval_status ?? pending. Blank values count as absent.
func canonicalStatus(raw *Raw) (Status, error) {
	for _, candidate := range []*string{raw.Status, raw.ApprovalStatus} {
		if candidate == nil || strings.TrimSpace(*candidate) == "" {
			continue
		}
		return ParseStatus(*candidate)
	}
	return StatusPending, nil
}

// Normalize turns a raw payload into a canonical record. It is pure.
func Normalize(raw Raw) (Record, error) {
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return Record{}, err
	}
	status, err := canonicalStatus(&raw)
	if err != nil {
		return Record{}, err
	}

	id := strings.TrimSpace(raw.ID)
	remoteID := strings.TrimSpace(raw.RemoteID)
	if id == "" {
		id = remoteID
	}
	if id == "" {
		return Record{}, NewValidationError("id", "missing")
	}

	origin := Origin(strings.ToLower(strings.TrimSpace(raw.Origin)))
	switch origin {
	case OriginLocal, OriginRemote:
	case "":
		origin = OriginLocal
		if remoteID != "" {
			origin = OriginRemote
		}
	default:
		return Record{}, NewValidationError("origin", "must be local or remote, got %q", raw.Origin)
	}

	if raw.Lat == nil {
		return Record{}, NewValidationError("location.lat", "missing")
	}
	if raw.Lon == nil {
		return Record{}, NewValidationError("location.lon", "missing")
	}

	rec := Record{
		ID:             id,
		Origin:         origin,
		RemoteID:       remoteID,
		OwnerID:        strings.TrimSpace(raw.OwnerID),
		OwnerName:      strings.TrimSpace(raw.OwnerName),
		Kind:           kind,
		CommonName:     strings.TrimSpace(raw.CommonName),
		ScientificName: strings.TrimSpace(raw.ScientificName),
		Description:    raw.Description,
		Location: Location{
			Lat:         *raw.Lat,
			Lon:         *raw.Lon,
			Description: raw.LocationDescription,
		},
		Details:     detailsFor(kind, &raw),
		ImageRef:    strings.TrimSpace(raw.ImageRef),
		Status:      status,
		CreatedAt:   raw.CreatedAt,
		ReviewNotes: raw.ReviewNotes,
	}
	// A remote record's own id is its remote identity.
	if rec.Origin == OriginRemote && rec.RemoteID == rec.ID {
		rec.RemoteID = ""
	}

	if status != StatusPending {
		rec.ReviewerID = strings.TrimSpace(raw.ReviewerID)
		if rec.ReviewerID == "" {
			rec.ReviewerID = UnknownReviewer
		}
		at := rec.CreatedAt
		if raw.ReviewedAt != nil && !raw.ReviewedAt.IsZero() {
			at = *raw.ReviewedAt
		}
		rec.ReviewedAt = &at
	}

	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func detailsFor(kind Kind, raw *Raw) Details {
	if kind == KindFauna {
		return FaunaDetails{
			AnimalClass: strings.TrimSpace(raw.AnimalClass),
			Habitat:     strings.TrimSpace(raw.Habitat),
			Behavior:    strings.TrimSpace(raw.Behavior),
		}
	}
	d := FloraDetails{HealthStatus: strings.TrimSpace(raw.HealthStatus)}
	if raw.HeightM != nil {
		d.HeightM = *raw.HeightM
	}
	if raw.DiameterCm != nil {
		d.DiameterCm = *raw.DiameterCm
	}
	return d
}

// Validate checks the payload rules shared by Normalize and ApplyEdit.
func Validate(r Record) error {
	if !r.Kind.Valid() {
		return NewValidationError("kind", "must be flora or fauna, got %q", r.Kind)
	}
	if r.ID == "" {
		return NewValidationError("id", "missing")
	}
	if r.OwnerID == "" {
		return NewValidationError("ownerId", "missing")
	}
	if strings.TrimSpace(r.CommonName) == "" {
		return NewValidationError("commonName", "missing")
	}
	if math.IsNaN(r.Location.Lat) || r.Location.Lat < -90 || r.Location.Lat > 90 {
		return NewValidationError("location.lat", "%v out of range [-90,90]", r.Location.Lat)
	}
	if math.IsNaN(r.Location.Lon) || r.Location.Lon < -180 || r.Location.Lon > 180 {
		return NewValidationError("location.lon", "%v out of range [-180,180]", r.Location.Lon)
	}
	if r.Details != nil && r.Details.Kind() != r.Kind {
		return NewValidationError("details", "%s details on a %s record", r.Details.Kind(), r.Kind)
	}
	if f, ok := r.Details.(FloraDetails); ok && (f.HeightM < 0 || f.DiameterCm < 0) {
		return NewValidationError("details", "flora measurements must not be negative")
	}
	if !r.Status.Valid() {
		return NewValidationError("status", "unknown value %q", r.Status)
	}
	return nil
}
