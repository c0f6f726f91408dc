package record

import (
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
)

// Payloads from older clients and the shared database mix camelCase and
// snake_case keys, nest or flatten the location, and send numbers as strings.
// Keys are folded (lower case, no separators) before lookup.
var (
	idKeys           = []string{"id"}
	remoteIDKeys     = []string{"remoteid", "serverid"}
	originKeys       = []string{"origin", "source"}
	ownerIDKeys      = []string{"ownerid", "userid", "submittedby"}
	ownerNameKeys    = []string{"ownername", "username", "displayname"}
	kindKeys         = []string{"kind", "type", "category"}
	commonNameKeys   = []string{"commonname", "name"}
	scientificKeys   = []string{"scientificname", "species"}
	descriptionKeys  = []string{"description", "notes"}
	latKeys          = []string{"lat", "latitude"}
	lonKeys          = []string{"lon", "lng", "longitude"}
	locationDescKeys = []string{"locationdescription", "place"}
	heightKeys       = []string{"heightm", "height"}
	diameterKeys     = []string{"diametercm", "diameter"}
	healthKeys       = []string{"healthstatus", "health"}
	animalClassKeys  = []string{"animalclass", "class"}
	habitatKeys      = []string{"habitat"}
	behaviorKeys     = []string{"behavior", "behaviour"}
	imageRefKeys     = []string{"imageref", "imageurl", "photourl", "image"}
	statusKeys       = []string{"status"}
	approvalKeys     = []string{"approvalstatus"}
	createdAtKeys    = []string{"createdat", "submittedat", "timestamp"}
	reviewerKeys     = []string{"reviewerid", "reviewedby", "approvedby"}
	reviewedAtKeys   = []string{"reviewedat", "approvedat"}
	reviewNotesKeys  = []string{"reviewnotes", "reviewcomment"}
	detailsKeys      = []string{"details", "kindspecific", "flora", "fauna"}
)

// DecodeRaw parses one JSON object into a Raw payload.
func DecodeRaw(data []byte) (Raw, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return Raw{}, NewValidationError("payload", "invalid JSON object: %v", err)
	}
	return rawFromObject(obj)
}

// DecodeRawList parses a JSON array of objects, or an envelope with the array
// under "data", "records" or "items". Elements that fail to decode abort the call.
func DecodeRawList(data []byte) ([]Raw, error) {
	v, err := jason.NewValueFromBytes(data)
	if err != nil {
		return nil, NewValidationError("payload", "invalid JSON: %v", err)
	}

	items, err := v.Array()
	if err != nil {
		obj, objErr := v.Object()
		if objErr != nil {
			return nil, NewValidationError("payload", "expected array or object")
		}
		items = envelopeItems(obj)
		if items == nil {
			return nil, NewValidationError("payload", "object has no record array")
		}
	}

	out := make([]Raw, 0, len(items))
	for i, item := range items {
		obj, err := item.Object()
		if err != nil {
			return nil, NewValidationError("payload", "element %d is not an object", i)
		}
		raw, err := rawFromObject(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func envelopeItems(obj *jason.Object) []*jason.Value {
	for _, key := range []string{"data", "records", "items"} {
		if arr, err := obj.GetValueArray(key); err == nil {
			return arr
		}
	}
	return nil
}

type fields map[string]*jason.Value

func foldKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(k)
}

func collect(obj *jason.Object) fields {
	m := obj.Map()
	f := make(fields, len(m))
	for k, v := range m {
		f[foldKey(k)] = v
	}
	return f
}

// lookup returns the first present, non-null value for keys.
func (f fields) lookup(keys []string) *jason.Value {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || v == nil || v.Null() == nil {
			continue
		}
		return v
	}
	return nil
}

func (f fields) object(keys []string) fields {
	v := f.lookup(keys)
	if v == nil {
		return nil
	}
	obj, err := v.Object()
	if err != nil {
		return nil
	}
	return collect(obj)
}

func (f fields) str(keys []string) string {
	s, _ := valueString(f.lookup(keys))
	return s
}

func (f fields) strPtr(keys []string) *string {
	s, ok := valueString(f.lookup(keys))
	if !ok {
		return nil
	}
	return &s
}

func (f fields) float(field string, keys []string) (*float64, error) {
	v := f.lookup(keys)
	if v == nil {
		return nil, nil
	}
	if n, err := v.Float64(); err == nil {
		return &n, nil
	}
	if s, err := v.String(); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, NewValidationError(field, "not a number: %q", s)
		}
		return &n, nil
	}
	return nil, NewValidationError(field, "not a number")
}

func (f fields) time(field string, keys []string) (*time.Time, error) {
	v := f.lookup(keys)
	if v == nil {
		return nil, nil
	}
	if n, err := v.Int64(); err == nil {
		t := epochTime(n)
		return &t, nil
	}
	s, err := v.String()
	if err != nil {
		return nil, NewValidationError(field, "not a timestamp")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, NewValidationError(field, "unparseable timestamp %q", s)
	}
	return &t, nil
}

func valueString(v *jason.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	if s, err := v.String(); err == nil {
		return s, true
	}
	if n, err := v.Number(); err == nil {
		return n.String(), true
	}
	if b, err := v.Boolean(); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseTime accepts RFC 3339, SQL datetime, bare dates and epoch seconds or milliseconds.
func ParseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n), nil
	}
	return time.Time{}, lastErr
}

// epochTime treats values beyond year 33658 in seconds as milliseconds.
func epochTime(n int64) time.Time {
	const msThreshold = 1_000_000_000_000
	if n >= msThreshold || n <= -msThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func rawFromObject(obj *jason.Object) (Raw, error) {
	f := collect(obj)

	raw := Raw{
		ID:             f.str(idKeys),
		RemoteID:       f.str(remoteIDKeys),
		Origin:         f.str(originKeys),
		OwnerID:        f.str(ownerIDKeys),
		OwnerName:      f.str(ownerNameKeys),
		Kind:           f.str(kindKeys),
		CommonName:     f.str(commonNameKeys),
		ScientificName: f.str(scientificKeys),
		Description:    f.str(descriptionKeys),
		ImageRef:       f.str(imageRefKeys),
		Status:         f.strPtr(statusKeys),
		ApprovalStatus: f.strPtr(approvalKeys),
		ReviewerID:     f.str(reviewerKeys),
		ReviewNotes:    f.str(reviewNotesKeys),
	}

	var err error
	if err = decodeLocation(f, &raw); err != nil {
		return Raw{}, err
	}
	if err = decodeDetails(f, &raw); err != nil {
		return Raw{}, err
	}

	created, err := f.time("createdAt", createdAtKeys)
	if err != nil {
		return Raw{}, err
	}
	if created != nil {
		raw.CreatedAt = *created
	}
	if raw.ReviewedAt, err = f.time("reviewedAt", reviewedAtKeys); err != nil {
		return Raw{}, err
	}
	return raw, nil
}

func decodeLocation(f fields, raw *Raw) error {
	loc := f.object([]string{"location", "coordinates", "geo"})
	if loc == nil {
		// Flat payloads carry the coordinates at top level; a string location is a description.
		loc = f
		raw.LocationDescription = f.str(append([]string{"location"}, locationDescKeys...))
	} else {
		raw.LocationDescription = loc.str(append([]string{"description"}, locationDescKeys...))
		if raw.LocationDescription == "" {
			raw.LocationDescription = f.str(locationDescKeys)
		}
	}

	var err error
	if raw.Lat, err = loc.float("location.lat", latKeys); err != nil {
		return err
	}
	if raw.Lon, err = loc.float("location.lon", lonKeys); err != nil {
		return err
	}
	return nil
}

func decodeDetails(f fields, raw *Raw) error {
	d := f.object(detailsKeys)
	if d == nil {
		d = f
	}
	pick := func(keys []string) string {
		if s := d.str(keys); s != "" {
			return s
		}
		return f.str(keys)
	}
	raw.HealthStatus = pick(healthKeys)
	raw.AnimalClass = pick(animalClassKeys)
	raw.Habitat = pick(habitatKeys)
	raw.Behavior = pick(behaviorKeys)

	var err error
	if raw.HeightM, err = d.float("details.heightM", heightKeys); err != nil {
		return err
	}
	if raw.DiameterCm, err = d.float("details.diameterCm", diameterKeys); err != nil {
		return err
	}
	return nil
}
