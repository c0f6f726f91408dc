package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRawCamelCaseNested(t *testing.T) {
	t.Parallel()

	raw, err := DecodeRaw([]byte(`{
		"id": "abc",
		"ownerId": "u1",
		"kind": "fauna",
		"commonName": "Robin",
		"location": {"lat": 52.1, "lng": "4.3", "description": "garden"},
		"details": {"animalClass": "bird", "behaviour": "singing"},
		"approvalStatus": "approved",
		"reviewedBy": "sci-2",
		"createdAt": "2024-04-01T08:00:00Z"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", raw.ID)
	assert.Equal(t, "u1", raw.OwnerID)
	require.NotNil(t, raw.Lat)
	require.NotNil(t, raw.Lon)
	assert.InDelta(t, 52.1, *raw.Lat, 1e-9)
	assert.InDelta(t, 4.3, *raw.Lon, 1e-9)
	assert.Equal(t, "garden", raw.LocationDescription)
	assert.Equal(t, "bird", raw.AnimalClass)
	assert.Equal(t, "singing", raw.Behavior)
	assert.Nil(t, raw.Status)
	require.NotNil(t, raw.ApprovalStatus)
	assert.Equal(t, "approved", *raw.ApprovalStatus)
	assert.Equal(t, "sci-2", raw.ReviewerID)
	assert.Equal(t, time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC), raw.CreatedAt)

	rec, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	assert.Equal(t, "sci-2", rec.ReviewerID)
}

func TestDecodeRawSnakeCaseFlat(t *testing.T) {
	t.Parallel()

	raw, err := DecodeRaw([]byte(`{
		"id": 42,
		"user_id": "u7",
		"type": "flora",
		"common_name": "Birch",
		"latitude": "60.17",
		"longitude": 24.94,
		"location": "riverbank",
		"height_m": 8,
		"approval_status": null,
		"created_at": 1714550400
	}`))
	require.NoError(t, err)

	assert.Equal(t, "42", raw.ID)
	assert.Equal(t, "u7", raw.OwnerID)
	assert.Equal(t, "riverbank", raw.LocationDescription)
	require.NotNil(t, raw.HeightM)
	assert.InDelta(t, 8.0, *raw.HeightM, 0)
	assert.Nil(t, raw.ApprovalStatus)
	assert.Equal(t, time.Unix(1714550400, 0).UTC(), raw.CreatedAt)

	rec, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "flora:42", IdentityKey(rec))
}

func TestDecodeRawErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"bad latitude", `{"lat": "north", "lon": 1}`},
		{"bad timestamp", `{"created_at": "yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRaw([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDecodeRawList(t *testing.T) {
	t.Parallel()

	list, err := DecodeRawList([]byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1].ID)

	wrapped, err := DecodeRawList([]byte(`{"data":[{"id":"c"}]}`))
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "c", wrapped[0].ID)

	_, err = DecodeRawList([]byte(`{"nothing": true}`))
	assert.True(t, IsValidation(err))

	_, err = DecodeRawList([]byte(`[1, 2]`))
	assert.True(t, IsValidation(err))
}

func TestParseTimeLayouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-02T01:00:00Z", "2024-03-02 01:00:00", "2024-03-02T01:00:00", "1709341200", "1709341200000"} {
		got, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err := ParseTime("soon")
	assert.Error(t, err)
}
