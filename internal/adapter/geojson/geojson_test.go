package geojson

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointsDoc = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "p1", "geometry": {"type": "Point", "coordinates": [12.49, 41.89]}, "properties": {"velocity": -12.5}},
    {"type": "Feature", "id": 7, "geometry": {"type": "Point", "coordinates": [12.50, 41.88, 30.0]}, "properties": {"vel": "-3"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.51, 41.87]}, "properties": {"id": "from-props", "rate": -1}},
    {"type": "Feature", "geometry": null, "properties": {"velocity": -20}},
    {"type": "Feature", "id": "poly", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}, "properties": {"velocity": -20}},
    {"type": "Feature", "id": "short", "geometry": {"type": "Point", "coordinates": [12.5]}, "properties": {"velocity": -20}},
    {"type": "Feature", "id": "anon-props", "geometry": {"type": "Point", "coordinates": [12.52, 41.86]}, "properties": null}
  ]
}`

func TestDecodePoints(t *testing.T) {
	points, err := DecodePoints([]byte(pointsDoc))
	require.NoError(t, err)
	require.Len(t, points, 7)

	assert.Equal(t, "p1", points[0].ID)
	assert.Equal(t, 12.49, points[0].Lon)
	assert.Equal(t, 41.89, points[0].Lat)
	assert.Equal(t, -12.5, points[0].Properties["velocity"])

	assert.Equal(t, "7", points[1].ID, "numeric ids are stringified")
	assert.Equal(t, 12.50, points[1].Lon, "third ordinate is ignored")
	assert.True(t, points[1].HasValidCoord())

	assert.Equal(t, "from-props", points[2].ID)

	assert.Empty(t, points[3].ID)
	assert.False(t, points[3].HasValidCoord(), "null geometry")
	assert.True(t, math.IsNaN(points[3].Lon))

	assert.False(t, points[4].HasValidCoord(), "non-point geometry")
	assert.Equal(t, "poly", points[4].ID)

	assert.False(t, points[5].HasValidCoord(), "malformed point")
	assert.Equal(t, "short", points[5].ID)
	assert.Equal(t, -20.0, points[5].Properties["velocity"])

	assert.True(t, points[6].HasValidCoord())
	assert.Nil(t, points[6].Properties)
}

func TestDecodePoints_Errors(t *testing.T) {
	_, err := DecodePoints([]byte(`not json`))
	require.Error(t, err)

	_, err = DecodePoints([]byte(`{"type": "Feature", "features": []}`))
	require.ErrorIs(t, err, ErrNotFeatureCollection)

	points, err := DecodePoints([]byte(`{"type": "FeatureCollection", "features": []}`))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestEncodePoints_RoundTrip(t *testing.T) {
	in := []domain.MeasuredPoint{
		{ID: "a", Lon: 12.49, Lat: 41.89, Properties: map[string]any{"velocity": -4.0}},
		{ID: "b", Lon: math.NaN(), Lat: math.NaN(), Properties: map[string]any{"velocity": -9.0}},
	}
	data, err := json.Marshal(EncodePoints(in))
	require.NoError(t, err)

	out, err := DecodePoints(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, 12.49, out[0].Lon)
	assert.Equal(t, -4.0, out[0].Properties["velocity"])
	assert.False(t, out[1].HasValidCoord())
}

func sampleResult() domain.ZoneResult {
	th := domain.Thresholds{Mild: 2, Strong: 10}
	return domain.ZoneResult{
		Dataset: "rome",
		Metadata: domain.RunMetadata{
			Dataset: "rome", Method: domain.DefaultMethod, Thresholds: th,
			Eps: 250, MinPts: 3, ZoneCount: 1, DangerZoneCount: 1,
			InputPoints: 4, DangerPoints: 3,
		},
		Zones: []domain.Zone{{
			ZoneID:      "danger-0123456789abcdef",
			Dataset:     "rome",
			Level:       domain.TierDanger,
			Method:      domain.DefaultMethod,
			Thresholds:  th,
			PointCount:  3,
			MinVelocity: -14.25,
			P95Velocity: -10.125,
			BoundingBox: &[4]float64{12.49, 41.88, 12.5, 41.89},
			Centroid:    &[2]float64{12.4966, 41.8833},
			Polygon:     [][2]float64{{12.49, 41.88}, {12.5, 41.88}, {12.5, 41.89}, {12.49, 41.88}},
			MemberIDs:   []string{"a", "b", "c"},
			Place:       &domain.Place{Name: "Rome", FormattedAddress: "Rome, Lazio, Italy", Confidence: 0.9, Source: "reverse"},
		}},
		ProcessedAt: time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	}
}

func TestMarshalResult_RoundTrip(t *testing.T) {
	in := sampleResult()

	data, err := MarshalResult(in)
	require.NoError(t, err)

	out, err := UnmarshalResult(data)
	require.NoError(t, err)

	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalResult_WireShape(t *testing.T) {
	data, err := MarshalResult(sampleResult())
	require.NoError(t, err)

	var doc struct {
		Zones struct {
			Type     string `json:"type"`
			Features []struct {
				Type     string    `json:"type"`
				ID       string    `json:"id"`
				BBox     []float64 `json:"bbox"`
				Geometry struct {
					Type        string         `json:"type"`
					Coordinates [][][2]float64 `json:"coordinates"`
				} `json:"geometry"`
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		} `json:"zones"`
		ProcessedAt string `json:"processed_at"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Zones.Type)
	require.Len(t, doc.Zones.Features, 1)
	f := doc.Zones.Features[0]
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "danger-0123456789abcdef", f.ID)
	assert.Equal(t, []float64{12.49, 41.88, 12.5, 41.89}, f.BBox)
	assert.Equal(t, "Polygon", f.Geometry.Type)
	require.Len(t, f.Geometry.Coordinates, 1)
	assert.Len(t, f.Geometry.Coordinates[0], 4)
	assert.Equal(t, "danger", f.Properties["level"])
	assert.Equal(t, 3.0, f.Properties["point_count"])
	assert.NotContains(t, f.Properties, "polygon")
	assert.Equal(t, "2024-04-27T06:00:00Z", doc.ProcessedAt)
}

func TestMarshalResult_EmptyZones(t *testing.T) {
	data, err := MarshalResult(domain.ZoneResult{Dataset: "empty", Zones: []domain.Zone{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"zones":{"type":"FeatureCollection","features":[]}`)

	out, err := UnmarshalResult(data)
	require.NoError(t, err)
	assert.NotNil(t, out.Zones)
	assert.Empty(t, out.Zones)
}

func TestUnmarshalResult_RejectsNonPolygon(t *testing.T) {
	doc := `{"dataset":"x","zones":{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"z","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}
	]}}`
	_, err := UnmarshalResult([]byte(doc))
	require.Error(t, err)
}
