package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/risk-zone-service/internal/adapter/geojson"
	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/couchcryptid/risk-zone-service/internal/observability"
	"github.com/couchcryptid/risk-zone-service/internal/pipeline"
)

var testDefaults = domain.Params{
	Mild:         2,
	Strong:       10,
	Eps:          250,
	MinPts:       5,
	Method:       domain.DefaultMethod,
	PolygonSides: domain.DefaultPolygonSides,
}

type countingGeocoder struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return domain.GeocodingResult{Lat: lat, Lon: lon, PlaceName: "Rome", FormattedAddress: "Rome, Italy", Confidence: 1}, nil
}

type failingGeocoder struct {
	mu    sync.Mutex
	calls int
}

func (g *failingGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return domain.GeocodingResult{}, errors.New("geocoder unavailable")
}

// cluster returns a 3x2 grid of points roughly 50 m apart with the given velocity.
func cluster(prefix string, lon, lat, velocity float64) []map[string]any {
	features := make([]map[string]any, 0, 6)
	n := 0
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			n++
			features = append(features, map[string]any{
				"type": "Feature",
				"id":   fmt.Sprintf("%s%d", prefix, n),
				"geometry": map[string]any{
					"type":        "Point",
					"coordinates": []float64{lon + 0.0005*float64(i), lat + 0.0005*float64(j)},
				},
				"properties": map[string]any{"velocity": velocity},
			})
		}
	}
	return features
}

// testPoints is a danger cluster, a warning cluster 4 km east, a stable point
// and a feature without geometry.
func testPoints(t *testing.T) json.RawMessage {
	t.Helper()
	features := cluster("d", 12.4900, 41.8900, -15)
	features = append(features, cluster("w", 12.5400, 41.8900, -5)...)
	features = append(features,
		map[string]any{
			"type":       "Feature",
			"id":         "stable",
			"geometry":   map[string]any{"type": "Point", "coordinates": []float64{12.52, 41.90}},
			"properties": map[string]any{"velocity": -0.5},
		},
		map[string]any{
			"type":       "Feature",
			"id":         "nogeom",
			"geometry":   nil,
			"properties": map[string]any{"velocity": -30},
		},
	)
	data, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": features})
	require.NoError(t, err)
	return data
}

func zoneRequest(t *testing.T, dataset string, params *domain.RequestParams) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.ZoneRequest{Dataset: dataset, Params: params, Points: testPoints(t)})
	require.NoError(t, err)
	return domain.RawEvent{Key: []byte("key-" + dataset), Value: data}
}

func newTestTransformer(geocoder domain.Geocoder, ttl time.Duration) (*pipeline.ZoneTransformer, *observability.Metrics, *clockwork.FakeClock) {
	metrics := observability.NewMetricsForTesting()
	tfm := pipeline.NewTransformer(testDefaults, geocoder, ttl, discardLogger(), metrics)
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC))
	tfm.SetClock(clock)
	return tfm, metrics, clock
}

func TestZoneTransformer_Transform(t *testing.T) {
	tfm, metrics, _ := newTestTransformer(nil, 0)

	out, err := tfm.Transform(context.Background(), zoneRequest(t, "rome", nil))
	require.NoError(t, err)

	assert.Equal(t, []byte("rome"), out.Key)
	assert.Equal(t, map[string]string{
		"dataset":      "rome",
		"zone_count":   "2",
		"processed_at": "2024-04-27T06:00:00Z",
	}, out.Headers)

	result, err := geojson.UnmarshalResult(out.Value)
	require.NoError(t, err)
	assert.Equal(t, "rome", result.Dataset)
	assert.Equal(t, domain.RunMetadata{
		Dataset:          "rome",
		Method:           domain.DefaultMethod,
		Thresholds:       domain.Thresholds{Mild: 2, Strong: 10},
		Eps:              250,
		MinPts:           5,
		ZoneCount:        2,
		DangerZoneCount:  1,
		WarningZoneCount: 1,
		InputPoints:      13,
		DangerPoints:     6,
		WarningPoints:    6,
	}, result.Metadata)

	require.Len(t, result.Zones, 2)
	assert.Equal(t, domain.TierDanger, result.Zones[0].Level)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3", "d4", "d5", "d6"}, result.Zones[0].MemberIDs)
	assert.Equal(t, domain.TierWarning, result.Zones[1].Level)
	assert.ElementsMatch(t, []string{"w1", "w2", "w3", "w4", "w5", "w6"}, result.Zones[1].MemberIDs)
	assert.Nil(t, result.Zones[0].Place)

	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ZonesBuilt.WithLabelValues("danger")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ZonesBuilt.WithLabelValues("warning")), 0)
	assert.InDelta(t, 6.0, testutil.ToFloat64(metrics.PointsClassified.WithLabelValues("danger")), 0)
}

func TestZoneTransformer_Transform_DatasetFallsBackToKey(t *testing.T) {
	tfm, _, _ := newTestTransformer(nil, 0)

	out, err := tfm.Transform(context.Background(), zoneRequest(t, "", nil))
	require.NoError(t, err)
	assert.Equal(t, []byte("key-"), out.Key)
	assert.Equal(t, "key-", out.Headers["dataset"])
}

func TestZoneTransformer_Transform_InvalidRequests(t *testing.T) {
	tfm, _, _ := newTestTransformer(nil, 0)

	tests := []struct {
		name  string
		value string
	}{
		{"not json", `not json`},
		{"missing points", `{"dataset":"rome"}`},
		{"points not a collection", `{"dataset":"rome","points":{"type":"Point","coordinates":[0,0]}}`},
		{"points malformed", `{"dataset":"rome","points":[1,2,3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tfm.Transform(context.Background(), domain.RawEvent{Value: []byte(tt.value)})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.False(t, domain.IsConfigurationError(err))
		})
	}
}

func TestZoneTransformer_Build_EmptyCollection(t *testing.T) {
	tfm, _, _ := newTestTransformer(nil, 0)

	result, err := tfm.Build(context.Background(), domain.ZoneRequest{
		Dataset: "empty",
		Points:  json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
	})
	require.NoError(t, err)
	assert.NotNil(t, result.Zones)
	assert.Empty(t, result.Zones)
	assert.Equal(t, "empty", result.Metadata.Dataset)
	assert.InDelta(t, 250.0, result.Metadata.Eps, 0)
}

func TestZoneTransformer_Build_RequestOverrides(t *testing.T) {
	tfm, _, _ := newTestTransformer(nil, 0)
	ctx := context.Background()

	minPts := 7
	result, err := tfm.Build(ctx, domain.ZoneRequest{
		Dataset: "rome",
		Params:  &domain.RequestParams{MinPts: &minPts},
		Points:  testPoints(t),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Zones)
	assert.Equal(t, 7, result.Metadata.MinPts)
	assert.Equal(t, 6, result.Metadata.DangerPoints)

	strong := 20.0
	result, err = tfm.Build(ctx, domain.ZoneRequest{
		Dataset: "rome",
		Params:  &domain.RequestParams{Strong: &strong},
		Points:  testPoints(t),
	})
	require.NoError(t, err)
	// Both clusters fall in the warning band and stay 4 km apart.
	assert.Equal(t, 0, result.Metadata.DangerZoneCount)
	assert.Equal(t, 2, result.Metadata.WarningZoneCount)

	eps := 0.0
	_, err = tfm.Build(ctx, domain.ZoneRequest{
		Dataset: "rome",
		Params:  &domain.RequestParams{Eps: &eps},
		Points:  testPoints(t),
	})
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestZoneTransformer_Build_GeocodesCentroids(t *testing.T) {
	geo := &countingGeocoder{}
	tfm, _, _ := newTestTransformer(geo, 0)

	result, err := tfm.Build(context.Background(), domain.ZoneRequest{Dataset: "rome", Points: testPoints(t)})
	require.NoError(t, err)

	require.Len(t, result.Zones, 2)
	for _, z := range result.Zones {
		require.NotNil(t, z.Place)
		assert.Equal(t, "reverse", z.Place.Source)
		assert.Equal(t, "Rome", z.Place.Name)
	}
	assert.Equal(t, 2, geo.calls)
}

func TestZoneTransformer_Build_ResultMemo(t *testing.T) {
	geo := &countingGeocoder{}
	tfm, metrics, clock := newTestTransformer(geo, time.Minute)
	ctx := context.Background()
	req := domain.ZoneRequest{Dataset: "rome", Points: testPoints(t)}

	first, err := tfm.Build(ctx, req)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	second, err := tfm.Build(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Zones, second.Zones)
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.Equal(t, 30*time.Second, second.ProcessedAt.Sub(first.ProcessedAt))
	assert.Equal(t, 2, geo.calls)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ZonesBuilt.WithLabelValues("danger")), 0)

	// Different effective params miss the memo.
	req.Dataset = "roma"
	_, err = tfm.Build(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 4, geo.calls)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("miss")), 0)
}

func TestZoneTransformer_Build_MemoDisabled(t *testing.T) {
	geo := &countingGeocoder{}
	tfm, metrics, _ := newTestTransformer(geo, 0)
	req := domain.ZoneRequest{Dataset: "rome", Points: testPoints(t)}

	for i := 0; i < 2; i++ {
		_, err := tfm.Build(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, geo.calls)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("hit")), 0)
}

func TestZoneTransformer_Build_CancelledEnrichmentNotMemoized(t *testing.T) {
	geo := &countingGeocoder{}
	tfm, metrics, _ := newTestTransformer(geo, time.Minute)
	req := domain.ZoneRequest{Dataset: "rome", Points: testPoints(t)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tfm.Build(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, geo.calls)

	result, err := tfm.Build(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Zones, 2)
	for _, z := range result.Zones {
		require.NotNil(t, z.Place)
		assert.Equal(t, domain.PlaceSourceReverse, z.Place.Source)
	}
	assert.Equal(t, 2, geo.calls)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("miss")), 0)
}

func TestZoneTransformer_Build_FailedPlacesNotMemoized(t *testing.T) {
	geo := &failingGeocoder{}
	tfm, metrics, _ := newTestTransformer(geo, time.Minute)
	req := domain.ZoneRequest{Dataset: "rome", Points: testPoints(t)}

	for i := 0; i < 2; i++ {
		result, err := tfm.Build(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, result.Zones, 2)
		for _, z := range result.Zones {
			require.NotNil(t, z.Place)
			assert.Equal(t, domain.PlaceSourceFailed, z.Place.Source)
		}
	}
	assert.Equal(t, 4, geo.calls)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.ResultCache.WithLabelValues("hit")), 0)
}
