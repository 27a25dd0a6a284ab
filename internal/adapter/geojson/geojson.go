// Package geojson converts between GeoJSON documents and the zone domain model.
// Input points arrive as a FeatureCollection of Point features; zones leave as
// a FeatureCollection of Polygon features whose properties carry the zone
// statistics.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
)

// ErrNotFeatureCollection is returned when a document is not a GeoJSON FeatureCollection.
var ErrNotFeatureCollection = errors.New("geojson: document is not a FeatureCollection")

// collection is decoded first so that one malformed feature does not reject
// the whole document.
type collection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// looseFeature recovers identity and attributes from a feature whose geometry
// could not be decoded.
type looseFeature struct {
	ID         any            `json:"id"`
	Properties map[string]any `json:"properties"`
}

// DecodePoints parses a FeatureCollection into measured points, one per
// feature, in document order. Features without a usable 2D Point geometry are
// kept with NaN coordinates so the engine can skip them.
func DecodePoints(data []byte) ([]domain.MeasuredPoint, error) {
	var fc collection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, ErrNotFeatureCollection
	}

	points := make([]domain.MeasuredPoint, 0, len(fc.Features))
	for _, raw := range fc.Features {
		points = append(points, decodeFeature(raw))
	}
	return points, nil
}

func decodeFeature(raw json.RawMessage) domain.MeasuredPoint {
	p := domain.MeasuredPoint{Lon: math.NaN(), Lat: math.NaN()}

	var f geomjson.Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		var loose looseFeature
		if json.Unmarshal(raw, &loose) == nil {
			p.ID = idString(loose.ID)
			p.Properties = loose.Properties
			if p.ID == "" {
				p.ID = idString(loose.Properties["id"])
			}
		}
		return p
	}

	p.ID = f.ID
	if p.ID == "" {
		p.ID = idString(f.Properties["id"])
	}
	p.Properties = f.Properties

	if pt, ok := f.Geometry.(*geom.Point); ok && !pt.Empty() && pt.Stride() >= 2 {
		p.Lon, p.Lat = pt.X(), pt.Y()
	}
	return p
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// EncodePoints renders measured points as a FeatureCollection. Points without
// a valid coordinate get a null geometry.
func EncodePoints(points []domain.MeasuredPoint) *geomjson.FeatureCollection {
	fc := &geomjson.FeatureCollection{Features: make([]*geomjson.Feature, 0, len(points))}
	for _, p := range points {
		f := &geomjson.Feature{ID: p.ID, Properties: p.Properties}
		if p.HasValidCoord() {
			f.Geometry = geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat})
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}

// EncodeZones renders zones as Polygon features. The polygon ring becomes the
// geometry; every other zone field is copied into the feature properties.
func EncodeZones(zones []domain.Zone) (*geomjson.FeatureCollection, error) {
	fc := &geomjson.FeatureCollection{Features: make([]*geomjson.Feature, 0, len(zones))}
	for i := range zones {
		f, err := encodeZone(zones[i])
		if err != nil {
			return nil, fmt.Errorf("encode zone %s: %w", zones[i].ZoneID, err)
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}

func encodeZone(z domain.Zone) (*geomjson.Feature, error) {
	props, err := zoneProperties(z)
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, 2*len(z.Polygon))
	for _, v := range z.Polygon {
		flat = append(flat, v[0], v[1])
	}
	var ends []int
	if len(flat) > 0 {
		ends = []int{len(flat)}
	}

	f := &geomjson.Feature{
		ID:         z.ZoneID,
		Geometry:   geom.NewPolygonFlat(geom.XY, flat, ends),
		Properties: props,
	}
	if z.BoundingBox != nil {
		f.BBox = geom.NewBounds(geom.XY).Set(z.BoundingBox[0], z.BoundingBox[1], z.BoundingBox[2], z.BoundingBox[3])
	}
	return f, nil
}

// zoneProperties flattens a zone through its JSON form so property names
// match the zone's JSON field names.
func zoneProperties(z domain.Zone) (map[string]any, error) {
	z.Polygon = nil
	data, err := json.Marshal(z)
	if err != nil {
		return nil, err
	}
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	delete(props, "polygon")
	return props, nil
}

// DecodeZones is the inverse of EncodeZones.
func DecodeZones(fc *geomjson.FeatureCollection) ([]domain.Zone, error) {
	if fc == nil {
		return []domain.Zone{}, nil
	}
	zones := make([]domain.Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		z, err := decodeZone(f)
		if err != nil {
			return nil, fmt.Errorf("decode zone feature %d: %w", i, err)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func decodeZone(f *geomjson.Feature) (domain.Zone, error) {
	var z domain.Zone
	data, err := json.Marshal(f.Properties)
	if err != nil {
		return z, err
	}
	if err := json.Unmarshal(data, &z); err != nil {
		return z, err
	}
	if z.ZoneID == "" {
		z.ZoneID = f.ID
	}

	poly, ok := f.Geometry.(*geom.Polygon)
	if !ok {
		return z, fmt.Errorf("geometry is %T, want polygon", f.Geometry)
	}
	if poly.NumLinearRings() > 0 {
		coords := poly.LinearRing(0).Coords()
		z.Polygon = make([][2]float64, len(coords))
		for i, c := range coords {
			z.Polygon[i] = [2]float64{c[0], c[1]}
		}
	}
	return z, nil
}

// resultDocument is the wire form of a ZoneResult.
type resultDocument struct {
	Dataset     string                      `json:"dataset"`
	Metadata    domain.RunMetadata          `json:"metadata"`
	Zones       *geomjson.FeatureCollection `json:"zones"`
	ProcessedAt time.Time                   `json:"processed_at"`
}

// MarshalResult serializes a zone result with its zones as a GeoJSON
// FeatureCollection.
func MarshalResult(r domain.ZoneResult) ([]byte, error) {
	fc, err := EncodeZones(r.Zones)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resultDocument{
		Dataset:     r.Dataset,
		Metadata:    r.Metadata,
		Zones:       fc,
		ProcessedAt: r.ProcessedAt,
	})
}

// UnmarshalResult parses the output of MarshalResult.
func UnmarshalResult(data []byte) (domain.ZoneResult, error) {
	var doc resultDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ZoneResult{}, fmt.Errorf("decode zone result: %w", err)
	}
	zones, err := DecodeZones(doc.Zones)
	if err != nil {
		return domain.ZoneResult{}, err
	}
	return domain.ZoneResult{
		Dataset:     doc.Dataset,
		Metadata:    doc.Metadata,
		Zones:       zones,
		ProcessedAt: doc.ProcessedAt,
	}, nil
}
