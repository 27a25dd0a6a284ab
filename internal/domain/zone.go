package domain

import "math"

// MeasuredPoint is one geo-referenced measurement supplied by the caller.
// Lon and Lat are NaN when the source record has no usable 2D coordinate.
type MeasuredPoint struct {
	ID         string
	Lon        float64
	Lat        float64
	Properties map[string]any
}

// HasValidCoord reports whether the point has a finite, in-range coordinate.
func (p MeasuredPoint) HasValidCoord() bool {
	if !isFinite(p.Lon) || !isFinite(p.Lat) {
		return false
	}
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// Tier is the severity level of a zone.
type Tier string

const (
	TierDanger  Tier = "danger"
	TierWarning Tier = "warning"
)

// tierOrder is the fixed output order of zones.
var tierOrder = []Tier{TierDanger, TierWarning}

// Thresholds are the mild/strong magnitudes used for tiering.
type Thresholds struct {
	Mild   float64 `json:"mild"`
	Strong float64 `json:"strong"`
}

// Zone is one detected risk polygon and its statistics.
type Zone struct {
	ZoneID      string       `json:"zone_id"`
	Dataset     string       `json:"dataset"`
	Level       Tier         `json:"level"`
	Method      string       `json:"method"`
	Thresholds  Thresholds   `json:"thresholds"`
	PointCount  int          `json:"point_count"`
	MinVelocity float64      `json:"min_velocity"`
	P95Velocity float64      `json:"p95_velocity"`
	BoundingBox *[4]float64  `json:"bounding_box"` // minLon, minLat, maxLon, maxLat
	Centroid    *[2]float64  `json:"centroid"`     // lon, lat
	Polygon     [][2]float64 `json:"polygon"`      // closed [lon, lat] ring
	MemberIDs   []string     `json:"member_ids"`
	Synthetic   bool         `json:"synthetic"` // polygon is an area of influence, not a hull

	// Place is filled in by optional reverse geocoding of the centroid.
	Place *Place `json:"place,omitempty"`
}

// RunMetadata summarizes one BuildZones invocation.
type RunMetadata struct {
	Dataset          string     `json:"dataset"`
	Method           string     `json:"method"`
	Thresholds       Thresholds `json:"thresholds"`
	Eps              float64    `json:"eps"`
	MinPts           int        `json:"min_pts"`
	ZoneCount        int        `json:"zone_count"`
	DangerZoneCount  int        `json:"danger_zone_count"`
	WarningZoneCount int        `json:"warning_zone_count"`
	InputPoints      int        `json:"input_points"`
	DangerPoints     int        `json:"danger_points"`
	WarningPoints    int        `json:"warning_points"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
