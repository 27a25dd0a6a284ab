// Package spatial holds the planar geometry behind zone detection: a local
// equirectangular projection, a uniform grid index, grid-accelerated DBSCAN,
// and convex hull / synthetic ring construction.
//
// All functions are pure. Nothing in this package keeps state between calls,
// so every value it computes (the projection anchor included) is owned by the
// caller and threaded explicitly through each step of a run.
package spatial

import "math"

// EarthRadiusMeters is the mean Earth radius used by the equirectangular projection.
const EarthRadiusMeters = 6_371_000.0

// Point is a position in the local planar frame, in meters east (X) and north (Y)
// of the projection anchor.
type Point struct {
	X float64
	Y float64
}

// LonLat is a WGS-84 coordinate in decimal degrees.
type LonLat struct {
	Lon float64
	Lat float64
}

// minCosLat keeps the inverse projection finite for anchors at the poles.
const minCosLat = 1e-12

// Projector converts between lon/lat and a flat local frame anchored at a single
// point. It is an equirectangular approximation: distances are accurate to well
// under a percent across a site (tens of kilometers) and degrade with extent and
// latitude. It is not a geodesic solver.
type Projector struct {
	anchor LonLat
	cosLat float64
}

// NewProjector anchors a projection at the arithmetic mean of coords. Callers are
// expected to short-circuit on empty input; an empty slice yields a (0, 0) anchor.
func NewProjector(coords []LonLat) Projector {
	var anchor LonLat
	if len(coords) > 0 {
		var sumLon, sumLat float64
		for _, c := range coords {
			sumLon += c.Lon
			sumLat += c.Lat
		}
		n := float64(len(coords))
		anchor = LonLat{Lon: sumLon / n, Lat: sumLat / n}
	}
	return NewProjectorAt(anchor)
}

// NewProjectorAt builds a projector around an explicit anchor.
func NewProjectorAt(anchor LonLat) Projector {
	cosLat := math.Cos(anchor.Lat * math.Pi / 180)
	if math.Abs(cosLat) < minCosLat {
		cosLat = minCosLat
	}
	return Projector{anchor: anchor, cosLat: cosLat}
}

// Anchor returns the lon/lat origin of the local frame.
func (p Projector) Anchor() LonLat { return p.anchor }

// Forward projects a lon/lat coordinate into local meters.
func (p Projector) Forward(c LonLat) Point {
	return Point{
		X: degToRad(c.Lon-p.anchor.Lon) * p.cosLat * EarthRadiusMeters,
		Y: degToRad(c.Lat-p.anchor.Lat) * EarthRadiusMeters,
	}
}

// Inverse converts a local point back to lon/lat using the same anchor.
func (p Projector) Inverse(pt Point) LonLat {
	return LonLat{
		Lon: p.anchor.Lon + radToDeg(pt.X/(p.cosLat*EarthRadiusMeters)),
		Lat: p.anchor.Lat + radToDeg(pt.Y/EarthRadiusMeters),
	}
}

// ForwardAll projects every coordinate, preserving order.
func (p Projector) ForwardAll(coords []LonLat) []Point {
	out := make([]Point, len(coords))
	for i, c := range coords {
		out[i] = p.Forward(c)
	}
	return out
}

// InverseAll unprojects every point, preserving order.
func (p Projector) InverseAll(pts []Point) []LonLat {
	out := make([]LonLat, len(pts))
	for i, pt := range pts {
		out[i] = p.Inverse(pt)
	}
	return out
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
