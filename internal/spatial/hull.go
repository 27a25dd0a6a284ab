package spatial

import (
	"math"
	"sort"
)

const (
	// DefaultPolygonSides is the vertex count of synthetic zone polygons.
	DefaultPolygonSides = 12
	// MinPolygonSides is the smallest synthetic polygon that still reads as an area.
	MinPolygonSides = 6
	// MinSyntheticRadius bounds synthetic polygons away from zero size, in meters.
	MinSyntheticRadius = 10.0

	// areaEpsilon is the smallest hull area, in square meters, treated as a polygon.
	areaEpsilon = 1e-6
)

// ConvexHull returns the convex hull of pts in counter-clockwise order, without
// a closing vertex, using Andrew's monotone chain. Collinear points on the hull
// boundary are dropped and duplicate points are collapsed. For fewer than three
// distinct points, or when every point is collinear, the result has fewer than
// three vertices.
func ConvexHull(pts []Point) []Point {
	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	sorted = dedupSorted(sorted)
	if len(sorted) < 3 {
		return sorted
	}

	hull := make([]Point, 0, 2*len(sorted))

	// Lower chain.
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Upper chain.
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// The last vertex repeats the first.
	return hull[:len(hull)-1]
}

// RegularPolygon returns an open ring of sides vertices on a circle of the given
// radius around center, counter-clockwise from due east. sides <= 0 selects
// DefaultPolygonSides; anything else below MinPolygonSides is raised to it.
func RegularPolygon(center Point, radius float64, sides int) []Point {
	sides = normalizeSides(sides)
	out := make([]Point, sides)
	for k := range sides {
		theta := 2 * math.Pi * float64(k) / float64(sides)
		out[k] = Point{
			X: center.X + radius*math.Cos(theta),
			Y: center.Y + radius*math.Sin(theta),
		}
	}
	return out
}

// RingOptions controls the synthetic polygon used when a hull is not meaningful.
type RingOptions struct {
	// Radius of the synthetic polygon in meters. It is widened as needed so the
	// polygon still covers every member.
	Radius float64
	// Sides of the synthetic polygon; see RegularPolygon.
	Sides int
}

// Ring builds the closed outline of a cluster in local meters. Clusters whose
// hull has at least three vertices and a non-zero area get the hull. Everything
// else (one or two distinct points, or a collinear set) gets a regular polygon
// around the member centroid. The returned ring always repeats its first vertex
// at the end and therefore has at least four entries for any non-empty input.
// The boolean reports whether the ring is a true hull.
func Ring(members []Point, opts RingOptions) ([]Point, bool) {
	if len(members) == 0 {
		return nil, false
	}

	hull := ConvexHull(members)
	if len(hull) >= 3 && math.Abs(PolygonArea(hull)) > areaEpsilon {
		return CloseRing(hull), true
	}

	sides := normalizeSides(opts.Sides)
	center := Centroid(members)
	radius := math.Max(opts.Radius, MinSyntheticRadius)

	// Edges of the inscribed polygon sit at radius*cos(pi/sides) from the center.
	apothem := math.Cos(math.Pi / float64(sides))
	for _, m := range members {
		if r := math.Hypot(m.X-center.X, m.Y-center.Y) / apothem; r > radius {
			radius = r
		}
	}
	return CloseRing(RegularPolygon(center, radius, sides)), false
}

func normalizeSides(sides int) int {
	switch {
	case sides <= 0:
		return DefaultPolygonSides
	case sides < MinPolygonSides:
		return MinPolygonSides
	}
	return sides
}

// CloseRing returns ring with its first vertex appended when the last vertex
// differs from it. The input is not modified.
func CloseRing(ring []Point) []Point {
	if len(ring) == 0 {
		return ring
	}
	out := make([]Point, len(ring), len(ring)+1)
	copy(out, ring)
	if out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

// PolygonArea returns the signed shoelace area of an open or closed ring;
// positive for counter-clockwise rings.
func PolygonArea(ring []Point) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := range n {
		a := ring[i]
		b := ring[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Centroid returns the arithmetic mean of pts.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(pts))
	return Point{X: sx / n, Y: sy / n}
}

// cross is the z component of (a-o) x (b-o); positive for a left turn.
func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func dedupSorted(pts []Point) []Point {
	if len(pts) < 2 {
		return pts
	}
	out := pts[:1]
	for _, p := range pts[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
