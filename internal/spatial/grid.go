package spatial

import "math"

type cellKey struct {
	cx int64
	cy int64
}

// Grid buckets point indices into square cells of side eps so that a radius
// query only has to inspect the 3x3 block of cells around the query point.
// Expected query cost tracks local density; it degrades to a full scan only
// when eps is large relative to the extent of the data.
type Grid struct {
	points []Point
	eps    float64
	eps2   float64
	cells  map[cellKey][]int
}

// NewGrid indexes points with cell size eps. It reports false when eps is not a
// positive finite number, in which case no neighborhood can be defined.
func NewGrid(points []Point, eps float64) (*Grid, bool) {
	if !validEps(eps) {
		return nil, false
	}
	g := &Grid{
		points: points,
		eps:    eps,
		eps2:   eps * eps,
		cells:  make(map[cellKey][]int, len(points)),
	}
	for i, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g, true
}

// Neighbors returns the indices of all points within eps of points[i], the
// point itself included. The order is deterministic: cells are scanned
// column by column and each cell yields indices in input order.
func (g *Grid) Neighbors(i int) []int {
	p := g.points[i]
	k := g.key(p)

	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cellKey{cx: k.cx + dx, cy: k.cy + dy}] {
				q := g.points[j]
				ddx := q.X - p.X
				ddy := q.Y - p.Y
				if ddx*ddx+ddy*ddy <= g.eps2 {
					out = append(out, j)
				}
			}
		}
	}
	return out
}

// Len returns the number of indexed points.
func (g *Grid) Len() int { return len(g.points) }

func (g *Grid) key(p Point) cellKey {
	return cellKey{
		cx: int64(math.Floor(p.X / g.eps)),
		cy: int64(math.Floor(p.Y / g.eps)),
	}
}

func validEps(eps float64) bool {
	return eps > 0 && !math.IsInf(eps, 0) && !math.IsNaN(eps)
}
