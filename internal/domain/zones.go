package domain

import (
	"sort"
	"strconv"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/risk-zone-service/internal/spatial"
)

// p95 is the quantile reported as P95Velocity.
const p95 = 0.95

// BuildZones clusters the tiered points of one dataset into risk zones.
//
// It returns the danger zones followed by the warning zones, and the run
// metadata. Malformed points are skipped silently; only structurally invalid
// params produce an error (a *ConfigurationError). An input with no valid
// points yields an empty, non-nil zone list; its metadata still echoes the
// dataset, method, thresholds, eps and minPts, and only the counters are zero.
//
// BuildZones is a pure function of its arguments and safe for concurrent use.
func BuildZones(points []MeasuredPoint, params Params) ([]Zone, RunMetadata, error) {
	if err := params.Validate(); err != nil {
		return nil, RunMetadata{}, err
	}
	params = params.withDefaults()
	th := params.Thresholds()

	meta := RunMetadata{
		Dataset:    params.Dataset,
		Method:     params.Method,
		Thresholds: th,
		Eps:        params.Eps,
		MinPts:     params.MinPts,
	}

	run := newRun(points, params.VelocityField, th)
	zones := make([]Zone, 0)
	if len(run.points) == 0 {
		return zones, meta, nil
	}

	meta.InputPoints = len(run.points)
	meta.DangerPoints = len(run.tiers[TierDanger])
	meta.WarningPoints = len(run.tiers[TierWarning])

	for _, tier := range tierOrder {
		tierZones := run.buildTier(tier, params, th)
		switch tier {
		case TierDanger:
			meta.DangerZoneCount = len(tierZones)
		case TierWarning:
			meta.WarningZoneCount = len(tierZones)
		}
		zones = append(zones, tierZones...)
	}
	meta.ZoneCount = len(zones)

	return zones, meta, nil
}

// run holds the per-invocation state shared by every tier: the valid points,
// their resolved values, and one projection anchored at their mean.
type run struct {
	points    []MeasuredPoint
	ids       []string
	values    []float64
	proj      spatial.Projector
	projected []spatial.Point
	tiers     map[Tier][]int
}

func newRun(points []MeasuredPoint, field string, th Thresholds) *run {
	r := &run{tiers: make(map[Tier][]int, len(tierOrder))}

	coords := make([]spatial.LonLat, 0, len(points))
	for i, p := range points {
		if !p.HasValidCoord() {
			continue
		}
		k := len(r.points)
		r.points = append(r.points, p)
		r.ids = append(r.ids, pointID(p, i))
		coords = append(coords, spatial.LonLat{Lon: p.Lon, Lat: p.Lat})

		v, ok := ResolveValue(p.Properties, field)
		r.values = append(r.values, v)
		if !ok {
			continue
		}
		if tier, ok := Classify(v, th); ok {
			r.tiers[tier] = append(r.tiers[tier], k)
		}
	}
	if len(coords) == 0 {
		return r
	}

	r.proj = spatial.NewProjector(coords)
	r.projected = r.proj.ForwardAll(coords)
	return r
}

func (r *run) buildTier(tier Tier, params Params, th Thresholds) []Zone {
	members := r.tiers[tier]
	if len(members) == 0 {
		return nil
	}

	pts := make([]spatial.Point, len(members))
	for k, idx := range members {
		pts[k] = r.projected[idx]
	}

	clusters := spatial.DBSCAN(pts, params.Eps, params.MinPts)
	zones := make([]Zone, 0, len(clusters))
	for ci, cluster := range clusters {
		idxs := make([]int, len(cluster))
		for k, local := range cluster {
			idxs[k] = members[local]
		}
		zones = append(zones, r.buildZone(tier, ci, idxs, params, th))
	}
	return zones
}

func (r *run) buildZone(tier Tier, clusterIndex int, idxs []int, params Params, th Thresholds) Zone {
	memberPts := make([]spatial.Point, len(idxs))
	velocities := make([]float64, len(idxs))
	ids := make([]string, len(idxs))
	for k, idx := range idxs {
		memberPts[k] = r.projected[idx]
		velocities[k] = r.values[idx]
		ids[k] = r.ids[idx]
	}
	sort.Float64s(velocities)
	sort.Strings(ids)

	ring, isHull := spatial.Ring(memberPts, spatial.RingOptions{
		Radius: params.Eps / 2,
		Sides:  params.PolygonSides,
	})
	polygon := make([][2]float64, len(ring))
	for k, pt := range ring {
		ll := r.proj.Inverse(pt)
		polygon[k] = [2]float64{ll.Lon, ll.Lat}
	}
	bbox, centroid := ringExtent(polygon)

	return Zone{
		ZoneID:      ZoneID(params.Dataset, tier, params.Method, ids, clusterIndex, params.Eps, params.MinPts, th),
		Dataset:     params.Dataset,
		Level:       tier,
		Method:      params.Method,
		Thresholds:  th,
		PointCount:  len(idxs),
		MinVelocity: velocities[0],
		P95Velocity: Percentile(velocities, p95),
		BoundingBox: bbox,
		Centroid:    centroid,
		Polygon:     polygon,
		MemberIDs:   ids,
		Synthetic:   !isHull,
	}
}

// ringExtent returns the bounding box and vertex centroid of a closed lon/lat
// ring, ignoring the closing vertex. Both are nil for an empty ring.
func ringExtent(ring [][2]float64) (*[4]float64, *[2]float64) {
	open := ring
	if n := len(open); n > 1 && open[0] == open[n-1] {
		open = open[:n-1]
	}
	if len(open) == 0 {
		return nil, nil
	}

	flat := make([]float64, 0, 2*len(ring))
	var sumLon, sumLat float64
	for _, c := range open {
		sumLon += c[0]
		sumLat += c[1]
	}
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	b := geom.NewLineStringFlat(geom.XY, flat).Bounds()

	n := float64(len(open))
	return &[4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)},
		&[2]float64{sumLon / n, sumLat / n}
}

// pointID is the caller's ID, or the input position for anonymous points.
func pointID(p MeasuredPoint, index int) string {
	if p.ID != "" {
		return p.ID
	}
	return "#" + strconv.Itoa(index)
}
