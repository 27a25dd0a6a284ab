// Command validate checks a zone result document for structural integrity:
// ring geometry, zone identity, tier membership, ordering, and metadata
// consistency. Given the source points it also rebuilds the zones and verifies
// that the document matches the engine's deterministic output.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -zones data/mock/rome_zones.json \
//	  -input data/rome_insar.shp
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/couchcryptid/risk-zone-service/internal/adapter/geojson"
	"github.com/couchcryptid/risk-zone-service/internal/adapter/shapefile"
	"github.com/couchcryptid/risk-zone-service/internal/domain"
)

// coordTolerance absorbs float noise when comparing vertices against extents.
const coordTolerance = 1e-9

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	zonesPath := flag.String("zones", "", "path to a zone result document")
	inputPath := flag.String("input", "", "optional source points (.shp, .geojson or .json) to rebuild and compare")
	field := flag.String("field", "", "velocity property used when the zones were built")
	sides := flag.Int("sides", domain.DefaultPolygonSides, "synthetic polygon sides used when the zones were built")
	flag.Parse()

	if *zonesPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*zonesPath, *inputPath, *field, *sides); code != 0 {
		os.Exit(code)
	}
}

func run(zonesPath, inputPath, field string, sides int) int {
	fmt.Println("=== Risk Zone Integrity Validation ===")
	fmt.Println()

	data, err := os.ReadFile(zonesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read zones: %v\n", err)
		return 1
	}
	result, err := geojson.UnmarshalResult(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode zones: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateGeometry(result.Zones),
		validateMembership(result.Zones),
		validateOrdering(result),
		validateVelocities(result.Zones),
	}

	if inputPath != "" {
		points, err := loadPoints(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load input: %v\n", err)
			return 1
		}
		phases = append(phases, validateDeterminism(result, points, field, sides))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Zones: %d (danger=%d, warning=%d) from %d input points\n",
		len(result.Zones), result.Metadata.DangerZoneCount, result.Metadata.WarningZoneCount, result.Metadata.InputPoints)

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadPoints(path string) ([]domain.MeasuredPoint, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return shapefile.ReadPoints(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.DecodePoints(data)
}

// ── Phase 1: Geometry ──
// Every polygon is a closed ring of finite lon/lat vertices inside its extent.

func validateGeometry(zones []domain.Zone) *phase {
	p := &phase{name: "Phase 1: Ring Geometry"}
	for i := range zones {
		checkRing(p, &zones[i])
	}
	return p
}

func checkRing(p *phase, z *domain.Zone) {
	ring := z.Polygon
	if len(ring) < 4 {
		p.errorf("zone %s: ring has %d vertices, want at least 4", z.ZoneID, len(ring))
		return
	}
	if ring[0] != ring[len(ring)-1] {
		p.errorf("zone %s: ring is not closed", z.ZoneID)
	}
	for k, c := range ring {
		if !validLonLat(c[0], c[1]) {
			p.errorf("zone %s: vertex %d (%g, %g) is not a valid lon/lat", z.ZoneID, k, c[0], c[1])
		}
	}

	if z.BoundingBox == nil {
		p.errorf("zone %s: missing bounding box", z.ZoneID)
		return
	}
	bb := z.BoundingBox
	for k, c := range ring {
		if !within(c[0], bb[0], bb[2]) || !within(c[1], bb[1], bb[3]) {
			p.errorf("zone %s: vertex %d lies outside the bounding box", z.ZoneID, k)
			break
		}
	}
	if z.Centroid == nil {
		p.errorf("zone %s: missing centroid", z.ZoneID)
	} else if !within(z.Centroid[0], bb[0], bb[2]) || !within(z.Centroid[1], bb[1], bb[3]) {
		p.errorf("zone %s: centroid lies outside the bounding box", z.ZoneID)
	}
}

// ── Phase 2: Identity and membership ──
// Zone IDs are unique and no point belongs to two zones of the same tier.

func validateMembership(zones []domain.Zone) *phase {
	p := &phase{name: "Phase 2: Zone Identity & Membership"}

	seenZones := map[string]bool{}
	owner := map[domain.Tier]map[string]string{}
	for i := range zones {
		z := &zones[i]
		if z.ZoneID == "" {
			p.errorf("zone %d: missing zone_id", i)
		} else if seenZones[z.ZoneID] {
			p.errorf("zone %d: duplicate zone_id %s", i, z.ZoneID)
		}
		seenZones[z.ZoneID] = true

		if z.Level != domain.TierDanger && z.Level != domain.TierWarning {
			p.errorf("zone %s: unknown level %q", z.ZoneID, z.Level)
			continue
		}
		if z.PointCount != len(z.MemberIDs) {
			p.errorf("zone %s: point_count %d but %d member ids", z.ZoneID, z.PointCount, len(z.MemberIDs))
		}
		if z.PointCount < 1 {
			p.errorf("zone %s: zone has no members", z.ZoneID)
		}

		if owner[z.Level] == nil {
			owner[z.Level] = map[string]string{}
		}
		for _, id := range z.MemberIDs {
			if prev, ok := owner[z.Level][id]; ok {
				p.errorf("point %s: member of %s zones %s and %s", id, z.Level, prev, z.ZoneID)
				continue
			}
			owner[z.Level][id] = z.ZoneID
		}
	}
	return p
}

// ── Phase 3: Ordering and metadata ──

func validateOrdering(result domain.ZoneResult) *phase {
	p := &phase{name: "Phase 3: Ordering & Metadata"}
	m := result.Metadata

	var danger, warning int
	seenWarning := false
	for i := range result.Zones {
		z := &result.Zones[i]
		switch z.Level {
		case domain.TierDanger:
			danger++
			if seenWarning {
				p.errorf("zone %s: danger zone listed after a warning zone", z.ZoneID)
			}
		case domain.TierWarning:
			warning++
			seenWarning = true
		}

		if z.Dataset != m.Dataset {
			p.errorf("zone %s: dataset %q, metadata says %q", z.ZoneID, z.Dataset, m.Dataset)
		}
		if z.Method != m.Method {
			p.errorf("zone %s: method %q, metadata says %q", z.ZoneID, z.Method, m.Method)
		}
		if z.Thresholds != m.Thresholds {
			p.errorf("zone %s: thresholds %+v, metadata says %+v", z.ZoneID, z.Thresholds, m.Thresholds)
		}
	}

	if m.ZoneCount != len(result.Zones) {
		p.errorf("metadata zone_count %d, document has %d zones", m.ZoneCount, len(result.Zones))
	}
	if m.DangerZoneCount != danger {
		p.errorf("metadata danger_zone_count %d, document has %d", m.DangerZoneCount, danger)
	}
	if m.WarningZoneCount != warning {
		p.errorf("metadata warning_zone_count %d, document has %d", m.WarningZoneCount, warning)
	}
	if m.DangerPoints+m.WarningPoints > m.InputPoints {
		p.errorf("metadata tiers %d+%d points exceed %d input points", m.DangerPoints, m.WarningPoints, m.InputPoints)
	}
	if result.Dataset != m.Dataset {
		p.errorf("result dataset %q, metadata says %q", result.Dataset, m.Dataset)
	}
	return p
}

// ── Phase 4: Velocity statistics ──
// Zone statistics must be consistent with the tier band of the zone.

func validateVelocities(zones []domain.Zone) *phase {
	p := &phase{name: "Phase 4: Velocity Statistics"}
	for i := range zones {
		z := &zones[i]
		if z.MinVelocity > z.P95Velocity {
			p.errorf("zone %s: min_velocity %g above p95_velocity %g", z.ZoneID, z.MinVelocity, z.P95Velocity)
		}
		strong, mild := -z.Thresholds.Strong, -z.Thresholds.Mild
		switch z.Level {
		case domain.TierDanger:
			if z.P95Velocity > strong {
				p.errorf("zone %s: danger p95_velocity %g above %g", z.ZoneID, z.P95Velocity, strong)
			}
		case domain.TierWarning:
			if z.MinVelocity <= strong {
				p.errorf("zone %s: warning min_velocity %g in the danger band", z.ZoneID, z.MinVelocity)
			}
			if z.P95Velocity > mild {
				p.errorf("zone %s: warning p95_velocity %g above %g", z.ZoneID, z.P95Velocity, mild)
			}
		}
	}
	return p
}

// ── Phase 5: Determinism ──
// Rebuilding from the source points with the recorded params must reproduce
// the document. Place enrichment is not part of the engine output.

func validateDeterminism(result domain.ZoneResult, points []domain.MeasuredPoint, field string, sides int) *phase {
	p := &phase{name: "Phase 5: Deterministic Rebuild"}
	m := result.Metadata

	params := domain.Params{
		Dataset:       m.Dataset,
		VelocityField: field,
		Mild:          m.Thresholds.Mild,
		Strong:        m.Thresholds.Strong,
		Method:        m.Method,
		Eps:           m.Eps,
		MinPts:        m.MinPts,
		PolygonSides:  sides,
	}
	zones, meta, err := domain.BuildZones(points, params)
	if err != nil {
		p.errorf("rebuild failed: %v", err)
		return p
	}

	if diff := cmp.Diff(meta, m); diff != "" {
		p.errorf("metadata mismatch (-rebuilt +document):\n%s", diff)
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.Zone{}, "Place"),
		cmpopts.EquateApprox(0, coordTolerance),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(zones, result.Zones, opts); diff != "" {
		p.errorf("zones mismatch (-rebuilt +document):\n%s", diff)
	}
	return p
}

func validLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func within(v, lo, hi float64) bool {
	return v >= lo-coordTolerance && v <= hi+coordTolerance
}
