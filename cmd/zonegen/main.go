// Command zonegen builds risk zones offline from a point file and writes the
// result document the service would publish. It is used to produce fixtures
// for the service and downstream consumers, and to try parameters on real
// survey exports before deploying them.
//
// Usage:
//
//	go run ./cmd/zonegen \
//	  -in data/rome_insar.shp \
//	  -dataset rome-2024 \
//	  -out data/mock/rome_zones.json \
//	  -request-out data/mock/rome_request.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/risk-zone-service/internal/adapter/geojson"
	"github.com/couchcryptid/risk-zone-service/internal/adapter/shapefile"
	"github.com/couchcryptid/risk-zone-service/internal/domain"
)

// fixtureTime stamps generated results so fixtures are reproducible.
var fixtureTime = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

type options struct {
	in         string
	out        string
	requestOut string
	now        bool
	params     domain.Params
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	points, err := loadPoints(opts.in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.in, err)
	}
	log.Printf("%s: %d points", opts.in, len(points))

	var clock clockwork.Clock = clockwork.NewFakeClockAt(fixtureTime)
	if opts.now {
		clock = clockwork.NewRealClock()
	}
	result, err := buildResult(points, opts.params, clock)
	if err != nil {
		return err
	}

	data, err := geojson.MarshalResult(result)
	if err != nil {
		return err
	}
	if err := writeFile(opts.out, data); err != nil {
		return fmt.Errorf("writing zones: %w", err)
	}
	log.Printf("wrote zones: %s", opts.out)

	if opts.requestOut != "" {
		if err := writeRequest(opts.requestOut, opts.params, points); err != nil {
			return fmt.Errorf("writing request: %w", err)
		}
		log.Printf("wrote request: %s", opts.requestOut)
	}

	printStats(stdout, result)
	return nil
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("zonegen", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.in, "in", "", "input points (.shp, .geojson or .json)")
	fs.StringVar(&opts.out, "out", "", "output path for the zone result document")
	fs.StringVar(&opts.requestOut, "request-out", "", "optional output path for an equivalent zoning request")
	fs.BoolVar(&opts.now, "now", false, "stamp processed_at with the current time instead of the fixture time")
	fs.StringVar(&opts.params.Dataset, "dataset", "", "dataset label for zone provenance")
	fs.StringVar(&opts.params.VelocityField, "field", "", "property holding the velocity (default: first known alias)")
	fs.Float64Var(&opts.params.Mild, "mild", 2, "warning magnitude")
	fs.Float64Var(&opts.params.Strong, "strong", 10, "danger magnitude")
	fs.Float64Var(&opts.params.Eps, "eps", 250, "clustering radius in meters")
	fs.IntVar(&opts.params.MinPts, "min-pts", domain.DefaultMinPts, "DBSCAN core-point threshold")
	fs.StringVar(&opts.params.Method, "method", domain.DefaultMethod, "method tag recorded on zones")
	fs.IntVar(&opts.params.PolygonSides, "sides", domain.DefaultPolygonSides, "vertex count of synthetic polygons")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.in == "" || opts.out == "" {
		fs.Usage()
		return options{}, errors.New("missing required flags: -in, -out")
	}
	if opts.params.Dataset == "" {
		base := filepath.Base(opts.in)
		opts.params.Dataset = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return opts, nil
}

// loadPoints reads a shapefile or a GeoJSON FeatureCollection, chosen by extension.
func loadPoints(path string) ([]domain.MeasuredPoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return shapefile.ReadPoints(path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return geojson.DecodePoints(data)
	default:
		return nil, fmt.Errorf("unsupported input %q: want .shp, .geojson or .json", filepath.Ext(path))
	}
}

func buildResult(points []domain.MeasuredPoint, params domain.Params, clock clockwork.Clock) (domain.ZoneResult, error) {
	zones, meta, err := domain.BuildZones(points, params)
	if err != nil {
		return domain.ZoneResult{}, err
	}
	return domain.ZoneResult{
		Dataset:     params.Dataset,
		Metadata:    meta,
		Zones:       zones,
		ProcessedAt: clock.Now().UTC(),
	}, nil
}

// writeRequest writes a zoning request carrying the same points and params,
// ready to be produced onto the source topic.
func writeRequest(path string, params domain.Params, points []domain.MeasuredPoint) error {
	fc, err := json.Marshal(geojson.EncodePoints(points))
	if err != nil {
		return err
	}
	req := domain.ZoneRequest{
		Dataset: params.Dataset,
		Params: &domain.RequestParams{
			VelocityField: &params.VelocityField,
			Mild:          &params.Mild,
			Strong:        &params.Strong,
			Method:        &params.Method,
			Eps:           &params.Eps,
			MinPts:        &params.MinPts,
			PolygonSides:  &params.PolygonSides,
		},
		Points: fc,
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printStats(w io.Writer, result domain.ZoneResult) {
	m := result.Metadata
	fmt.Fprintln(w, "\n=== Zone stats ===")
	fmt.Fprintf(w, "Dataset: %s\n", result.Dataset)
	fmt.Fprintf(w, "Thresholds: mild=%g strong=%g eps=%gm min_pts=%d\n", m.Thresholds.Mild, m.Thresholds.Strong, m.Eps, m.MinPts)
	fmt.Fprintf(w, "Input points: %d (danger=%d, warning=%d)\n", m.InputPoints, m.DangerPoints, m.WarningPoints)
	fmt.Fprintf(w, "Zones: %d (danger=%d, warning=%d)\n", m.ZoneCount, m.DangerZoneCount, m.WarningZoneCount)

	synthetic := 0
	for i := range result.Zones {
		if result.Zones[i].Synthetic {
			synthetic++
		}
	}
	fmt.Fprintf(w, "Synthetic polygons: %d\n", synthetic)

	for i := range result.Zones {
		z := &result.Zones[i]
		fmt.Fprintf(w, "  %-8s %s points=%d min=%g p95=%g vertices=%d\n",
			z.Level, z.ZoneID, z.PointCount, z.MinVelocity, z.P95Velocity, len(z.Polygon))
	}
}
