// Package shapefile reads point shapefiles into measured points.
package shapefile

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/jonas-p/go-shp"
)

// ErrNotShapefile is returned for paths without a .shp extension.
var ErrNotShapefile = errors.New("shapefile: path must end in .shp")

// idFields are attribute names, matched case-insensitively, used as the point ID.
var idFields = []string{"id", "pid", "point_id", "code"}

// ReadPoints opens a shapefile and its DBF sidecar and returns one measured
// point per record in file order. Numeric attributes ('N' and 'F' fields) are
// parsed to float64; other attributes are kept as trimmed strings, and empty
// values are omitted. Records whose shape is not a point get NaN coordinates.
func ReadPoints(path string) ([]domain.MeasuredPoint, error) {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return nil, ErrNotShapefile
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shapefile: open %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}
	idIdx := idFieldIndex(names)

	var points []domain.MeasuredPoint
	for reader.Next() {
		_, shape := reader.Shape()

		p := domain.MeasuredPoint{Lon: math.NaN(), Lat: math.NaN()}
		switch s := shape.(type) {
		case *shp.Point:
			p.Lon, p.Lat = s.X, s.Y
		case *shp.PointZ:
			p.Lon, p.Lat = s.X, s.Y
		case *shp.PointM:
			p.Lon, p.Lat = s.X, s.Y
		}

		if len(fields) > 0 {
			p.Properties = make(map[string]any, len(fields))
			for i, f := range fields {
				val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
				if val == "" {
					continue
				}
				p.Properties[names[i]] = attributeValue(f.Fieldtype, val)
			}
			if idIdx >= 0 {
				if v, ok := p.Properties[names[idIdx]]; ok {
					p.ID = fmt.Sprint(v)
				}
			}
		}

		points = append(points, p)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("shapefile: read %s: %w", path, err)
	}

	return points, nil
}

func attributeValue(fieldType byte, val string) any {
	if fieldType == 'N' || fieldType == 'F' {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return val
}

func idFieldIndex(names []string) int {
	for _, want := range idFields {
		for i, n := range names {
			if strings.EqualFold(n, want) {
				return i
			}
		}
	}
	return -1
}
