package domain

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultMethod tags zones built from cluster hulls.
	DefaultMethod = "cluster_hull"
	// DefaultMinPts is the DBSCAN core-point threshold used when none is configured.
	DefaultMinPts = 5
	// DefaultPolygonSides is the vertex count of synthetic zone polygons.
	DefaultPolygonSides = 12
)

// Params configures a single BuildZones run.
type Params struct {
	Dataset       string  // opaque label, only used for zone provenance
	VelocityField string  // optional property holding the rate
	Mild          float64 // warning magnitude
	Strong        float64 // danger magnitude
	Method        string  // descriptive tag, defaults to DefaultMethod
	Eps           float64 // clustering radius in meters
	MinPts        int     // DBSCAN core-point threshold
	PolygonSides  int     // synthetic polygon sides, 0 selects DefaultPolygonSides
}

// ConfigurationError reports structurally invalid Params. It aborts a run with
// no partial result and maps to a client error at the transport layer.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid zone parameter %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Validate checks that the numeric parameters can drive a run. An inverted
// band (Strong < Mild) is deliberately accepted.
func (p Params) Validate() error {
	if !isFinite(p.Mild) {
		return &ConfigurationError{Field: "mild", Reason: "must be a finite number"}
	}
	if !isFinite(p.Strong) {
		return &ConfigurationError{Field: "strong", Reason: "must be a finite number"}
	}
	if !isFinite(p.Eps) {
		return &ConfigurationError{Field: "eps", Reason: "must be a finite number"}
	}
	if p.Eps <= 0 {
		return &ConfigurationError{Field: "eps", Reason: "must be positive"}
	}
	if p.MinPts <= 0 {
		return &ConfigurationError{Field: "min_pts", Reason: "must be positive"}
	}
	if p.PolygonSides < 0 {
		return &ConfigurationError{Field: "polygon_sides", Reason: "must not be negative"}
	}
	return nil
}

// Thresholds returns the sign-free magnitudes used for tiering.
func (p Params) Thresholds() Thresholds {
	return Thresholds{Mild: math.Abs(p.Mild), Strong: math.Abs(p.Strong)}
}

func (p Params) withDefaults() Params {
	if p.Method == "" {
		p.Method = DefaultMethod
	}
	if p.PolygonSides == 0 {
		p.PolygonSides = DefaultPolygonSides
	}
	return p
}
