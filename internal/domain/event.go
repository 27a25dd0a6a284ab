package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidRequest marks a zoning request whose payload cannot be decoded.
var ErrInvalidRequest = errors.New("invalid zone request")

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ZoneRequest is the payload of a zoning job. Points holds a GeoJSON
// FeatureCollection of Point features; Params overrides the service defaults
// field by field.
type ZoneRequest struct {
	Dataset string          `json:"dataset"`
	Params  *RequestParams  `json:"params,omitempty"`
	Points  json.RawMessage `json:"points"`
}

// RequestParams carries optional per-request overrides. Nil fields keep the
// configured default.
type RequestParams struct {
	VelocityField *string  `json:"velocity_field,omitempty"`
	Mild          *float64 `json:"mild,omitempty"`
	Strong        *float64 `json:"strong,omitempty"`
	Method        *string  `json:"method,omitempty"`
	Eps           *float64 `json:"eps,omitempty"`
	MinPts        *int     `json:"min_pts,omitempty"`
	PolygonSides  *int     `json:"polygon_sides,omitempty"`
}

// Apply overlays the non-nil overrides onto base.
func (r *RequestParams) Apply(base Params) Params {
	if r == nil {
		return base
	}
	if r.VelocityField != nil {
		base.VelocityField = *r.VelocityField
	}
	if r.Mild != nil {
		base.Mild = *r.Mild
	}
	if r.Strong != nil {
		base.Strong = *r.Strong
	}
	if r.Method != nil {
		base.Method = *r.Method
	}
	if r.Eps != nil {
		base.Eps = *r.Eps
	}
	if r.MinPts != nil {
		base.MinPts = *r.MinPts
	}
	if r.PolygonSides != nil {
		base.PolygonSides = *r.PolygonSides
	}
	return base
}

// ZoneResult is the outcome of one zoning job.
type ZoneResult struct {
	Dataset     string      `json:"dataset"`
	Metadata    RunMetadata `json:"metadata"`
	Zones       []Zone      `json:"zones"`
	ProcessedAt time.Time   `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
