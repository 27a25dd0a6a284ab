package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// velocityAliases are tried in order when the configured field is absent or
// not numeric.
var velocityAliases = []string{"velocity", "vel", "rate", "v", "value"}

// ResolveValue returns the measured rate of a point: props[field] when it is
// numeric, otherwise the first numeric alias. It reports false when nothing
// resolves.
func ResolveValue(props map[string]any, field string) (float64, bool) {
	if len(props) == 0 {
		return 0, false
	}
	if field != "" {
		if v, ok := toFloat(props[field]); ok {
			return v, true
		}
	}
	for _, alias := range velocityAliases {
		if v, ok := toFloat(props[alias]); ok {
			return v, true
		}
	}
	return 0, false
}

// Classify places a value in a tier. Threshold signs are ignored.
func Classify(value float64, th Thresholds) (Tier, bool) {
	mild, strong := math.Abs(th.Mild), math.Abs(th.Strong)
	switch {
	case value <= -strong:
		return TierDanger, true
	case value <= -mild:
		return TierWarning, true
	default:
		return "", false
	}
}

func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if !isFinite(v) {
		return 0, false
	}
	return v, true
}
