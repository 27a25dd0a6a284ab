package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ZoneID produces a deterministic ID from a cluster's provenance. memberIDs may
// be in any order; they are sorted before hashing. The tier is used as a prefix
// so IDs read naturally in tickets, e.g. "danger-3f9c0a1b2c4d5e6f".
func ZoneID(dataset string, tier Tier, method string, memberIDs []string, clusterIndex int, eps float64, minPts int, th Thresholds) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)

	input := fmt.Sprintf("%s|%s|%s|%s|%d|%g|%d|%g|%g",
		dataset, tier, method, strings.Join(ids, ","), clusterIndex, eps, minPts, th.Mild, th.Strong)
	hash := sha256.Sum256([]byte(input))
	return string(tier) + "-" + hex.EncodeToString(hash[:8])
}

// Percentile returns the q-quantile (0 <= q <= 1) of an ascending slice using
// linear interpolation between closest ranks. It returns NaN for an empty slice.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
