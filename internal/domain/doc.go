// Package domain turns geo-referenced ground-deformation measurements into
// named risk zones.
//
// # Input
//
// A run receives an ordered list of [MeasuredPoint] values, typically one per
// InSAR persistent scatterer or settlement benchmark. Each point carries a
// lon/lat coordinate and a free-form property map holding the measured rate
// (mm/yr, negative for subsidence). Real datasets always contain malformed
// rows, so per-point problems are never errors:
//
//	missing or non-2D geometry    → skipped (Lon/Lat are NaN)
//	lon ∉ [-180,180], lat ∉ [-90,90], non-finite → skipped
//	no numeric value              → counted in InputPoints, excluded from tiering
//
// # Value Resolution
//
// The rate is looked up in the property map by the caller-supplied field name
// first, then through a fixed ordered alias list:
//
//	velocity, vel, rate, v, value
//
// Numbers and numeric strings are accepted; NaN and ±Inf are not.
//
// # Tiering
//
// Thresholds are magnitudes; their sign is ignored. With mild = |Mild| and
// strong = |Strong|:
//
//	value <= -strong           → danger
//	-strong < value <= -mild   → warning
//	otherwise                  → not tiered
//
// strong < mild is allowed and simply shrinks or empties the warning band.
//
// # Zones
//
// All valid points of a run share one projection anchor (their mean lon/lat).
// Each tier is clustered independently with grid-accelerated DBSCAN in local
// meters; every cluster becomes one [Zone] whose outline is the convex hull of
// its members, or a synthetic 12-gon of radius eps/2 (widened to cover the
// members) when the hull is degenerate: fewer than three distinct points, or
// all members collinear. Rings are closed and carry at least four vertices.
// Danger zones always precede warning zones in the output.
//
// # ID Generation
//
// Zone IDs are deterministic SHA-256 hashes of
// dataset|tier|method|sorted member ids|cluster index|eps|minPts|mild|strong.
// Re-running the same input in the same order reproduces every ID, which lets
// downstream ticketing deduplicate zones across runs. See [ZoneID].
package domain
