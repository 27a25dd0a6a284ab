package domain

import (
	"context"
	"log/slog"
)

// Place sources recorded on enriched zones.
const (
	PlaceSourceReverse = "reverse"
	PlaceSourceNone    = "none"
	PlaceSourceFailed  = "failed"
)

// EnrichZonesWithPlaces reverse-geocodes each zone centroid and returns copies
// of the zones with Place set. The input slice is not modified. A nil geocoder
// returns zones unchanged; a failed lookup marks the zone's place as "failed"
// and moves on (graceful degradation). Enrichment stops early, leaving the
// remaining zones without a place, once ctx is done.
func EnrichZonesWithPlaces(ctx context.Context, zones []Zone, geocoder Geocoder, logger *slog.Logger) []Zone {
	if geocoder == nil || len(zones) == 0 {
		return zones
	}

	out := make([]Zone, len(zones))
	copy(out, zones)

	for i := range out {
		if ctx.Err() != nil {
			logger.Warn("place enrichment interrupted",
				"dataset", out[i].Dataset,
				"remaining", len(out)-i,
				"error", ctx.Err(),
			)
			break
		}
		z := &out[i]
		if z.Centroid == nil {
			continue
		}
		lon, lat := z.Centroid[0], z.Centroid[1]

		result, err := geocoder.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"zone_id", z.ZoneID,
				"lat", lat,
				"lon", lon,
				"error", err,
			)
			z.Place = &Place{Source: PlaceSourceFailed}
			continue
		}
		if result.FormattedAddress == "" {
			z.Place = &Place{Source: PlaceSourceNone}
			continue
		}
		z.Place = &Place{
			Name:             result.PlaceName,
			FormattedAddress: result.FormattedAddress,
			Confidence:       result.Confidence,
			Source:           PlaceSourceReverse,
		}
	}

	return out
}
