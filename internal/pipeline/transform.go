package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"

	"github.com/couchcryptid/risk-zone-service/internal/adapter/geojson"
	"github.com/couchcryptid/risk-zone-service/internal/domain"
	"github.com/couchcryptid/risk-zone-service/internal/observability"
)

// maxMemoEntries bounds the result memo; expired entries are pruned once it is reached.
const maxMemoEntries = 1024

// memoEntry is a cached build without its processing timestamp.
type memoEntry struct {
	zones []domain.Zone
	meta  domain.RunMetadata
}

// ZoneTransformer turns zoning requests into zone results. It implements
// Transformer for the Kafka pipeline and serves the HTTP API through Build.
type ZoneTransformer struct {
	defaults domain.Params
	geocoder domain.Geocoder
	memo     *cache.Cache
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewTransformer creates a ZoneTransformer. Request overrides are applied on
// top of defaults. A nil geocoder disables place enrichment and a zero
// resultTTL disables the result memo.
func NewTransformer(defaults domain.Params, geocoder domain.Geocoder, resultTTL time.Duration, logger *slog.Logger, metrics *observability.Metrics) *ZoneTransformer {
	t := &ZoneTransformer{
		defaults: defaults,
		geocoder: geocoder,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	if resultTTL > 0 {
		t.memo = cache.New(resultTTL, 0)
	}
	return t
}

// SetClock replaces the clock used to stamp ProcessedAt.
func (t *ZoneTransformer) SetClock(c clockwork.Clock) {
	t.clock = c
}

// Transform decodes a ZoneRequest from the message value, builds its zones and
// serializes the result. A request without a dataset falls back to the message key.
func (t *ZoneTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	var req domain.ZoneRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return domain.OutputEvent{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if req.Dataset == "" {
		req.Dataset = string(raw.Key)
	}

	result, err := t.Build(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return serializeResult(result)
}

// Build runs the zone engine for one request. Errors wrap
// domain.ErrInvalidRequest, a *domain.ConfigurationError, or the context error
// when ctx ends before place enrichment completes. Builds with a failed place
// lookup are not memoized.
func (t *ZoneTransformer) Build(ctx context.Context, req domain.ZoneRequest) (domain.ZoneResult, error) {
	if len(req.Points) == 0 {
		return domain.ZoneResult{}, fmt.Errorf("%w: missing points", domain.ErrInvalidRequest)
	}
	points, err := geojson.DecodePoints(req.Points)
	if err != nil {
		return domain.ZoneResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	params := req.Params.Apply(t.defaults)
	params.Dataset = req.Dataset
	if err := params.Validate(); err != nil {
		return domain.ZoneResult{}, err
	}

	key := memoKey(params, req.Points)
	entry, ok := t.lookup(key)
	if !ok {
		entry, err = t.compute(ctx, points, params)
		if err != nil {
			return domain.ZoneResult{}, err
		}
		if cacheable(entry.zones) {
			t.store(key, entry)
		}
	}

	return domain.ZoneResult{
		Dataset:     params.Dataset,
		Metadata:    entry.meta,
		Zones:       entry.zones,
		ProcessedAt: t.clock.Now().UTC(),
	}, nil
}

func (t *ZoneTransformer) compute(ctx context.Context, points []domain.MeasuredPoint, params domain.Params) (memoEntry, error) {
	start := time.Now()
	zones, meta, err := domain.BuildZones(points, params)
	if err != nil {
		return memoEntry{}, err
	}
	t.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	t.metrics.PointsClassified.WithLabelValues(string(domain.TierDanger)).Add(float64(meta.DangerPoints))
	t.metrics.PointsClassified.WithLabelValues(string(domain.TierWarning)).Add(float64(meta.WarningPoints))
	t.metrics.ZonesBuilt.WithLabelValues(string(domain.TierDanger)).Add(float64(meta.DangerZoneCount))
	t.metrics.ZonesBuilt.WithLabelValues(string(domain.TierWarning)).Add(float64(meta.WarningZoneCount))

	t.logger.Debug("zones built",
		"dataset", params.Dataset,
		"input_points", meta.InputPoints,
		"zone_count", meta.ZoneCount,
		"duration", time.Since(start),
	)

	zones = domain.EnrichZonesWithPlaces(ctx, zones, t.geocoder, t.logger)
	if err := ctx.Err(); err != nil {
		return memoEntry{}, fmt.Errorf("build zones for %s: %w", params.Dataset, err)
	}
	return memoEntry{zones: zones, meta: meta}, nil
}

// cacheable reports whether no place lookup of the build failed.
func cacheable(zones []domain.Zone) bool {
	for i := range zones {
		if p := zones[i].Place; p != nil && p.Source == domain.PlaceSourceFailed {
			return false
		}
	}
	return true
}

func (t *ZoneTransformer) lookup(key string) (memoEntry, bool) {
	if t.memo == nil {
		return memoEntry{}, false
	}
	if v, ok := t.memo.Get(key); ok {
		t.metrics.ResultCache.WithLabelValues("hit").Inc()
		return v.(memoEntry), true
	}
	t.metrics.ResultCache.WithLabelValues("miss").Inc()
	return memoEntry{}, false
}

func (t *ZoneTransformer) store(key string, entry memoEntry) {
	if t.memo == nil {
		return
	}
	if t.memo.ItemCount() >= maxMemoEntries {
		t.memo.DeleteExpired()
		if t.memo.ItemCount() >= maxMemoEntries {
			return
		}
	}
	t.memo.Set(key, entry, cache.DefaultExpiration)
}

// memoKey identifies a build by its effective params and the exact points document.
func memoKey(params domain.Params, points []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%#v\n", params)
	h.Write(points)
	return hex.EncodeToString(h.Sum(nil))
}

// serializeResult renders a result as the sink message, keyed by dataset.
func serializeResult(result domain.ZoneResult) (domain.OutputEvent, error) {
	data, err := geojson.MarshalResult(result)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize zone result: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(result.Dataset),
		Value: data,
		Headers: map[string]string{
			"dataset":      result.Dataset,
			"zone_count":   strconv.Itoa(len(result.Zones)),
			"processed_at": result.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
