package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/risk-zone-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	HTTPMaxBodyBytes int64
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCacheTTL  time.Duration

	// Zoning defaults for requests that do not override them.
	ZoneVelocityField  string
	ZoneMild           float64
	ZoneStrong         float64
	ZoneEpsMeters      float64
	ZoneMinPts         int
	ZoneMethod         string
	ZonePolygonSides   int
	ZoneResultCacheTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}
	mapboxCacheTTL, err := parseDuration("MAPBOX_CACHE_TTL", "24h", false)
	if err != nil {
		return nil, err
	}
	resultCacheTTL, err := parseDuration("ZONE_RESULT_CACHE_TTL", "10m", true)
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	zone, err := loadZoneDefaults()
	if err != nil {
		return nil, err
	}

	maxBody, err := parseInt("HTTP_MAX_BODY_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	if maxBody <= 0 {
		return nil, errors.New("invalid HTTP_MAX_BODY_BYTES: must be positive")
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "ground-measurements"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "risk-zones"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "risk-zone-service"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		HTTPMaxBodyBytes:   int64(maxBody),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
		MapboxCacheTTL:  mapboxCacheTTL,

		ZoneVelocityField:  zone.velocityField,
		ZoneMild:           zone.mild,
		ZoneStrong:         zone.strong,
		ZoneEpsMeters:      zone.eps,
		ZoneMinPts:         zone.minPts,
		ZoneMethod:         zone.method,
		ZonePolygonSides:   zone.sides,
		ZoneResultCacheTTL: resultCacheTTL,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// ZoneParams returns the configured zoning defaults. Requests overlay their
// own parameters on top of these.
func (c *Config) ZoneParams() domain.Params {
	return domain.Params{
		VelocityField: c.ZoneVelocityField,
		Mild:          c.ZoneMild,
		Strong:        c.ZoneStrong,
		Method:        c.ZoneMethod,
		Eps:           c.ZoneEpsMeters,
		MinPts:        c.ZoneMinPts,
		PolygonSides:  c.ZonePolygonSides,
	}
}

type zoneDefaults struct {
	velocityField string
	mild, strong  float64
	eps           float64
	minPts        int
	method        string
	sides         int
}

func loadZoneDefaults() (zoneDefaults, error) {
	z := zoneDefaults{
		velocityField: os.Getenv("ZONE_VELOCITY_FIELD"),
		method:        sharedcfg.EnvOrDefault("ZONE_METHOD", "cluster_hull"),
	}

	var err error
	if z.mild, err = parseFloat("ZONE_MILD", 2.0); err != nil {
		return z, err
	}
	if z.strong, err = parseFloat("ZONE_STRONG", 10.0); err != nil {
		return z, err
	}
	if z.eps, err = parseFloat("ZONE_EPS_METERS", 250); err != nil {
		return z, err
	}
	if z.eps <= 0 {
		return z, errors.New("invalid ZONE_EPS_METERS: must be positive")
	}
	if z.minPts, err = parseInt("ZONE_MIN_PTS", 5); err != nil {
		return z, err
	}
	if z.minPts < 1 {
		return z, errors.New("invalid ZONE_MIN_PTS: must be at least 1")
	}
	if z.sides, err = parseInt("ZONE_POLYGON_SIDES", 12); err != nil {
		return z, err
	}
	if z.sides < 0 {
		return z, errors.New("invalid ZONE_POLYGON_SIDES: must not be negative")
	}
	return z, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: must be a finite number", key)
	}
	return v, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", key)
	}
	return n, nil
}

// parseDuration reads a duration variable. Zero is accepted only when allowZero is set.
func parseDuration(key, fallback string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
