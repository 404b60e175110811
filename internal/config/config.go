package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Scene sources.
const (
	SourceFixture = "fixture"
	SourceZonal   = "zonal"
	SourceGeoTIFF = "geotiff"
)

const dateLayout = "2006-01-02"

// Config holds all job settings, populated from environment variables.
type Config struct {
	Dataset   string
	Variables []string
	// StartDate and EndDate bound the scene acquisition dates (start inclusive,
	// end exclusive). Zero values fall back to the dataset profile.
	StartDate time.Time
	EndDate   time.Time

	LocationsFile string
	BufferMeters  float64
	OutputDir     string

	SceneSource  string
	FixturePath  string
	ZonalURL     string
	ZonalToken   string
	ZonalTimeout time.Duration
	GeoTIFFDir   string

	// Redis sample cache, disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Optional sinks.
	KafkaBrokers []string
	KafkaTopic   string
	DatabaseURL  string

	Concurrency       int
	SampleConcurrency int
	PipelineTimeout   time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Dataset:       strings.ToLower(sharedcfg.EnvOrDefault("DATASET", "sentinel2")),
		Variables:     splitList(os.Getenv("VARIABLES")),
		LocationsFile: sharedcfg.EnvOrDefault("LOCATIONS_FILE", "locations.csv"),
		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", "exports"),
		SceneSource:   strings.ToLower(sharedcfg.EnvOrDefault("SCENE_SOURCE", SourceFixture)),
		FixturePath:   sharedcfg.EnvOrDefault("FIXTURE_PATH", "data/mock/scenes.json"),
		ZonalURL:      os.Getenv("ZONAL_URL"),
		ZonalToken:    os.Getenv("ZONAL_TOKEN"),
		GeoTIFFDir:    sharedcfg.EnvOrDefault("GEOTIFF_DIR", "scenes"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaTopic:    sharedcfg.EnvOrDefault("KAFKA_TOPIC", "plot-timeseries"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		HTTPAddr:      lookupOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:      sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),

		ShutdownTimeout: shutdownTimeout,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.StartDate, err = parseDate("START_DATE"); err != nil {
		return nil, err
	}
	if cfg.EndDate, err = parseDate("END_DATE"); err != nil {
		return nil, err
	}
	if cfg.BufferMeters, err = parsePositiveFloat("BUFFER_METERS", 50); err != nil {
		return nil, err
	}
	if cfg.ZonalTimeout, err = parseDuration("ZONAL_TIMEOUT", "30s", false); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration("CACHE_TTL", "720h", true); err != nil {
		return nil, err
	}
	if cfg.PipelineTimeout, err = parseDuration("PIPELINE_TIMEOUT", "0s", true); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0, 0); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = parseInt("CONCURRENCY", 4, 1); err != nil {
		return nil, err
	}
	if cfg.SampleConcurrency, err = parseInt("SAMPLE_CONCURRENCY", 8, 1); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SceneSource {
	case SourceFixture:
		if c.FixturePath == "" {
			return errors.New("FIXTURE_PATH is required for the fixture scene source")
		}
	case SourceZonal:
		if c.ZonalURL == "" {
			return errors.New("ZONAL_URL is required for the zonal scene source")
		}
	case SourceGeoTIFF:
		if c.GeoTIFFDir == "" {
			return errors.New("GEOTIFF_DIR is required for the geotiff scene source")
		}
	default:
		return fmt.Errorf("invalid SCENE_SOURCE %q: want %s, %s or %s", c.SceneSource, SourceFixture, SourceZonal, SourceGeoTIFF)
	}
	if c.LocationsFile == "" {
		return errors.New("LOCATIONS_FILE is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && !c.EndDate.After(c.StartDate) {
		return errors.New("END_DATE must be after START_DATE")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// lookupOrDefault distinguishes an unset variable from one set to "".
func lookupOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDate(key string) (time.Time, error) {
	s := os.Getenv(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", key, s)
	}
	return t, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", key, s, minimum)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", key, s)
	}
	return f, nil
}
