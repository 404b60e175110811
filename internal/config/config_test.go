package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sentinel2", cfg.Dataset)
	assert.Empty(t, cfg.Variables)
	assert.True(t, cfg.StartDate.IsZero())
	assert.True(t, cfg.EndDate.IsZero())
	assert.Equal(t, "locations.csv", cfg.LocationsFile)
	assert.Equal(t, 50.0, cfg.BufferMeters)
	assert.Equal(t, "exports", cfg.OutputDir)
	assert.Equal(t, SourceFixture, cfg.SceneSource)
	assert.Equal(t, "data/mock/scenes.json", cfg.FixturePath)
	assert.Equal(t, 30*time.Second, cfg.ZonalTimeout)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 720*time.Hour, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "plot-timeseries", cfg.KafkaTopic)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 8, cfg.SampleConcurrency)
	assert.Zero(t, cfg.PipelineTimeout)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATASET", "TerraClimate")
	t.Setenv("VARIABLES", "tmmx, pr ,,aet")
	t.Setenv("START_DATE", "2019-01-01")
	t.Setenv("END_DATE", "2021-01-01")
	t.Setenv("LOCATIONS_FILE", "plots.csv")
	t.Setenv("BUFFER_METERS", "120.5")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("SCENE_SOURCE", "zonal")
	t.Setenv("ZONAL_URL", "http://zonal:9000")
	t.Setenv("ZONAL_TOKEN", "secret")
	t.Setenv("ZONAL_TIMEOUT", "5s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-topic")
	t.Setenv("DATABASE_URL", "postgres://localhost/plots")
	t.Setenv("CONCURRENCY", "2")
	t.Setenv("SAMPLE_CONCURRENCY", "16")
	t.Setenv("PIPELINE_TIMEOUT", "10m")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "terraclimate", cfg.Dataset)
	assert.Equal(t, []string{"tmmx", "pr", "aet"}, cfg.Variables)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, "plots.csv", cfg.LocationsFile)
	assert.Equal(t, 120.5, cfg.BufferMeters)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, SourceZonal, cfg.SceneSource)
	assert.Equal(t, "http://zonal:9000", cfg.ZonalURL)
	assert.Equal(t, "secret", cfg.ZonalToken)
	assert.Equal(t, 5*time.Second, cfg.ZonalTimeout)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-topic", cfg.KafkaTopic)
	assert.Equal(t, "postgres://localhost/plots", cfg.DatabaseURL)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 16, cfg.SampleConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.PipelineTimeout)
	assert.Empty(t, cfg.HTTPAddr, "empty HTTP_ADDR disables the server")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"START_DATE", "01/02/2019", "START_DATE"},
		{"END_DATE", "2019-13-01", "END_DATE"},
		{"BUFFER_METERS", "0", "BUFFER_METERS"},
		{"BUFFER_METERS", "wide", "BUFFER_METERS"},
		{"ZONAL_TIMEOUT", "0s", "ZONAL_TIMEOUT"},
		{"CACHE_TTL", "-5m", "CACHE_TTL"},
		{"PIPELINE_TIMEOUT", "soon", "PIPELINE_TIMEOUT"},
		{"CONCURRENCY", "0", "CONCURRENCY"},
		{"SAMPLE_CONCURRENCY", "many", "SAMPLE_CONCURRENCY"},
		{"REDIS_DB", "-1", "REDIS_DB"},
		{"SCENE_SOURCE", "s3", "SCENE_SOURCE"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ZonalRequiresURL(t *testing.T) {
	t.Setenv("SCENE_SOURCE", "zonal")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZONAL_URL")
}

func TestLoad_EndBeforeStart(t *testing.T) {
	t.Setenv("START_DATE", "2020-06-01")
	t.Setenv("END_DATE", "2020-06-01")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "END_DATE")
}

func TestLoad_GeoTIFFSource(t *testing.T) {
	t.Setenv("SCENE_SOURCE", "GeoTIFF")
	t.Setenv("GEOTIFF_DIR", "/data/scenes")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SourceGeoTIFF, cfg.SceneSource)
	assert.Equal(t, "/data/scenes", cfg.GeoTIFFDir)
}
