package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	csvsink "github.com/couchcryptid/plot-timeseries-etl/internal/adapter/csv"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/fixture"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/geotiff"
	httpadapter "github.com/couchcryptid/plot-timeseries-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/plot-timeseries-etl/internal/adapter/kafka"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/postgres"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/rediscache"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/zonal"
	"github.com/couchcryptid/plot-timeseries-etl/internal/config"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/observability"
	"github.com/couchcryptid/plot-timeseries-etl/internal/pipeline"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/redis/go-redis/v9"
)

const (
	geotiffMaxOpen  = 32
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
	maxBackoff      = 8 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ds, err := domain.LookupDataset(cfg.Dataset)
	if err != nil {
		return err
	}
	vars, err := ds.Select(cfg.Variables)
	if err != nil {
		return err
	}

	// Invalid geometry aborts before any source or sink is touched.
	locs, err := csvsink.ReadLocations(cfg.LocationsFile)
	if err != nil {
		return err
	}
	regions, err := domain.BuildRegions(locs, cfg.BufferMeters)
	if err != nil {
		return err
	}
	logger.Info("regions built", "dataset", ds.Name, "regions", len(regions), "buffer_m", cfg.BufferMeters)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	lister, sampler, closeSource, err := newSource(cfg, metrics, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeSource)

	var checks httpadapter.AllReady

	if cfg.RedisAddr != "" {
		var client *redis.Client
		err := connectWithRetry(ctx, logger, "redis", func(ctx context.Context) error {
			var err error
			client, err = rediscache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			return err
		})
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = client.Close() })
		sampler = rediscache.NewCachedSampler(sampler, client, cfg.CacheTTL, metrics, logger)
		logger.Info("sample cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	sink, err := csvsink.NewSink(cfg.OutputDir, logger)
	if err != nil {
		return err
	}
	if err := csvsink.WriteRegions(filepath.Join(cfg.OutputDir, csvsink.RegionsFile), regions); err != nil {
		return err
	}
	loaders := []pipeline.Loader{sink}

	if cfg.DatabaseURL != "" {
		var store *postgres.Store
		err := connectWithRetry(ctx, logger, "postgres", func(ctx context.Context) error {
			var err error
			store, err = postgres.Connect(ctx, cfg.DatabaseURL, logger)
			return err
		})
		if err != nil {
			return err
		}
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		loaders = append(loaders, store)
		checks = append(checks, store)
		logger.Info("postgres sink enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		closers = append(closers, func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		})
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(lister, sampler, loaders, logger, metrics, pipeline.Options{
		Concurrency:       cfg.Concurrency,
		SampleConcurrency: cfg.SampleConcurrency,
		Timeout:           cfg.PipelineTimeout,
	})
	checks = append(checks, p)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, checks, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer shutdownServer(srv, cfg.ShutdownTimeout, logger)
	}

	q := domain.SceneQuery{Dataset: ds, Regions: regions, Start: cfg.StartDate, End: cfg.EndDate}
	exports, err := p.Run(ctx, q, vars)
	for _, exp := range exports {
		logger.Info("export written",
			"variable", exp.Variable.Name,
			"tall", sink.Path(exp.Variable.Name, domain.TableTall),
			"wide", sink.Path(exp.Variable.Name, domain.TableWide),
		)
	}
	return err
}

// newSource returns the scene lister and sampler for the configured backend
// and a function releasing its resources.
func newSource(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (pipeline.SceneLister, domain.Sampler, func(), error) {
	switch cfg.SceneSource {
	case config.SourceFixture:
		src, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("scene source: fixture", "path", cfg.FixturePath)
		return src, src, func() {}, nil
	case config.SourceZonal:
		client := zonal.NewClient(cfg.ZonalURL, cfg.ZonalToken, cfg.ZonalTimeout, metrics, logger)
		logger.Info("scene source: zonal service", "url", cfg.ZonalURL, "timeout", cfg.ZonalTimeout)
		return client, client, func() {}, nil
	case config.SourceGeoTIFF:
		src := geotiff.NewSource(cfg.GeoTIFFDir, geotiffMaxOpen, logger)
		logger.Info("scene source: geotiff", "dir", cfg.GeoTIFFDir)
		return src, src, func() {
			if err := src.Close(); err != nil {
				logger.Error("geotiff close error", "error", err)
			}
		}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown scene source %q", cfg.SceneSource)
	}
}

// connectWithRetry retries a startup connection with exponential backoff.
func connectWithRetry(ctx context.Context, logger *slog.Logger, name string, connect func(context.Context) error) error {
	backoff := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = connect(ctx); err == nil {
			return nil
		}
		logger.Warn("connect failed", "target", name, "attempt", attempt, "error", err)
		if attempt == connectAttempts || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("connect %s: %w", name, err)
}

func shutdownServer(srv *httpadapter.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
