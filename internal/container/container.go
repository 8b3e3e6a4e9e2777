package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/aiclient"
	"go-palm-insight/internal/analyzer"
	"go-palm-insight/internal/cache"
	"go-palm-insight/internal/config"
	"go-palm-insight/internal/conversion"
	"go-palm-insight/internal/engine"
	"go-palm-insight/internal/imaging"
	"go-palm-insight/internal/metrics"
	"go-palm-insight/internal/observer"
	"go-palm-insight/internal/report"
	"go-palm-insight/internal/storage"
	"go-palm-insight/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	metrics   *metrics.Collector
	cache     *cache.Manager
	extractor analyzer.FeatureExtractor
	engine    engine.Engine
	handler   http.Handler
	log       logrus.FieldLogger
}

// NewContainer builds the dependency graph once at startup. An unreachable
// Redis leaves the cache running on its local tier only.
func NewContainer(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Container, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollector(cfg.Metrics, cfg.Alerts, log, metrics.WithRegisterer(registry))
	collector.Start()

	cacheOpts := []cache.Option{
		cache.WithAccessHook(func(key, tier string, d time.Duration) {
			collector.RecordCacheMetric(metrics.CacheRecord{
				Tier:       tier,
				Hit:        tier != cache.TierMiss,
				DurationMs: float64(d.Microseconds()) / 1000,
			})
		}),
	}
	if cfg.Cache.RedisURL != "" {
		store, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable at startup; the local cache tier serves alone until the process restarts")
		} else {
			cacheOpts = append(cacheOpts, cache.WithStore(store))
		}
	}
	cacheManager := cache.NewManager(cfg.Cache, log, cacheOpts...)

	text, err := aiclient.New(cfg.AI, log)
	if err != nil {
		_ = cacheManager.Close()
		_ = collector.Close()
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	publisher := observer.NewEventPublisher(log)
	pipelineMetrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(log))
	publisher.Subscribe(pipelineMetrics)

	optimizer := conversion.NewOptimizer(cfg.Conversion, log, conversion.WithRecorder(collector))
	extractor := analyzer.NewFeatureExtractor(analyzer.OptionsFromConfig(cfg.Extraction), log)

	eng, err := engine.New(engine.Dependencies{
		Processor: imaging.NewProcessor(imaging.OptionsFromConfig(cfg.Image), log),
		Extractor: extractor,
		Generator: report.NewGenerator(text, cfg.AI, log, report.WithResponseCache(cacheManager)),
		Optimizer: optimizer,
		Cache:     cacheManager,
		Metrics:   collector,
		Text:      text,
		Events:    publisher,
	}, cfg.Performance, log)
	if err != nil {
		_ = extractor.Close()
		_ = cacheManager.Close()
		_ = collector.Close()
		return nil, err
	}

	source, err := newImageSource(cfg, log)
	if err != nil {
		_ = extractor.Close()
		_ = cacheManager.Close()
		_ = collector.Close()
		return nil, err
	}

	handler := transport.NewHandler(transport.Dependencies{
		Engine:    eng,
		Optimizer: optimizer,
		Stats:     collector,
		Source:    source,
		Pipeline:  pipelineMetrics,
		Gatherer:  registry,
	}, cfg, log)

	return &Container{
		config:    cfg,
		metrics:   collector,
		cache:     cacheManager,
		extractor: extractor,
		engine:    eng,
		handler:   handler,
		log:       log.WithField("component", "container"),
	}, nil
}

// newImageSource routes http(s) references to the URL fetcher and azblob
// references to Azure when an account is configured
func newImageSource(cfg *config.Config, log logrus.FieldLogger) (storage.ImageSource, error) {
	fetcher := storage.NewHTTPImageFetcher(cfg.Server.ImageFetchTimeout, cfg.Image.MaxSizeBytes, log)

	var blob storage.BlobStorage
	if cfg.Storage.AzureAccountName != "" {
		azure, err := storage.NewAzureStorage(cfg.Storage.AzureAccountName, cfg.Storage.AzureAccountKey, cfg.Image.MaxSizeBytes, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure storage: %w", err)
		}
		blob = azure
	}
	return storage.NewRouter(fetcher, blob), nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Engine returns the analysis engine
func (c *Container) Engine() engine.Engine {
	return c.engine
}

// Close stops background work and releases connections
func (c *Container) Close() error {
	var errs []error
	if err := c.extractor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("extractor: %w", err))
	}
	if err := c.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if err := c.metrics.Close(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if len(errs) > 0 {
		c.log.WithError(errors.Join(errs...)).Warn("Shutdown completed with errors")
	}
	return errors.Join(errs...)
}
