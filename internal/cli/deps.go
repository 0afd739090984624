package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/ppiankov/vitals/internal/cache"
	"github.com/ppiankov/vitals/internal/extract"
	"github.com/ppiankov/vitals/internal/flatten"
	"github.com/ppiankov/vitals/internal/llm"
	"github.com/ppiankov/vitals/internal/logging"
	"github.com/ppiankov/vitals/internal/metrics"
	"github.com/ppiankov/vitals/internal/model"
	"github.com/ppiankov/vitals/internal/pipeline"
	"github.com/ppiankov/vitals/internal/store"
	"github.com/ppiankov/vitals/internal/util"
)

// app holds what every command needs: the resolved config, a logger and metrics
type app struct {
	cfg     *model.Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

func newApp(reg prometheus.Registerer) (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose && level == "info" {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: cfg.Log.Development})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, metrics: metrics.New(reg)}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// collector wires the fetcher's optional limiter, robots check and page cache
func (a *app) collector() *pipeline.Collector {
	cfg := a.cfg
	client := pipeline.NewHTTPClient(cfg.HTTP)

	opts := []pipeline.FetcherOption{
		pipeline.WithHTTPClient(client),
		pipeline.WithFetchLogger(a.logger),
		pipeline.WithLimiter(util.NewHostLimiter(cfg.Source.RequestsPerSecond, cfg.Source.BurstSize)),
	}
	if cfg.Source.RespectRobots {
		opts = append(opts, pipeline.WithRobots(util.NewRobotsChecker(client, cfg.HTTP.UserAgent)))
	}
	if cfg.Cache.Enabled {
		pages := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		opts = append(opts, pipeline.WithPageCache(pages, cfg.Cache.DiskTTL))
	}

	fetcher := pipeline.NewFetcher(cfg.HTTP, opts...)
	return pipeline.NewCollector(fetcher, extract.NewContentExtractor(), a.logger)
}

// structurer fails with a *model.ConfigurationError when the provider key is missing
func (a *app) structurer() (*llm.Structurer, error) {
	if err := a.cfg.LLM.ValidateLLM(); err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(llm.ConfigFromModel(a.cfg.LLM, a.cfg.HTTP))
	if err != nil {
		return nil, err
	}
	return llm.NewStructurer(provider,
		llm.WithStrictSchema(a.cfg.LLM.StrictSchema),
		llm.WithMaxTokens(a.cfg.LLM.MaxTokens),
		llm.WithLogger(a.logger),
	), nil
}

// openStore fails with a *model.ConfigurationError when store credentials are missing
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	client := pipeline.NewHTTPClient(a.cfg.HTTP)
	s, err := store.New(ctx, a.cfg.Store, client, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Driver, err)
	}
	return s, nil
}

// stages says which collaborators a command needs
type stages struct {
	collect, structure, load bool
}

// buildPipeline builds a pipeline with only the requested collaborators so that
// e.g. "collect" does not require LLM or store credentials. The returned
// cleanup closes the store.
func (a *app) buildPipeline(ctx context.Context, need stages) (*pipeline.Pipeline, func(), error) {
	opts := pipeline.Options{
		Artifacts: pipeline.NewArtifacts(a.cfg.Artifacts),
		Flattener: flatten.New(a.logger),
		Metrics:   a.metrics,
		Logger:    a.logger,

		StageTimeout: stageTimeout,
	}
	cleanup := func() {}

	if need.collect {
		opts.Collector = a.collector()
	}
	if need.structure {
		s, err := a.structurer()
		if err != nil {
			return nil, cleanup, err
		}
		opts.Structurer = s
	}
	if need.load {
		s, err := a.openStore(ctx)
		if err != nil {
			return nil, cleanup, err
		}
		opts.Writer = store.NewWriter(s, a.logger)
		cleanup = func() { _ = s.Close() }
	}

	return pipeline.New(opts), cleanup, nil
}
