package bootstrap

import (
	"context"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
	errnoop "github.com/kiiskristo/marketpulse-backend/internal/adapters/errors/noop"
	"github.com/kiiskristo/marketpulse-backend/internal/adapters/errors/sentry"
	redisclient "github.com/kiiskristo/marketpulse-backend/internal/adapters/redis"
	"github.com/kiiskristo/marketpulse-backend/internal/agents"
	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/internal/workers"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
	"github.com/kiiskristo/marketpulse-backend/pkg/templates"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// LoadConfig loads and validates configuration, then initializes the
// global logger from it.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		return nil, errors.Wrap(err, "failed to init logger")
	}
	return cfg, nil
}

// NewErrorTracker returns a Sentry tracker, or a no-op one when tracking
// is disabled or Sentry cannot start.
func NewErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// ========================================
// Phase 2: Infrastructure
// ========================================

func (c *Container) initInfrastructure(ctx context.Context) error {
	if !c.Config.Redis.Enabled() {
		c.Log.Info("Redis not configured, using in-process limiter and file cache")
		return nil
	}

	client, err := redisclient.NewClient(ctx, c.Config.Redis)
	if err != nil {
		return errors.Wrap(err, "failed to connect to Redis")
	}
	c.Redis = client

	if err := prometheus.Register(metrics.NewRedisPoolCollector(client.Client())); err != nil {
		c.Log.Debugw("Redis pool collector not registered", "error", err)
	}

	c.Log.Infow("Redis connected", "addr", c.Config.Redis.Addr())
	return nil
}

// ========================================
// Phase 3: Tools
// ========================================

func (c *Container) initTools() error {
	store, err := c.newCacheStore()
	if err != nil {
		return err
	}
	c.Cache = store
	c.Usage = shared.NewUsageLog(c.Config.Cache.UsageLogDir, c.Redis)

	deps := shared.Deps{
		Cache: c.Cache,
		Usage: c.Usage,
		Log:   c.Log.With("component", "tools"),
	}.WithDefaults()

	c.Tools = tools.NewRegistry()
	if err := tools.RegisterAllTools(c.Tools, *c.Config, deps); err != nil {
		return err
	}

	if missing := tools.Unconfigured(*c.Config); len(missing) > 0 {
		c.Log.Warnw("Some tools have no API key and will report it to the model", "tools", missing)
	}
	return nil
}

func (c *Container) newCacheStore() (cache.Store, error) {
	switch c.Config.Cache.Backend {
	case "redis":
		if c.Redis == nil {
			return nil, errors.Wrap(errors.ErrNotConfigured, "redis cache backend requires REDIS_HOST")
		}
		return cache.NewRedisStore(c.Redis), nil
	default:
		store, err := cache.NewFileStore(c.Config.Cache.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create file cache")
		}
		c.FileCache = store
		return store, nil
	}
}

// ========================================
// Phase 4: LLM & Pipelines
// ========================================

func (c *Container) initPipelines() error {
	aiCfg := c.Config.AI
	provider := ai.ProviderName(aiCfg.Provider)

	limiter := ai.NewRateLimiter(provider, ai.RateLimitConfig{
		ReqPerMinute: float64(aiCfg.RateLimitPerMinute),
		Burst:        aiCfg.RateLimitBurst,
	}, c.redisClient())

	llm, err := ai.NewOpenAIClient(ai.ClientConfig{
		Provider: provider,
		APIKey:   aiCfg.APIKey(),
		BaseURL:  aiCfg.BaseURL,
		Timeout:  aiCfg.RequestTimeout,
	}, limiter, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create LLM client")
	}
	c.LLM = llm

	c.Runner = agents.NewRunner(llm, c.Tools, agents.RunnerConfig{
		Model:             aiCfg.Model,
		MaxTokens:         int(aiCfg.MaxTokens),
		MaxToolIterations: aiCfg.MaxToolIterations,
	},
		agents.WithPrompts(templates.Get()),
		agents.WithRunnerLogger(c.Log.With("component", "stage_runner")),
	)

	c.Orchestrator = pipeline.NewOrchestrator(c.Runner, pipeline.WithLogger(c.Log.With("component", "orchestrator")))

	c.Definitions = make(map[string]pipeline.Definition)
	for name, def := range pipeline.Definitions() {
		def = def.WithTemperatures(aiCfg.StageTemperatures)
		if err := def.Validate(); err != nil {
			return errors.Wrapf(err, "pipeline %s", name)
		}
		c.Definitions[name] = def
	}
	return nil
}

// NewScheduler returns the background workers of the server.
func (c *Container) NewScheduler() *workers.Scheduler {
	scheduler := workers.NewScheduler(c.Log)
	if c.FileCache != nil {
		scheduler.RegisterWorker(workers.NewCachePruner(c.FileCache, c.Config.Cache.PruneInterval, c.Config.Cache.MaxAge, c.Log))
	}
	return scheduler
}

func (c *Container) redisClient() *redis.Client {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Client()
}
