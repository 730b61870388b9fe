package bootstrap

import (
	"context"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
	redisclient "github.com/kiiskristo/marketpulse-backend/internal/adapters/redis"
	"github.com/kiiskristo/marketpulse-backend/internal/agents"
	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure, nil when REDIS_HOST is unset
	Redis *redisclient.Client

	// Tools and their shared collaborators
	Cache     cache.Store
	FileCache *cache.FileStore // set when the file backend is selected
	Usage     *shared.UsageLog
	Tools     *tools.Registry

	// LLM and pipelines
	LLM          *ai.OpenAIClient
	Runner       *agents.Runner
	Orchestrator *pipeline.Orchestrator
	Definitions  map[string]pipeline.Definition
}

// New builds every component from cfg. The error tracker and logger must
// already be initialized; Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, tracker errors.Tracker, log *logger.Logger) (*Container, error) {
	c := &Container{
		Config:       cfg,
		Log:          log,
		ErrorTracker: tracker,
	}

	if err := c.initInfrastructure(ctx); err != nil {
		return nil, err
	}
	if err := c.initTools(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initPipelines(); err != nil {
		c.Close()
		return nil, err
	}

	log.Infow("Container initialized",
		"provider", cfg.AI.Provider,
		"model", cfg.AI.Model,
		"cache", cfg.Cache.Backend,
		"redis", c.Redis != nil,
		"tools", c.Tools.List(),
	)
	return c, nil
}

// Close releases infrastructure connections.
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Log.Warnw("Redis close failed", "error", err)
		}
		c.Redis = nil
	}
}
