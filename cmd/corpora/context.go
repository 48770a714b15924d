package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"corpora/internal/config"
	"corpora/internal/hashcache"
	"corpora/internal/invalidate"
	"corpora/internal/logging"
	"corpora/internal/metrics"
	"corpora/internal/pipelinedef"
	"corpora/internal/storage"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	engineOnce sync.Once
	engine     *pipelinedef.Engine
	engineErr  error
	db         *storage.DB
	cache      *hashcache.Cache
	logger     *slog.Logger
	metrics    *metrics.Registry
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// ensureEngine opens the database, optional hash cache and pipeline on first use.
func (c *commandContext) ensureEngine(ctx context.Context) (*pipelinedef.Engine, error) {
	c.engineOnce.Do(func() {
		c.engine, c.engineErr = c.openEngine(ctx)
	})
	return c.engine, c.engineErr
}

func (c *commandContext) openEngine(ctx context.Context) (*pipelinedef.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	c.metrics = metrics.NewRegistry()

	db, err := storage.OpenConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.db = db

	def, err := pipelinedef.Load(cfg)
	if err != nil {
		return nil, err
	}
	deps := pipelinedef.Deps{DB: db, Logger: logger, Metrics: c.metrics}
	cache, err := hashcache.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		c.cache = cache
		deps.Cache = cache
	}
	return pipelinedef.Assemble(cfg, def, deps)
}

func (c *commandContext) invalidator(ctx context.Context) (*invalidate.Invalidator, error) {
	engine, err := c.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}
	return invalidate.New(engine.Tracker, c.logger, c.metrics), nil
}

func (c *commandContext) close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
		c.cache = nil
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
