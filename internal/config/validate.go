package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateIDs(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.batch_size":    c.Pipeline.BatchSize,
		"pipeline.workers":       c.Pipeline.Workers,
		"pipeline.pool_size":     c.Pipeline.PoolSize,
		"pipeline.claim_timeout": c.Pipeline.ClaimTimeout,
	}); err != nil {
		return err
	}
	switch c.Pipeline.ReleasePolicy {
	case ReleasePolicyRelease, ReleasePolicyKeep:
	default:
		return fmt.Errorf("pipeline.release_policy must be %q or %q, got %q", ReleasePolicyRelease, ReleasePolicyKeep, c.Pipeline.ReleasePolicy)
	}
	if strings.ContainsAny(c.Pipeline.HashField, " \t\"'`;") {
		return fmt.Errorf("pipeline.hash_field %q contains invalid characters", c.Pipeline.HashField)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if strings.TrimSpace(c.Daemon.Schedule) == "" {
		return errors.New("daemon.schedule must be set")
	}
	if _, err := cron.ParseStandard(c.Daemon.Schedule); err != nil {
		return fmt.Errorf("daemon.schedule: %w", err)
	}
	if c.Daemon.StaleAfter < 0 {
		return errors.New("daemon.stale_after must be >= 0 (seconds)")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr must be set when cache.enabled is true")
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must be >= 0")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must be >= 0 (seconds)")
	}
	return nil
}

func (c *Config) validateIDs() error {
	switch c.IDs.Generator {
	case "ulid", "uuid":
		return nil
	default:
		return fmt.Errorf("ids.generator must be \"ulid\" or \"uuid\", got %q", c.IDs.Generator)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
