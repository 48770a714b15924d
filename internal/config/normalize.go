package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeCache()
	c.IDs.Generator = strings.ToLower(strings.TrimSpace(c.IDs.Generator))
	if c.IDs.Generator == "" {
		c.IDs.Generator = defaultIDGenerator
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.Database, err = expandPath(strings.TrimSpace(c.Paths.Database)); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.HashField = strings.TrimSpace(c.Pipeline.HashField)
	if c.Pipeline.HashField == "" {
		c.Pipeline.HashField = defaultHashField
	}
	c.Pipeline.CheckpointKey = strings.TrimSpace(c.Pipeline.CheckpointKey)
	if c.Pipeline.CheckpointKey == "" {
		c.Pipeline.CheckpointKey = defaultCheckpointKey
	}
	c.Pipeline.ArtifactTable = strings.TrimSpace(c.Pipeline.ArtifactTable)
	if c.Pipeline.ArtifactTable == "" {
		c.Pipeline.ArtifactTable = defaultArtifactTable
	}
	c.Pipeline.ReleasePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.ReleasePolicy))
	if c.Pipeline.ReleasePolicy == "" {
		c.Pipeline.ReleasePolicy = ReleasePolicyRelease
	}
	if c.Pipeline.PipelineFile != "" {
		if expanded, err := expandPath(strings.TrimSpace(c.Pipeline.PipelineFile)); err == nil {
			c.Pipeline.PipelineFile = expanded
		}
	}
}

func (c *Config) normalizeCache() {
	if value, ok := os.LookupEnv("CORPORA_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Cache.RedisAddr = strings.TrimSpace(value)
		c.Cache.Enabled = true
	}
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = defaultKeyPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
