package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"corpora/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CORPORA_REDIS_ADDR", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "corpora")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "corpora.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Pipeline.HashField != "text" {
		t.Fatalf("unexpected hash field: %q", cfg.Pipeline.HashField)
	}
	if cfg.Pipeline.CheckpointKey != "checkpoint" {
		t.Fatalf("unexpected checkpoint key: %q", cfg.Pipeline.CheckpointKey)
	}
	if cfg.Pipeline.ReleasePolicy != config.ReleasePolicyRelease {
		t.Fatalf("unexpected release policy: %q", cfg.Pipeline.ReleasePolicy)
	}
	if cfg.Cache.Enabled {
		t.Fatal("expected cache disabled by default")
	}
	if cfg.IDs.Generator != "ulid" {
		t.Fatalf("unexpected id generator: %q", cfg.IDs.Generator)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "corpora.toml")

	type payload struct {
		Paths struct {
			Database string `toml:"database"`
		} `toml:"paths"`
		Pipeline struct {
			BatchSize     int    `toml:"batch_size"`
			HashField     string `toml:"hash_field"`
			ReleasePolicy string `toml:"release_policy"`
		} `toml:"pipeline"`
		Daemon struct {
			Schedule string `toml:"schedule"`
		} `toml:"daemon"`
	}
	custom := payload{}
	custom.Paths.Database = filepath.Join(tempDir, "db", "corpus.db")
	custom.Pipeline.BatchSize = 7
	custom.Pipeline.HashField = "abstract"
	custom.Pipeline.ReleasePolicy = "KEEP"
	custom.Daemon.Schedule = "*/10 * * * *"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Pipeline.BatchSize != 7 {
		t.Fatalf("expected batch size 7, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.HashField != "abstract" {
		t.Fatalf("expected hash field override, got %q", cfg.Pipeline.HashField)
	}
	if cfg.Pipeline.ReleasePolicy != config.ReleasePolicyKeep {
		t.Fatalf("expected release policy keep, got %q", cfg.Pipeline.ReleasePolicy)
	}
	if cfg.DatabasePath() != custom.Paths.Database {
		t.Fatalf("expected database override, got %q", cfg.DatabasePath())
	}
	if cfg.Pipeline.Workers != config.Default().Pipeline.Workers {
		t.Fatalf("expected default workers to survive partial file, got %d", cfg.Pipeline.Workers)
	}
}

func TestRedisAddrEnvEnablesCache(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CORPORA_REDIS_ADDR", "redis.internal:6379")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("expected cache enabled from env")
	}
	if cfg.Cache.RedisAddr != "redis.internal:6379" {
		t.Fatalf("unexpected redis addr: %q", cfg.Cache.RedisAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"batch size", func(c *config.Config) { c.Pipeline.BatchSize = 0 }, "pipeline.batch_size"},
		{"workers", func(c *config.Config) { c.Pipeline.Workers = -1 }, "pipeline.workers"},
		{"release policy", func(c *config.Config) { c.Pipeline.ReleasePolicy = "drop" }, "pipeline.release_policy"},
		{"hash field", func(c *config.Config) { c.Pipeline.HashField = "text; drop" }, "pipeline.hash_field"},
		{"schedule", func(c *config.Config) { c.Daemon.Schedule = "not a cron" }, "daemon.schedule"},
		{"cache addr", func(c *config.Config) { c.Cache.Enabled = true; c.Cache.RedisAddr = "" }, "cache.redis_addr"},
		{"generator", func(c *config.Config) { c.IDs.Generator = "serial" }, "ids.generator"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("CORPORA_REDIS_ADDR", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if cfg.Pipeline.BatchSize != 50 {
		t.Fatalf("unexpected sample batch size: %d", cfg.Pipeline.BatchSize)
	}
}
