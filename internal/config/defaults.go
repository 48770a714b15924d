package config

const (
	defaultConfigPath    = "~/.config/corpora/config.toml"
	defaultDataDir       = "~/.local/share/corpora"
	defaultLogDir        = "~/.local/share/corpora/logs"
	defaultBatchSize     = 50
	defaultWorkers       = 2
	defaultPoolSize      = 4
	defaultHashField     = "text"
	defaultCheckpointKey = "checkpoint"
	defaultArtifactTable = "artifacts"
	defaultClaimTimeout  = 30
	defaultSchedule      = "@every 5m"
	defaultMetricsBind   = "127.0.0.1:9477"
	defaultStaleAfter    = 1800
	defaultCacheTTL      = 86400
	defaultKeyPrefix     = "corpora:hash:"
	defaultIDGenerator   = "ulid"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"

	// ReleasePolicyRelease returns claimed but unstarted ids to unprocessed.
	ReleasePolicyRelease = "release"
	// ReleasePolicyKeep leaves claimed but unstarted ids in_process.
	ReleasePolicyKeep = "keep"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Pipeline: Pipeline{
			BatchSize:     defaultBatchSize,
			Workers:       defaultWorkers,
			PoolSize:      defaultPoolSize,
			HashField:     defaultHashField,
			CheckpointKey: defaultCheckpointKey,
			ArtifactTable: defaultArtifactTable,
			ClaimTimeout:  defaultClaimTimeout,
			ReleasePolicy: ReleasePolicyRelease,
		},
		Daemon: Daemon{
			Schedule:    defaultSchedule,
			MetricsBind: defaultMetricsBind,
			StaleAfter:  defaultStaleAfter,
		},
		Cache: Cache{
			KeyPrefix: defaultKeyPrefix,
			TTL:       defaultCacheTTL,
		},
		IDs: IDs{
			Generator: defaultIDGenerator,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
