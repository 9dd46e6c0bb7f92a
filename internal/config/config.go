// Package config loads the core's configuration surface (spec.md §6) through
// viper, with the spec's defaults baked in, and hands back an immutable
// snapshot. Nothing downstream mutates a Config; reconfiguration means
// loading a new one and swapping it in at a well-defined boundary.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full Configuration Surface of spec.md §6. Field names follow
// the spec's keys; mapstructure tags let viper bind env vars and files
// without reflection surprises.
type Config struct {
	// Runtime
	MaxDimension             int   `mapstructure:"max_dimension"`
	MaxPointsPerCollection   int   `mapstructure:"max_points_per_collection"`
	MemoryBudgetBytes        int64 `mapstructure:"memory_budget_bytes"`
	MaxConcurrency           int   `mapstructure:"max_concurrency"`
	RequestTimeoutMs         int   `mapstructure:"request_timeout_ms"`
	MaxBodyBytes             int64 `mapstructure:"max_body_bytes"`
	MaxTopKLimit             int   `mapstructure:"max_topk_limit"`
	MaxPageLimit             int   `mapstructure:"max_page_limit"`
	UpsertBatchMaxPoints     int   `mapstructure:"upsert_batch_max_points"`
	SearchBatchMaxQueries    int   `mapstructure:"search_batch_max_queries"`

	// Persistence
	PersistenceEnabled      bool   `mapstructure:"persistence_enabled"`
	WALSyncOnWrite          bool   `mapstructure:"wal_sync_on_write"`
	WALSyncEveryNWrites     int    `mapstructure:"wal_sync_every_n_writes"`
	WALSyncIntervalSeconds  int    `mapstructure:"wal_sync_interval_seconds"`
	WALGroupCommitMaxBatch  int    `mapstructure:"wal_group_commit_max_batch"`
	WALGroupCommitFlushDelayMs int `mapstructure:"wal_group_commit_flush_delay_ms"`
	CheckpointInterval      int    `mapstructure:"checkpoint_interval"`
	AsyncCheckpoints        bool   `mapstructure:"async_checkpoints"`
	CheckpointCompactAfter  int    `mapstructure:"checkpoint_compact_after"`
	SnapshotPath            string `mapstructure:"snapshot_path"`
	WALPath                 string `mapstructure:"wal_path"`

	// Search / index
	IVFNProbeDefault               int  `mapstructure:"ivf_nprobe_default"`
	IVFKMeansMaxTrainingPoints     int  `mapstructure:"ivf_kmeans_max_training_points"`
	IndexBuildMaxInFlight          int  `mapstructure:"l2_index_build_max_in_flight"`
	IndexBuildCooldownMs           int  `mapstructure:"l2_index_build_cooldown_ms"`
	IndexWarmupOnBoot              bool `mapstructure:"l2_index_warmup_on_boot"`
	ParallelScoreMinPoints         int  `mapstructure:"parallel_score_min_points"`
	ParallelScoreMinWork           int64 `mapstructure:"parallel_score_min_work"`
	ParallelScoreMinChunkLen       int  `mapstructure:"parallel_score_min_chunk_len"`
	SearchInlineMaxPoints          int  `mapstructure:"search_inline_max_points"`
	SearchInlineMaxWork            int64 `mapstructure:"search_inline_max_work"`
	SearchInlineLightLoadMaxWork   int64 `mapstructure:"search_inline_light_load_max_work"`
	SearchInlineLightLoadMaxInFlight int `mapstructure:"search_inline_light_load_max_in_flight"`
	ExactBatchTransposeMinQueries  int  `mapstructure:"exact_batch_transpose_min_queries"`
}

// RequestTimeout is RequestTimeoutMs as a time.Duration convenience.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// WALSyncInterval is WALSyncIntervalSeconds as a time.Duration convenience.
func (c Config) WALSyncInterval() time.Duration {
	return time.Duration(c.WALSyncIntervalSeconds) * time.Second
}

// IndexBuildCooldown is IndexBuildCooldownMs as a time.Duration convenience.
func (c Config) IndexBuildCooldown() time.Duration {
	return time.Duration(c.IndexBuildCooldownMs) * time.Millisecond
}

// WALGroupCommitFlushDelay is WALGroupCommitFlushDelayMs as a time.Duration.
func (c Config) WALGroupCommitFlushDelay() time.Duration {
	return time.Duration(c.WALGroupCommitFlushDelayMs) * time.Millisecond
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("max_dimension", 4096)
	v.SetDefault("max_points_per_collection", 1_000_000)
	v.SetDefault("memory_budget_bytes", 0)
	v.SetDefault("max_concurrency", 256)
	v.SetDefault("request_timeout_ms", 2000)
	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("max_topk_limit", 1000)
	v.SetDefault("max_page_limit", 1000)
	v.SetDefault("upsert_batch_max_points", 256)
	v.SetDefault("search_batch_max_queries", 256)

	v.SetDefault("persistence_enabled", true)
	v.SetDefault("wal_sync_on_write", true)
	v.SetDefault("wal_sync_every_n_writes", 0)
	v.SetDefault("wal_sync_interval_seconds", 0)
	v.SetDefault("wal_group_commit_max_batch", 16)
	v.SetDefault("wal_group_commit_flush_delay_ms", 0)
	v.SetDefault("checkpoint_interval", 32)
	v.SetDefault("async_checkpoints", false)
	v.SetDefault("checkpoint_compact_after", 64)
	v.SetDefault("snapshot_path", "data/snapshot.db")
	v.SetDefault("wal_path", "data/wal.log")

	v.SetDefault("ivf_nprobe_default", 8)
	v.SetDefault("ivf_kmeans_max_training_points", 8192)
	v.SetDefault("l2_index_build_max_in_flight", 2)
	v.SetDefault("l2_index_build_cooldown_ms", 1000)
	v.SetDefault("l2_index_warmup_on_boot", true)
	v.SetDefault("parallel_score_min_points", 256)
	v.SetDefault("parallel_score_min_work", 200_000)
	v.SetDefault("parallel_score_min_chunk_len", 32)
	v.SetDefault("search_inline_max_points", 8192)
	v.SetDefault("search_inline_max_work", 1_000_000)
	v.SetDefault("search_inline_light_load_max_work", 4_000_000)
	v.SetDefault("search_inline_light_load_max_in_flight", 2)
	v.SetDefault("exact_batch_transpose_min_queries", 160)
}

// Load reads configuration from configPath (if non-empty and present), then
// from VDB_-prefixed environment variables, layered over the spec's
// defaults, and returns an immutable snapshot.
func Load(configPath string) (Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("VDB")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return Config{}, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the spec's default configuration with no file or
// environment overrides applied — used by tests and embedding callers that
// configure the engine programmatically.
func Default() Config {
	v := viper.New()
	applyDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err) // defaults-only unmarshal never fails
	}
	return cfg
}
