package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/config"
)

func TestDefaultMatchesSpec(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 4096, cfg.MaxDimension)
	require.Equal(t, 1_000_000, cfg.MaxPointsPerCollection)
	require.Equal(t, int64(0), cfg.MemoryBudgetBytes)
	require.Equal(t, 256, cfg.MaxConcurrency)
	require.True(t, cfg.WALSyncOnWrite)
	require.Equal(t, 16, cfg.WALGroupCommitMaxBatch)
	require.Equal(t, 8, cfg.IVFNProbeDefault)
	require.Equal(t, 160, cfg.ExactBatchTransposeMinQueries)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load("/nonexistent/path/does-not-exist.yaml")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}
