package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenFieldsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  host: vespa.internal\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "vespa.internal", cfg.Engine.Host)
	require.Equal(t, 512, cfg.Chunking.ChunkSize)
	require.Equal(t, 128, cfg.Indexing.BatchSize)
	require.Equal(t, 32, cfg.Indexing.NWorkers)
	require.Equal(t, 92, cfg.Retrieval.UntimedDocCutoffDays)
	require.Equal(t, 400, cfg.Retrieval.MaxSummaryLen)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverridesRecordStoreDSN(t *testing.T) {
	t.Setenv("RECORD_STORE_DSN", "postgres://env-applied")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://env-applied", cfg.RecordStore.DSN)
}
