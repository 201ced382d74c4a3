package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/sortedfile"
	"github.com/arkilian/sweep/internal/source"
	"github.com/arkilian/sweep/internal/store"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(42), cfg.Dataset.Seed)
	assert.Equal(t, 10_000, cfg.Dataset.EntryCount)
	assert.Equal(t, 10_000, cfg.Dataset.MaxCardinality)
	assert.Len(t, cfg.Parameters(), 4*4*5*7)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "sometimes" }},
		{"empty folder", func(c *Config) { c.Folder = "" }},
		{"negative entries", func(c *Config) { c.Dataset.EntryCount = -1 }},
		{"bad key mode", func(c *Config) { c.Dataset.KeyMode = "uuid" }},
		{"bad strategy", func(c *Config) { c.ReadStrategies = []string{"telepathy"} }},
		{"no strategy", func(c *Config) { c.ReadStrategies = nil }},
		{"no backend", func(c *Config) { c.Backends = nil }},
		{"bad backend", func(c *Config) { c.Backends = []string{"rocksdb"} }},
		{"bad sort key", func(c *Config) { c.SortBy = "name" }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
		{"zero map size", func(c *Config) { c.BoltMapSize = 0 }},
		{"zero page", func(c *Config) { c.Buffer.PageSize = 0 }},
		{"bad storage", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"bad profile", func(c *Config) { c.Profile = "trace" }},
		{"bad single tuple", func(c *Config) {
			c.Mode = ModeSingle
			c.Single.IndexKeyInterval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, serrors.ErrCategoryConfig, serrors.GetCategory(err))
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: single
folder: /tmp/grids
dataset:
  seed: 7
  entry_count: 500
  key_mode: dense
single:
  compression: lz4
  index_levels: 2
  block_size: 1024
  index_key_interval: 4
read_strategies: [direct, memory-mapped]
backends: [sorted-file, bolt, sqlite]
sort_by: sum
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeSingle, cfg.Mode)
	assert.Equal(t, uint64(7), cfg.Dataset.Seed)
	assert.Equal(t, 10_000, cfg.Dataset.MaxCardinality, "unset fields keep their defaults")
	assert.Equal(t, sortedfile.CompressionLz4, cfg.Single.Compression)
	assert.Equal(t, "Lz4.2.1024.4.grd", cfg.Parameters()[0].Name())

	strategies, err := cfg.Strategies()
	require.NoError(t, err)
	assert.Equal(t, []source.Strategy{source.Direct, source.MemoryMapped}, strategies)

	backends, err := cfg.BackendSet()
	require.NoError(t, err)
	assert.Equal(t, []store.Backend{store.BackendSortedFile, store.BackendBolt, store.BackendSQLite}, backends)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"grid": {
			"compressions": ["None", "Zstd"],
			"index_levels": [0],
			"block_sizes": [512],
			"index_key_intervals": [2, 0]
		}
	}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	params := cfg.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "Zstd.0.512.2.grd", params[1].Name())
}

func TestLoadFromFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = 'grid'"), 0644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SWEEP_MODE", "single")
	t.Setenv("SWEEP_SEED", "99")
	t.Setenv("SWEEP_ENTRY_COUNT", "123")
	t.Setenv("SWEEP_READ_STRATEGIES", "bufreader, read-to-vec")
	t.Setenv("SWEEP_BACKENDS", "bolt")
	t.Setenv("SWEEP_STORAGE_TYPE", "local")
	t.Setenv("SWEEP_MAX_CARDINALITY", "not-a-number")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	cfg.Resolve()

	assert.Equal(t, ModeSingle, cfg.Mode)
	assert.Equal(t, uint64(99), cfg.Dataset.Seed)
	assert.Equal(t, 123, cfg.Dataset.EntryCount)
	assert.Equal(t, []string{"bufreader", "read-to-vec"}, cfg.ReadStrategies)
	assert.Equal(t, []string{"bolt"}, cfg.Backends)
	assert.Equal(t, 10_000, cfg.Dataset.MaxCardinality)
	assert.Equal(t, filepath.Join(cfg.Folder, "mirror"), cfg.Storage.Path)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SWEEP_SORT_BY=iter\n"), 0644))
	t.Setenv("SWEEP_SORT_BY", "")
	os.Unsetenv("SWEEP_SORT_BY")
	require.NoError(t, LoadDotEnv(path))

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	assert.Equal(t, "iter", cfg.SortBy)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.Folder = filepath.Join(base, "artifacts")
	cfg.Storage.Type = "local"
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.Folder, cfg.Storage.Path} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
