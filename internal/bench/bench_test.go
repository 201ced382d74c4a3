package bench

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/sweep/internal/bitmap"
	"github.com/arkilian/sweep/internal/config"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/grid"
	"github.com/arkilian/sweep/internal/sortedfile"
	"github.com/arkilian/sweep/internal/source"
	"github.com/arkilian/sweep/internal/store"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Folder = t.TempDir()
	cfg.Dataset.EntryCount = 200
	cfg.Dataset.KeyMode = "dense"
	cfg.Dataset.MaxCardinality = 50
	cfg.Grid = grid.Candidates{
		Compressions:      []sortedfile.Compression{sortedfile.CompressionNone, sortedfile.CompressionSnappy},
		IndexLevels:       []int{0, 1},
		BlockSizes:        []int{512},
		IndexKeyIntervals: []int{4},
	}
	cfg.Workers = 2
	cfg.BoltMapSize = 64 << 20
	return cfg
}

func TestRun_GridAllBackends(t *testing.T) {
	cfg := smallConfig(t)
	cfg.ReadStrategies = []string{"direct", "read-to-vec", "bufreader", "memory-mapped", "memory-mapped-bufreader"}
	cfg.Backends = []string{"sorted-file", "bolt", "sqlite"}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), cfg, &out))

	report := out.String()
	// 4 tuples x 5 strategies plus 2 baselines.
	assert.Equal(t, 22, strings.Count(report, "\n#"))
	assert.Contains(t, report, "entries: 200, jumps: 200, max cardinality: 50")
	assert.Contains(t, report, "Snappy.1.512.4.grd")
	assert.Contains(t, report, store.BoltFileName)
	assert.Contains(t, report, store.SQLiteFileName)

	for _, p := range cfg.Parameters() {
		_, err := os.Stat(filepath.Join(cfg.Folder, p.Name()))
		require.NoError(t, err)
	}
}

func TestRun_SecondRunReusesArtifacts(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Mode = config.ModeSingle
	cfg.Single = grid.Parameters{Compression: sortedfile.CompressionNone, BlockSize: 4096, IndexKeyInterval: 16}

	require.NoError(t, Run(context.Background(), cfg, &bytes.Buffer{}))
	path := filepath.Join(cfg.Folder, cfg.Single.Name())
	first, err := os.Stat(path)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), cfg, &out))
	second, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, first.Size(), second.Size())
	assert.Equal(t, first.ModTime(), second.ModTime())
	assert.Equal(t, 1, strings.Count(out.String(), "\n#"))
}

// writeOverBound writes a sorted file with the dense keys 0..n-1 whose values
// each hold card integers.
func writeOverBound(t *testing.T, path string, n int, card uint64, opts sortedfile.Options) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	bw := bufio.NewWriter(f)
	w, err := sortedfile.NewWriter(bw, opts)
	require.NoError(t, err)

	bm := roaring.New()
	bm.AddRange(0, card)
	value, err := bitmap.Encode(bm)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.Insert(binary.BigEndian.AppendUint64(nil, uint64(i)), value))
	}
	require.NoError(t, w.Finish())
	require.NoError(t, bw.Flush())
	require.NoError(t, f.Close())
}

func TestRun_BoundViolationAborts(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Mode = config.ModeSingle
	cfg.Single = grid.Parameters{Compression: sortedfile.CompressionNone, BlockSize: 4096, IndexKeyInterval: 16}

	// A pre-existing artifact is reused as-is, so its oversized values reach
	// the measurement phase.
	writeOverBound(t, filepath.Join(cfg.Folder, cfg.Single.Name()), 200, 51, cfg.Single.Options())

	var out bytes.Buffer
	err := Run(context.Background(), cfg, &out)
	require.Error(t, err)
	assert.Equal(t, serrors.CodeBoundViolation, serrors.GetCode(err))
	assert.Zero(t, out.Len(), "no partial report")
}

func TestRun_LoadedDataset(t *testing.T) {
	input := filepath.Join(t.TempDir(), "input.grd")
	writeOverBound(t, input, 30, 5, sortedfile.DefaultOptions())

	cfg := smallConfig(t)
	cfg.Dataset.File = input
	cfg.Mode = config.ModeSingle
	cfg.Single = grid.Parameters{Compression: sortedfile.CompressionLz4, IndexLevels: 2, BlockSize: 512, IndexKeyInterval: 2}
	cfg.ReadStrategies = []string{source.MemoryMapped.String()}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "dataset: "+input)
	assert.Contains(t, out.String(), "entries: 30, jumps: 30")

	var sequences [][]int
	for _, seed := range []uint64{7, 8} {
		cfg.Dataset.Seed = seed
		b, err := New(cfg)
		require.NoError(t, err)
		ds, err := b.loadDataset()
		require.NoError(t, err)
		assert.Equal(t, seed, ds.Seed())
		sequences = append(sequences, ds.JumpTargets(ds.Seed(), ds.EntryCount()))
	}
	assert.Len(t, sequences[0], 30)
	assert.NotEqual(t, sequences[0], sequences[1], "the configured seed must drive the jump targets")
}

func TestRun_LocalMirror(t *testing.T) {
	mirrorDir := t.TempDir()

	cfg := smallConfig(t)
	cfg.Storage.Type = "local"
	cfg.Storage.Path = mirrorDir
	require.NoError(t, Run(context.Background(), cfg, &bytes.Buffer{}))

	for _, p := range cfg.Parameters() {
		_, err := os.Stat(filepath.Join(mirrorDir, p.Name()))
		require.NoError(t, err, "artifact %s must be mirrored", p.Name())
	}

	// A fresh folder is filled from the mirror.
	cfg2 := smallConfig(t)
	cfg2.Storage.Type = "local"
	cfg2.Storage.Path = mirrorDir
	require.NoError(t, Run(context.Background(), cfg2, &bytes.Buffer{}))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := smallConfig(t)
	cfg.SortBy = "vibes"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCategoryConfig, serrors.GetCategory(err))
}

func TestProgress(t *testing.T) {
	p := NewProgress("built", "stores", 3, false)
	for i := 0; i < 3; i++ {
		p.Inc()
	}
	assert.Equal(t, int64(3), p.Done())
}

func TestClean(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Backends = []string{"sorted-file", "bolt"}
	cfg.Storage.Type = "local"
	cfg.Storage.Path = t.TempDir()
	require.NoError(t, Run(context.Background(), cfg, &bytes.Buffer{}))

	keep := filepath.Join(cfg.Folder, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep me"), 0644))

	n, err := Clean(context.Background(), cfg, true)
	require.NoError(t, err)
	// 4 tuples and the bolt baseline, locally and in the mirror.
	assert.Equal(t, 10, n)

	entries, err := os.ReadDir(cfg.Folder)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"notes.txt"}, names)
}

func TestIsArtifact(t *testing.T) {
	assert.True(t, IsArtifact("None.0.512.4.grd"))
	assert.True(t, IsArtifact(store.BoltFileName))
	assert.True(t, IsArtifact(store.SQLiteFileName+"-journal"))
	assert.False(t, IsArtifact("sweep.yaml"))
}
