package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/sweep/internal/bitmap"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/sortedfile"
)

func TestGenerate_Dense(t *testing.T) {
	ds, err := Generate(Options{Seed: 42, Count: 100, Mode: ModeDense, MaxCardinality: 100})
	require.NoError(t, err)
	require.Equal(t, 100, ds.Len())
	for i := 0; i < 100; i++ {
		assert.Equal(t, uint64(i), binary.BigEndian.Uint64(ds.Key(i)))
		assert.Len(t, ds.Key(i), 8)
	}
}

func TestGenerate_WordsSortedUnique(t *testing.T) {
	ds, err := Generate(Options{Seed: 42, Count: 2000, Mode: ModeWord, MaxCardinality: 50})
	require.NoError(t, err)
	assert.LessOrEqual(t, ds.Len(), 2000)
	assert.Equal(t, 2000, ds.EntryCount())

	for i := 1; i < ds.Len(); i++ {
		require.Less(t, bytes.Compare(ds.Key(i-1), ds.Key(i)), 0, "keys must be strictly increasing at %d", i)
	}
	for i := 0; i < ds.Len(); i++ {
		l := len(ds.Key(i))
		require.True(t, l >= 3 && l <= 15, "length %d out of range", l)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := Options{Seed: 9, Count: 300, Mode: ModeWord, MaxCardinality: 200}
	a, err := Generate(opts)
	require.NoError(t, err)
	b, err := Generate(opts)
	require.NoError(t, err)
	require.Equal(t, a.Keys(), b.Keys())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	var av, bv [][]byte
	require.NoError(t, a.Each(func(i int, key, value []byte) error {
		av = append(av, append([]byte(nil), value...))
		return nil
	}))
	require.NoError(t, b.Each(func(i int, key, value []byte) error {
		bv = append(bv, append([]byte(nil), value...))
		return nil
	}))
	assert.Equal(t, av, bv)

	assert.Equal(t, a.JumpTargets(9, 50), b.JumpTargets(9, 50))

	c, err := Generate(Options{Seed: 10, Count: 300, Mode: ModeWord, MaxCardinality: 200})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestGenerate_InvalidOptions(t *testing.T) {
	_, err := Generate(Options{Count: -1})
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCategoryConfig, serrors.GetCategory(err))

	_, err = Generate(Options{Count: 1, Mode: Mode(7)})
	require.Error(t, err)
}

func TestJumpTargets_InRange(t *testing.T) {
	ds, err := Generate(Options{Seed: 1, Count: 10, Mode: ModeDense})
	require.NoError(t, err)
	targets := ds.JumpTargets(1, 1000)
	require.Len(t, targets, 1000)
	for _, i := range targets {
		require.True(t, i >= 0 && i < 10)
	}

	empty, err := Generate(Options{Seed: 1, Count: 0, Mode: ModeDense})
	require.NoError(t, err)
	assert.Empty(t, empty.JumpTargets(1, 10))
}

func TestLoad_FromSortedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.grd")
	f, err := os.Create(path)
	require.NoError(t, err)
	bw := bufio.NewWriter(f)
	w, err := sortedfile.NewWriter(bw, sortedfile.DefaultOptions())
	require.NoError(t, err)

	for i, k := range []string{"alpha", "beta", "gamma"} {
		bm := roaring.New()
		bm.AddRange(0, uint64(i+1))
		blob, err := bitmap.Encode(bm)
		require.NoError(t, err)
		require.NoError(t, w.Insert([]byte(k), blob))
	}
	require.NoError(t, w.Finish())
	require.NoError(t, bw.Flush())
	require.NoError(t, f.Close())

	ds, err := Load(path, 7, 10)
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, uint64(7), ds.Seed())
	assert.Equal(t, "beta", string(ds.Key(1)))
	assert.Equal(t, path, ds.Source())

	var cards []uint64
	require.NoError(t, ds.Each(func(i int, key, value []byte) error {
		n, err := bitmap.Cardinality(value)
		cards = append(cards, n)
		return err
	}))
	assert.Equal(t, []uint64{1, 2, 3}, cards)

	_, err = Load(path, 7, 2)
	require.Error(t, err)
	assert.True(t, serrors.IsVerification(err))
}

func TestFromEntries_RejectsUnsorted(t *testing.T) {
	_, err := FromEntries([][]byte{[]byte("b"), []byte("a")}, [][]byte{nil, nil}, 1)
	require.Error(t, err)
	assert.Equal(t, serrors.CodeOutOfOrder, serrors.GetCode(err))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("dense")
	require.NoError(t, err)
	assert.Equal(t, ModeDense, m)
	m, err = ParseMode("WORD")
	require.NoError(t, err)
	assert.Equal(t, ModeWord, m)
	_, err = ParseMode("emoji")
	assert.Error(t, err)
}

// TestProperty_GeneratedDatasets validates that every generated dataset has
// strictly increasing keys and values within the cardinality bound.
func TestProperty_GeneratedDatasets(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("keys sorted and unique, values bounded", prop.ForAll(
		func(seed uint64, count, maxCard int, dense bool) bool {
			mode := ModeWord
			if dense {
				mode = ModeDense
			}
			ds, err := Generate(Options{Seed: seed, Count: count, Mode: mode, MaxCardinality: maxCard})
			if err != nil {
				return false
			}
			for i := 1; i < ds.Len(); i++ {
				if bytes.Compare(ds.Key(i-1), ds.Key(i)) >= 0 {
					return false
				}
			}
			err = ds.Each(func(i int, key, value []byte) error {
				_, err := bitmap.CheckBound(value, uint64(maxCard))
				return err
			})
			return err == nil
		},
		gen.UInt64(),
		gen.IntRange(0, 200),
		gen.IntRange(0, 300),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
