package grid

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/sweep/internal/sortedfile"
)

func TestEnumerate_DefaultSize(t *testing.T) {
	params := Enumerate(DefaultCandidates())
	assert.Len(t, params, 4*4*5*7)

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		require.NoError(t, p.Options().Validate())
		require.False(t, seen[p.Name()], "duplicate name %s", p.Name())
		seen[p.Name()] = true
	}
}

func TestEnumerate_FiltersIntervals(t *testing.T) {
	params := Enumerate(Candidates{
		Compressions:      []sortedfile.Compression{sortedfile.CompressionNone},
		IndexLevels:       []int{0},
		BlockSizes:        []int{4096},
		IndexKeyIntervals: []int{0, -3, 16},
	})
	require.Len(t, params, 1)
	assert.Equal(t, 16, params[0].IndexKeyInterval)
}

func TestEnumerate_Order(t *testing.T) {
	params := Enumerate(Candidates{
		Compressions:      []sortedfile.Compression{sortedfile.CompressionNone, sortedfile.CompressionSnappy},
		IndexLevels:       []int{0, 1},
		BlockSizes:        []int{512},
		IndexKeyIntervals: []int{4, 2},
	})
	var names []string
	for _, p := range params {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		"None.0.512.4.grd", "None.0.512.2.grd", "None.1.512.4.grd", "None.1.512.2.grd",
		"Snappy.0.512.4.grd", "Snappy.0.512.2.grd", "Snappy.1.512.4.grd", "Snappy.1.512.2.grd",
	}, names)
}

func TestEnumerate_EmptyList(t *testing.T) {
	c := DefaultCandidates()
	c.BlockSizes = nil
	assert.Empty(t, Enumerate(c))
}

func TestName(t *testing.T) {
	p := Parameters{Compression: sortedfile.CompressionLz4, IndexLevels: 2, BlockSize: 1024, IndexKeyInterval: 8}
	assert.Equal(t, "Lz4.2.1024.8.grd", p.Name())
}

// TestProperty_NameIsInjective validates that distinct tuples never share an
// artifact name and equal tuples always do.
func TestProperty_NameIsInjective(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	tuple := func(c uint8, l, b, i int) Parameters {
		return Parameters{
			Compression:      sortedfile.Compressions[int(c)%len(sortedfile.Compressions)],
			IndexLevels:      l,
			BlockSize:        b,
			IndexKeyInterval: i,
		}
	}

	properties.Property("name equality matches tuple equality", prop.ForAll(
		func(c1 uint8, l1, b1, i1 int, c2 uint8, l2, b2, i2 int) bool {
			p1, p2 := tuple(c1, l1, b1, i1), tuple(c2, l2, b2, i2)
			return (p1 == p2) == (p1.Name() == p2.Name())
		},
		gen.UInt8Range(0, 3), gen.IntRange(0, 3), gen.IntRange(512, 520), gen.IntRange(1, 4),
		gen.UInt8Range(0, 3), gen.IntRange(0, 3), gen.IntRange(512, 520), gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
