package bitmap

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/arkilian/sweep/internal/errors"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestSynthesize_RespectsBound(t *testing.T) {
	rng := newRNG(42)
	for _, max := range []int{0, 1, 7, 100, DefaultMaxCardinality} {
		blob, err := Synthesize(rng, max)
		require.NoError(t, err)

		n, err := CheckBound(blob, uint64(max))
		require.NoError(t, err, "max=%d", max)
		assert.LessOrEqual(t, n, uint64(max))
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	a, err := Synthesize(newRNG(7), 500)
	require.NoError(t, err)
	b, err := Synthesize(newRNG(7), 500)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "same seed must yield byte-identical blobs")

	c, err := Synthesize(newRNG(8), 500)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, c))
}

func TestSynthesize_ValuesInsideInterval(t *testing.T) {
	bm := SynthesizeBitmap(newRNG(3), 64)
	if bm.IsEmpty() {
		t.Skip("empty draw")
	}
	// A coin-flip filter over a contiguous interval cannot span more than
	// roughly twice the kept count except with negligible probability.
	span := uint64(bm.Maximum()) - uint64(bm.Minimum())
	assert.Less(t, span, uint64(64*8))
}

func TestCheckBound_Violation(t *testing.T) {
	bm := roaring.New()
	bm.AddRange(0, 11)
	blob, err := Encode(bm)
	require.NoError(t, err)

	n, err := CheckBound(blob, 10)
	require.Error(t, err)
	assert.Equal(t, uint64(11), n)
	assert.True(t, errors.Is(err, serrors.NewVerificationError(serrors.CodeBoundViolation, "")))

	_, err = CheckBound(blob, 11)
	assert.NoError(t, err)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Cardinality([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
	assert.Equal(t, serrors.CodeDeserializeFailed, serrors.GetCode(err))
}

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, uint32(5), saturatingAdd(2, 3))
	assert.Equal(t, uint32(math.MaxUint32), saturatingAdd(math.MaxUint32-1, 10))
	assert.Equal(t, uint32(math.MaxUint32), saturatingAdd(math.MaxUint32, math.MaxUint32))
}
