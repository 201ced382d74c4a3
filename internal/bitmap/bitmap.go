// Package bitmap is the value codec of the benchmark: every stored value is a
// serialized roaring bitmap whose cardinality must stay under a configured
// maximum.
package bitmap

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// DefaultMaxCardinality is the bound used when none is configured.
const DefaultMaxCardinality = 10_000

// Encode serializes bm into the portable roaring format.
func Encode(bm *roaring.Bitmap) ([]byte, error) {
	data, err := bm.ToBytes()
	if err != nil {
		return nil, serrors.NewEncodingError(serrors.CodeSerializeFailed, "bitmap: serialize", err)
	}
	return data, nil
}

// Decode deserializes a blob produced by Encode.
func Decode(blob []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(blob); err != nil {
		return nil, serrors.NewEncodingError(serrors.CodeDeserializeFailed, "bitmap: deserialize", err)
	}
	return bm, nil
}

// Cardinality decodes blob and returns the number of integers it holds.
func Cardinality(blob []byte) (uint64, error) {
	bm, err := Decode(blob)
	if err != nil {
		return 0, err
	}
	return bm.GetCardinality(), nil
}

// CheckBound decodes blob and fails with a BOUND_VIOLATION verification error
// when its cardinality exceeds max.
func CheckBound(blob []byte, max uint64) (uint64, error) {
	n, err := Cardinality(blob)
	if err != nil {
		return 0, err
	}
	if n > max {
		return n, serrors.NewVerificationError(serrors.CodeBoundViolation,
			fmt.Sprintf("bitmap: cardinality %d exceeds maximum %d", n, max)).
			WithDetails(map[string]interface{}{"cardinality": n, "max": max})
	}
	return n, nil
}

// Synthesize draws a random interval [start, start+span] (saturating at the
// top of the u32 range), keeps roughly half of its integers by coin flip and
// stops after max integers. The result is serialized.
func Synthesize(rng *rand.Rand, max int) ([]byte, error) {
	return Encode(SynthesizeBitmap(rng, max))
}

// SynthesizeBitmap is Synthesize without the serialization step.
func SynthesizeBitmap(rng *rand.Rand, max int) *roaring.Bitmap {
	start := rng.Uint32()
	end := saturatingAdd(start, rng.Uint32())

	values := make([]uint32, 0, min(max, 1024))
	for v := uint64(start); v <= uint64(end) && len(values) < max; v++ {
		if rng.Uint32()&1 == 1 {
			values = append(values, uint32(v))
		}
	}

	bm := roaring.New()
	bm.AddMany(values)
	return bm
}

func saturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
