// Package dataset synthesizes the reproducible key/value sets the benchmark
// builds its stores from. Generation is a pure function of the seed and the
// entry count.
package dataset

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/sweep/internal/bitmap"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/sortedfile"
)

// Mode selects the key shape.
type Mode int

const (
	// ModeWord generates pronounceable tokens of 3 to 15 letters.
	ModeWord Mode = iota
	// ModeDense generates 8-byte big-endian counters.
	ModeDense
)

func (m Mode) String() string {
	switch m {
	case ModeWord:
		return "word"
	case ModeDense:
		return "dense"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "word" or "dense".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "word", "words":
		return ModeWord, nil
	case "dense", "int", "integer":
		return ModeDense, nil
	default:
		return 0, fmt.Errorf("dataset: unknown key mode %q", s)
	}
}

// Options controls generation.
type Options struct {
	Seed           uint64
	Count          int
	Mode           Mode
	MaxCardinality int
}

// Dataset is a strictly increasing key sequence with its values. Synthetic
// datasets do not keep values in memory: Each regenerates them from a
// generator reseeded with the dataset seed, so every consumer observes the
// same sequence.
type Dataset struct {
	keys    [][]byte
	values  [][]byte
	seed    uint64
	maxCard int
	count   int
	mode    Mode
	source  string
}

// NewRNG returns a fresh generator for seed. Every task creates its own.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate produces a dataset from opts.
func Generate(opts Options) (*Dataset, error) {
	if opts.Count < 0 {
		return nil, serrors.NewConfigError(fmt.Sprintf("dataset: negative entry count %d", opts.Count))
	}
	if opts.MaxCardinality < 0 {
		return nil, serrors.NewConfigError(fmt.Sprintf("dataset: negative max cardinality %d", opts.MaxCardinality))
	}

	var keys [][]byte
	switch opts.Mode {
	case ModeWord:
		keys = wordKeys(opts.Seed, opts.Count)
	case ModeDense:
		keys = denseKeys(opts.Count)
	default:
		return nil, serrors.NewConfigError(fmt.Sprintf("dataset: unknown mode %d", opts.Mode))
	}

	return &Dataset{
		keys:    keys,
		seed:    opts.Seed,
		maxCard: opts.MaxCardinality,
		count:   opts.Count,
		mode:    opts.Mode,
		source:  "synthetic",
	}, nil
}

func denseKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(i))
	}
	return keys
}

func wordKeys(seed uint64, n int) [][]byte {
	rng := NewRNG(seed)
	words := make([]string, n)
	for i := range words {
		words[i] = Word(rng, 3+rng.IntN(13))
	}
	slices.Sort(words)
	words = slices.Compact(words)

	keys := make([][]byte, len(words))
	for i, w := range words {
		keys[i] = []byte(w)
	}
	return keys
}

const (
	consonants = "bcdfghjklmnprstvwxz"
	vowels     = "aeiouy"
)

// Word returns a pronounceable lowercase token of the given length,
// alternating consonant and vowel runs.
func Word(rng *rand.Rand, length int) string {
	var sb strings.Builder
	sb.Grow(length)
	vowel := rng.IntN(2) == 0
	for sb.Len() < length {
		if vowel {
			sb.WriteByte(vowels[rng.IntN(len(vowels))])
		} else {
			sb.WriteByte(consonants[rng.IntN(len(consonants))])
			if sb.Len() < length && rng.IntN(5) == 0 {
				sb.WriteByte(consonants[rng.IntN(len(consonants))])
			}
		}
		vowel = !vowel
	}
	return sb.String()
}

// Load reads a dataset from a sorted file produced by this tool. Keys and
// values are taken verbatim; every value must respect maxCard. The seed only
// drives the jump targets.
func Load(path string, seed uint64, maxCard int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "dataset: open "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "dataset: stat "+path, err)
	}
	r, err := sortedfile.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}

	ds := &Dataset{seed: seed, maxCard: maxCard, source: path}
	err = r.Each(func(key, value []byte) error {
		if _, err := bitmap.CheckBound(value, uint64(maxCard)); err != nil {
			return fmt.Errorf("dataset: entry %d of %s: %w", len(ds.keys), path, err)
		}
		ds.keys = append(ds.keys, slices.Clone(key))
		ds.values = append(ds.values, slices.Clone(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	ds.count = len(ds.keys)
	return ds, nil
}

// FromEntries builds a dataset from explicit keys and values. Keys must be
// strictly increasing.
func FromEntries(keys, values [][]byte, maxCard int) (*Dataset, error) {
	if len(keys) != len(values) {
		return nil, serrors.NewConfigError(fmt.Sprintf("dataset: %d keys but %d values", len(keys), len(values)))
	}
	for i := 1; i < len(keys); i++ {
		if string(keys[i-1]) >= string(keys[i]) {
			return nil, serrors.NewBuildError(serrors.CodeOutOfOrder,
				fmt.Sprintf("dataset: key %d not strictly increasing", i), nil)
		}
	}
	return &Dataset{keys: keys, values: values, maxCard: maxCard, count: len(keys), source: "explicit"}, nil
}

// Len returns the number of unique keys.
func (d *Dataset) Len() int { return len(d.keys) }

// Key returns the i-th key in ascending order.
func (d *Dataset) Key(i int) []byte { return d.keys[i] }

// Keys returns every key in ascending order. The slice must not be modified.
func (d *Dataset) Keys() [][]byte { return d.keys }

// Seed returns the generation seed.
func (d *Dataset) Seed() uint64 { return d.seed }

// EntryCount returns the requested entry count, which may exceed Len when
// word generation produced duplicates. It is also the number of lower-bound
// probes a measurement performs.
func (d *Dataset) EntryCount() int { return d.count }

// MaxCardinality returns the bound every value respects.
func (d *Dataset) MaxCardinality() int { return d.maxCard }

// Source describes where the dataset came from.
func (d *Dataset) Source() string { return d.source }

// Mode returns the key shape of a synthetic dataset.
func (d *Dataset) Mode() Mode { return d.mode }

// Each calls fn for every entry in ascending key order. Synthetic values are
// regenerated from a generator reseeded with the dataset seed; the value slice
// is only valid during the call.
func (d *Dataset) Each(fn func(i int, key, value []byte) error) error {
	if d.values != nil {
		for i, k := range d.keys {
			if err := fn(i, k, d.values[i]); err != nil {
				return err
			}
		}
		return nil
	}

	rng := NewRNG(d.seed)
	for i, k := range d.keys {
		value, err := bitmap.Synthesize(rng, d.maxCard)
		if err != nil {
			return fmt.Errorf("dataset: value %d: %w", i, err)
		}
		if err := fn(i, k, value); err != nil {
			return err
		}
	}
	return nil
}

// JumpTargets returns n key positions drawn uniformly from a generator
// reseeded with seed. Identical inputs always yield the identical sequence.
func (d *Dataset) JumpTargets(seed uint64, n int) []int {
	if len(d.keys) == 0 {
		return nil
	}
	rng := NewRNG(seed)
	targets := make([]int, n)
	for i := range targets {
		targets[i] = rng.IntN(len(d.keys))
	}
	return targets
}

// Fingerprint hashes the key sequence. It identifies which dataset a report
// was measured against.
func (d *Dataset) Fingerprint() uint64 {
	h := murmur3.New64()
	var lb [binary.MaxVarintLen64]byte
	for _, k := range d.keys {
		h.Write(lb[:binary.PutUvarint(lb[:], uint64(len(k)))])
		h.Write(k)
	}
	return h.Sum64()
}
