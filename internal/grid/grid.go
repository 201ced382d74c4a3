// Package grid enumerates the structural parameter tuples a sweep builds and
// measures.
package grid

import (
	"fmt"

	"github.com/arkilian/sweep/internal/sortedfile"
)

// Extension is appended to every sorted-file artifact name.
const Extension = ".grd"

// Parameters defines exactly one sorted-file store variant.
type Parameters struct {
	Compression      sortedfile.Compression `json:"compression" yaml:"compression"`
	IndexLevels      int                    `json:"index_levels" yaml:"index_levels"`
	BlockSize        int                    `json:"block_size" yaml:"block_size"`
	IndexKeyInterval int                    `json:"index_key_interval" yaml:"index_key_interval"`
}

// Name returns the artifact file name for p. It is a pure function of the
// four fields, which is what makes build reuse detection possible.
func (p Parameters) Name() string {
	return fmt.Sprintf("%s.%d.%d.%d%s", p.Compression, p.IndexLevels, p.BlockSize, p.IndexKeyInterval, Extension)
}

// String renders p for reports.
func (p Parameters) String() string {
	return fmt.Sprintf("compression=%s index_levels=%d block_size=%d index_key_interval=%d",
		p.Compression, p.IndexLevels, p.BlockSize, p.IndexKeyInterval)
}

// Options converts p into writer options.
func (p Parameters) Options() sortedfile.Options {
	return sortedfile.Options{
		Compression:      p.Compression,
		IndexLevels:      p.IndexLevels,
		BlockSize:        p.BlockSize,
		IndexKeyInterval: p.IndexKeyInterval,
	}
}

// Candidates lists the values tried for each parameter.
type Candidates struct {
	Compressions      []sortedfile.Compression `json:"compressions" yaml:"compressions"`
	IndexLevels       []int                    `json:"index_levels" yaml:"index_levels"`
	BlockSizes        []int                    `json:"block_sizes" yaml:"block_sizes"`
	IndexKeyIntervals []int                    `json:"index_key_intervals" yaml:"index_key_intervals"`
}

// DefaultCandidates returns the standard sweep.
func DefaultCandidates() Candidates {
	return Candidates{
		Compressions: []sortedfile.Compression{
			sortedfile.CompressionNone,
			sortedfile.CompressionSnappy,
			sortedfile.CompressionLz4,
			sortedfile.CompressionZstd,
		},
		IndexLevels:       []int{0, 1, 2, 3},
		BlockSizes:        []int{8 * 1024, 4 * 1024, 2 * 1024, 1024, 512},
		IndexKeyIntervals: []int{32, 24, 16, 12, 8, 4, 2},
	}
}

// Enumerate returns the Cartesian product of c, compression outermost and key
// interval innermost. Non-positive key intervals are dropped.
func Enumerate(c Candidates) []Parameters {
	intervals := make([]int, 0, len(c.IndexKeyIntervals))
	for _, iv := range c.IndexKeyIntervals {
		if iv > 0 {
			intervals = append(intervals, iv)
		}
	}

	params := make([]Parameters, 0, len(c.Compressions)*len(c.IndexLevels)*len(c.BlockSizes)*len(intervals))
	for _, comp := range c.Compressions {
		for _, levels := range c.IndexLevels {
			for _, bs := range c.BlockSizes {
				for _, iv := range intervals {
					params = append(params, Parameters{
						Compression:      comp,
						IndexLevels:      levels,
						BlockSize:        bs,
						IndexKeyInterval: iv,
					})
				}
			}
		}
	}
	return params
}
