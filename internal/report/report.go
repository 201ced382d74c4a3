// Package report ranks measurement results and renders them for humans.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/arkilian/sweep/internal/grid"
)

// SortKey selects the ranking criterion.
type SortKey int

const (
	// ByJump ranks by seek time alone.
	ByJump SortKey = iota
	// ByIter ranks by iteration time alone.
	ByIter
	// BySum ranks by iteration plus seek time.
	BySum
)

func (k SortKey) String() string {
	switch k {
	case ByJump:
		return "jump"
	case ByIter:
		return "iter"
	case BySum:
		return "sum"
	default:
		return fmt.Sprintf("SortKey(%d)", int(k))
	}
}

// ParseSortKey parses "jump", "iter" or "sum".
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(s) {
	case "jump", "seek":
		return ByJump, nil
	case "iter", "iteration":
		return ByIter, nil
	case "sum", "total":
		return BySum, nil
	default:
		return 0, fmt.Errorf("report: unknown sort key %q", s)
	}
}

// Result is one measured store and strategy.
type Result struct {
	// Backend names the store family.
	Backend string
	// Strategy names the byte-source strategy, empty for baselines.
	Strategy string
	// Params is set for sorted-file results.
	Params *grid.Parameters
	// Artifact is the artifact file name.
	Artifact string
	// ArtifactSize is the artifact size in bytes.
	ArtifactSize int64
	// Iter is the full iteration time.
	Iter time.Duration
	// Jump is the total time of all lower-bound seeks.
	Jump time.Duration
}

// Label identifies the result in one line.
func (r Result) Label() string {
	if r.Strategy == "" {
		return r.Backend
	}
	return r.Backend + "/" + r.Strategy
}

func (r Result) key(k SortKey) time.Duration {
	switch k {
	case ByIter:
		return r.Iter
	case BySum:
		return r.Iter + r.Jump
	default:
		return r.Jump
	}
}

// Rank sorts results ascending by k in place. Ties keep their input order.
func Rank(results []Result, k SortKey) {
	slices.SortStableFunc(results, func(a, b Result) int {
		x, y := a.key(k), b.key(k)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	})
}

// Header describes the run a report belongs to.
type Header struct {
	RunID          string
	Dataset        string
	Fingerprint    uint64
	Entries        int
	Jumps          int
	MaxCardinality int
	SortKey        SortKey
}

// Print writes one block per result in the given order, followed by a
// summary table.
func Print(w io.Writer, h Header, results []Result) error {
	fmt.Fprintf(w, "=== sweep run %s ===\n", h.RunID)
	fmt.Fprintf(w, "dataset: %s (fingerprint %016x)\n", h.Dataset, h.Fingerprint)
	fmt.Fprintf(w, "entries: %d, jumps: %d, max cardinality: %d\n", h.Entries, h.Jumps, h.MaxCardinality)
	fmt.Fprintf(w, "ranked by: %s\n\n", h.SortKey)

	for i, r := range results {
		fmt.Fprintf(w, "#%d %s\n", i+1, r.Label())
		if r.Params != nil {
			fmt.Fprintf(w, "  compression:        %s\n", r.Params.Compression)
			fmt.Fprintf(w, "  index levels:       %d\n", r.Params.IndexLevels)
			fmt.Fprintf(w, "  block size:         %s\n", humanize.IBytes(uint64(r.Params.BlockSize)))
			fmt.Fprintf(w, "  index key interval: %d\n", r.Params.IndexKeyInterval)
		}
		fmt.Fprintf(w, "  artifact:           %s (%s)\n", r.Artifact, humanize.IBytes(uint64(r.ArtifactSize)))
		fmt.Fprintf(w, "  iter time:          %v\n", r.Iter)
		fmt.Fprintf(w, "  jump time:          %v\n", r.Jump)
		fmt.Fprintln(w)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\tartifact\tstrategy\tsize\titer ms\tjump ms\t")
	for i, r := range results {
		strategy := r.Strategy
		if strategy == "" {
			strategy = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3f\t%.3f\t\n", i+1, r.Artifact, strategy,
			humanize.IBytes(uint64(r.ArtifactSize)), millis(r.Iter), millis(r.Jump))
	}
	return tw.Flush()
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1000.0 / 1000.0
}
