// Package measure times full iteration and random lower-bound seeks over a
// store cursor while verifying every entry it observes.
package measure

import (
	"bytes"
	"fmt"
	"time"

	"github.com/arkilian/sweep/internal/bitmap"
	serrors "github.com/arkilian/sweep/internal/errors"
)

// Cursor is the part of a store cursor the runner drives.
type Cursor interface {
	Next() (key, value []byte, ok bool, err error)
	SeekGE(target []byte) (key, value []byte, ok bool, err error)
}

// Durations holds the two measured phases.
type Durations struct {
	Iter time.Duration
	Jump time.Duration
}

// Sum returns the combined duration.
func (d Durations) Sum() time.Duration {
	return d.Iter + d.Jump
}

// Runner measures cursors against an expected key sequence.
type Runner struct {
	// MaxCardinality is the bound every value must respect.
	MaxCardinality uint64
}

// Measure runs the iteration phase and then the jump phase on c. keys is the
// expected ascending key sequence and targets the positions to seek, in
// order. c must be freshly opened. Any mismatch aborts with a verification
// error.
func (r Runner) Measure(c Cursor, keys [][]byte, targets []int) (Durations, error) {
	var d Durations

	start := time.Now()
	if err := r.iterate(c, keys); err != nil {
		return Durations{}, err
	}
	d.Iter = time.Since(start)

	start = time.Now()
	if err := r.jump(c, keys, targets); err != nil {
		return Durations{}, err
	}
	d.Jump = time.Since(start)

	return d, nil
}

func (r Runner) iterate(c Cursor, keys [][]byte) error {
	for i := 0; ; i++ {
		key, value, ok, err := c.Next()
		if err != nil {
			return fmt.Errorf("measure: iteration at entry %d: %w", i, err)
		}
		if !ok {
			if i != len(keys) {
				return serrors.NewVerificationError(serrors.CodeEntryCount,
					fmt.Sprintf("measure: iteration ended after %d entries, expected %d", i, len(keys)))
			}
			return nil
		}
		if i >= len(keys) {
			return serrors.NewVerificationError(serrors.CodeEntryCount,
				fmt.Sprintf("measure: iteration produced more than %d entries", len(keys))).
				WithDetails(map[string]interface{}{"extra_key": fmt.Sprintf("%q", key)})
		}
		if !bytes.Equal(key, keys[i]) {
			return mismatch(i, keys[i], key)
		}
		if _, err := bitmap.CheckBound(value, r.MaxCardinality); err != nil {
			return fmt.Errorf("measure: value of entry %d (%q): %w", i, key, err)
		}
	}
}

func (r Runner) jump(c Cursor, keys [][]byte, targets []int) error {
	for n, i := range targets {
		want := keys[i]
		key, value, ok, err := c.SeekGE(want)
		if err != nil {
			return fmt.Errorf("measure: seek %d: %w", n, err)
		}
		if !ok {
			return serrors.NewVerificationError(serrors.CodeMissingEntry,
				fmt.Sprintf("measure: seek %d found nothing at or after %q", n, want))
		}
		if !bytes.Equal(key, want) {
			return mismatch(i, want, key)
		}
		if _, err := bitmap.CheckBound(value, r.MaxCardinality); err != nil {
			return fmt.Errorf("measure: value of %q: %w", key, err)
		}
	}
	return nil
}

func mismatch(pos int, want, got []byte) error {
	return serrors.NewVerificationError(serrors.CodeKeyMismatch,
		fmt.Sprintf("measure: expected key %q at position %d, got %q", want, pos, got)).
		WithDetails(map[string]interface{}{"position": pos})
}
