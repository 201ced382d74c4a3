// Package source provides the byte-source adapters through which a sorted file
// is read during measurement. Every strategy exposes the same io.ReaderAt so
// the cursor logic is identical; only the I/O layer differs.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/exp/mmap"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// Strategy selects how file bytes reach the cursor.
type Strategy int

const (
	// Direct reads through the raw file handle, one syscall per block.
	Direct Strategy = iota
	// ReadToVec reads the whole file into memory first.
	ReadToVec
	// BufReader wraps the raw handle in a page cache.
	BufReader
	// MemoryMapped reads through a read-only memory mapping.
	MemoryMapped
	// MemoryMappedBufReader wraps a memory mapping in a page cache.
	MemoryMappedBufReader
)

// Strategies lists every strategy in declaration order.
var Strategies = []Strategy{Direct, ReadToVec, BufReader, MemoryMapped, MemoryMappedBufReader}

func (s Strategy) String() string {
	switch s {
	case Direct:
		return "direct"
	case ReadToVec:
		return "read-to-vec"
	case BufReader:
		return "bufreader"
	case MemoryMapped:
		return "memory-mapped"
	case MemoryMappedBufReader:
		return "memory-mapped-bufreader"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name as printed by String.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("source: unknown read strategy %q", s)
}

// View is an acquired byte source. Close releases everything the strategy
// acquired; the backing file handle stays owned by the caller and must outlive
// the view.
type View struct {
	io.ReaderAt
	size     int64
	strategy Strategy
	release  func() error
}

// Size returns the number of readable bytes.
func (v *View) Size() int64 {
	return v.size
}

// Strategy returns the strategy that produced the view.
func (v *View) Strategy() Strategy {
	return v.strategy
}

// Close releases the view. It is safe to call more than once.
func (v *View) Close() error {
	if v.release == nil {
		return nil
	}
	release := v.release
	v.release = nil
	v.ReaderAt = nil
	return release()
}

// Options tunes the buffering strategies.
type Options struct {
	// PageSize is the size of one cached page.
	PageSize int
	// Pages is the number of pages kept by the cache.
	Pages int
}

// DefaultOptions mirrors a conventional 8 KiB read buffer.
func DefaultOptions() Options {
	return Options{PageSize: 8 * 1024, Pages: 1}
}

// Open acquires a view over f using strategy s. f must be an immutable file:
// it must not be truncated or rewritten while the view is open.
func Open(f *os.File, s Strategy, opts Options) (*View, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "source: stat "+f.Name(), err)
	}
	size := info.Size()

	switch s {
	case Direct:
		return &View{ReaderAt: f, size: size, strategy: s, release: noop}, nil

	case ReadToVec:
		data := make([]byte, size)
		if n, err := f.ReadAt(data, 0); int64(n) != size {
			return nil, serrors.NewSetupError(serrors.CodeReadFailed, "source: read "+f.Name(), err)
		}
		return &View{ReaderAt: bytes.NewReader(data), size: size, strategy: s, release: noop}, nil

	case BufReader:
		br, err := NewBufferedReaderAt(f, size, opts)
		if err != nil {
			return nil, err
		}
		return &View{ReaderAt: br, size: size, strategy: s, release: noop}, nil

	case MemoryMapped, MemoryMappedBufReader:
		m, err := mmap.Open(f.Name())
		if err != nil {
			return nil, serrors.NewSetupError(serrors.CodeMapFailed, "source: map "+f.Name(), err)
		}
		if int64(m.Len()) != size {
			m.Close()
			return nil, serrors.NewSetupError(serrors.CodeMapFailed,
				fmt.Sprintf("source: mapping of %s has %d bytes, file has %d", f.Name(), m.Len(), size), nil)
		}
		var r io.ReaderAt = m
		if s == MemoryMappedBufReader {
			br, err := NewBufferedReaderAt(m, size, opts)
			if err != nil {
				m.Close()
				return nil, err
			}
			r = br
		}
		return &View{ReaderAt: r, size: size, strategy: s, release: m.Close}, nil

	default:
		return nil, serrors.NewInternalError(fmt.Sprintf("source: unhandled strategy %d", int(s)), nil)
	}
}

func noop() error { return nil }
