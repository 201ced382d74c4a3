// Package sortedfile implements an immutable sorted key/value file with
// compressed blocks and an optional multi-level sparse index. Files are built
// in a single pass from strictly increasing keys and read through any
// io.ReaderAt, which lets callers choose how bytes reach the cursor.
//
// File layout:
//
//	+--------------+-----+--------------+----------------+------------+--------+
//	| data block 1 | ... | data block n | index blocks.. | root block | footer |
//	+--------------+-----+--------------+----------------+------------+--------+
//
// Every stored block is followed by a 5 byte trailer: the compression kind and
// the murmur3 checksum of the stored payload. Index entries map the last key
// of a child block to its handle. The footer holds the root handle, the entry
// count, the number of index levels and a magic number.
package sortedfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/spaolacci/murmur3"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// Options configures the structure of a sorted file.
type Options struct {
	// Compression is applied to every block.
	Compression Compression
	// IndexLevels is the number of index layers between the root and the data
	// blocks. Zero means the root indexes data blocks directly.
	IndexLevels int
	// BlockSize is the uncompressed size at which a block is flushed.
	BlockSize int
	// IndexKeyInterval is the spacing, in entries, between keys sampled into
	// the in-block search index.
	IndexKeyInterval int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionNone,
		IndexLevels:      0,
		BlockSize:        8 * 1024,
		IndexKeyInterval: 16,
	}
}

// Validate checks that the options describe a buildable file.
func (o Options) Validate() error {
	if o.IndexKeyInterval <= 0 {
		return fmt.Errorf("sortedfile: index key interval must be positive, got %d", o.IndexKeyInterval)
	}
	if o.BlockSize <= 0 {
		return fmt.Errorf("sortedfile: block size must be positive, got %d", o.BlockSize)
	}
	if o.IndexLevels < 0 || o.IndexLevels > 255 {
		return fmt.Errorf("sortedfile: index levels must be in [0, 255], got %d", o.IndexLevels)
	}
	if int(o.Compression) >= len(Compressions) {
		return fmt.Errorf("sortedfile: unknown compression %d", o.Compression)
	}
	return nil
}

type indexEntry struct {
	lastKey []byte
	handle  handle
}

// Writer builds a sorted file sequentially. Keys must be inserted in strictly
// increasing order. The caller owns w and is responsible for flushing and
// closing it after Finish.
type Writer struct {
	w       io.Writer
	opts    Options
	offset  uint64
	data    *blockBuilder
	index   []indexEntry
	lastKey []byte
	count   uint64
	done    bool
}

// NewWriter creates a writer emitting a sorted file to w.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, serrors.NewBuildError(serrors.CodeWriteFailed, "sortedfile: invalid options", err)
	}
	return &Writer{
		w:    w,
		opts: opts,
		data: newBlockBuilder(opts.IndexKeyInterval),
	}, nil
}

// Insert appends an entry. A key that is not strictly greater than the
// previous one is rejected with an OUT_OF_ORDER build error.
func (w *Writer) Insert(key, value []byte) error {
	if w.done {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "sortedfile: insert after finish", nil)
	}
	if w.count > 0 && bytes.Compare(key, w.lastKey) <= 0 {
		return serrors.NewBuildError(serrors.CodeOutOfOrder,
			fmt.Sprintf("sortedfile: key %q inserted after %q", key, w.lastKey), nil).
			WithDetails(map[string]interface{}{"position": w.count})
	}

	w.data.add(key, value)
	w.lastKey = append(w.lastKey[:0], key...)
	w.count++

	if w.data.size() >= w.opts.BlockSize {
		return w.flushData()
	}
	return nil
}

// Count returns the number of entries inserted so far.
func (w *Writer) Count() uint64 {
	return w.count
}

func (w *Writer) flushData() error {
	if w.data.empty() {
		return nil
	}
	h, err := w.writeBlock(w.data.finish())
	if err != nil {
		return err
	}
	w.index = append(w.index, indexEntry{
		lastKey: append([]byte(nil), w.data.lastKey...),
		handle:  h,
	})
	w.data.reset()
	return nil
}

func (w *Writer) writeBlock(raw []byte) (handle, error) {
	payload, kind, err := compress(w.opts.Compression, raw)
	if err != nil {
		return handle{}, err
	}
	var trailer [trailerSize]byte
	trailer[0] = byte(kind)
	binary.LittleEndian.PutUint32(trailer[1:], murmur3.Sum32(payload))

	if _, err := w.w.Write(payload); err != nil {
		return handle{}, serrors.NewBuildError(serrors.CodeWriteFailed, "sortedfile: write block", err)
	}
	if _, err := w.w.Write(trailer[:]); err != nil {
		return handle{}, serrors.NewBuildError(serrors.CodeWriteFailed, "sortedfile: write trailer", err)
	}

	h := handle{offset: w.offset, length: uint64(len(payload))}
	w.offset += uint64(len(payload)) + trailerSize
	return h, nil
}

// writeIndexLevel stores entries as a run of index blocks and returns the
// entries of the level above.
func (w *Writer) writeIndexLevel(entries []indexEntry) ([]indexEntry, error) {
	var (
		next []indexEntry
		bb   = newBlockBuilder(w.opts.IndexKeyInterval)
		hbuf []byte
	)
	flush := func() error {
		if bb.empty() {
			return nil
		}
		h, err := w.writeBlock(bb.finish())
		if err != nil {
			return err
		}
		next = append(next, indexEntry{lastKey: append([]byte(nil), bb.lastKey...), handle: h})
		bb.reset()
		return nil
	}
	for _, e := range entries {
		hbuf = e.handle.encode(hbuf[:0])
		bb.add(e.lastKey, hbuf)
		if bb.size() >= w.opts.BlockSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return next, nil
}

// Finish writes the remaining data block, the index levels, the root block and
// the footer. The writer cannot be used afterwards.
func (w *Writer) Finish() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.flushData(); err != nil {
		return err
	}

	entries := w.index
	for level := 0; level < w.opts.IndexLevels; level++ {
		var err error
		if entries, err = w.writeIndexLevel(entries); err != nil {
			return err
		}
	}

	root := newBlockBuilder(w.opts.IndexKeyInterval)
	var hbuf []byte
	for _, e := range entries {
		hbuf = e.handle.encode(hbuf[:0])
		root.add(e.lastKey, hbuf)
	}
	rootHandle, err := w.writeBlock(root.finish())
	if err != nil {
		return err
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[0:], rootHandle.offset)
	binary.LittleEndian.PutUint64(footer[8:], rootHandle.length)
	binary.LittleEndian.PutUint64(footer[16:], w.count)
	binary.LittleEndian.PutUint64(footer[24:], uint64(w.opts.IndexLevels))
	binary.LittleEndian.PutUint64(footer[32:], magic)
	if _, err := w.w.Write(footer[:]); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "sortedfile: write footer", err)
	}
	w.offset += footerSize
	return nil
}
