package sortedfile

import (
	"encoding/binary"
	"fmt"
	"io"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// Reader gives access to a sorted file through an io.ReaderAt. The root block
// is loaded once when the reader is created. A Reader may be shared between
// goroutines when r supports concurrent ReadAt calls; cursors may not.
type Reader struct {
	r      io.ReaderAt
	size   int64
	root   *block
	count  uint64
	levels int
}

// NewReader parses the footer and the root block of the file held by r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < footerSize {
		return nil, corrupt(fmt.Sprintf("file too small (%d bytes)", size))
	}
	var footer [footerSize]byte
	if n, err := r.ReadAt(footer[:], size-footerSize); n < footerSize {
		return nil, serrors.NewSetupError(serrors.CodeReadFailed, "sortedfile: read footer", err)
	}
	if binary.LittleEndian.Uint64(footer[32:]) != magic {
		return nil, corrupt("invalid magic number")
	}
	rootHandle := handle{
		offset: binary.LittleEndian.Uint64(footer[0:]),
		length: binary.LittleEndian.Uint64(footer[8:]),
	}
	if rootHandle.offset+rootHandle.length+trailerSize > uint64(size) {
		return nil, corrupt("root handle out of range")
	}
	levels := binary.LittleEndian.Uint64(footer[24:])
	if levels > 255 {
		return nil, corrupt(fmt.Sprintf("index levels %d out of range", levels))
	}

	root, err := readBlock(r, rootHandle)
	if err != nil {
		return nil, err
	}
	return &Reader{
		r:      r,
		size:   size,
		root:   root,
		count:  binary.LittleEndian.Uint64(footer[16:]),
		levels: int(levels),
	}, nil
}

// EntryCount returns the number of entries recorded in the footer.
func (r *Reader) EntryCount() uint64 {
	return r.count
}

// IndexLevels returns the number of index layers below the root.
func (r *Reader) IndexLevels() int {
	return r.levels
}

// Size returns the file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// NewCursor returns a cursor positioned before the first entry.
func (r *Reader) NewCursor() *Cursor {
	frames := make([]*blockIter, r.levels+2)
	frames[0] = newBlockIter(r.root)
	return &Cursor{r: r, frames: frames}
}

// Cursor walks a sorted file. frames[0] iterates the root block, the last
// frame iterates the current data block and the frames in between iterate
// index blocks. Keys and values returned by a cursor stay valid only until
// the cursor moves to another block.
type Cursor struct {
	r      *Reader
	frames []*blockIter
}

func (c *Cursor) data() *blockIter {
	return c.frames[len(c.frames)-1]
}

// load replaces frame i with an iterator over the child block referenced by
// the current entry of frame i-1.
func (c *Cursor) load(i int) error {
	h, err := decodeHandle(c.frames[i-1].value)
	if err != nil {
		return err
	}
	if h.offset+h.length+trailerSize > uint64(c.r.size) {
		return corrupt("child handle out of range")
	}
	b, err := readBlock(c.r.r, h)
	if err != nil {
		return err
	}
	c.frames[i] = newBlockIter(b)
	return nil
}

// step advances frame i, pulling in the next sibling block from the parent
// when frame i is exhausted.
func (c *Cursor) step(i int) (bool, error) {
	for {
		if it := c.frames[i]; it != nil {
			if it.next() {
				return true, nil
			}
			if it.err != nil {
				return false, it.err
			}
		}
		if i == 0 {
			return false, nil
		}
		ok, err := c.step(i - 1)
		if err != nil || !ok {
			c.frames[i] = nil
			return false, err
		}
		if err := c.load(i); err != nil {
			return false, err
		}
	}
}

// Next moves to the following entry. The first call on a fresh cursor yields
// the first entry of the file. ok is false once the file is exhausted.
func (c *Cursor) Next() (key, value []byte, ok bool, err error) {
	ok, err = c.step(len(c.frames) - 1)
	if !ok || err != nil {
		return nil, nil, false, err
	}
	it := c.data()
	return it.key, it.value, true, nil
}

// SeekGE positions the cursor on the first entry whose key is greater than or
// equal to target. ok is false when every key is smaller than target.
func (c *Cursor) SeekGE(target []byte) (key, value []byte, ok bool, err error) {
	root := newBlockIter(c.r.root)
	c.frames[0] = root
	for i := 1; i < len(c.frames); i++ {
		c.frames[i] = nil
	}
	if !root.seekGE(target) {
		return nil, nil, false, root.err
	}
	for i := 1; i < len(c.frames); i++ {
		if err := c.load(i); err != nil {
			return nil, nil, false, err
		}
		// The parent's last key is >= target, so the child must hold a match.
		if !c.frames[i].seekGE(target) {
			if err := c.frames[i].err; err != nil {
				return nil, nil, false, err
			}
			return nil, nil, false, corrupt("index points past the searched key")
		}
	}
	it := c.data()
	return it.key, it.value, true, nil
}

// Each iterates the whole file in key order.
func (r *Reader) Each(fn func(key, value []byte) error) error {
	cur := r.NewCursor()
	for {
		key, value, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
}
