package sortedfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/spaolacci/murmur3"

	serrors "github.com/arkilian/sweep/internal/errors"
)

const (
	// trailerSize is the compression byte plus the murmur3 checksum that
	// follow every stored block.
	trailerSize = 5
	footerSize  = 40
	magic       = uint64(0x7377656570534654) // "sweepSFT"
)

// handle locates a stored block payload. Length excludes the trailer.
type handle struct {
	offset uint64
	length uint64
}

func (h handle) encode(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.offset)
	return binary.AppendUvarint(dst, h.length)
}

func decodeHandle(b []byte) (handle, error) {
	off, n := binary.Uvarint(b)
	if n <= 0 {
		return handle{}, corrupt("bad handle offset")
	}
	length, m := binary.Uvarint(b[n:])
	if m <= 0 {
		return handle{}, corrupt("bad handle length")
	}
	return handle{offset: off, length: length}, nil
}

func corrupt(msg string) error {
	return serrors.NewEncodingError(serrors.CodeCorruptBlock, "sortedfile: "+msg, nil)
}

// blockBuilder accumulates entries and records the offset of every
// interval-th entry so readers can binary search inside the block.
type blockBuilder struct {
	interval int
	buf      []byte
	samples  []uint32
	count    int
	lastKey  []byte
}

func newBlockBuilder(interval int) *blockBuilder {
	return &blockBuilder{interval: interval}
}

func (b *blockBuilder) add(key, value []byte) {
	if b.count%b.interval == 0 {
		b.samples = append(b.samples, uint32(len(b.buf)))
	}
	b.buf = binary.AppendUvarint(b.buf, uint64(len(key)))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(value)))
	b.buf = append(b.buf, key...)
	b.buf = append(b.buf, value...)
	b.lastKey = append(b.lastKey[:0], key...)
	b.count++
}

// size estimates the uncompressed size of the finished block.
func (b *blockBuilder) size() int {
	return len(b.buf) + 4*len(b.samples) + 4
}

func (b *blockBuilder) empty() bool {
	return b.count == 0
}

// finish appends the sample index and returns the raw block. The returned
// slice is only valid until the next reset.
func (b *blockBuilder) finish() []byte {
	for _, s := range b.samples {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, s)
	}
	return binary.LittleEndian.AppendUint32(b.buf, uint32(len(b.samples)))
}

func (b *blockBuilder) reset() {
	b.buf = b.buf[:0]
	b.samples = b.samples[:0]
	b.count = 0
}

// block is a decoded, decompressed block.
type block struct {
	data    []byte
	samples []byte
	nsample int
}

func parseBlock(raw []byte) (*block, error) {
	if len(raw) < 4 {
		return nil, corrupt("block too short")
	}
	n := int(binary.LittleEndian.Uint32(raw[len(raw)-4:]))
	start := len(raw) - 4 - 4*n
	if n < 0 || start < 0 {
		return nil, corrupt(fmt.Sprintf("block sample count %d out of range", n))
	}
	return &block{
		data:    raw[:start],
		samples: raw[start : len(raw)-4],
		nsample: n,
	}, nil
}

func (b *block) sample(i int) int {
	return int(binary.LittleEndian.Uint32(b.samples[4*i:]))
}

// entryAt decodes the entry starting at off and returns the offset of the
// following entry.
func (b *block) entryAt(off int) (key, value []byte, next int, err error) {
	if off < 0 || off >= len(b.data) {
		return nil, nil, 0, corrupt("entry offset out of range")
	}
	klen, n := binary.Uvarint(b.data[off:])
	if n <= 0 {
		return nil, nil, 0, corrupt("bad key length")
	}
	off += n
	vlen, n := binary.Uvarint(b.data[off:])
	if n <= 0 {
		return nil, nil, 0, corrupt("bad value length")
	}
	off += n
	if klen > uint64(len(b.data)-off) {
		return nil, nil, 0, corrupt("key overruns block")
	}
	mid := off + int(klen)
	if vlen > uint64(len(b.data)-mid) {
		return nil, nil, 0, corrupt("value overruns block")
	}
	end := mid + int(vlen)
	return b.data[off:mid], b.data[mid:end], end, nil
}

// blockIter walks the entries of one block.
type blockIter struct {
	b     *block
	off   int
	key   []byte
	value []byte
	err   error
}

func newBlockIter(b *block) *blockIter {
	return &blockIter{b: b}
}

func (it *blockIter) next() bool {
	if it.err != nil || it.off >= len(it.b.data) {
		return false
	}
	it.key, it.value, it.off, it.err = it.b.entryAt(it.off)
	return it.err == nil
}

// seekGE positions the iterator on the first entry whose key is >= target.
func (it *blockIter) seekGE(target []byte) bool {
	if it.err != nil {
		return false
	}
	// First sample strictly greater than target; the answer lies at or after
	// the sample before it.
	idx := sort.Search(it.b.nsample, func(i int) bool {
		if it.err != nil {
			return true
		}
		key, _, _, err := it.b.entryAt(it.b.sample(i))
		if err != nil {
			it.err = err
			return true
		}
		return bytes.Compare(key, target) > 0
	})
	if it.err != nil {
		return false
	}
	it.off = 0
	if idx > 0 {
		it.off = it.b.sample(idx - 1)
	}
	for it.next() {
		if bytes.Compare(it.key, target) >= 0 {
			return true
		}
	}
	return false
}

// readBlock loads, verifies and decompresses the block at h.
func readBlock(r io.ReaderAt, h handle) (*block, error) {
	buf := make([]byte, h.length+trailerSize)
	n, err := r.ReadAt(buf, int64(h.offset))
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, serrors.NewSetupError(serrors.CodeReadFailed,
			fmt.Sprintf("sortedfile: read block at %d", h.offset), err)
	}
	payload := buf[:h.length]
	trailer := buf[h.length:]
	if sum := murmur3.Sum32(payload); sum != binary.LittleEndian.Uint32(trailer[1:]) {
		return nil, corrupt(fmt.Sprintf("checksum mismatch at offset %d", h.offset))
	}
	raw, err := decompress(Compression(trailer[0]), payload)
	if err != nil {
		return nil, err
	}
	return parseBlock(raw)
}
