package source

import (
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// BufferedReaderAt serves reads from a small cache of fixed-size pages loaded
// from an underlying io.ReaderAt. It is not safe for concurrent use; each
// measurement task owns its own instance.
type BufferedReaderAt struct {
	r        io.ReaderAt
	size     int64
	pageSize int64
	pages    *lru.Cache[int64, []byte]
	misses   int64
}

// NewBufferedReaderAt wraps r, whose readable length is size.
func NewBufferedReaderAt(r io.ReaderAt, size int64, opts Options) (*BufferedReaderAt, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	if opts.Pages <= 0 {
		opts.Pages = DefaultOptions().Pages
	}
	cache, err := lru.New[int64, []byte](opts.Pages)
	if err != nil {
		return nil, serrors.NewInternalError("source: page cache", err)
	}
	return &BufferedReaderAt{
		r:        r,
		size:     size,
		pageSize: int64(opts.PageSize),
		pages:    cache,
	}, nil
}

// ReadAt implements io.ReaderAt.
func (b *BufferedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("source: negative offset %d", off)
	}
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if pos >= b.size {
			return n, io.EOF
		}
		index := pos / b.pageSize
		page, err := b.page(index)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], page[pos-index*b.pageSize:])
	}
	return n, nil
}

// Misses returns the number of pages loaded from the underlying reader.
func (b *BufferedReaderAt) Misses() int64 {
	return b.misses
}

func (b *BufferedReaderAt) page(index int64) ([]byte, error) {
	if page, ok := b.pages.Get(index); ok {
		return page, nil
	}
	start := index * b.pageSize
	length := b.pageSize
	if start+length > b.size {
		length = b.size - start
	}
	page := make([]byte, length)
	if n, err := b.r.ReadAt(page, start); int64(n) != length {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	b.misses++
	b.pages.Add(index, page)
	return page, nil
}
