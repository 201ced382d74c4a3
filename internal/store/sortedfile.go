package store

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/arkilian/sweep/internal/dataset"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/sortedfile"
	"github.com/arkilian/sweep/internal/source"
)

// SortedFileStore is an opened sorted-file artifact.
type SortedFileStore struct {
	target SortedFile
	path   string
	file   *os.File
	size   int64
	reused bool
}

func (b *Builder) buildSortedFile(ctx context.Context, ds *dataset.Dataset, t SortedFile) (*SortedFileStore, error) {
	f, path, err := b.claim(ctx, t.Name())
	if err != nil {
		return nil, err
	}

	reused := f == nil
	if !reused {
		if err := writeSortedFile(ctx, f, ds, t.Params.Options()); err != nil {
			return nil, abandon(path, err)
		}
		if err := b.publish(ctx, path); err != nil {
			return nil, err
		}
	}
	return openSortedFile(t, path, reused)
}

// artifactFile is the claimed artifact a sorted file is written into.
type artifactFile interface {
	io.WriteCloser
	Name() string
}

// writeSortedFile writes ds into f and closes f exactly once on every path.
func writeSortedFile(ctx context.Context, f artifactFile, ds *dataset.Dataset, opts sortedfile.Options) error {
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	w, err := sortedfile.NewWriter(bw, opts)
	if err != nil {
		return err
	}
	err = ds.Each(func(i int, key, value []byte) error {
		if err := checkCancel(ctx, i); err != nil {
			return err
		}
		return w.Insert(key, value)
	})
	if err != nil {
		return err
	}
	if err := w.Finish(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: flush "+f.Name(), err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: close "+f.Name(), err)
	}
	return nil
}

func openSortedFile(t SortedFile, path string, reused bool) (*SortedFileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: open "+path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: stat "+path, err)
	}
	return &SortedFileStore{target: t, path: path, file: f, size: info.Size(), reused: reused}, nil
}

func (s *SortedFileStore) Target() Target { return s.target }
func (s *SortedFileStore) Path() string   { return s.path }
func (s *SortedFileStore) Size() int64    { return s.size }
func (s *SortedFileStore) Reused() bool   { return s.reused }

// Close closes the artifact handle. Cursors must be closed first.
func (s *SortedFileStore) Close() error {
	return s.file.Close()
}

// OpenCursor opens a cursor reading through strategy. The byte source is
// released when the cursor is closed.
func (s *SortedFileStore) OpenCursor(strategy source.Strategy, opts source.Options) (Cursor, error) {
	view, err := source.Open(s.file, strategy, opts)
	if err != nil {
		return nil, err
	}
	r, err := sortedfile.NewReader(view, view.Size())
	if err != nil {
		view.Close()
		return nil, err
	}
	return &sortedFileCursor{Cursor: r.NewCursor(), view: view}, nil
}

type sortedFileCursor struct {
	*sortedfile.Cursor
	view *source.View
}

func (c *sortedFileCursor) Close() error {
	return c.view.Close()
}
