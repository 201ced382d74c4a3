package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Prefetcher pulls mirrored artifacts into a local folder in parallel, so the
// build phase finds them already present and skips rebuilding.
type Prefetcher struct {
	storage     ObjectStorage
	concurrency int
	folder      string
}

// PrefetchResult summarizes a prefetch.
type PrefetchResult struct {
	// Present counts artifacts that already existed locally.
	Present int
	// Downloaded counts artifacts fetched from the mirror.
	Downloaded int
	// Missing counts artifacts absent from both places.
	Missing int
}

// NewPrefetcher creates a prefetcher writing into folder.
func NewPrefetcher(storage ObjectStorage, concurrency int, folder string) *Prefetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Prefetcher{storage: storage, concurrency: concurrency, folder: folder}
}

// Fetch downloads every named artifact missing from the folder. The first
// failure is returned after in-flight downloads finish.
func (p *Prefetcher) Fetch(ctx context.Context, names []string) (*PrefetchResult, error) {
	result := &PrefetchResult{}
	sem := semaphore.NewWeighted(int64(p.concurrency))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, name := range names {
		local := filepath.Join(p.folder, filepath.Base(name))
		if _, err := os.Stat(local); err == nil {
			result.Present++
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(name, local string) {
			defer sem.Release(1)
			defer wg.Done()

			fetched, err := FetchInto(ctx, p.storage, name, local)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			case fetched:
				result.Downloaded++
			default:
				result.Missing++
			}
		}(name, local)
	}

	wg.Wait()
	return result, firstErr
}

// FetchInto downloads objectPath to localPath unless localPath already
// exists. The local file appears atomically: a reader never observes a
// partial download. It reports whether the object was fetched; an object
// absent from the mirror is not an error.
func FetchInto(ctx context.Context, s ObjectStorage, objectPath, localPath string) (bool, error) {
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".fetch-*")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.Download(ctx, objectPath, tmp.Name()); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}

	// Link fails if the destination exists, so a concurrently built artifact
	// is never replaced.
	if err := os.Link(tmp.Name(), localPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return true, nil
}
