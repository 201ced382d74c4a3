// Package store builds the benchmarked stores from a dataset and opens
// cursors over them. Builds are idempotent per artifact name: the artifact
// path is claimed with an exclusive create, and a path that already exists is
// reused as-is.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkilian/sweep/internal/dataset"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/grid"
	"github.com/arkilian/sweep/internal/storage"
)

// Backend identifies a store family.
type Backend int

const (
	BackendSortedFile Backend = iota
	BackendBolt
	BackendSQLite
)

// Backends lists every backend.
var Backends = []Backend{BackendSortedFile, BackendBolt, BackendSQLite}

func (b Backend) String() string {
	switch b {
	case BackendSortedFile:
		return "sorted-file"
	case BackendBolt:
		return "bolt"
	case BackendSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses a backend name as printed by String.
func ParseBackend(s string) (Backend, error) {
	for _, b := range Backends {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("store: unknown backend %q", s)
}

// Artifact names of the transactional baselines.
const (
	BoltFileName   = "bolt-baseline.db"
	SQLiteFileName = "sqlite-baseline.db"
)

// DefaultBoltMapSize is the memory-map size reserved for the bolt baseline.
const DefaultBoltMapSize int64 = 5 << 30

// Target describes one store to build. The set of targets is closed:
// SortedFile, Bolt and SQLite.
type Target interface {
	// Name returns the artifact file name.
	Name() string
	// Backend returns the store family.
	Backend() Backend

	sealed()
}

// SortedFile targets a sorted file built with Params.
type SortedFile struct {
	Params grid.Parameters
}

// Bolt targets the bolt baseline. MapSize bounds the total bytes loaded.
type Bolt struct {
	MapSize int64
}

// SQLite targets the SQLite baseline.
type SQLite struct{}

func (t SortedFile) Name() string     { return t.Params.Name() }
func (t SortedFile) Backend() Backend { return BackendSortedFile }
func (SortedFile) sealed()            {}

func (Bolt) Name() string     { return BoltFileName }
func (Bolt) Backend() Backend { return BackendBolt }
func (Bolt) sealed()          {}

func (SQLite) Name() string     { return SQLiteFileName }
func (SQLite) Backend() Backend { return BackendSQLite }
func (SQLite) sealed()          {}

// Cursor is the read interface measured by the benchmark. Keys and values
// returned by a cursor are valid until its next call.
type Cursor interface {
	// Next returns the entry following the current position. On a fresh
	// cursor it returns the first entry.
	Next() (key, value []byte, ok bool, err error)
	// SeekGE positions the cursor at the first key >= target.
	SeekGE(target []byte) (key, value []byte, ok bool, err error)
	// Close releases everything the cursor acquired.
	Close() error
}

// Store is a built, opened store.
type Store interface {
	// Target returns what the store was built from.
	Target() Target
	// Path returns the artifact path.
	Path() string
	// Size returns the artifact size in bytes.
	Size() int64
	// Reused reports whether an existing artifact was reused.
	Reused() bool
	// Close releases the store.
	Close() error
}

// Builder builds stores into a folder.
type Builder struct {
	// Folder receives every artifact.
	Folder string
	// Mirror, when set, is consulted before building and receives freshly
	// built artifacts.
	Mirror storage.ObjectStorage
}

// Build builds (or reuses) the store described by t and opens it.
func Build(ctx context.Context, folder string, ds *dataset.Dataset, t Target) (Store, error) {
	b := &Builder{Folder: folder}
	return b.Build(ctx, ds, t)
}

// Build builds (or reuses) the store described by t and opens it.
func (b *Builder) Build(ctx context.Context, ds *dataset.Dataset, t Target) (Store, error) {
	switch t := t.(type) {
	case SortedFile:
		return b.buildSortedFile(ctx, ds, t)
	case Bolt:
		return b.buildBolt(ctx, ds, t)
	case SQLite:
		return b.buildSQLite(ctx, ds)
	default:
		return nil, serrors.NewInternalError(fmt.Sprintf("store: unhandled target %T", t), nil)
	}
}

// Path returns the artifact path of t inside folder.
func Path(folder string, t Target) string {
	return filepath.Join(folder, t.Name())
}

// claim atomically creates the artifact path. A nil file with a nil error
// means the artifact already exists and must be reused.
func (b *Builder) claim(ctx context.Context, name string) (*os.File, string, error) {
	path := filepath.Join(b.Folder, name)

	if b.Mirror != nil {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fetched, err := storage.FetchInto(ctx, b.Mirror, name, path)
			if err != nil {
				return nil, path, serrors.NewSetupError(serrors.CodeMirrorFailed, "store: fetch "+name, err)
			}
			if fetched {
				log.Printf("store: fetched %s from mirror", name)
			}
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, path, nil
		}
		return nil, path, serrors.NewSetupError(serrors.CodeCreateFailed, "store: create "+path, err)
	}
	return f, path, nil
}

// publish uploads a freshly built artifact to the mirror.
func (b *Builder) publish(ctx context.Context, path string) error {
	if b.Mirror == nil {
		return nil
	}
	if err := b.Mirror.Upload(ctx, path, filepath.Base(path)); err != nil {
		return serrors.NewSetupError(serrors.CodeMirrorFailed, "store: upload "+filepath.Base(path), err)
	}
	return nil
}

// abandon removes a partially built artifact so the next run rebuilds it.
func abandon(path string, cause error) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("store: failed to remove partial artifact %s: %v", path, err)
	}
	return cause
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, serrors.NewSetupError(serrors.CodeOpenFailed, "store: stat "+path, err)
	}
	return info.Size(), nil
}

// cancelEvery is how many inserts a build performs between context checks.
const cancelEvery = 4096

func checkCancel(ctx context.Context, i int) error {
	if i%cancelEvery == 0 {
		return ctx.Err()
	}
	return nil
}
