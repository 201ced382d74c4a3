package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/arkilian/sweep/internal/dataset"
	serrors "github.com/arkilian/sweep/internal/errors"
)

var boltBucket = []byte("entries")

// BoltStore is the bolt baseline, opened read-only.
type BoltStore struct {
	target Bolt
	path   string
	db     *bolt.DB
	size   int64
	reused bool
}

func (b *Builder) buildBolt(ctx context.Context, ds *dataset.Dataset, t Bolt) (*BoltStore, error) {
	if t.MapSize <= 0 {
		t.MapSize = DefaultBoltMapSize
	}

	f, path, err := b.claim(ctx, t.Name())
	if err != nil {
		return nil, err
	}

	reused := f == nil
	if !reused {
		// bolt initializes an empty file in place.
		f.Close()
		if err := loadBolt(ctx, path, ds, t.MapSize); err != nil {
			return nil, abandon(path, err)
		}
		if err := b.publish(ctx, path); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: open "+path, err)
	}
	size, err := fileSize(path)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{target: t, path: path, db: db, size: size, reused: reused}, nil
}

// loadBolt inserts the whole dataset in a single write transaction.
func loadBolt(ctx context.Context, path string, ds *dataset.Dataset, mapSize int64) error {
	db, err := bolt.Open(path, 0644, &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: int(mapSize),
		NoSync:          true,
	})
	if err != nil {
		return serrors.NewSetupError(serrors.CodeCreateFailed, "store: create "+path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucket(boltBucket)
		if err != nil {
			return serrors.NewBuildError(serrors.CodeWriteFailed, "store: create bucket", err)
		}
		bucket.FillPercent = 1.0

		var loaded int64
		var last []byte
		return ds.Each(func(i int, key, value []byte) error {
			if err := checkCancel(ctx, i); err != nil {
				return err
			}
			if i > 0 && bytes.Compare(key, last) <= 0 {
				return serrors.NewBuildError(serrors.CodeOutOfOrder,
					fmt.Sprintf("store: key %q inserted after %q", key, last), nil)
			}
			loaded += int64(len(key) + len(value))
			if loaded > mapSize {
				return serrors.NewBuildError(serrors.CodeCapacityExceeded,
					fmt.Sprintf("store: bolt load exceeds map size of %d bytes", mapSize), nil).
					WithDetails(map[string]interface{}{"entry": i, "loaded": loaded})
			}
			key = slices.Clone(key)
			last = key
			if err := bucket.Put(key, slices.Clone(value)); err != nil {
				return serrors.NewBuildError(serrors.CodeWriteFailed, "store: bolt put", err)
			}
			return nil
		})
	})
	if err != nil {
		db.Close()
		return err
	}
	if err := db.Sync(); err != nil {
		db.Close()
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: sync "+path, err)
	}
	if err := db.Close(); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: close "+path, err)
	}
	return nil
}

func (s *BoltStore) Target() Target { return s.target }
func (s *BoltStore) Path() string   { return s.path }
func (s *BoltStore) Size() int64    { return s.size }
func (s *BoltStore) Reused() bool   { return s.reused }
func (s *BoltStore) Close() error   { return s.db.Close() }

// OpenCursor opens a cursor inside a read-only transaction that lives until
// the cursor is closed.
func (s *BoltStore) OpenCursor() (Cursor, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: begin read transaction", err)
	}
	bucket := tx.Bucket(boltBucket)
	if bucket == nil {
		tx.Rollback()
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed,
			fmt.Sprintf("store: %s has no %q bucket", s.path, boltBucket), nil)
	}
	return &boltCursor{tx: tx, c: bucket.Cursor()}, nil
}

type boltCursor struct {
	tx      *bolt.Tx
	c       *bolt.Cursor
	started bool
}

func (c *boltCursor) Next() ([]byte, []byte, bool, error) {
	var k, v []byte
	if c.started {
		k, v = c.c.Next()
	} else {
		k, v = c.c.First()
		c.started = true
	}
	return k, v, k != nil, nil
}

func (c *boltCursor) SeekGE(target []byte) ([]byte, []byte, bool, error) {
	k, v := c.c.Seek(target)
	c.started = true
	return k, v, k != nil, nil
}

func (c *boltCursor) Close() error {
	return c.tx.Rollback()
}
