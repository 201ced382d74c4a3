package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/sweep/internal/dataset"
	serrors "github.com/arkilian/sweep/internal/errors"
)

const (
	createKVSQL = `CREATE TABLE kv (
		k BLOB PRIMARY KEY,
		v BLOB NOT NULL
	) WITHOUT ROWID`
	insertKVSQL = `INSERT INTO kv (k, v) VALUES (?, ?)`
	scanKVSQL   = `SELECT k, v FROM kv ORDER BY k`
	resumeKVSQL = `SELECT k, v FROM kv WHERE k > ? ORDER BY k`
	seekKVSQL   = `SELECT k, v FROM kv WHERE k >= ? ORDER BY k LIMIT 1`
)

// SQLiteStore is the SQLite baseline, opened read-only.
type SQLiteStore struct {
	path   string
	db     *sql.DB
	seek   *sql.Stmt
	size   int64
	reused bool
}

func (b *Builder) buildSQLite(ctx context.Context, ds *dataset.Dataset) (*SQLiteStore, error) {
	f, path, err := b.claim(ctx, SQLiteFileName)
	if err != nil {
		return nil, err
	}

	reused := f == nil
	if !reused {
		// An empty file is a valid empty database.
		f.Close()
		if err := loadSQLite(ctx, path, ds); err != nil {
			return nil, abandon(path, err)
		}
		if err := b.publish(ctx, path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: open "+path, err)
	}
	seek, err := db.PrepareContext(ctx, seekKVSQL)
	if err != nil {
		db.Close()
		return nil, serrors.NewSetupError(serrors.CodeOpenFailed, "store: prepare seek on "+path, err)
	}
	size, err := fileSize(path)
	if err != nil {
		seek.Close()
		db.Close()
		return nil, err
	}
	return &SQLiteStore{path: path, db: db, seek: seek, size: size, reused: reused}, nil
}

// loadSQLite inserts the whole dataset in a single transaction.
func loadSQLite(ctx context.Context, path string, ds *dataset.Dataset) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return serrors.NewSetupError(serrors.CodeCreateFailed, "store: create "+path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA synchronous=OFF"); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: set synchronous mode", err)
	}
	if _, err := db.ExecContext(ctx, createKVSQL); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: create kv table", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertKVSQL)
	if err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: prepare insert", err)
	}
	defer stmt.Close()

	var last []byte
	err = ds.Each(func(i int, key, value []byte) error {
		if err := checkCancel(ctx, i); err != nil {
			return err
		}
		if i > 0 && bytes.Compare(key, last) <= 0 {
			return serrors.NewBuildError(serrors.CodeOutOfOrder,
				fmt.Sprintf("store: key %q inserted after %q", key, last), nil)
		}
		last = append(last[:0], key...)
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return serrors.NewBuildError(serrors.CodeWriteFailed, "store: sqlite insert", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: commit", err)
	}
	if err := db.Close(); err != nil {
		return serrors.NewBuildError(serrors.CodeWriteFailed, "store: close "+path, err)
	}
	return nil
}

func (s *SQLiteStore) Target() Target { return SQLite{} }
func (s *SQLiteStore) Path() string   { return s.path }
func (s *SQLiteStore) Size() int64    { return s.size }
func (s *SQLiteStore) Reused() bool   { return s.reused }

func (s *SQLiteStore) Close() error {
	s.seek.Close()
	return s.db.Close()
}

// OpenCursor opens a cursor. Iteration streams one ordered scan; seeks run
// the prepared lower-bound query.
func (s *SQLiteStore) OpenCursor() (Cursor, error) {
	return &sqliteCursor{store: s}, nil
}

type sqliteCursor struct {
	store *SQLiteStore
	rows  *sql.Rows
	key   []byte
	value []byte
	moved bool
}

func (c *sqliteCursor) Next() ([]byte, []byte, bool, error) {
	if c.rows == nil {
		var err error
		if c.moved {
			c.rows, err = c.store.db.Query(resumeKVSQL, c.key)
		} else {
			c.rows, err = c.store.db.Query(scanKVSQL)
		}
		if err != nil {
			return nil, nil, false, serrors.NewSetupError(serrors.CodeReadFailed, "store: sqlite scan", err)
		}
		c.moved = true
	}
	if !c.rows.Next() {
		err := c.rows.Err()
		c.closeRows()
		if err != nil {
			return nil, nil, false, serrors.NewSetupError(serrors.CodeReadFailed, "store: sqlite scan", err)
		}
		return nil, nil, false, nil
	}
	if err := c.rows.Scan(&c.key, &c.value); err != nil {
		return nil, nil, false, serrors.NewSetupError(serrors.CodeReadFailed, "store: sqlite scan", err)
	}
	return c.key, c.value, true, nil
}

func (c *sqliteCursor) SeekGE(target []byte) ([]byte, []byte, bool, error) {
	c.closeRows()
	c.moved = true
	err := c.store.seek.QueryRow(target).Scan(&c.key, &c.value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, serrors.NewSetupError(serrors.CodeReadFailed, "store: sqlite seek", err)
	}
	return c.key, c.value, true, nil
}

func (c *sqliteCursor) closeRows() {
	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}
}

func (c *sqliteCursor) Close() error {
	c.closeRows()
	return nil
}
