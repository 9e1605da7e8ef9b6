// Package badgerlog stores revision history in a Badger key-value database.
//
// Each revision is kept twice: under rev:<path>\x00<seq> for ordered scans
// and as a small pointer under id:<id> for lookups by revision id.
package badgerlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"vff/internal/errors"
	"vff/internal/revision"
	"vff/internal/storage"
)

// idRef points from a revision id back to its ordered key.
type idRef struct {
	Path string `json:"path"`
	Seq  uint64 `json:"seq"`
}

// Log implements revision.Log on Badger
type Log struct {
	db     *badger.DB
	revs   *storage.BadgerStore
	ids    *storage.BadgerStore
	owned  bool
	logger *zap.Logger
}

var _ revision.Log = (*Log)(nil)

// Open opens the log database in dir.
func Open(dir string, logger *zap.Logger) (*Log, error) {
	db, err := storage.OpenBadger(dir, logger)
	if err != nil {
		return nil, err
	}
	l := New(db, logger)
	l.owned = true
	return l, nil
}

// New wraps an already open database. Close leaves db open.
func New(db *badger.DB, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		db:     db,
		revs:   storage.NewBadgerStore(db, "rev"),
		ids:    storage.NewBadgerStore(db, "id"),
		logger: logger.Named("badgerlog"),
	}
}

func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func (l *Log) Append(ctx context.Context, entry revision.Entry) (*revision.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Concurrency(err, "append to %s", entry.Path)
	}
	if err := revision.ValidatePath(entry.Path); err != nil {
		return nil, err
	}

	var rev *revision.Revision
	err := l.db.Update(func(txn *badger.Txn) error {
		head, err := l.head(txn, entry.Path)
		if err != nil {
			return err
		}

		rev = revision.Link(entry, head)
		if err := l.revs.Create(txn, l.revs.Key(rev.Path, seqKey(rev.Seq)), rev); err != nil {
			return err
		}
		return l.ids.Create(txn, l.ids.Key(rev.ID), idRef{Path: rev.Path, Seq: rev.Seq})
	})
	if err == badger.ErrConflict {
		return nil, errors.Concurrency(err, "concurrent append to %s", entry.Path)
	}
	if err != nil {
		return nil, wrapIO(err, "appending to %s", entry.Path)
	}

	l.logger.Debug("appended revision",
		zap.String("path", rev.Path),
		zap.String("id", rev.ID),
		zap.Uint64("seq", rev.Seq),
		zap.Bool("tombstone", rev.Tombstone))
	return rev, nil
}

func (l *Log) List(ctx context.Context, path string, offset, count int) ([]*revision.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	revs := []*revision.Revision{}
	err := l.db.View(func(txn *badger.Txn) error {
		skipped := 0
		return l.revs.Scan(txn, l.revs.Prefix(path), true, func(val []byte) (bool, error) {
			if skipped < offset {
				skipped++
				return true, nil
			}
			var rev revision.Revision
			if err := json.Unmarshal(val, &rev); err != nil {
				return false, errors.IO(errors.WithStack(err), "decoding revision of %s", path)
			}
			revs = append(revs, &rev)
			return count <= 0 || len(revs) < count, nil
		})
	})
	if err != nil {
		return nil, wrapIO(err, "listing %s", path)
	}
	return revs, nil
}

func (l *Log) Get(ctx context.Context, path, id string) (*revision.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rev *revision.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		if id == "" {
			head, err := l.head(txn, path)
			if err != nil {
				return err
			}
			if head == nil {
				return errors.NotFound("document %s has no revisions", path)
			}
			rev = head
			return nil
		}

		var ref idRef
		if err := l.ids.Get(txn, l.ids.Key(id), &ref); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.NotFound("revision %s not found for %s", id, path)
			}
			return err
		}
		if ref.Path != path {
			return errors.NotFound("revision %s not found for %s", id, path)
		}

		rev = &revision.Revision{}
		return l.revs.Get(txn, l.revs.Key(ref.Path, seqKey(ref.Seq)), rev)
	})
	if err != nil {
		return nil, wrapIO(err, "reading %s", path)
	}
	return rev, nil
}

// head returns the latest revision of path, or nil when it has none.
func (l *Log) head(txn *badger.Txn, path string) (*revision.Revision, error) {
	var head *revision.Revision
	err := l.revs.Scan(txn, l.revs.Prefix(path), true, func(val []byte) (bool, error) {
		head = &revision.Revision{}
		if err := json.Unmarshal(val, head); err != nil {
			return false, errors.IO(errors.WithStack(err), "decoding head of %s", path)
		}
		return false, nil
	})
	return head, err
}

func (l *Log) Close() error {
	if !l.owned {
		return nil
	}
	if err := l.db.Close(); err != nil {
		return errors.IO(err, "closing revision log")
	}
	return nil
}

// wrapIO leaves typed errors alone and marks anything else as an IO failure.
func wrapIO(err error, format string, args ...any) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.IO(errors.WithStack(err), format, args...)
}
