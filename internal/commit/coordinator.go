// Package commit serializes writes to a document so each commit stores its
// blob and appends exactly one revision while holding the path's lock.
package commit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vff/internal/errors"
	"vff/internal/metrics"
	"vff/internal/revision"
	"vff/internal/safe"
)

const (
	kindAdd    = "add"
	kindDelete = "delete"
)

// BlobStore is the part of the content store the coordinator writes to.
type BlobStore interface {
	Put(content []byte) (string, error)
}

// Options configures a Coordinator
type Options struct {
	// LockTimeout bounds how long a commit waits for its path. Zero waits
	// until the context is done.
	LockTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Coordinator performs commits against a blob store and a revision log
type Coordinator struct {
	blobs  BlobStore
	log    revision.Log
	locks  *lockTable
	opts   Options
	logger *zap.Logger
}

func New(blobs BlobStore, log revision.Log, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		blobs:  blobs,
		log:    log,
		locks:  newLockTable(),
		opts:   opts,
		logger: opts.Logger.Named("commit"),
	}
}

// AddRevision stores content as the new latest revision of path. Adding to
// a deleted document recreates it.
func (c *Coordinator) AddRevision(ctx context.Context, content []byte, path, message, author string) (rev *revision.Revision, err error) {
	defer c.observe(kindAdd, time.Now(), &err)

	who, err := c.prepare(path, author)
	if err != nil {
		return nil, err
	}

	release, err := c.locks.acquire(ctx, path, c.opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	hash, err := c.blobs.Put(content)
	if err != nil {
		return nil, err
	}

	rev, err = c.log.Append(ctx, revision.Entry{
		Path:        path,
		ContentHash: hash,
		Author:      who,
		Message:     message,
		Timestamp:   c.opts.Now(),
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("committed revision",
		zap.String("path", path),
		zap.String("id", rev.ID),
		zap.String("hash", hash),
		zap.String("author", who.String()))
	return rev, nil
}

// DelDocument appends a tombstone to path.
func (c *Coordinator) DelDocument(ctx context.Context, path, message, author string) (rev *revision.Revision, err error) {
	defer c.observe(kindDelete, time.Now(), &err)

	who, err := c.prepare(path, author)
	if err != nil {
		return nil, err
	}

	release, err := c.locks.acquire(ctx, path, c.opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	head, err := c.log.Get(ctx, path, "")
	if err != nil {
		return nil, err
	}
	if head.Tombstone {
		return nil, errors.Deleted("document %s is already deleted", path)
	}

	hash, err := c.blobs.Put(nil)
	if err != nil {
		return nil, err
	}

	rev, err = c.log.Append(ctx, revision.Entry{
		Path:        path,
		ContentHash: hash,
		Author:      who,
		Message:     message,
		Timestamp:   c.opts.Now(),
		Tombstone:   true,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("deleted document",
		zap.String("path", path),
		zap.String("id", rev.ID),
		zap.String("author", who.String()))
	return rev, nil
}

func (c *Coordinator) prepare(path, author string) (revision.Author, error) {
	if err := revision.ValidatePath(path); err != nil {
		return revision.Author{}, err
	}
	return ParseAuthor(author)
}

func (c *Coordinator) observe(kind string, start time.Time, err *error) {
	metrics.Commits.WithLabelValues(kind, metrics.Result(*err)).Inc()
	metrics.CommitDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if *err != nil {
		c.logger.Debug("commit failed", zap.String("kind", kind), zap.Error(*err))
	}
}

var _ BlobStore = (*safe.Safe)(nil)
