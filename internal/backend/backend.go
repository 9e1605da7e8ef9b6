// Package backend is the entry point to a vff repository: it opens the
// content store and revision log under one root and exposes the document
// operations on top of them.
package backend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"vff/internal/commit"
	"vff/internal/diff"
	"vff/internal/errors"
	"vff/internal/metrics"
	"vff/internal/reader"
	"vff/internal/revision"
	"vff/internal/revision/badgerlog"
	"vff/internal/revision/sqlite"
	"vff/internal/safe"
)

// Log variants
const (
	LogBadger = "badger"
	LogSQLite = "sqlite"
)

const formatVersion = 1

// Backend is the document API used by the HTTP server, the CLI and the
// watcher.
type Backend interface {
	AddRevision(ctx context.Context, content []byte, path, message, author string) (*revision.Revision, error)
	DelDocument(ctx context.Context, path, message, author string) (*revision.Revision, error)
	ListRevisions(ctx context.Context, path string, count, offset int) ([]*revision.Revision, error)
	GetRevision(ctx context.Context, path, id string) (string, error)
	GetDiff(ctx context.Context, path, id1, id2 string) (string, error)
	Close() error
}

// Options configures a repository
type Options struct {
	Root        string
	Log         string // LogBadger (default) or LogSQLite
	Encoding    string // Text encoding of stored documents, default utf-8
	LockTimeout time.Duration
	CacheSize   int
	Compression safe.CompressionOptions
}

// Stats summarizes a repository.
type Stats struct {
	Log      string     `json:"log"`
	Encoding string     `json:"encoding"`
	Content  safe.Stats `json:"content"`
}

type format struct {
	Version int    `json:"version"`
	Log     string `json:"log"`
}

// Repository implements Backend on a directory
type Repository struct {
	opts   Options
	safe   *safe.Safe
	log    revision.Log
	commit *commit.Coordinator
	reader *reader.Reader
	differ *diff.Differ
	logger *zap.Logger
}

var _ Backend = (*Repository)(nil)

// Open opens the repository at opts.Root, creating it if needed.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Root == "" {
		return nil, errors.Configuration(nil, "repository root is required")
	}
	if opts.Log == "" {
		opts.Log = LogBadger
	}
	if opts.Log != LogBadger && opts.Log != LogSQLite {
		return nil, errors.Configuration(nil, "unknown revision log %q", opts.Log)
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.Configuration(errors.WithStack(err), "creating repository %s", opts.Root)
	}
	if err := checkFormat(opts.Root, opts.Log); err != nil {
		return nil, err
	}

	s, err := safe.New(safe.Options{
		Root:        filepath.Join(opts.Root, "objects"),
		CacheSize:   opts.CacheSize,
		Compression: opts.Compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	var log revision.Log
	switch opts.Log {
	case LogSQLite:
		log, err = sqlite.New(filepath.Join(opts.Root, "log.db"), logger)
	default:
		log, err = badgerlog.Open(filepath.Join(opts.Root, "log"), logger)
	}
	if err != nil {
		return nil, err
	}

	rd, err := reader.New(s, log, opts.Encoding, logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	repo := &Repository{
		opts:   opts,
		safe:   s,
		log:    log,
		commit: commit.New(s, log, commit.Options{LockTimeout: opts.LockTimeout, Logger: logger}),
		reader: rd,
		differ: diff.NewDiffer(rd),
		logger: logger.Named("backend"),
	}

	repo.logger.Info("opened repository",
		zap.String("root", opts.Root),
		zap.String("log", opts.Log),
		zap.String("encoding", rd.Encoding()))
	return repo, nil
}

// checkFormat writes format.json on first open and refuses repositories
// created with a different layout or log variant.
func checkFormat(root, log string) error {
	p := filepath.Join(root, "format.json")

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		data, err = json.MarshalIndent(format{Version: formatVersion, Log: log}, "", "  ")
		if err != nil {
			return errors.Configuration(err, "encoding repository format")
		}
		if err := writeFileAtomic(p, data); err != nil {
			return errors.Configuration(err, "writing %s", p)
		}
		return nil
	}
	if err != nil {
		return errors.Configuration(errors.WithStack(err), "reading %s", p)
	}

	var f format
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Configuration(err, "parsing %s", p)
	}
	if f.Version != formatVersion {
		return errors.Configuration(nil, "repository format version %d is not supported", f.Version)
	}
	if f.Log != log {
		return errors.Configuration(nil, "repository uses the %s log, not %s", f.Log, log)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to p and renames it into
// place, so p is either absent or complete.
func writeFileAtomic(p string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(p), ".format-*.tmp")
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Sync(); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Chmod(0644); err != nil {
		return errors.WithStack(err)
	}
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(f.Name(), p))
}

func (r *Repository) AddRevision(ctx context.Context, content []byte, path, message, author string) (*revision.Revision, error) {
	return r.commit.AddRevision(ctx, content, path, message, author)
}

func (r *Repository) DelDocument(ctx context.Context, path, message, author string) (*revision.Revision, error) {
	return r.commit.DelDocument(ctx, path, message, author)
}

// ListRevisions returns up to count revisions of path, most recent first,
// after skipping offset. A count of zero or less returns all of them.
func (r *Repository) ListRevisions(ctx context.Context, path string, count, offset int) (revs []*revision.Revision, err error) {
	defer func() {
		metrics.Reads.WithLabelValues("list", metrics.Result(err)).Inc()
	}()
	return r.log.List(ctx, path, offset, count)
}

func (r *Repository) GetRevision(ctx context.Context, path, id string) (string, error) {
	return r.reader.GetRevision(ctx, path, id)
}

// GetBytes returns the undecoded content of a revision.
func (r *Repository) GetBytes(ctx context.Context, path, id string) ([]byte, error) {
	return r.reader.GetBytes(ctx, path, id)
}

// GetRevisionInfo returns the revision record for id, or the latest one.
// Unlike GetRevision it reports a tombstone instead of failing with Deleted.
func (r *Repository) GetRevisionInfo(ctx context.Context, path, id string) (rev *revision.Revision, err error) {
	defer func() {
		metrics.Reads.WithLabelValues("info", metrics.Result(err)).Inc()
	}()
	return r.log.Get(ctx, path, id)
}

func (r *Repository) GetDiff(ctx context.Context, path, id1, id2 string) (text string, err error) {
	defer func() {
		metrics.Reads.WithLabelValues("diff", metrics.Result(err)).Inc()
	}()
	return r.differ.GetDiff(ctx, path, id1, id2)
}

// Diff returns the structured diff between two revisions.
func (r *Repository) Diff(ctx context.Context, path, id1, id2 string) (*diff.DiffResult, error) {
	return r.differ.Compare(ctx, path, id1, id2)
}

// Verify re-reads the blob behind a revision and checks its hash.
func (r *Repository) Verify(ctx context.Context, path, id string) error {
	rev, err := r.log.Get(ctx, path, id)
	if err != nil {
		return err
	}
	return r.safe.Verify(rev.ContentHash)
}

func (r *Repository) Stats() (Stats, error) {
	st, err := r.safe.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Log: r.opts.Log, Encoding: r.reader.Encoding(), Content: st}, nil
}

func (r *Repository) Close() error {
	r.logger.Debug("closing repository", zap.String("root", r.opts.Root))
	return r.log.Close()
}
