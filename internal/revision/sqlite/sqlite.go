// Package sqlite stores revision history in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"vff/internal/errors"
	"vff/internal/revision"
)

const revisionColumns = `id, path, seq, content_hash, author_name, author_email, message, timestamp, parent_id, tombstone`

// Log implements revision.Log using SQLite
type Log struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ revision.Log = (*Log)(nil)

// New opens the database at dbPath and creates the schema if needed.
// Writers take the database lock when their transaction begins, so a head
// read inside Append cannot go stale.
func New(dbPath string, logger *zap.Logger) (*Log, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Configuration(err, "opening database %s", dbPath)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{db: db, logger: logger.Named("sqlitelog")}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, errors.Configuration(err, "migrating database %s", dbPath)
	}

	return l, nil
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS revisions (
		path TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL UNIQUE,
		content_hash TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		tombstone INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (path, seq)
	);
	`

	_, err := l.db.Exec(schema)
	return err
}

func (l *Log) Append(ctx context.Context, entry revision.Entry) (*revision.Revision, error) {
	if err := revision.ValidatePath(entry.Path); err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, l.classify(err, "beginning append to %s", entry.Path)
	}
	defer tx.Rollback()

	head, err := scanRevision(tx.QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE path = ? ORDER BY seq DESC LIMIT 1`,
		entry.Path))
	if err == sql.ErrNoRows {
		head = nil
	} else if err != nil {
		return nil, l.classify(err, "reading head of %s", entry.Path)
	}

	rev := revision.Link(entry, head)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (`+revisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rev.ID, rev.Path, rev.Seq, rev.ContentHash, rev.Author.Name, rev.Author.Email,
		rev.Message, rev.Timestamp.Format(time.RFC3339Nano), rev.ParentID, rev.Tombstone)
	if err != nil {
		return nil, l.classify(err, "inserting revision of %s", entry.Path)
	}

	if err := tx.Commit(); err != nil {
		return nil, l.classify(err, "committing revision of %s", entry.Path)
	}

	l.logger.Debug("appended revision",
		zap.String("path", rev.Path),
		zap.String("id", rev.ID),
		zap.Uint64("seq", rev.Seq),
		zap.Bool("tombstone", rev.Tombstone))
	return rev, nil
}

func (l *Log) List(ctx context.Context, path string, offset, count int) ([]*revision.Revision, error) {
	if offset < 0 {
		offset = 0
	}
	limit := count
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM revisions WHERE path = ? ORDER BY seq DESC LIMIT ? OFFSET ?`,
		path, limit, offset)
	if err != nil {
		return nil, l.classify(err, "listing %s", path)
	}
	defer rows.Close()

	revs := []*revision.Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, l.classify(err, "scanning revision of %s", path)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, l.classify(err, "listing %s", path)
	}
	return revs, nil
}

func (l *Log) Get(ctx context.Context, path, id string) (*revision.Revision, error) {
	var row *sql.Row
	if id == "" {
		row = l.db.QueryRowContext(ctx,
			`SELECT `+revisionColumns+` FROM revisions WHERE path = ? ORDER BY seq DESC LIMIT 1`, path)
	} else {
		row = l.db.QueryRowContext(ctx,
			`SELECT `+revisionColumns+` FROM revisions WHERE path = ? AND id = ?`, path, id)
	}

	rev, err := scanRevision(row)
	if err == sql.ErrNoRows {
		if id == "" {
			return nil, errors.NotFound("document %s has no revisions", path)
		}
		return nil, errors.NotFound("revision %s not found for %s", id, path)
	}
	if err != nil {
		return nil, l.classify(err, "reading %s", path)
	}
	return rev, nil
}

// Close closes the database
func (l *Log) Close() error {
	if err := l.db.Close(); err != nil {
		return errors.IO(err, "closing revision log")
	}
	return nil
}

// classify maps lock contention to Concurrency and everything else to IO.
func (l *Log) classify(err error, format string, args ...any) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_BUSY {
		return errors.Concurrency(err, format, args...)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Concurrency(err, format, args...)
	}
	return errors.IO(errors.WithStack(err), format, args...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRevision(s scanner) (*revision.Revision, error) {
	var (
		rev revision.Revision
		ts  string
	)
	err := s.Scan(&rev.ID, &rev.Path, &rev.Seq, &rev.ContentHash, &rev.Author.Name,
		&rev.Author.Email, &rev.Message, &ts, &rev.ParentID, &rev.Tombstone)
	if err != nil {
		return nil, err
	}

	rev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing timestamp of revision %s", rev.ID)
	}
	return &rev, nil
}
