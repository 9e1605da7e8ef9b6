package storage

import (
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"vff/internal/errors"
	"vff/internal/logging"
)

// OpenBadger opens (or creates) a Badger database in dir. Badger's own
// logging goes through logger at warning level and above.
func OpenBadger(dir string, logger *zap.Logger) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Configuration(errors.WithStack(err), "creating database directory %s", dir)
	}

	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.WARNING).
		WithSyncWrites(true) // the log append is the commit point
	if logger != nil {
		opts = opts.WithLogger(logging.NewBadgerLogger(logger))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Configuration(err, "opening database %s", dir)
	}

	return db, nil
}

// OpenInMemory returns a throwaway Badger database for tests and tools.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil) // Disable logging noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.IO(err, "opening in-memory database")
	}
	return db, nil
}
