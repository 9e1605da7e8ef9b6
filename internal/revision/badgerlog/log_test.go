package badgerlog

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/revision"
	"vff/internal/revision/revisiontest"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLog(t *testing.T) {
	revisiontest.Run(t, func(t *testing.T) revision.Log {
		return New(setupTestDB(t), nil)
	})
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := Open(dir, nil)
	require.NoError(t, err)
	first, err := l.Append(ctx, revision.Entry{Path: "doc.txt", ContentHash: "aa", Message: "one"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	second, err := l.Append(ctx, revision.Entry{Path: "doc.txt", ContentHash: "bb", Message: "two"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ParentID)
	assert.Equal(t, uint64(2), second.Seq)

	got, err := l.Get(ctx, "doc.txt", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Message)
}

func TestSeqKeysSortNumerically(t *testing.T) {
	assert.Less(t, seqKey(9), seqKey(10))
	assert.Less(t, seqKey(99), seqKey(100))
}
