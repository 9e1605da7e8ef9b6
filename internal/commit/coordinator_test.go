package commit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/errors"
	"vff/internal/revision"
	"vff/internal/revision/badgerlog"
	"vff/internal/safe"
)

func setupTestLog(t *testing.T) revision.Log {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return badgerlog.New(db, nil)
}

func setupTestSafe(t *testing.T) *safe.Safe {
	s, err := safe.New(safe.Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	return s
}

func setupCoordinator(t *testing.T, opts Options) (*Coordinator, *safe.Safe, revision.Log) {
	s := setupTestSafe(t)
	l := setupTestLog(t)
	return New(s, l, opts), s, l
}

// flakyBlobs fails the first n puts.
type flakyBlobs struct {
	BlobStore
	mu    sync.Mutex
	fails int
}

func (f *flakyBlobs) Put(content []byte) (string, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return "", errors.IO(nil, "disk full")
	}
	f.mu.Unlock()
	return f.BlobStore.Put(content)
}

func TestParseAuthor(t *testing.T) {
	tests := []struct {
		raw   string
		name  string
		email string
	}{
		{"Jane Doe <jane@example.com>", "Jane Doe", "jane@example.com"},
		{"  Jane Doe   <jane@example.com>  ", "Jane Doe", "jane@example.com"},
		{"jane@example.com", "jane", "jane@example.com"},
		{"jane", "jane", "jane"},
		{"ci-bot <>", "ci-bot <>", "ci-bot <>"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a, err := ParseAuthor(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.name, a.Name)
			assert.Equal(t, tt.email, a.Email)
		})
	}

	_, err := ParseAuthor("   ")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAddRevision(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c, s, l := setupCoordinator(t, Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	rev, err := c.AddRevision(ctx, []byte("v1\n"), "doc.txt", "first", "Jane <jane@example.com>")
	require.NoError(t, err)
	assert.Equal(t, safe.HashContent([]byte("v1\n")), rev.ContentHash)
	assert.Equal(t, "first", rev.Message)
	assert.Equal(t, "Jane", rev.Author.Name)
	assert.True(t, now.Equal(rev.Timestamp))

	got, err := s.Get(rev.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1\n"), got)

	second, err := c.AddRevision(ctx, []byte("v2\n"), "doc.txt", "second", "jane")
	require.NoError(t, err)
	assert.Equal(t, rev.ID, second.ParentID)

	revs, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestAddRevisionValidates(t *testing.T) {
	c, _, l := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := c.AddRevision(ctx, []byte("x"), "", "m", "a")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = c.AddRevision(ctx, []byte("x"), "doc.txt", "m", "")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	revs, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, revs)
}

func TestDelDocument(t *testing.T) {
	c, s, l := setupCoordinator(t, Options{})
	ctx := context.Background()

	_, err := c.DelDocument(ctx, "doc.txt", "rm", "a")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	added, err := c.AddRevision(ctx, []byte("v1"), "doc.txt", "add", "a")
	require.NoError(t, err)

	tomb, err := c.DelDocument(ctx, "doc.txt", "rm", "a")
	require.NoError(t, err)
	assert.True(t, tomb.Tombstone)
	assert.Equal(t, safe.EmptyHash, tomb.ContentHash)
	assert.Equal(t, added.ID, tomb.ParentID)

	exists, err := s.Exists(safe.EmptyHash)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = c.DelDocument(ctx, "doc.txt", "rm again", "a")
	assert.True(t, errors.Is(err, errors.ErrDeleted))

	again, err := c.AddRevision(ctx, []byte("v2"), "doc.txt", "recreate", "a")
	require.NoError(t, err)
	assert.Empty(t, again.ParentID)

	revs, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 3)
}

func TestConcurrentAddsSamePath(t *testing.T) {
	c, _, l := setupCoordinator(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.AddRevision(ctx, []byte(fmt.Sprintf("content %d", i)), "shared.txt", "m", "a")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	revs, err := l.List(ctx, "shared.txt", 0, 0)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, revs[1].ID, revs[0].ParentID)
	assert.Empty(t, revs[1].ParentID)
	assert.Equal(t, 0, c.locks.size())
}

func TestLockTimeout(t *testing.T) {
	c, _, _ := setupCoordinator(t, Options{LockTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	release, err := c.locks.acquire(ctx, "busy.txt", 0)
	require.NoError(t, err)

	_, err = c.AddRevision(ctx, []byte("x"), "busy.txt", "m", "a")
	assert.True(t, errors.Is(err, errors.ErrConcurrency))

	// Other paths are unaffected.
	_, err = c.AddRevision(ctx, []byte("x"), "free.txt", "m", "a")
	assert.NoError(t, err)

	release()
	_, err = c.AddRevision(ctx, []byte("x"), "busy.txt", "m", "a")
	assert.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	c, _, _ := setupCoordinator(t, Options{})

	release, err := c.locks.acquire(context.Background(), "doc.txt", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.AddRevision(ctx, []byte("x"), "doc.txt", "m", "a")
	assert.True(t, errors.Is(err, errors.ErrConcurrency))
}

func TestBlobFailureReleasesLock(t *testing.T) {
	blobs := &flakyBlobs{BlobStore: setupTestSafe(t), fails: 1}
	l := setupTestLog(t)
	c := New(blobs, l, Options{LockTimeout: time.Second})
	ctx := context.Background()

	_, err := c.AddRevision(ctx, []byte("x"), "doc.txt", "m", "a")
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.Equal(t, 0, c.locks.size())

	revs, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, revs)

	_, err = c.AddRevision(ctx, []byte("x"), "doc.txt", "m", "a")
	assert.NoError(t, err)
}
