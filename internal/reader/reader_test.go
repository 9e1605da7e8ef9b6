package reader

import (
	"context"
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

type fixture struct {
	safe *safe.Safe
	log  revision.Log
}

func setup(t *testing.T) *fixture {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := safe.New(safe.Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	return &fixture{safe: s, log: badgerlog.New(db, nil)}
}

func (f *fixture) commit(t *testing.T, path string, content []byte, tombstone bool) *revision.Revision {
	t.Helper()
	hash, err := f.safe.Put(content)
	require.NoError(t, err)
	rev, err := f.log.Append(context.Background(), revision.Entry{
		Path:        path,
		ContentHash: hash,
		Author:      revision.Author{Name: "a", Email: "a"},
		Timestamp:   time.Now(),
		Tombstone:   tombstone,
	})
	require.NoError(t, err)
	return rev
}

func TestGetRevision(t *testing.T) {
	f := setup(t)
	r, err := New(f.safe, f.log, "", nil)
	require.NoError(t, err)
	ctx := context.Background()

	v1 := f.commit(t, "doc.txt", []byte("v1"), false)
	f.commit(t, "doc.txt", []byte("v2"), false)

	latest, err := r.GetRevision(ctx, "doc.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest)

	first, err := r.GetRevision(ctx, "doc.txt", v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", first)

	_, err = r.GetRevision(ctx, "missing.txt", "")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = r.GetRevision(ctx, "doc.txt", "not-an-id")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGetRevisionDeleted(t *testing.T) {
	f := setup(t)
	r, err := New(f.safe, f.log, "", nil)
	require.NoError(t, err)
	ctx := context.Background()

	v1 := f.commit(t, "doc.txt", []byte("v1"), false)
	tomb := f.commit(t, "doc.txt", nil, true)

	_, err = r.GetRevision(ctx, "doc.txt", "")
	assert.True(t, errors.Is(err, errors.ErrDeleted))

	old, err := r.GetRevision(ctx, "doc.txt", v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", old)

	text, err := r.GetRevision(ctx, "doc.txt", tomb.ID)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	raw, err := r.GetBytes(ctx, "doc.txt", tomb.ID)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestInvalidUTF8(t *testing.T) {
	f := setup(t)
	r, err := New(f.safe, f.log, "utf-8", nil)
	require.NoError(t, err)

	rev := f.commit(t, "bin.dat", []byte{0xff, 0xfe, 0x00}, false)

	_, err = r.GetRevision(context.Background(), "bin.dat", rev.ID)
	assert.True(t, errors.Is(err, errors.ErrDecode))

	raw, err := r.GetBytes(context.Background(), "bin.dat", rev.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe, 0x00}, raw)
}

func TestDeclaredEncoding(t *testing.T) {
	f := setup(t)
	r, err := New(f.safe, f.log, "latin1", nil)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", r.Encoding())

	f.commit(t, "latin.txt", []byte{'c', 'a', 'f', 0xe9}, false)

	text, err := r.GetRevision(context.Background(), "latin.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestUnknownEncoding(t *testing.T) {
	f := setup(t)
	_, err := New(f.safe, f.log, "klingon-8", nil)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	r, err := New(f.safe, f.log, "UTF8", nil)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", r.Encoding())
}
