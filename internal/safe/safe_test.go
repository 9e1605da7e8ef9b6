package safe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/errors"
)

func newMemSafe(t *testing.T, comp CompressionOptions) (*Safe, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(Options{Fs: fsys, CacheSize: 16, Compression: comp})
	require.NoError(t, err)
	return s, fsys
}

func TestPutIsIdempotent(t *testing.T) {
	s, _ := newMemSafe(t, CompressionOptions{})

	h1, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	before, err := s.Stats()
	require.NoError(t, err)

	h2, err := s.Put([]byte("hello"))
	require.NoError(t, err)
	after, err := s.Stats()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, HashContent([]byte("hello")), h1)
	assert.Equal(t, 1, after.Blobs)
	assert.Equal(t, before, after)
}

func TestDedupAcrossManyPuts(t *testing.T) {
	s, _ := newMemSafe(t, CompressionOptions{})

	inputs := [][]byte{[]byte("a"), []byte("b"), []byte("a"), {}, nil, []byte("b")}
	for _, in := range inputs {
		_, err := s.Put(in)
		require.NoError(t, err)
	}

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Blobs) // "a", "b" and the empty blob
}

func TestGet(t *testing.T) {
	s, _ := newMemSafe(t, CompressionOptions{})

	t.Run("roundtrip", func(t *testing.T) {
		hash, err := s.Put([]byte("content"))
		require.NoError(t, err)

		got, err := s.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), got)
	})

	t.Run("empty blob", func(t *testing.T) {
		hash, err := s.Put(nil)
		require.NoError(t, err)
		assert.Equal(t, EmptyHash, hash)

		got, err := s.Get(EmptyHash)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Get(HashContent([]byte("never stored")))
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("malformed hash", func(t *testing.T) {
		_, err := s.Get("xyz")
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}

func TestCompression(t *testing.T) {
	s, fsys := newMemSafe(t, CompressionOptions{Enabled: true, MinSize: 64, Level: 2})

	big := bytes.Repeat([]byte("versioned document line\n"), 200)
	hash, err := s.Put(big)
	require.NoError(t, err)

	raw, err := afero.ReadFile(fsys, contentPath(hash))
	require.NoError(t, err)
	assert.Equal(t, formatZstd, raw[0])
	assert.Less(t, len(raw), len(big))

	// Bypass the cache so the zstd path is exercised.
	require.NoError(t, s.Verify(hash))

	fresh, err := New(Options{Fs: fsys})
	require.NoError(t, err)
	got, err := fresh.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	small, err := s.Put([]byte("tiny"))
	require.NoError(t, err)
	raw, err = afero.ReadFile(fsys, contentPath(small))
	require.NoError(t, err)
	assert.Equal(t, formatRaw, raw[0])
}

func TestVerifyDetectsCorruption(t *testing.T) {
	s, fsys := newMemSafe(t, CompressionOptions{})

	hash, err := s.Put([]byte("original"))
	require.NoError(t, err)

	require.NoError(t, fsys.Chmod(contentPath(hash), 0644))
	require.NoError(t, afero.WriteFile(fsys, contentPath(hash), []byte{formatRaw, 'x'}, 0644))

	err = s.Verify(hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestConcurrentPutSameContent(t *testing.T) {
	s, _ := newMemSafe(t, CompressionOptions{})

	var wg sync.WaitGroup
	hashes := make([]string, 8)
	for i := range hashes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.Put([]byte("shared"))
			assert.NoError(t, err)
			hashes[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range hashes {
		assert.Equal(t, hashes[0], h)
	}
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Blobs)
}

func TestOnDiskLayout(t *testing.T) {
	root := t.TempDir()
	s, err := New(Options{Root: root})
	require.NoError(t, err)

	hash, err := s.Put([]byte("on disk"))
	require.NoError(t, err)

	final := filepath.Join(root, hash[:2], hash[2:])
	info, err := os.Stat(final)
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0222, "blob should be read-only")

	entries, err := os.ReadDir(filepath.Join(root, hash[:2]))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), tmpMarker), "leftover temp file %s", e.Name())
	}

	for i := 0; i < 3; i++ {
		_, err := s.Put([]byte(fmt.Sprintf("doc %d", i)))
		require.NoError(t, err)
	}
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Blobs)
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
