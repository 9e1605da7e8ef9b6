// Package revisiontest holds the behavior every revision.Log must share.
package revisiontest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/errors"
	"vff/internal/revision"
)

// Run executes the suite against logs returned by newLog. Each subtest gets
// a fresh, empty log.
func Run(t *testing.T, newLog func(t *testing.T) revision.Log) {
	tests := []struct {
		name string
		fn   func(t *testing.T, l revision.Log)
	}{
		{"AppendLinksChain", testAppendLinksChain},
		{"ListOrderAndPaging", testListOrderAndPaging},
		{"ListUnknownPath", testListUnknownPath},
		{"GetLatestAndByID", testGetLatestAndByID},
		{"GetForeignID", testGetForeignID},
		{"TombstoneAndRecreate", testTombstoneAndRecreate},
		{"PathsArePrefixIsolated", testPathsArePrefixIsolated},
		{"ConcurrentAppendsDistinctPaths", testConcurrentAppendsDistinctPaths},
		{"RejectsInvalidPath", testRejectsInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLog(t)
			t.Cleanup(func() { assert.NoError(t, l.Close()) })
			tt.fn(t, l)
		})
	}
}

var hashes = []string{
	"1111111111111111111111111111111111111111111111111111111111111111",
	"2222222222222222222222222222222222222222222222222222222222222222",
	"3333333333333333333333333333333333333333333333333333333333333333",
}

func entry(path string, n int) revision.Entry {
	return revision.Entry{
		Path:        path,
		ContentHash: hashes[n%len(hashes)],
		Author:      revision.Author{Name: "test", Email: "test@example.com"},
		Message:     fmt.Sprintf("change %d", n),
		Timestamp:   time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC),
	}
}

func appendN(t *testing.T, l revision.Log, path string, n int) []*revision.Revision {
	t.Helper()
	var out []*revision.Revision
	for i := 0; i < n; i++ {
		rev, err := l.Append(context.Background(), entry(path, i))
		require.NoError(t, err)
		out = append(out, rev)
	}
	return out
}

func testAppendLinksChain(t *testing.T, l revision.Log) {
	revs := appendN(t, l, "doc.txt", 3)

	assert.Empty(t, revs[0].ParentID)
	assert.Equal(t, uint64(1), revs[0].Seq)
	for i := 1; i < len(revs); i++ {
		assert.Equal(t, revs[i-1].ID, revs[i].ParentID)
		assert.Equal(t, uint64(i+1), revs[i].Seq)
		assert.NotEqual(t, revs[i-1].ID, revs[i].ID)
	}
	assert.Equal(t, "change 1", revs[1].Message)
	assert.Equal(t, hashes[2], revs[2].ContentHash)
}

func testListOrderAndPaging(t *testing.T, l revision.Log) {
	ctx := context.Background()
	revs := appendN(t, l, "doc.txt", 5)

	all, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, rev := range all {
		assert.Equal(t, revs[len(revs)-1-i].ID, rev.ID)
	}

	page, err := l.List(ctx, "doc.txt", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, revs[3].ID, page[0].ID)
	assert.Equal(t, revs[2].ID, page[1].ID)

	neg, err := l.List(ctx, "doc.txt", -3, 1)
	require.NoError(t, err)
	require.Len(t, neg, 1)
	assert.Equal(t, revs[4].ID, neg[0].ID)

	past, err := l.List(ctx, "doc.txt", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testListUnknownPath(t *testing.T, l revision.Log) {
	revs, err := l.List(context.Background(), "missing.txt", 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, revs)
	assert.Empty(t, revs)
}

func testGetLatestAndByID(t *testing.T, l revision.Log) {
	ctx := context.Background()
	revs := appendN(t, l, "doc.txt", 3)

	latest, err := l.Get(ctx, "doc.txt", "")
	require.NoError(t, err)
	assert.Equal(t, revs[2].ID, latest.ID)

	first, err := l.Get(ctx, "doc.txt", revs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, revs[0].ID, first.ID)
	assert.Equal(t, revs[0].ContentHash, first.ContentHash)
	assert.Equal(t, revs[0].Author, first.Author)
	assert.True(t, revs[0].Timestamp.Equal(first.Timestamp))

	_, err = l.Get(ctx, "missing.txt", "")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = l.Get(ctx, "doc.txt", revision.NewID())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func testGetForeignID(t *testing.T, l revision.Log) {
	ctx := context.Background()
	a := appendN(t, l, "a.txt", 1)
	appendN(t, l, "b.txt", 1)

	_, err := l.Get(ctx, "b.txt", a[0].ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func testTombstoneAndRecreate(t *testing.T, l revision.Log) {
	ctx := context.Background()
	live := appendN(t, l, "doc.txt", 1)

	del := entry("doc.txt", 1)
	del.Tombstone = true
	tomb, err := l.Append(ctx, del)
	require.NoError(t, err)
	assert.True(t, tomb.Tombstone)
	assert.Equal(t, live[0].ID, tomb.ParentID)

	latest, err := l.Get(ctx, "doc.txt", "")
	require.NoError(t, err)
	assert.True(t, latest.Tombstone)

	again, err := l.Append(ctx, entry("doc.txt", 2))
	require.NoError(t, err)
	assert.Empty(t, again.ParentID)
	assert.Equal(t, uint64(3), again.Seq)

	history, err := l.List(ctx, "doc.txt", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[1].Tombstone)
}

func testPathsArePrefixIsolated(t *testing.T, l revision.Log) {
	ctx := context.Background()
	appendN(t, l, "a", 2)
	appendN(t, l, "a/b", 3)
	appendN(t, l, "ab", 1)

	for path, want := range map[string]int{"a": 2, "a/b": 3, "ab": 1} {
		revs, err := l.List(ctx, path, 0, 0)
		require.NoError(t, err)
		assert.Len(t, revs, want, path)
		for _, rev := range revs {
			assert.Equal(t, path, rev.Path)
		}
	}
}

func testConcurrentAppendsDistinctPaths(t *testing.T, l revision.Log) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("doc-%d.txt", i)
			for n := 0; n < 3; n++ {
				_, err := l.Append(ctx, entry(path, n))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		revs, err := l.List(ctx, fmt.Sprintf("doc-%d.txt", i), 0, 0)
		require.NoError(t, err)
		require.Len(t, revs, 3)
		assert.Equal(t, revs[1].ID, revs[0].ParentID)
		assert.Equal(t, revs[2].ID, revs[1].ParentID)
	}
}

func testRejectsInvalidPath(t *testing.T, l revision.Log) {
	_, err := l.Append(context.Background(), entry("", 0))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = l.Append(context.Background(), entry("bad\x00path", 0))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
