package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vff/internal/backend"
	"vff/internal/errors"
	"vff/internal/revision"
)

func setupRepo(t *testing.T) *backend.Repository {
	repo, err := backend.Open(context.Background(), backend.Options{Root: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func waitCommit(t *testing.T, commits <-chan *revision.Revision, path string) *revision.Revision {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rev := <-commits:
			if rev.Path == path {
				return rev
			}
		case <-timeout:
			t.Fatalf("no commit for %s", path)
			return nil
		}
	}
}

func TestSyncSkipsUnchanged(t *testing.T) {
	repo := setupRepo(t)
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))

	w, err := New(dir, repo, Options{Author: "watcher"})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Sync(ctx))
	require.NoError(t, w.Sync(ctx))

	revs, err := repo.ListRevisions(ctx, "a.txt", 0, 0)
	require.NoError(t, err)
	assert.Len(t, revs, 1)

	text, err := repo.GetRevision(ctx, "sub/b.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "b", text)

	_, err = repo.GetRevision(ctx, ".git/HEAD", "")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRunCommitsWritesAndRemovals(t *testing.T) {
	repo := setupRepo(t)
	dir := t.TempDir()

	commits := make(chan *revision.Revision, 64)
	w, err := New(dir, repo, Options{
		Author:   "watcher <w@example.com>",
		OnCommit: func(rev *revision.Revision) { commits <- rev },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0644))
	rev := waitCommit(t, commits, "notes.txt")
	assert.False(t, rev.Tombstone)
	assert.Equal(t, "watcher", rev.Author.Name)

	require.Eventually(t, func() bool {
		text, err := repo.GetRevision(context.Background(), "notes.txt", "")
		return err == nil && text == "hello\n"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(file))
	tomb := waitCommit(t, commits, "notes.txt")
	for !tomb.Tombstone {
		tomb = waitCommit(t, commits, "notes.txt")
	}

	_, err = repo.GetRevision(context.Background(), "notes.txt", "")
	assert.True(t, errors.Is(err, errors.ErrDeleted))
}

func TestSyncRecreatesDeletedDocument(t *testing.T) {
	repo := setupRepo(t)
	dir := t.TempDir()
	ctx := context.Background()

	_, err := repo.AddRevision(ctx, []byte("old"), "empty.txt", "seed", "ann")
	require.NoError(t, err)
	_, err = repo.DelDocument(ctx, "empty.txt", "rm", "ann")
	require.NoError(t, err)

	// The empty file hashes like a tombstone, yet still has to be recreated.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0644))

	w, err := New(dir, repo, Options{Author: "watcher"})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Sync(ctx))

	latest, err := repo.GetRevisionInfo(ctx, "empty.txt", "")
	require.NoError(t, err)
	assert.False(t, latest.Tombstone)
	assert.Empty(t, latest.ParentID)

	text, err := repo.GetRevision(ctx, "empty.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestNewValidates(t *testing.T) {
	repo := setupRepo(t)

	_, err := New("", repo, Options{Author: "a"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = New(t.TempDir(), repo, Options{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
