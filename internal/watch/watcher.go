// Package watch commits file changes under a directory as document
// revisions.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"vff/internal/errors"
	"vff/internal/revision"
	"vff/internal/safe"
)

// Store is what the watcher commits to.
type Store interface {
	AddRevision(ctx context.Context, content []byte, path, message, author string) (*revision.Revision, error)
	DelDocument(ctx context.Context, path, message, author string) (*revision.Revision, error)
	GetRevisionInfo(ctx context.Context, path, id string) (*revision.Revision, error)
}

// Options configures a Watcher
type Options struct {
	Author string
	// IgnoreDirs are directory names skipped at any depth.
	IgnoreDirs []string
	Logger     *zap.Logger
	// OnCommit, when set, is called after every revision the watcher makes.
	OnCommit func(*revision.Revision)
}

// Watcher maps files under Root to documents named by their slash
// separated relative path.
type Watcher struct {
	root       string
	store      Store
	opts       Options
	watcher    *fsnotify.Watcher
	ignoreDirs map[string]bool
	logger     *zap.Logger
}

func New(root string, store Store, opts Options) (*Watcher, error) {
	if root == "" {
		return nil, errors.ValidationError("watch root is required", nil)
	}
	if opts.Author == "" {
		return nil, errors.ValidationError("author is required", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Configuration(err, "resolving %s", root)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.IO(err, "creating file watcher")
	}

	w := &Watcher{
		root:    abs,
		store:   store,
		opts:    opts,
		watcher: watcher,
		ignoreDirs: map[string]bool{
			".git":         true,
			".vff":         true,
			"node_modules": true,
			"vendor":       true,
		},
		logger: opts.Logger.Named("watch"),
	}
	for _, d := range opts.IgnoreDirs {
		w.ignoreDirs[d] = true
	}

	if err := w.addTree(abs); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.IO(err, "watching %s", path)
		}
		return nil
	})
}

// Sync commits every file whose content differs from its latest revision.
func (w *Watcher) Sync(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.root && w.ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return w.commitFile(ctx, path, "sync")
	})
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("watching", zap.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// handleFSEvent processes individual filesystem events
func (w *Watcher) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	var err error
	switch {
	case event.Has(fsnotify.Create):
		info, statErr := os.Stat(event.Name)
		if statErr != nil {
			return // already gone
		}
		if info.IsDir() {
			// Files created before the watch was added are picked up by Sync.
			if err = w.addTree(event.Name); err == nil {
				err = w.syncDir(ctx, event.Name)
			}
			break
		}
		err = w.commitFile(ctx, event.Name, "create")

	case event.Has(fsnotify.Write):
		err = w.commitFile(ctx, event.Name, "write")

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		err = w.removeFile(ctx, event.Name)
	}

	if err != nil {
		w.logger.Error("handling file event",
			zap.String("file", event.Name),
			zap.String("op", event.Op.String()),
			zap.Error(err))
	}
}

func (w *Watcher) syncDir(ctx context.Context, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return err
		}
		return w.commitFile(ctx, path, "create")
	})
}

func (w *Watcher) commitFile(ctx context.Context, file, reason string) error {
	docPath, err := w.docPath(file)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.IO(errors.WithStack(err), "reading %s", file)
	}

	latest, err := w.store.GetRevisionInfo(ctx, docPath, "")
	switch {
	case err == nil:
		if !latest.Tombstone && latest.ContentHash == safe.HashContent(content) {
			return nil
		}
	case errors.Is(err, errors.ErrNotFound):
	default:
		return err
	}

	rev, err := w.store.AddRevision(ctx, content, docPath, fmt.Sprintf("%s %s", reason, docPath), w.opts.Author)
	if err != nil {
		return err
	}
	w.committed(rev)
	return nil
}

func (w *Watcher) removeFile(ctx context.Context, file string) error {
	docPath, err := w.docPath(file)
	if err != nil {
		return err
	}
	// Rename fires for the old name only; the file may still exist if it
	// was renamed back before we got here.
	if _, err := os.Stat(file); err == nil {
		return nil
	}

	rev, err := w.store.DelDocument(ctx, docPath, "remove "+docPath, w.opts.Author)
	if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrDeleted) {
		// Directories and never-committed files have nothing to tombstone.
		return nil
	}
	if err != nil {
		return err
	}
	w.committed(rev)
	return nil
}

func (w *Watcher) committed(rev *revision.Revision) {
	w.logger.Info("committed file change",
		zap.String("path", rev.Path),
		zap.String("id", rev.ID),
		zap.Bool("tombstone", rev.Tombstone))
	if w.opts.OnCommit != nil {
		w.opts.OnCommit(rev)
	}
}

func (w *Watcher) docPath(file string) (string, error) {
	rel, err := filepath.Rel(w.root, file)
	if err != nil {
		return "", errors.Wrapf(err, "getting relative path of %s", file)
	}
	return filepath.ToSlash(rel), nil
}

// ignored reports whether file lies in an ignored directory.
func (w *Watcher) ignored(file string) bool {
	rel, err := filepath.Rel(w.root, file)
	if err != nil || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignoreDirs[part] {
			return true
		}
	}
	return false
}

// Close stops watching without waiting for Run.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
