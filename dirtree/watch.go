package dirtree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/brettbedarf/mimic/internal/util"
)

// Watcher reports changes made to a [Tree]'s directory from outside the
// process, e.g. an editor saving a file.
type Watcher struct {
	tree   *Tree
	fsw    *fsnotify.Watcher
	logger util.Logger
}

// Watch starts watching every directory of the tree. Events are only
// delivered once [Watcher.Run] is called.
func (t *Tree) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{tree: t, fsw: fsw, logger: util.GetLogger("dirtree.watch")}
	if err := w.addRecursive(t.base); err != nil {
		fsw.Close() // nolint:errcheck
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
		return nil
	})
}

// Run calls onChange with the tree path of every created, written, removed or
// renamed file until ctx is done. The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.fsw.Close() // nolint:errcheck
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if isTemp(filepath.Base(event.Name)) || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
					}
				}
			}
			path := w.tree.treePath(event.Name)
			w.logger.Trace().Str("op", event.Op.String()).Str("path", path).Msg("Tree changed")
			onChange(path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops the watcher without calling [Watcher.Run]
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
