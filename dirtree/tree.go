// Package dirtree implements [mimic.MutableTree] on top of a local directory.
// Each namespace lives in its own subdirectory of the configured root.
package dirtree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/util"
)

// tempPattern names in-flight writes; such files are never reported
const tempPattern = ".mimic-tmp-*"

// Tree stores files under <root>/<namespace>. Writes go through a temp file
// and a rename so readers never see partial contents.
type Tree struct {
	namespace string
	accessKey string
	base      string
	readOnly  bool
	mu        sync.RWMutex
	logger    util.Logger
}

var _ mimic.MutableTree = (*Tree)(nil)

// Option configures a [Tree]
type Option func(*Tree)

// WithReadOnly makes the tree immutable
func WithReadOnly() Option {
	return func(t *Tree) { t.readOnly = true }
}

// New opens (creating if needed) the directory for namespace under root.
func New(root, namespace, accessKey string, opts ...Option) (*Tree, error) {
	if namespace != "" && !filepath.IsLocal(namespace) {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	base, err := filepath.Abs(filepath.Join(root, namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tree root: %w", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tree root: %w", err)
	}
	t := &Tree{
		namespace: namespace,
		accessKey: accessKey,
		base:      base,
		logger:    util.GetLogger("dirtree").With().Str("namespace", namespace).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Base returns the absolute directory backing the tree
func (t *Tree) Base() string {
	return t.base
}

func (t *Tree) IsMutable() bool {
	return !t.readOnly
}

// resolve maps a tree path onto the filesystem, rejecting paths that would
// escape the base directory.
func (t *Tree) resolve(path string) (string, error) {
	clean := mimic.CleanPath(path)
	if clean == "" {
		return t.base, nil
	}
	rel := filepath.FromSlash(clean)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes tree", path)
	}
	return filepath.Join(t.base, rel), nil
}

// treePath converts an absolute filesystem path back to a tree path
func (t *Tree) treePath(abs string) string {
	rel, err := filepath.Rel(t.base, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func isTemp(name string) bool {
	ok, _ := filepath.Match(tempPattern, name)
	return ok
}

func (t *Tree) stat(path string) (fs.FileInfo, bool) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	return info, true
}

func (t *Tree) HasFile(path string) bool {
	if mimic.IsRoot(path) {
		return false
	}
	info, ok := t.stat(path)
	return ok && info.Mode().IsRegular()
}

func (t *Tree) HasDirectory(path string) bool {
	if mimic.IsRoot(path) {
		return true
	}
	info, ok := t.stat(path)
	return ok && info.IsDir()
}

func (t *Tree) GetFileContents(path string) ([]byte, bool) {
	if mimic.IsRoot(path) {
		return nil, false
	}
	p, err := t.resolve(path)
	if err != nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (t *Tree) GetFileSize(path string) (int64, bool) {
	if !t.HasFile(path) {
		return 0, false
	}
	info, ok := t.stat(path)
	if !ok {
		return 0, false
	}
	return info.Size(), true
}

func (t *Tree) GetFileLastModified(path string) (time.Time, bool) {
	if !t.HasFile(path) {
		return time.Time{}, false
	}
	info, ok := t.stat(path)
	if !ok {
		return time.Time{}, false
	}
	return info.ModTime().UTC(), true
}

func (t *Tree) ListDirectory(path string) ([]string, error) {
	p, err := t.resolve(path)
	if err != nil {
		return nil, &mimic.NotFoundError{Path: path}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, &mimic.NotFoundError{Path: path}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isTemp(e.Name()) {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name()+mimic.Separator)
		} else {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (t *Tree) Files(prefix string) []mimic.FileRecord {
	prefix = strings.TrimLeft(prefix, mimic.Separator)

	t.mu.RLock()
	defer t.mu.RUnlock()
	files := []mimic.FileRecord{}
	err := filepath.WalkDir(t.base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || isTemp(d.Name()) {
			return nil
		}
		rel := t.treePath(p)
		if !strings.HasPrefix(rel, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		files = append(files, mimic.FileRecord{Path: rel, Contents: data, LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("prefix", prefix).Msg("Failed to walk tree")
	}
	slices.SortFunc(files, func(a, b mimic.FileRecord) int { return strings.Compare(a.Path, b.Path) })
	return files
}

func (t *Tree) unsupported(op string) error {
	if t.readOnly {
		return &mimic.UnsupportedOperationError{Op: op}
	}
	return nil
}

// writeLocked atomically replaces the file at path. Caller must hold t.mu.
func (t *Tree) writeLocked(path string, contents []byte, modTime time.Time) error {
	if mimic.IsRoot(path) {
		return fmt.Errorf("invalid file path %q", path)
	}
	p, err := t.resolve(path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return fmt.Errorf("cannot write file %q: is a directory", path)
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck // no-op after rename

	if _, err := tmp.Write(contents); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmp.Name(), modTime, modTime); err != nil {
			return fmt.Errorf("failed to set mtime of %q: %w", path, err)
		}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to commit %q: %w", path, err)
	}
	return nil
}

// pruneLocked removes empty directories from dir up to the base.
// Caller must hold t.mu.
func (t *Tree) pruneLocked(dir string) {
	for dir != t.base && strings.HasPrefix(dir, t.base) {
		if err := os.Remove(dir); err != nil {
			// not empty (or already gone)
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (t *Tree) SetFile(path string, contents []byte) error {
	if err := t.unsupported("SetFile"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(path, contents, time.Time{})
}

func (t *Tree) PutFiles(files []mimic.FileRecord) error {
	if err := t.unsupported("PutFiles"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range files {
		if err := t.writeLocked(f.Path, f.Contents, f.LastModified); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) Clear() error {
	if err := t.unsupported("Clear"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.removeChildrenLocked(t.base)
	return err
}

func (t *Tree) removeChildrenLocked(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return false, fmt.Errorf("failed to remove %q: %w", e.Name(), err)
		}
	}
	return len(entries) > 0, nil
}

func (t *Tree) MoveFile(path, newpath string) (bool, error) {
	if err := t.unsupported("MoveFile"); err != nil {
		return false, err
	}
	src, err := t.resolve(path)
	if err != nil || mimic.IsRoot(path) {
		return false, nil
	}
	dst, err := t.resolve(newpath)
	if err != nil {
		return false, err
	}
	if mimic.IsRoot(newpath) {
		return false, fmt.Errorf("invalid file path %q", newpath)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return false, nil
	}
	if src == dst {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %q: %w", newpath, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return false, fmt.Errorf("failed to move %q: %w", path, err)
	}
	t.pruneLocked(filepath.Dir(src))
	return true, nil
}

func (t *Tree) DeletePath(path string) (bool, error) {
	if err := t.unsupported("DeletePath"); err != nil {
		return false, err
	}
	p, err := t.resolve(path)
	if err != nil {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p == t.base {
		return t.removeChildrenLocked(p)
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if !info.IsDir() && strings.HasSuffix(path, mimic.Separator) {
		return false, nil
	}
	if err := os.RemoveAll(p); err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", path, err)
	}
	t.pruneLocked(filepath.Dir(p))
	return true, nil
}
