// Package memtree provides an in-memory implementation of [mimic.MutableTree].
package memtree

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/util"
)

// Tree is an in-memory file tree. Readers run concurrently; writers are
// serialised and their effects are visible as soon as they return.
type Tree struct {
	namespace string
	accessKey string
	readOnly  bool
	now       func() time.Time
	root      *Node        // Root of node tree
	mu        sync.RWMutex // serialises structural changes against lookups
}

var _ mimic.MutableTree = (*Tree)(nil)

// Option configures a [Tree]
type Option func(*Tree)

// WithReadOnly makes the tree immutable. Files can still be preloaded with
// [WithFiles].
func WithReadOnly() Option {
	return func(t *Tree) { t.readOnly = true }
}

// WithClock overrides the time source used for LastModified
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// WithFiles preloads files into the tree
func WithFiles(files []mimic.FileRecord) Option {
	return func(t *Tree) {
		for _, f := range files {
			if err := t.putLocked(f); err != nil {
				logger := util.GetLogger("memtree")
				logger.Warn().Err(err).Str("path", f.Path).Msg("Skipping preloaded file")
			}
		}
	}
}

// New creates an empty tree for namespace. accessKey is retained but does not
// affect the tree's behavior.
func New(namespace, accessKey string, opts ...Option) *Tree {
	t := &Tree{
		namespace: namespace,
		accessKey: accessKey,
		now:       time.Now,
		root:      NewNode(""),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Namespace returns the namespace the tree was created for
func (t *Tree) Namespace() string {
	return t.namespace
}

func (t *Tree) IsMutable() bool {
	return !t.readOnly
}

// lookup walks path from the root. Caller must hold t.mu.
func (t *Tree) lookup(path string) *Node {
	cur := t.root
	for _, name := range mimic.SplitPath(path) {
		child, ok := cur.GetChild(name)
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

// mkdirs returns the node for path, creating any missing nodes along the
// way like `mkdir -p`. Caller must hold t.mu write-locked.
func (t *Tree) mkdirs(segs []string) *Node {
	cur := t.root
	for _, name := range segs {
		if child, ok := cur.GetChild(name); ok {
			cur = child
			continue
		}
		node := NewNode(name)
		cur.AddChild(node)
		cur = node
	}
	return cur
}

// prune removes empty nodes from n up to (not including) the root.
// Caller must hold t.mu write-locked.
func (t *Tree) prune(n *Node) {
	for n != nil && n != t.root && n.IsEmpty() {
		parent := n.Parent()
		if parent == nil {
			return
		}
		parent.RemoveChild(n.name)
		n = parent
	}
}

func (t *Tree) HasFile(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(path)
	return n != nil && n != t.root && n.IsFile()
}

func (t *Tree) HasDirectory(path string) bool {
	if mimic.IsRoot(path) {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(path)
	return n != nil && n.IsDir()
}

func (t *Tree) record(path string) (mimic.FileRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(path)
	if n == nil || n == t.root {
		return mimic.FileRecord{}, false
	}
	return n.Record()
}

func (t *Tree) GetFileContents(path string) ([]byte, bool) {
	rec, ok := t.record(path)
	return rec.Contents, ok
}

func (t *Tree) GetFileSize(path string) (int64, bool) {
	rec, ok := t.record(path)
	return rec.Size(), ok
}

func (t *Tree) GetFileLastModified(path string) (time.Time, bool) {
	rec, ok := t.record(path)
	return rec.LastModified, ok
}

func (t *Tree) ListDirectory(path string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.lookup(path)
	if n == nil || (n != t.root && !n.IsDir()) {
		return nil, &mimic.NotFoundError{Path: path}
	}
	return n.ChildNames(), nil
}

func (t *Tree) Files(prefix string) []mimic.FileRecord {
	prefix = strings.TrimLeft(prefix, mimic.Separator)

	t.mu.RLock()
	defer t.mu.RUnlock()
	files := []mimic.FileRecord{}
	var walk func(n *Node)
	walk = func(n *Node) {
		if rec, ok := n.Record(); ok && strings.HasPrefix(rec.Path, prefix) {
			files = append(files, rec)
		}
		for _, ch := range n.Children() {
			walk(ch)
		}
	}
	walk(t.root)
	return files
}

func (t *Tree) unsupported(op string) error {
	if t.readOnly {
		return &mimic.UnsupportedOperationError{Op: op}
	}
	return nil
}

// putLocked stores rec, defaulting its LastModified. Caller must hold t.mu
// write-locked or be constructing the tree.
func (t *Tree) putLocked(rec mimic.FileRecord) error {
	segs := mimic.SplitPath(rec.Path)
	if len(segs) == 0 {
		return fmt.Errorf("invalid file path %q", rec.Path)
	}
	rec.Path = strings.Join(segs, mimic.Separator)
	if rec.LastModified.IsZero() {
		rec.LastModified = t.now()
	}
	t.mkdirs(segs).SetRecord(&rec)
	return nil
}

func (t *Tree) SetFile(path string, contents []byte) error {
	if err := t.unsupported("SetFile"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.putLocked(mimic.FileRecord{Path: path, Contents: contents, LastModified: t.now()})
}

func (t *Tree) PutFiles(files []mimic.FileRecord) error {
	if err := t.unsupported("PutFiles"); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range files {
		if err := t.putLocked(f); err != nil {
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
	t.root.ClearChildren()
	return nil
}

func (t *Tree) MoveFile(path, newpath string) (bool, error) {
	if err := t.unsupported("MoveFile"); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.lookup(path)
	if src == nil || src == t.root {
		return false, nil
	}
	rec, ok := src.Record()
	if !ok {
		return false, nil
	}
	if mimic.CleanPath(path) == mimic.CleanPath(newpath) {
		return true, nil
	}
	rec.Path = newpath
	if err := t.putLocked(rec); err != nil {
		return false, err
	}
	src.SetRecord(nil)
	t.prune(src)
	return true, nil
}

// DeletePath removes the file at path together with everything below it.
// A path with a trailing separator only removes the directory contents.
func (t *Tree) DeletePath(path string) (bool, error) {
	if err := t.unsupported("DeletePath"); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(path)
	if n == nil {
		return false, nil
	}
	deleted := n.IsDir()
	n.ClearChildren()
	if n != t.root && !strings.HasSuffix(path, mimic.Separator) && n.IsFile() {
		n.SetRecord(nil)
		deleted = true
	}
	t.prune(n)
	return deleted, nil
}
