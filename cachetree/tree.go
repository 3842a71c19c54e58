// Package cachetree decorates a [mimic.Tree] with a content cache kept in the
// host's own (unprefixed) keyspace, so cached project files never collide
// with keys written by the hosted app.
package cachetree

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/metrics"
	"github.com/brettbedarf/mimic/internal/util"
	"github.com/brettbedarf/mimic/keyspace"
)

// FileKey returns the cache key holding the contents of path in namespace
func FileKey(namespace, path string) string {
	return mimic.CacheFilePrefix + namespace + mimic.Separator + mimic.CleanPath(path)
}

// GenKey returns the key holding the generation of path's cache entry.
// Every invalidation moves the generation, so a fill that started earlier
// can never be served.
func GenKey(namespace, path string) string {
	return mimic.CacheGenPrefix + namespace + mimic.Separator + mimic.CleanPath(path)
}

// Invalidate drops a cached file straight from the shared store. Used when a
// file changes outside any request.
func Invalidate(store keyspace.Store, namespace, path string) {
	store.Set(GenKey(namespace, path), newGeneration())
	store.Delete(FileKey(namespace, path))
}

// Peek returns the cached contents of path if its entry is of the current
// generation. The inner tree is not consulted.
func Peek(store keyspace.Store, namespace, path string) ([]byte, bool) {
	raw, ok := store.Get(FileKey(namespace, path))
	if !ok {
		return nil, false
	}
	e, ok := decodeEntry(raw)
	if !ok {
		return nil, false
	}
	gen, ok := store.Get(GenKey(namespace, path))
	if !ok {
		gen = uuid.Nil[:]
	}
	if !bytes.Equal(e.gen, gen) {
		return nil, false
	}
	return bytes.Clone(e.contents), true
}

func newGeneration() []byte {
	gen := uuid.New()
	return gen[:]
}

// entry layout: generation (16) | mtime unix nanos (8) | size (8) | contents
const entryHeader = 32

type entry struct {
	gen      []byte
	modified int64
	contents []byte
}

func (e entry) encode() []byte {
	b := make([]byte, entryHeader, entryHeader+len(e.contents))
	copy(b[:16], e.gen)
	binary.BigEndian.PutUint64(b[16:24], uint64(e.modified))
	binary.BigEndian.PutUint64(b[24:32], uint64(len(e.contents)))
	return append(b, e.contents...)
}

func decodeEntry(b []byte) (entry, bool) {
	if len(b) < entryHeader {
		return entry{}, false
	}
	e := entry{
		gen:      b[:16],
		modified: int64(binary.BigEndian.Uint64(b[16:24])),
		contents: b[entryHeader:],
	}
	if binary.BigEndian.Uint64(b[24:32]) != uint64(len(e.contents)) {
		return entry{}, false
	}
	return e, true
}

// Tree serves file contents from cache when possible and invalidates the
// cache on every write.
type Tree struct {
	inner     mimic.Tree
	cache     *keyspace.Cache
	namespace string
	logger    util.Logger
}

var _ mimic.MutableTree = (*Tree)(nil)

// New wraps inner. cache is the request's cache; entries are always written
// through [keyspace.Cache.WithOriginal].
func New(inner mimic.Tree, cache *keyspace.Cache, namespace string) *Tree {
	return &Tree{
		inner:     inner,
		cache:     cache,
		namespace: namespace,
		logger:    util.GetLogger("cachetree").With().Str("namespace", namespace).Logger(),
	}
}

// Unwrap returns the decorated tree
func (t *Tree) Unwrap() mimic.Tree {
	return t.inner
}

func (t *Tree) IsMutable() bool {
	_, ok := mimic.Writable(t.inner)
	return ok
}

func (t *Tree) HasFile(path string) bool      { return t.inner.HasFile(path) }
func (t *Tree) HasDirectory(path string) bool { return t.inner.HasDirectory(path) }

// GetFileContents serves a cached copy only while the entry's generation is
// current and the inner tree still reports the same mtime and size, so
// changes made behind the cache's back are never masked.
func (t *Tree) GetFileContents(path string) ([]byte, bool) {
	key := FileKey(t.namespace, path)
	var gen, raw []byte
	var hit bool
	t.cache.WithOriginal(func() {
		gen = t.generation(path)
		raw, hit = t.cache.Get(key)
	})
	if hit {
		if contents, ok := t.validate(path, gen, raw); ok {
			metrics.RecordCacheLookup(true)
			return contents, true
		}
	}
	metrics.RecordCacheLookup(false)

	// mtime is read before the contents: a change in between leaves an entry
	// that fails validation rather than one that looks current.
	mod, hasMod := t.inner.GetFileLastModified(path)
	contents, ok := t.inner.GetFileContents(path)
	if !ok {
		return nil, false
	}
	if !hasMod {
		return contents, true
	}
	e := entry{gen: gen, modified: mod.UnixNano(), contents: contents}
	t.cache.WithOriginal(func() { t.cache.Set(key, e.encode()) })
	t.logger.Trace().Str("path", path).Int("bytes", len(contents)).Msg("Cached file contents")
	return bytes.Clone(contents), true
}

// generation returns path's current generation. Must run inside WithOriginal.
func (t *Tree) generation(path string) []byte {
	gen, ok := t.cache.Get(GenKey(t.namespace, path))
	if !ok || len(gen) != 16 {
		return uuid.Nil[:]
	}
	return gen
}

func (t *Tree) validate(path string, gen, raw []byte) ([]byte, bool) {
	e, ok := decodeEntry(raw)
	if !ok || !bytes.Equal(e.gen, gen) {
		return nil, false
	}
	mod, ok := t.inner.GetFileLastModified(path)
	if !ok || mod.UnixNano() != e.modified {
		return nil, false
	}
	size, ok := t.inner.GetFileSize(path)
	if !ok || size != int64(len(e.contents)) {
		return nil, false
	}
	return bytes.Clone(e.contents), true
}

func (t *Tree) GetFileSize(path string) (int64, bool) { return t.inner.GetFileSize(path) }

func (t *Tree) GetFileLastModified(path string) (time.Time, bool) {
	return t.inner.GetFileLastModified(path)
}

func (t *Tree) ListDirectory(path string) ([]string, error) { return t.inner.ListDirectory(path) }
func (t *Tree) Files(prefix string) []mimic.FileRecord      { return t.inner.Files(prefix) }

// Invalidate drops the cached contents of path
func (t *Tree) Invalidate(path string) {
	t.cache.WithOriginal(func() {
		t.cache.Set(GenKey(t.namespace, path), newGeneration())
		t.cache.Delete(FileKey(t.namespace, path))
	})
}

// invalidateUnder drops every cached file at or below path
func (t *Tree) invalidateUnder(path string) {
	t.Invalidate(path)
	dir := mimic.NormalizeDirPath(mimic.CleanPath(path))
	for _, f := range t.inner.Files(dir) {
		t.Invalidate(f.Path)
	}
}

func (t *Tree) SetFile(path string, contents []byte) error {
	err := mimic.SetFile(t.inner, path, contents)
	t.Invalidate(path)
	return err
}

func (t *Tree) Clear() error {
	if _, ok := mimic.Writable(t.inner); ok {
		t.invalidateUnder("")
	}
	return mimic.Clear(t.inner)
}

func (t *Tree) MoveFile(path, newpath string) (bool, error) {
	moved, err := mimic.MoveFile(t.inner, path, newpath)
	t.Invalidate(path)
	t.Invalidate(newpath)
	return moved, err
}

func (t *Tree) DeletePath(path string) (bool, error) {
	if _, ok := mimic.Writable(t.inner); ok {
		t.invalidateUnder(path)
	}
	return mimic.DeletePath(t.inner, path)
}

func (t *Tree) PutFiles(files []mimic.FileRecord) error {
	err := mimic.PutFiles(t.inner, files)
	for _, f := range files {
		t.Invalidate(f.Path)
	}
	return err
}
