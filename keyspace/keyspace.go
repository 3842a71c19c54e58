// Package keyspace scopes shared cache keys to a hosted project.
//
// A [Cache] is created per request. Keys are prefixed with the project's
// namespace so hosted apps cannot see each other's entries, except inside
// [Cache.WithOriginal] where keys address the shared, unprefixed keyspace the
// host uses for its own bookkeeping.
package keyspace

import "github.com/puzpuzpuz/xsync/v4"

// Store is a flat key/value store shared between requests
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

// MemStore is an in-process [Store]
type MemStore struct {
	m *xsync.Map[string, []byte]
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{m: xsync.NewMap[string, []byte]()}
}

func (s *MemStore) Get(key string) ([]byte, bool) {
	return s.m.Load(key)
}

func (s *MemStore) Set(key string, value []byte) {
	s.m.Store(key, value)
}

func (s *MemStore) Delete(key string) {
	s.m.Delete(key)
}

// Len returns the number of stored keys
func (s *MemStore) Len() int {
	return s.m.Size()
}

// Cache is a request-scoped view of a [Store].
//
// NOTE: Cache is **not** thread-safe; it belongs to a single request.
type Cache struct {
	store    Store
	prefix   string
	original bool
}

// NewCache returns a view of store whose keys are prefixed with prefix
func NewCache(store Store, prefix string) *Cache {
	return &Cache{store: store, prefix: prefix}
}

// UsesOriginal reports whether keys currently bypass the project prefix
func (c *Cache) UsesOriginal() bool {
	return c.original
}

// Key returns the store key for key in the current mode
func (c *Cache) Key(key string) string {
	if c.original || c.prefix == "" {
		return key
	}
	return c.prefix + key
}

func (c *Cache) Get(key string) ([]byte, bool) {
	return c.store.Get(c.Key(key))
}

func (c *Cache) Set(key string, value []byte) {
	c.store.Set(c.Key(key), value)
}

func (c *Cache) Delete(key string) {
	c.store.Delete(c.Key(key))
}

// WithOriginal runs fn with the project prefix disabled. The previous mode is
// restored when fn returns or panics, so calls nest.
func (c *Cache) WithOriginal(fn func()) {
	prev := c.original
	c.original = true
	defer func() { c.original = prev }()
	fn()
}
