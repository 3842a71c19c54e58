package mount

import (
	"sync/atomic"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// nodeRegistry maps kernel node IDs to tree paths. IDs are assigned on demand
// and stay stable for the life of the mount, so they double as inode numbers.
type nodeRegistry struct {
	lastID atomic.Uint64
	byID   *xsync.Map[uint64, string]
	byPath *xsync.Map[string, uint64]
}

func newNodeRegistry() *nodeRegistry {
	r := &nodeRegistry{
		byID:   xsync.NewMap[uint64, string](),
		byPath: xsync.NewMap[string, uint64](),
	}
	r.lastID.Store(fuse.FUSE_ROOT_ID)
	r.byID.Store(fuse.FUSE_ROOT_ID, "")
	r.byPath.Store("", fuse.FUSE_ROOT_ID)
	return r
}

// path returns the tree path registered for id
func (r *nodeRegistry) path(id uint64) (string, bool) {
	return r.byID.Load(id)
}

// ensure retrieves or allocates the ID for path
func (r *nodeRegistry) ensure(path string) uint64 {
	// fast path
	if id, ok := r.byPath.Load(path); ok {
		return id
	}
	newID := r.lastID.Add(1)
	id, loaded := r.byPath.LoadOrStore(path, newID)
	if !loaded {
		r.byID.Store(newID, path)
	}
	// a lost race leaves newID unused
	return id
}
