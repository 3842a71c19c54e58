package mount

import (
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sys/unix"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/config"
	"github.com/brettbedarf/mimic/internal/util"
)

const (
	fileMode = unix.S_IFREG | 0o444
	dirMode  = unix.S_IFDIR | 0o555
	blkSize  = 4096
)

// treeFS serves a read-only view of a tree over the raw FUSE protocol.
// Operations it does not implement fall through to the embedded default,
// which answers ENOSYS.
type treeFS struct {
	fuse.RawFileSystem

	tree         mimic.Tree
	nodes        *nodeRegistry
	lastFh       atomic.Uint64
	files        *xsync.Map[uint64, []byte]          // open file snapshots by handle
	dirs         *xsync.Map[uint64, []fuse.DirEntry] // open directory listings by handle
	attrTimeout  time.Duration
	entryTimeout time.Duration
	directIO     bool
	logger       util.Logger
}

func newTreeFS(tree mimic.Tree, opts config.MountOptions) *treeFS {
	return &treeFS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		tree:          tree,
		nodes:         newNodeRegistry(),
		files:         xsync.NewMap[uint64, []byte](),
		dirs:          xsync.NewMap[uint64, []fuse.DirEntry](),
		attrTimeout:   seconds(opts.AttrTimeout),
		entryTimeout:  seconds(opts.EntryTimeout),
		directIO:      opts.DirectIO,
		logger:        util.GetLogger("Mount"),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (fs *treeFS) Init(s *fuse.Server) {
	fs.logger.Debug().Msg("FUSE initialized")
}

func (fs *treeFS) OnUnmount() {
	fs.logger.Info().Msg("FUSE unmounted")
}

func (fs *treeFS) String() string {
	return "mimic"
}

// newDefaultAttr returns the default attributes for a node.
// NOTE: Make sure to set the Mode field appropriately
func newDefaultAttr(ino uint64, mtime time.Time) *fuse.Attr {
	if mtime.IsZero() {
		mtime = time.Now()
	}
	return &fuse.Attr{
		Ino:   ino,
		Nlink: 1,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:     uint64(mtime.Unix()),
		Mtime:     uint64(mtime.Unix()),
		Ctime:     uint64(mtime.Unix()),
		Atimensec: uint32(mtime.Nanosecond()),
		Mtimensec: uint32(mtime.Nanosecond()),
		Ctimensec: uint32(mtime.Nanosecond()),
		Blksize:   blkSize,
	}
}

// attr builds the attributes for the file or directory at p
func (fs *treeFS) attr(p string) (*fuse.Attr, bool) {
	if fs.tree.HasFile(p) {
		size, _ := fs.tree.GetFileSize(p)
		mod, _ := fs.tree.GetFileLastModified(p)
		a := newDefaultAttr(fs.nodes.ensure(p), mod)
		a.Mode = fileMode
		a.Size = uint64(size)
		a.Blocks = (a.Size + 511) / 512
		return a, true
	}
	if fs.tree.HasDirectory(p) {
		a := newDefaultAttr(fs.nodes.ensure(p), time.Time{})
		a.Mode = dirMode
		a.Nlink = 2
		return a, true
	}
	return nil, false
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + mimic.Separator + name
}

func (fs *treeFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent, ok := fs.nodes.path(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	child := childPath(parent, name)
	a, ok := fs.attr(child)
	if !ok {
		fs.logger.Trace().Str("path", child).Msg("Lookup miss")
		return fuse.ENOENT
	}
	out.NodeId = a.Ino
	out.Attr = *a
	out.SetEntryTimeout(fs.entryTimeout)
	out.SetAttrTimeout(fs.attrTimeout)
	return fuse.OK
}

// Forget keeps the node: IDs stay valid for the whole session.
func (fs *treeFS) Forget(nodeID, nlookup uint64) {
	fs.logger.Trace().Uint64("nodeID", nodeID).Uint64("nlookup", nlookup).Msg("Forget called")
}

func (fs *treeFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := fs.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	a, ok := fs.attr(p)
	if !ok {
		return fuse.ENOENT
	}
	out.Attr = *a
	out.SetTimeout(fs.attrTimeout)
	return fuse.OK
}

func (fs *treeFS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	p, ok := fs.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if input.Mask&unix.W_OK != 0 {
		return fuse.Status(unix.EROFS)
	}
	if !fs.tree.HasFile(p) && !fs.tree.HasDirectory(p) {
		return fuse.ENOENT
	}
	return fuse.OK
}

func (fs *treeFS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := fs.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if input.Flags&(unix.O_WRONLY|unix.O_RDWR|unix.O_TRUNC|unix.O_APPEND) != 0 {
		return fuse.Status(unix.EROFS)
	}
	contents, ok := fs.tree.GetFileContents(p)
	if !ok {
		if fs.tree.HasDirectory(p) {
			return fuse.Status(unix.EISDIR)
		}
		return fuse.ENOENT
	}
	fh := fs.lastFh.Add(1)
	fs.files.Store(fh, contents)
	out.Fh = fh
	if fs.directIO {
		out.OpenFlags |= fuse.FOPEN_DIRECT_IO
	}
	fs.logger.Debug().Str("path", p).Uint64("fh", fh).Int("bytes", len(contents)).Msg("Opened file")
	return fuse.OK
}

func (fs *treeFS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	data, ok := fs.files.Load(input.Fh)
	if !ok {
		return nil, fuse.Status(unix.EBADF)
	}
	return fuse.ReadResultData(readAt(data, input.Offset, input.Size)), fuse.OK
}

// readAt returns at most size bytes of data starting at off
func readAt(data []byte, off uint64, size uint32) []byte {
	if off >= uint64(len(data)) {
		return nil
	}
	end := min(off+uint64(size), uint64(len(data)))
	return data[off:end]
}

func (fs *treeFS) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	fs.files.Delete(input.Fh)
}

func (fs *treeFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	p, ok := fs.nodes.path(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	entries, err := fs.dirEntries(p, input.NodeId)
	if err != nil {
		if fs.tree.HasFile(p) {
			return fuse.Status(unix.ENOTDIR)
		}
		return fuse.ENOENT
	}
	fh := fs.lastFh.Add(1)
	fs.dirs.Store(fh, entries)
	out.Fh = fh
	return fuse.OK
}

// dirEntries lists the directory at p, starting with "." and "..".
// The listing is fixed at open time so offsets stay valid across reads.
func (fs *treeFS) dirEntries(p string, self uint64) ([]fuse.DirEntry, error) {
	names, err := fs.tree.ListDirectory(p)
	if err != nil {
		return nil, err
	}
	parentID := uint64(fuse.FUSE_ROOT_ID)
	if p != "" {
		parentID = fs.nodes.ensure(path.Dir("/" + p)[1:])
	}
	entries := make([]fuse.DirEntry, 0, len(names)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Mode: dirMode, Ino: self},
		fuse.DirEntry{Name: "..", Mode: dirMode, Ino: parentID},
	)
	for _, name := range names {
		mode := uint32(fileMode)
		if dir, ok := strings.CutSuffix(name, mimic.Separator); ok {
			name = dir
			mode = dirMode
		}
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: mode,
			Ino:  fs.nodes.ensure(childPath(p, name)),
		})
	}
	return entries, nil
}

func (fs *treeFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, ok := fs.dirs.Load(input.Fh)
	if !ok {
		return fuse.Status(unix.EBADF)
	}
	for i := input.Offset; i < uint64(len(entries)); i++ {
		if !out.AddDirEntry(entries[i]) {
			break
		}
	}
	return fuse.OK
}

func (fs *treeFS) ReleaseDir(input *fuse.ReleaseIn) {
	fs.dirs.Delete(input.Fh)
}

func (fs *treeFS) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = blkSize
	out.Frsize = blkSize
	out.NameLen = 255
	return fuse.OK
}
