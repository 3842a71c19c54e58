// Package mount exposes a tree as a read-only FUSE filesystem so its files
// can be inspected with ordinary tools.
package mount

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/config"
	"github.com/brettbedarf/mimic/internal/util"
)

// Mount serves one tree at a mount point
type Mount struct {
	fs     *treeFS
	opts   config.MountOptions
	server *fuse.Server
}

// New creates a mount of tree. Nothing is mounted until [Mount.Serve].
func New(tree mimic.Tree, opts config.MountOptions) *Mount {
	return &Mount{
		fs:   newTreeFS(tree, opts),
		opts: opts,
	}
}

// Serve mounts the tree at mountPoint and serves it in the background.
// It returns once the mount is ready.
func (m *Mount) Serve(mountPoint string) error {
	srv, err := fuse.NewServer(m.fs, mountPoint, &fuse.MountOptions{
		Name:               m.opts.Name,
		FsName:             m.opts.FsName,
		Debug:              m.opts.Debug,
		Logger:             util.NewLogLogger("FuseServer", util.DebugLevel),
		Options:            []string{"ro"},
		DisableXAttrs:      true,
		DisableReadDirPlus: true,
	})
	if err != nil {
		return err
	}
	m.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

func (m *Mount) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- m.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem.
func (m *Mount) Unmount() error {
	if m.server == nil {
		return nil
	}
	return m.server.Unmount()
}
