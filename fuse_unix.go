//go:build fuse

package blockfs

import (
	"context"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseRoot holds the shared state every node of a mounted volume needs: the
// FileSystem to resolve paths against. Grounded on go-fuse's loopbackRoot
// pattern (fs/loopback.go): one shared root struct, one node type per path.
type fuseRoot struct {
	fsys *FileSystem
}

// fuseNode is one file or directory in the FUSE tree. It holds no open
// inode of its own between calls; Lookup/Readdir reopen the directory from
// the node's stored sector each time.
type fuseNode struct {
	fs.Inode

	root   *fuseRoot
	sector uint32
}

var (
	_ fs.NodeLookuper  = (*fuseNode)(nil)
	_ fs.NodeReaddirer = (*fuseNode)(nil)
	_ fs.NodeOpener    = (*fuseNode)(nil)
	_ fs.NodeReader    = (*fuseNode)(nil)
	_ fs.NodeWriter    = (*fuseNode)(nil)
	_ fs.NodeGetattrer = (*fuseNode)(nil)
	_ fs.NodeCreater   = (*fuseNode)(nil)
	_ fs.NodeMkdirer   = (*fuseNode)(nil)
	_ fs.NodeUnlinker  = (*fuseNode)(nil)
)

func (n *fuseNode) openDir() (*Directory, error) {
	return OpenDir(n.root.fsys, n.sector)
}

func (n *fuseNode) stableAttr(sector uint32, isDir bool) fs.StableAttr {
	mode := uint32(syscall.S_IFREG)
	if isDir {
		mode = syscall.S_IFDIR
	}
	return fs.StableAttr{Mode: mode, Ino: uint64(sector)}
}

// Lookup implements fs.NodeLookuper.
func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	dir, err := n.openDir()
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	defer dir.Close()

	sector, ok := dir.Lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	ino := n.root.fsys.openInode(sector)
	defer ino.Close()

	isDir := ino.IsDir()
	out.Size = uint64(ino.Length())
	out.Mode = n.stableAttr(sector, isDir).Mode | 0644

	child := &fuseNode{root: n.root, sector: sector}
	return n.NewInode(ctx, child, n.stableAttr(sector, isDir)), 0
}

// Readdir implements fs.NodeReaddirer.
func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	dir, err := n.openDir()
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	defer dir.Close()

	entries, err := dir.Readdir(n.root.fsys)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.IsDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

// Getattr implements fs.NodeGetattrer.
func (n *fuseNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ino := n.root.fsys.openInode(n.sector)
	defer ino.Close()
	out.Size = uint64(ino.Length())
	if ino.IsDir() {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		out.Mode = syscall.S_IFREG | 0644
	}
	return 0
}

// fuseFileHandle adapts a FileHandle to fs.FileHandle, serializing
// concurrent FUSE callbacks the way a single kernel-visible fd would.
type fuseFileHandle struct {
	mu sync.Mutex
	h  *FileHandle
}

var (
	_ fs.FileReader = (*fuseFileHandle)(nil)
	_ fs.FileWriter = (*fuseFileHandle)(nil)
)

func (f *fuseFileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.h.ReadAt(dest, off)
	if err != nil && n == 0 {
		return nil, fs.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (f *fuseFileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.h.WriteAt(data, off)
	if err != nil {
		return uint32(n), fs.ToErrno(err)
	}
	return uint32(n), 0
}

// Open implements fs.NodeOpener.
func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	ino := n.root.fsys.openInode(n.sector)
	return &fuseFileHandle{h: OpenFileHandle(ino)}, 0, 0
}

// Create implements fs.NodeCreater.
func (n *fuseNode) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	dir, err := n.openDir()
	if err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}
	defer dir.Close()

	if err := n.root.fsys.CreateFile(dir, name, 0); err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}
	sector, _ := dir.Lookup(name)

	child := &fuseNode{root: n.root, sector: sector}
	inode := n.NewInode(ctx, child, n.stableAttr(sector, false))
	ino := n.root.fsys.openInode(sector)
	return inode, &fuseFileHandle{h: OpenFileHandle(ino)}, 0, 0
}

// Mkdir implements fs.NodeMkdirer.
func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	dir, err := n.openDir()
	if err != nil {
		return nil, fs.ToErrno(err)
	}
	defer dir.Close()

	if err := n.root.fsys.CreateDir(dir, name); err != nil {
		return nil, fs.ToErrno(err)
	}
	sector, _ := dir.Lookup(name)
	child := &fuseNode{root: n.root, sector: sector}
	return n.NewInode(ctx, child, n.stableAttr(sector, true)), 0
}

// Unlink implements fs.NodeUnlinker.
func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	dir, err := n.openDir()
	if err != nil {
		return fs.ToErrno(err)
	}
	defer dir.Close()
	return fs.ToErrno(n.root.fsys.RemoveFile(dir, name))
}

// Mount mounts fsys at mountPoint, serving FUSE requests until the returned
// server is unmounted. Grounded on go-fuse's fs.Mount entry point (see
// fs/readwrite_handleless_example_test.go).
func Mount(fsys *FileSystem, mountPoint string, opts *fuse.MountOptions) (*fuse.Server, error) {
	root := &fuseRoot{fsys: fsys}
	rootNode := &fuseNode{root: root, sector: RootDirSector}

	mountOpts := fuse.MountOptions{}
	if opts != nil {
		mountOpts = *opts
	}
	return fs.Mount(mountPoint, rootNode, &fs.Options{MountOptions: mountOpts})
}
