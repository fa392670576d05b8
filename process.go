package blockfs

import (
	"io"
	"sync"
)

// Console is the process's fd 0 (stdin) and fd 1 (stdout) collaborator.
// Writers translate '\r' to '\n' per spec.md §6, matching a terminal's line
// discipline; a real console or an in-memory fixture can both implement it.
type Console interface {
	ReadByte() (byte, error)
	WriteByte(b byte) error
}

// fd is one open file descriptor: either a regular file, via handle, or a
// directory, via dir plus a readdir cursor.
type fd struct {
	handle   *FileHandle
	dir      *Directory
	dirNames []DirEntry
	dirPos   int
}

// Process is the per-process open-file-descriptor table and working
// directory of spec.md §6. Fds 0 and 1 are reserved for Console; user fds
// start at 2.
type Process struct {
	fs      *FileSystem
	console Console

	mu     sync.Mutex
	cwd    *Directory
	fds    map[int]*fd
	nextFd int
}

// NewProcess starts a process rooted at the file system's root directory.
func NewProcess(fs *FileSystem, console Console) (*Process, error) {
	cwd, err := OpenRoot(fs)
	if err != nil {
		return nil, err
	}
	return &Process{
		fs:      fs,
		console: console,
		cwd:     cwd,
		fds:     make(map[int]*fd),
		nextFd:  2,
	}, nil
}

// Exit closes every fd the process still holds and its working directory.
// Mirrors process_exit's file-closing loop.
func (p *Process) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, f := range p.fds {
		p.closeFd(f)
		delete(p.fds, id)
	}
	p.cwd.Close()
}

func (p *Process) closeFd(f *fd) {
	if f.handle != nil {
		f.handle.Close()
	}
	if f.dir != nil {
		f.dir.Close()
	}
}

// Create makes a new file of initialSize bytes named by path, which must
// not already exist.
func (p *Process) Create(path string, initialSize int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := resolveParent(p.fs, p.cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	return p.fs.CreateFile(parent, name, initialSize)
}

// Mkdir makes a new empty directory named by path.
func (p *Process) Mkdir(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := resolveParent(p.fs, p.cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	return p.fs.CreateDir(parent, name)
}

// Open opens path, which may name either a file or a directory, and
// returns a new file descriptor for it.
func (p *Process) Open(path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := resolveParent(p.fs, p.cwd, path)
	if err != nil {
		return -1, err
	}
	defer parent.Close()

	sector, ok := parent.Lookup(name)
	if !ok {
		return -1, ErrNotFound
	}

	ino := p.fs.openInode(sector)
	entry := &fd{}
	if ino.IsDir() {
		entry.dir = &Directory{ino: ino}
	} else {
		entry.handle = OpenFileHandle(ino)
	}

	id := p.nextFd
	p.nextFd++
	p.fds[id] = entry
	return id, nil
}

// Remove removes path, whether it names a file or a non-root, empty
// directory.
func (p *Process) Remove(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := resolveParent(p.fs, p.cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	return p.fs.RemoveFile(parent, name)
}

// Chdir changes the process's working directory to path.
func (p *Process) Chdir(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := resolvePath(p.fs, p.cwd, path)
	if err != nil {
		return err
	}
	p.cwd.Close()
	p.cwd = next
	return nil
}

func (p *Process) lookupFd(id int) (*fd, error) {
	f, ok := p.fds[id]
	if !ok {
		return nil, ErrBadFd
	}
	return f, nil
}

// Read reads into buf from fd id. Fd 0 reads one byte at a time from the
// console regardless of len(buf) > 1, matching spec.md §6's input_getc use.
func (p *Process) Read(id int, buf []byte) (int, error) {
	if id == 0 {
		if p.console == nil || len(buf) == 0 {
			return 0, nil
		}
		b, err := p.console.ReadByte()
		if err != nil {
			return 0, err
		}
		buf[0] = b
		return 1, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return 0, err
	}
	if f.handle == nil {
		return 0, ErrIsDirectory
	}
	n, err := f.handle.Read(buf)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Write writes buf to fd id. Fd 1 writes to the console, translating '\r'
// to '\n' (spec.md §6).
func (p *Process) Write(id int, buf []byte) (int, error) {
	if id == 1 {
		if p.console == nil {
			return len(buf), nil
		}
		for _, b := range buf {
			if b == '\r' {
				b = '\n'
			}
			if err := p.console.WriteByte(b); err != nil {
				return 0, err
			}
		}
		return len(buf), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return 0, err
	}
	if f.handle == nil {
		return 0, ErrIsDirectory
	}
	return f.handle.Write(buf)
}

// Seek repositions fd id.
func (p *Process) Seek(id int, offset int64, whence int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return 0, err
	}
	if f.handle == nil {
		return 0, ErrIsDirectory
	}
	return f.handle.Seek(offset, whence)
}

// Tell returns fd id's current position.
func (p *Process) Tell(id int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return 0, err
	}
	if f.handle == nil {
		return 0, ErrIsDirectory
	}
	return f.handle.Tell(), nil
}

// Close closes fd id. Fd numbers are never reused within a process,
// matching the monotonically increasing handle allocator this is grounded
// on.
func (p *Process) Close(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return err
	}
	p.closeFd(f)
	delete(p.fds, id)
	return nil
}

// IsDir reports whether fd id names a directory.
func (p *Process) IsDir(id int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return false, err
	}
	return f.dir != nil, nil
}

// Inumber returns fd id's inode sector, used as its stable inode number.
func (p *Process) Inumber(id int) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return 0, err
	}
	if f.handle != nil {
		return f.handle.Inumber(), nil
	}
	return f.dir.Inode().Sector(), nil
}

// Readdir returns the next directory entry name for fd id, or ok=false
// once exhausted. "." and ".." are never returned (spec.md §6).
func (p *Process) Readdir(id int) (name string, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := p.lookupFd(id)
	if err != nil {
		return "", false, err
	}
	if f.dir == nil {
		return "", false, ErrNotDirectory
	}
	if f.dirNames == nil {
		f.dirNames, err = f.dir.Readdir(p.fs)
		if err != nil {
			return "", false, err
		}
	}
	if f.dirPos >= len(f.dirNames) {
		return "", false, nil
	}
	name = f.dirNames[f.dirPos].Name
	f.dirPos++
	return name, true, nil
}
