package blockfs

import (
	"io"
	"io/fs"
	"path"
	"time"
)

// fsFile adapts a FileHandle to fs.File and io.ReaderAt, for use through
// the io/fs.FS adapter below.
type fsFile struct {
	h    *FileHandle
	name string
}

// fsDir adapts a Directory to fs.ReadDirFile.
type fsDir struct {
	dir     *Directory
	name    string
	entries []DirEntry
	pos     int
}

// fsFileInfo adapts an Inode to fs.FileInfo.
type fsFileInfo struct {
	ino  *Inode
	name string
}

var (
	_ fs.File        = (*fsFile)(nil)
	_ io.ReaderAt    = (*fsFile)(nil)
	_ fs.ReadDirFile = (*fsDir)(nil)
	_ fs.FileInfo    = (*fsFileInfo)(nil)
)

func (f *fsFile) Read(buf []byte) (int, error) { return f.h.Read(buf) }
func (f *fsFile) ReadAt(buf []byte, off int64) (int, error) { return f.h.ReadAt(buf, off) }
func (f *fsFile) Close() error                 { f.h.Close(); return nil }
func (f *fsFile) Stat() (fs.FileInfo, error) {
	return &fsFileInfo{ino: f.h.ino, name: path.Base(f.name)}, nil
}

func (d *fsDir) Read([]byte) (int, error) { return 0, fs.ErrInvalid }
func (d *fsDir) Close() error             { d.dir.Close(); return nil }
func (d *fsDir) Stat() (fs.FileInfo, error) {
	return &fsFileInfo{ino: d.dir.Inode(), name: path.Base(d.name)}, nil
}

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.entries == nil {
		entries, err := d.dir.Readdir(d.dir.ino.fs)
		if err != nil {
			return nil, err
		}
		d.entries = entries
	}

	var out []fs.DirEntry
	for n <= 0 || len(out) < n {
		if d.pos >= len(d.entries) {
			if n <= 0 {
				break
			}
			if len(out) == 0 {
				return nil, io.EOF
			}
			break
		}
		e := d.entries[d.pos]
		d.pos++
		out = append(out, dirEntryInfo{name: e.Name, isDir: e.IsDir})
	}
	return out, nil
}

// dirEntryInfo adapts a blockfs DirEntry to fs.DirEntry without reopening
// the child inode (its type is already known from the directory scan).
type dirEntryInfo struct {
	name  string
	isDir bool
}

func (e dirEntryInfo) Name() string { return e.name }
func (e dirEntryInfo) IsDir() bool  { return e.isDir }
func (e dirEntryInfo) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return 0
}
func (e dirEntryInfo) Info() (fs.FileInfo, error) {
	return nil, fs.ErrInvalid // resolving full info requires FS.Stat(path)
}

func (fi *fsFileInfo) Name() string       { return fi.name }
func (fi *fsFileInfo) Size() int64        { return int64(fi.ino.Length()) }
func (fi *fsFileInfo) Mode() fs.FileMode {
	if fi.ino.IsDir() {
		return unixToMode(sIFDIR | 0755)
	}
	return unixToMode(sIFREG | 0644)
}
// ModTime returns the zero Time: blockfs's on-disk inode carries no
// timestamp, matching spec.md §3's field list exactly.
func (fi *fsFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *fsFileInfo) IsDir() bool        { return fi.ino.IsDir() }
func (fi *fsFileInfo) Sys() any           { return fi.ino }

// FS adapts a FileSystem, rooted at a fixed starting directory, to
// io/fs.FS, fs.ReadDirFS and fs.StatFS, so blockfs volumes can be consumed
// by any stdlib or third-party code written against io/fs.
type FS struct {
	fs   *FileSystem
	root *Directory
}

// NewFS builds an FS rooted at volume's root directory.
func NewFS(volume *FileSystem) (*FS, error) {
	root, err := OpenRoot(volume)
	if err != nil {
		return nil, err
	}
	return &FS{fs: volume, root: root}, nil
}

// Close releases the root directory handle FS holds open.
func (a *FS) Close() { a.root.Close() }

func (a *FS) resolve(name string) (*Directory, string, *Inode, bool, error) {
	if name == "." {
		return a.root.Reopen(), ".", a.root.Inode().Reopen(), true, nil
	}
	if !fs.ValidPath(name) {
		return nil, "", nil, false, fs.ErrInvalid
	}
	parent, leaf, err := resolveParent(a.fs, a.root, "/"+name)
	if err != nil {
		return nil, "", nil, false, err
	}
	sector, ok := parent.Lookup(leaf)
	if !ok {
		parent.Close()
		return nil, "", nil, false, fs.ErrNotExist
	}
	ino := a.fs.openInode(sector)
	return parent, leaf, ino, ino.IsDir(), nil
}

// Open implements fs.FS.
func (a *FS) Open(name string) (fs.File, error) {
	parent, leaf, ino, isDir, err := a.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	parent.Close()

	if isDir {
		return &fsDir{dir: &Directory{ino: ino}, name: name}, nil
	}
	return &fsFile{h: OpenFileHandle(ino), name: name}, nil
}

// Stat implements fs.StatFS.
func (a *FS) Stat(name string) (fs.FileInfo, error) {
	parent, leaf, ino, _, err := a.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	parent.Close()
	defer ino.Close()
	return &fsFileInfo{ino: ino, name: path.Base(leaf)}, nil
}

// ReadDir implements fs.ReadDirFS.
func (a *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}
	return d.ReadDir(-1)
}
