package blockfs

import "log"

// FileSystem is the top-level façade of spec.md §6: construction,
// formatting, and the path-taking convenience operations built on top of
// the inode/directory layers.
type FileSystem struct {
	dev      BlockDevice
	cache    *Cache
	freeMap  FreeMap
	registry *inodeRegistry
	logger   *log.Logger
}

// Option configures a FileSystem at construction time.
type Option func(*FileSystem)

// WithCacheCapacity overrides the default buffer cache size.
func WithCacheCapacity(sectors int) Option {
	return func(fs *FileSystem) {
		fs.cache = NewCache(fs.dev, sectors)
	}
}

// WithFreeMap supplies a FreeMap other than the default BitmapFreeMap,
// e.g. one already loaded from an existing device.
func WithFreeMap(fm FreeMap) Option {
	return func(fs *FileSystem) { fs.freeMap = fm }
}

// WithLogger directs the inode resize diagnostics (read failures, rollbacks)
// to logger instead of the standard logger. Cache eviction messages always
// go to the standard logger.
func WithLogger(logger *log.Logger) Option {
	return func(fs *FileSystem) { fs.logger = logger }
}

// NewFileSystem opens an existing file system on dev. Use Format first to
// initialize a fresh device.
func NewFileSystem(dev BlockDevice, opts ...Option) (*FileSystem, error) {
	fs := &FileSystem{
		dev:      dev,
		registry: newInodeRegistry(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.cache == nil {
		fs.cache = NewCache(dev, CacheCapacity)
	}
	if fs.freeMap == nil {
		fm, err := LoadBitmapFreeMap(dev)
		if err != nil {
			return nil, err
		}
		fs.freeMap = fm
	}
	return fs, nil
}

// Format lays down a fresh free map and root directory on dev, discarding
// any existing contents. Mirrors pintos filesys_init(format=true).
func Format(dev BlockDevice, opts ...Option) (*FileSystem, error) {
	fs := &FileSystem{
		dev:      dev,
		registry: newInodeRegistry(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.cache == nil {
		fs.cache = NewCache(dev, CacheCapacity)
	}
	fs.freeMap = NewBitmapFreeMap(dev)

	if !DirCreate(fs, RootDirSector, rootDirInitialEntries) {
		return nil, ErrNoSpace
	}
	root, err := OpenRoot(fs)
	if err != nil {
		return nil, err
	}
	if err := root.Add(".", RootDirSector); err != nil {
		root.Close()
		return nil, err
	}
	if err := root.Add("..", RootDirSector); err != nil {
		root.Close()
		return nil, err
	}
	root.Close()

	if err := fs.Flush(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Flush writes every dirty cache entry and the free map back to dev.
func (fs *FileSystem) Flush() error {
	if bm, ok := fs.freeMap.(*BitmapFreeMap); ok {
		if err := bm.Flush(); err != nil {
			return err
		}
	}
	return fs.cache.Flush()
}

// Close flushes fs. The FileSystem itself holds no other closable state.
func (fs *FileSystem) Close() error {
	return fs.Flush()
}

func (fs *FileSystem) logf(format string, args ...any) {
	if fs.logger != nil {
		fs.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// allocInodeSector reserves one sector for a new inode's own record.
func (fs *FileSystem) allocInodeSector() (uint32, bool) {
	return fs.freeMap.Allocate(1)
}

// CreateFile creates a new regular file of the given initial length inside
// dir, named name.
func (fs *FileSystem) CreateFile(dir *Directory, name string, length int32) error {
	if !validName(name) {
		return ErrInvalidName
	}
	sector, ok := fs.allocInodeSector()
	if !ok {
		return ErrNoSpace
	}
	if !createInode(fs, sector, length, false) {
		fs.freeMap.Release(sector, 1)
		return ErrNoSpace
	}
	if err := dir.Add(name, sector); err != nil {
		ino := fs.openInode(sector)
		ino.Remove()
		ino.Close()
		return err
	}
	return nil
}

// CreateDir creates a new subdirectory inside dir, named name, already
// populated with "." and "..".
func (fs *FileSystem) CreateDir(dir *Directory, name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	sector, ok := fs.allocInodeSector()
	if !ok {
		return ErrNoSpace
	}
	if !DirCreate(fs, sector, rootDirInitialEntries) {
		fs.freeMap.Release(sector, 1)
		return ErrNoSpace
	}

	child, err := OpenDir(fs, sector)
	if err != nil {
		return err
	}
	if err := child.Add(".", sector); err != nil {
		child.Close()
		return err
	}
	if err := child.Add("..", dir.Inode().Sector()); err != nil {
		child.Close()
		return err
	}
	child.Close()

	if err := dir.Add(name, sector); err != nil {
		ino := fs.openInode(sector)
		ino.Remove()
		ino.Close()
		return err
	}
	return nil
}

// OpenFile opens name inside dir as a regular file.
func (fs *FileSystem) OpenFile(dir *Directory, name string) (*Inode, error) {
	sector, ok := dir.Lookup(name)
	if !ok {
		return nil, ErrNotFound
	}
	ino := fs.openInode(sector)
	if ino.IsDir() {
		ino.Close()
		return nil, ErrIsDirectory
	}
	return ino, nil
}

// RemoveFile removes name from dir. Removing "." or ".." is rejected; the
// root directory's own entries are not reachable by the path resolver as a
// removable name anyway (spec.md §6).
func (fs *FileSystem) RemoveFile(dir *Directory, name string) error {
	return dir.Remove(fs, name)
}
