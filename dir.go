package blockfs

import (
	"bytes"
	"encoding/binary"
)

// dirEntry is one fixed-stride slot of a directory's file data, packed to
// dirEntrySize bytes: a 1-byte in-use flag padded to 4 bytes, a 4-byte inode sector, and a
// NameMax+1-byte NUL-padded name (NameMax=14 leaves 15 bytes of name
// field, rounded up to the dirEntrySize=24 stride for alignment).
type dirEntry struct {
	inUse  bool
	sector uint32
	name   string
}

func marshalDirEntry(e dirEntry) []byte {
	buf := make([]byte, dirEntrySize)
	if e.inUse {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], e.sector)
	copy(buf[8:8+NameMax+1], e.name)
	return buf
}

func unmarshalDirEntry(buf []byte) dirEntry {
	name := buf[8 : 8+NameMax+1]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return dirEntry{
		inUse:  buf[0] != 0,
		sector: binary.LittleEndian.Uint32(buf[4:8]),
		name:   string(name),
	}
}

// Directory is a directory file: a packed array of dirEntry slots stored as
// the data of an underlying Inode, per spec.md §4.3.
type Directory struct {
	ino *Inode
}

// DirCreate initializes sector as an empty directory inode with room for
// entryCnt entries (never fewer than rootDirInitialEntries); the "." and
// ".." entries the caller adds take two of those slots. Mirrors pintos
// dir_create, generalized with self/parent entries added by the caller.
func DirCreate(fs *FileSystem, sector uint32, entryCnt int) bool {
	if entryCnt < rootDirInitialEntries {
		entryCnt = rootDirInitialEntries
	}
	return createInode(fs, sector, int32(entryCnt)*dirEntrySize, true)
}

// OpenDir opens the directory inode at sector.
func OpenDir(fs *FileSystem, sector uint32) (*Directory, error) {
	ino := fs.openInode(sector)
	if !ino.IsDir() {
		ino.Close()
		return nil, ErrNotDirectory
	}
	return &Directory{ino: ino}, nil
}

// OpenRoot opens the root directory.
func OpenRoot(fs *FileSystem) (*Directory, error) {
	return OpenDir(fs, RootDirSector)
}

// Reopen returns a second independent Directory handle on the same
// underlying inode.
func (d *Directory) Reopen() *Directory {
	return &Directory{ino: d.ino.Reopen()}
}

// Close releases d's handle on its inode.
func (d *Directory) Close() {
	d.ino.Close()
}

// Inode exposes d's underlying inode, e.g. for Process.Inumber.
func (d *Directory) Inode() *Inode { return d.ino }

func validName(name string) bool {
	return len(name) > 0 && len(name) <= NameMax
}

// lookupLocked scans d's entries for name, returning its slot index and
// decoded entry if found. Caller holds d.ino.dirLock.
func (d *Directory) lookupLocked(name string) (int, dirEntry, bool) {
	raw := make([]byte, dirEntrySize)
	length := d.ino.Length()
	slots := int(length) / dirEntrySize
	for i := 0; i < slots; i++ {
		if _, err := d.ino.ReadAt(raw, int64(i)*dirEntrySize); err != nil {
			return 0, dirEntry{}, false
		}
		e := unmarshalDirEntry(raw)
		if e.inUse && e.name == name {
			return i, e, true
		}
	}
	return 0, dirEntry{}, false
}

// Lookup searches d for name and returns the sector of its inode.
func (d *Directory) Lookup(name string) (uint32, bool) {
	d.ino.dirLock.Lock()
	defer d.ino.dirLock.Unlock()
	_, e, ok := d.lookupLocked(name)
	if !ok {
		return 0, false
	}
	return e.sector, true
}

// Add inserts a new entry (name -> sector) into d, reusing the first free
// slot or extending the directory by one stride. Fails if name already
// exists or is invalid.
func (d *Directory) Add(name string, sector uint32) error {
	if !validName(name) {
		return ErrInvalidName
	}

	d.ino.dirLock.Lock()
	defer d.ino.dirLock.Unlock()

	if _, _, ok := d.lookupLocked(name); ok {
		return ErrExists
	}

	entry := marshalDirEntry(dirEntry{inUse: true, sector: sector, name: name})

	raw := make([]byte, dirEntrySize)
	length := d.ino.Length()
	slots := int(length) / dirEntrySize
	for i := 0; i < slots; i++ {
		if _, err := d.ino.ReadAt(raw, int64(i)*dirEntrySize); err != nil {
			return err
		}
		if !unmarshalDirEntry(raw).inUse {
			_, err := d.ino.WriteAt(entry, int64(i)*dirEntrySize)
			return err
		}
	}

	n, err := d.ino.WriteAt(entry, int64(slots)*dirEntrySize)
	if err != nil {
		return err
	}
	if n != dirEntrySize {
		return ErrNoSpace
	}
	return nil
}

// Remove deletes name from d. It refuses to remove "." or ".." through this
// call, returning ErrRootRemove when that name refers to the root directory
// and ErrInvalidName otherwise. A directory that is some process's working
// directory is not refused; like any open inode, its deallocation is
// deferred to its last Close.
func (d *Directory) Remove(fs *FileSystem, name string) error {
	if name == "." || name == ".." {
		if sector, ok := d.Lookup(name); ok && sector == RootDirSector {
			return ErrRootRemove
		}
		return ErrInvalidName
	}

	d.ino.dirLock.Lock()
	idx, e, ok := d.lookupLocked(name)
	if !ok {
		d.ino.dirLock.Unlock()
		return ErrNotFound
	}

	target := fs.openInode(e.sector)
	if target.IsDir() {
		sub := &Directory{ino: target}
		target.dirLock.Lock()
		empty := sub.isEmptyLocked()
		target.dirLock.Unlock()
		if !empty {
			d.ino.dirLock.Unlock()
			target.Close()
			return ErrNotEmpty
		}
	}

	blank := marshalDirEntry(dirEntry{})
	_, err := d.ino.WriteAt(blank, int64(idx)*dirEntrySize)
	d.ino.dirLock.Unlock()
	if err != nil {
		target.Close()
		return err
	}

	target.Remove()
	target.Close()
	return nil
}

// isEmptyLocked reports whether a directory inode, other than "." and "..",
// has no entries. Caller must hold d.ino.dirLock for the directory being
// checked.
func (d *Directory) isEmptyLocked() bool {
	raw := make([]byte, dirEntrySize)
	length := d.ino.Length()
	slots := int(length) / dirEntrySize
	for i := 0; i < slots; i++ {
		if _, err := d.ino.ReadAt(raw, int64(i)*dirEntrySize); err != nil {
			return false
		}
		e := unmarshalDirEntry(raw)
		if e.inUse && e.name != "." && e.name != ".." {
			return false
		}
	}
	return true
}

// DirEntry is one entry surfaced by Readdir: a name and whether it names a
// subdirectory.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Readdir lists d's entries, skipping "." and "..".
func (d *Directory) Readdir(fs *FileSystem) ([]DirEntry, error) {
	d.ino.dirLock.Lock()
	defer d.ino.dirLock.Unlock()

	raw := make([]byte, dirEntrySize)
	length := d.ino.Length()
	slots := int(length) / dirEntrySize

	var out []DirEntry
	for i := 0; i < slots; i++ {
		if _, err := d.ino.ReadAt(raw, int64(i)*dirEntrySize); err != nil {
			return nil, err
		}
		e := unmarshalDirEntry(raw)
		if !e.inUse || e.name == "." || e.name == ".." {
			continue
		}
		child := fs.openInode(e.sector)
		out = append(out, DirEntry{Name: e.name, IsDir: child.IsDir()})
		child.Close()
	}
	return out, nil
}
