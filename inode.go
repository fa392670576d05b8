package blockfs

import (
	"encoding/binary"
	"log"
	"sync"
)

// Inode is the in-memory representation of an open file or directory,
// described in spec.md §3. Identity is its on-disk sector; the registry
// guarantees at most one Inode per sector exists at a time.
type Inode struct {
	fs     *FileSystem
	sector uint32

	// metaLock serializes open_cnt and removed (spec.md §5 lock #4).
	metaLock sync.Mutex
	openCnt  int
	removed  bool

	// lookupLock serializes all readers and writers of the on-disk index
	// tree: direct/indirect/double_indirect pointers and length (lock #5).
	// It is held exclusively for both reads and grows in this design.
	lookupLock sync.Mutex

	// denyLock + denyCond serialize deny_write_cnt and writers, and
	// signal completion of in-flight writers (lock #6).
	denyLock     sync.Mutex
	denyCond     *sync.Cond
	denyWriteCnt int
	writers      int

	// dirLock serializes dir_add/dir_remove against each other on this
	// inode when it is a directory (lock #7).
	dirLock sync.Mutex
}

func newInode(fs *FileSystem, sector uint32) *Inode {
	ino := &Inode{fs: fs, sector: sector}
	ino.denyCond = sync.NewCond(&ino.denyLock)
	return ino
}

// Sector returns the inode's identity: the on-disk sector of its inode
// record.
func (ino *Inode) Sector() uint32 { return ino.sector }

// createInode writes an initialized, zero-length on-disk inode to sector
// and grows it to length, releasing any partial allocation on failure.
// Mirrors pintos inode_create.
func createInode(fs *FileSystem, sector uint32, length int32, isDir bool) bool {
	disk := &onDiskInode{Magic: InodeMagic}
	if isDir {
		disk.IsDir = 1
	}
	if err := fs.writeDiskInode(sector, disk); err != nil {
		log.Printf("blockfs: create inode %d: %v", sector, err)
		return false
	}

	if length == 0 {
		return true
	}
	return fs.resizeInode(sector, length)
}

// openInode opens (or reopens) the in-memory inode for sector via the
// registry.
func (fs *FileSystem) openInode(sector uint32) *Inode {
	return fs.registry.open(fs, sector)
}

// Reopen increments ino's open count, yielding a second independent handle
// onto the same in-memory inode.
func (ino *Inode) Reopen() *Inode {
	ino.metaLock.Lock()
	ino.openCnt++
	ino.metaLock.Unlock()
	return ino
}

// Close decrements ino's open count. When it reaches zero, ino is removed
// from the registry; if it had been marked removed, its data and inode
// sector are released to the free map.
func (ino *Inode) Close() {
	if ino == nil {
		return
	}
	shouldDeallocate := ino.fs.registry.close(ino)
	if !shouldDeallocate {
		return
	}

	ino.lookupLock.Lock()
	ino.fs.resizeInodeLocked(ino.sector, 0)
	ino.lookupLock.Unlock()

	ino.fs.freeMap.Release(ino.sector, 1)
}

// Remove marks ino for deletion; actual deallocation is deferred to the
// last Close (spec.md §4.2 inode_remove).
func (ino *Inode) Remove() {
	ino.metaLock.Lock()
	ino.removed = true
	ino.metaLock.Unlock()
}

// IsRemoved reports whether Remove has been called on ino.
func (ino *Inode) IsRemoved() bool {
	ino.metaLock.Lock()
	defer ino.metaLock.Unlock()
	return ino.removed
}

// Length returns the current on-disk length of ino. It is never cached in
// memory, per spec.md §3, so concurrent growth is always visible.
func (ino *Inode) Length() int32 {
	ino.lookupLock.Lock()
	defer ino.lookupLock.Unlock()
	disk, err := ino.fs.readDiskInode(ino.sector)
	if err != nil {
		return 0
	}
	return disk.Length
}

// IsDir reports whether ino's on-disk inode is marked as a directory.
func (ino *Inode) IsDir() bool {
	disk, err := ino.fs.readDiskInode(ino.sector)
	if err != nil {
		return false
	}
	return disk.IsDir != 0
}

// DenyWrite blocks until no writer is in flight, then increments
// deny_write_cnt. Writers enrolled before this call completes are
// guaranteed to finish before it returns; writers arriving afterwards see
// deny_write_cnt > 0 and return 0 immediately (spec.md §5).
func (ino *Inode) DenyWrite() {
	ino.denyLock.Lock()
	for ino.writers > 0 {
		ino.denyCond.Wait()
	}
	ino.denyWriteCnt++
	ino.denyLock.Unlock()
}

// AllowWrite decrements deny_write_cnt.
func (ino *Inode) AllowWrite() {
	ino.denyLock.Lock()
	debugAssert(ino.denyWriteCnt > 0, "inode %d: allow_write with deny_write_cnt == 0", ino.sector)
	ino.denyWriteCnt--
	ino.denyLock.Unlock()
}

// enrollWriter returns true and bumps the writer count if writes are
// currently allowed, else returns false without side effects.
func (ino *Inode) enrollWriter() bool {
	ino.denyLock.Lock()
	defer ino.denyLock.Unlock()
	if ino.denyWriteCnt > 0 {
		return false
	}
	ino.writers++
	return true
}

func (ino *Inode) retireWriter() {
	ino.denyLock.Lock()
	ino.writers--
	if ino.writers == 0 {
		ino.denyCond.Broadcast()
	}
	ino.denyLock.Unlock()
}

// byteToSectorLocked maps a logical byte offset to a data sector number,
// returning 0 ("hole") if the offset falls on an unallocated pointer.
// Called with ino.lookupLock held.
func (ino *Inode) byteToSectorLocked(pos int64) (uint32, error) {
	disk, err := ino.fs.readDiskInode(ino.sector)
	if err != nil {
		return 0, err
	}

	switch {
	case pos < directMax:
		return disk.Direct[pos/SectorSize], nil

	case pos < indirectMax:
		if disk.Indirect == 0 {
			return 0, nil
		}
		ptrs, err := ino.fs.readPtrSector(disk.Indirect)
		if err != nil {
			return 0, err
		}
		return ptrs[(pos-directMax)/SectorSize], nil

	case pos < doubleMax:
		if disk.DoubleIndirect == 0 {
			return 0, nil
		}
		l1, err := ino.fs.readPtrSector(disk.DoubleIndirect)
		if err != nil {
			return 0, err
		}
		rel := (pos - indirectMax) / SectorSize
		l2sector := l1[rel/PtrsPerSector]
		if l2sector == 0 {
			return 0, nil
		}
		l2, err := ino.fs.readPtrSector(l2sector)
		if err != nil {
			return 0, err
		}
		return l2[rel%PtrsPerSector], nil

	default:
		return 0, nil
	}
}

// ReadAt reads up to len(buf) bytes starting at offset. It never extends
// the file; it returns fewer bytes than requested only at EOF. A hole
// (zero pointer) within the file's length reads as zero bytes.
func (ino *Inode) ReadAt(buf []byte, offset int64) (int, error) {
	ino.lookupLock.Lock()
	defer ino.lookupLock.Unlock()

	disk, err := ino.fs.readDiskInode(ino.sector)
	if err != nil {
		return 0, err
	}
	length := int64(disk.Length)

	read := 0
	for read < len(buf) {
		pos := offset + int64(read)
		if pos >= length {
			break
		}

		sectorOfs := int(pos % SectorSize)
		chunk := SectorSize - sectorOfs
		if remain := int(length - pos); chunk > remain {
			chunk = remain
		}
		if remain := len(buf) - read; chunk > remain {
			chunk = remain
		}

		sector, err := ino.byteToSectorLocked(pos)
		if err != nil {
			return read, err
		}
		if sector == 0 {
			// Hole: zero-filled region.
			for i := 0; i < chunk; i++ {
				buf[read+i] = 0
			}
		} else if err := ino.fs.cache.Read(sector, buf[read:read+chunk], sectorOfs, chunk); err != nil {
			return read, err
		}
		read += chunk
	}
	return read, nil
}

// WriteAt writes up to len(buf) bytes at offset, growing the file first if
// the write would extend past the current length. It returns 0 immediately,
// with no error, if a deny-write is currently in effect (spec.md §7
// category 5: indistinguishable from a short write by design).
func (ino *Inode) WriteAt(buf []byte, offset int64) (int, error) {
	if !ino.enrollWriter() {
		return 0, nil
	}
	defer ino.retireWriter()

	ino.lookupLock.Lock()
	defer ino.lookupLock.Unlock()

	disk, err := ino.fs.readDiskInode(ino.sector)
	if err != nil {
		return 0, err
	}

	if need := offset + int64(len(buf)); need > int64(disk.Length) {
		if need > 1<<31-1 {
			return 0, ErrNoSpace
		}
		if !ino.fs.resizeInodeLocked(ino.sector, int32(need)) {
			return 0, ErrNoSpace
		}
		disk, err = ino.fs.readDiskInode(ino.sector)
		if err != nil {
			return 0, err
		}
	}
	length := int64(disk.Length)

	written := 0
	for written < len(buf) {
		pos := offset + int64(written)
		if pos >= length {
			break
		}

		sectorOfs := int(pos % SectorSize)
		chunk := SectorSize - sectorOfs
		if remain := int(length - pos); chunk > remain {
			chunk = remain
		}
		if remain := len(buf) - written; chunk > remain {
			chunk = remain
		}

		sector, err := ino.byteToSectorLocked(pos)
		if err != nil {
			return written, err
		}
		debugAssert(sector != 0, "inode %d: write through hole inside allocated length", ino.sector)

		if err := ino.fs.cache.Write(sector, buf[written:written+chunk], sectorOfs, chunk); err != nil {
			return written, err
		}
		written += chunk
	}
	return written, nil
}

// readDiskInode reads and decodes the on-disk inode at sector through the
// cache.
func (fs *FileSystem) readDiskInode(sector uint32) (*onDiskInode, error) {
	raw := make([]byte, SectorSize)
	if err := fs.cache.Read(sector, raw, 0, SectorSize); err != nil {
		return nil, err
	}
	return unmarshalInode(raw)
}

// writeDiskInode encodes and writes disk to sector through the cache.
func (fs *FileSystem) writeDiskInode(sector uint32, disk *onDiskInode) error {
	raw := marshalInode(disk)
	return fs.cache.Write(sector, raw, 0, SectorSize)
}

// readPtrSector reads a 128-entry sector-pointer array through the cache.
func (fs *FileSystem) readPtrSector(sector uint32) ([PtrsPerSector]uint32, error) {
	var ptrs [PtrsPerSector]uint32
	raw := make([]byte, SectorSize)
	if err := fs.cache.Read(sector, raw, 0, SectorSize); err != nil {
		return ptrs, err
	}
	for i := range ptrs {
		ptrs[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return ptrs, nil
}

// writePtrSector writes a 128-entry sector-pointer array through the cache.
func (fs *FileSystem) writePtrSector(sector uint32, ptrs [PtrsPerSector]uint32) error {
	raw := make([]byte, SectorSize)
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(raw[i*4:], p)
	}
	return fs.cache.Write(sector, raw, 0, SectorSize)
}

var zeroSector [SectorSize]byte

// allocZeroedSector allocates one sector from the free map and zero-fills
// it on disk, so bytes that become newly reachable read as zero.
func (fs *FileSystem) allocZeroedSector() (uint32, bool) {
	sector, ok := fs.freeMap.Allocate(1)
	if !ok {
		return 0, false
	}
	if err := fs.cache.Write(sector, zeroSector[:], 0, SectorSize); err != nil {
		fs.freeMap.Release(sector, 1)
		return 0, false
	}
	return sector, true
}

// resizeInode resizes the inode at sector without taking any lock. Used by
// createInode, where no other party can reach the inode yet.
func (fs *FileSystem) resizeInode(sector uint32, target int32) bool {
	return fs.resizeInodeLocked(sector, target)
}

// resizeInodeLocked is the grow/shrink algorithm of spec.md §4.2. The
// caller must already hold the relevant inode's lookupLock (or be sure no
// other party can observe the inode, as during createInode). It reconciles
// direct, indirect, and double-indirect regions in one top-down pass,
// allocating or releasing exactly the sectors needed to reach target bytes,
// lazily materializing index sectors, and writing the root inode's length
// exactly once on the successful path.
//
// On an allocation failure mid-pass it rolls back by recursively resizing
// to the inode's previous length (which can only shrink, and shrinking
// never fails), then reports failure to its own caller.
func (fs *FileSystem) resizeInodeLocked(sector uint32, target int32) bool {
	disk, err := fs.readDiskInode(sector)
	if err != nil {
		fs.logf("blockfs: resize: read inode %d: %v", sector, err)
		return false
	}
	prevLength := disk.Length

	rollback := func() bool {
		fs.logf("blockfs: resize: rolling back inode %d to %d bytes after allocation failure", sector, prevLength)
		// Persist the provisional pointers (length still prevLength) so the
		// shrinking pass below sees and releases them.
		fs.writeDiskInode(sector, disk)
		fs.resizeInodeLocked(sector, prevLength)
		return false
	}

	// Direct region.
	for i := 0; i < DirectPtrs; i++ {
		slotOff := int64(i) * SectorSize
		switch {
		case int64(target) <= slotOff && disk.Direct[i] != 0:
			fs.freeMap.Release(disk.Direct[i], 1)
			disk.Direct[i] = 0
		case int64(target) > slotOff && disk.Direct[i] == 0:
			s, ok := fs.allocZeroedSector()
			if !ok {
				return rollback()
			}
			disk.Direct[i] = s
		}
	}

	if disk.Indirect == 0 && int64(target) <= directMax {
		disk.Length = target
		return fs.writeDiskInode(sector, disk) == nil
	}

	// Indirect region: one level of 128 pointers.
	var indirectPtrs [PtrsPerSector]uint32
	if disk.Indirect == 0 {
		s, ok := fs.allocZeroedSector()
		if !ok {
			return rollback()
		}
		disk.Indirect = s
	} else {
		indirectPtrs, err = fs.readPtrSector(disk.Indirect)
		if err != nil {
			fs.logf("blockfs: resize: read indirect sector: %v", err)
			return rollback()
		}
	}

	for i := 0; i < PtrsPerSector; i++ {
		slotOff := directMax + int64(i)*SectorSize
		switch {
		case int64(target) <= slotOff && indirectPtrs[i] != 0:
			fs.freeMap.Release(indirectPtrs[i], 1)
			indirectPtrs[i] = 0
		case int64(target) > slotOff && indirectPtrs[i] == 0:
			s, ok := fs.allocZeroedSector()
			if !ok {
				fs.writePtrSector(disk.Indirect, indirectPtrs)
				return rollback()
			}
			indirectPtrs[i] = s
		}
	}
	if err := fs.writePtrSector(disk.Indirect, indirectPtrs); err != nil {
		return rollback()
	}

	if disk.DoubleIndirect == 0 && int64(target) <= indirectMax {
		disk.Length = target
		return fs.writeDiskInode(sector, disk) == nil
	}

	// Double-indirect region: 128 second-level sectors of 128 pointers each.
	var l1 [PtrsPerSector]uint32
	if disk.DoubleIndirect == 0 {
		s, ok := fs.allocZeroedSector()
		if !ok {
			return rollback()
		}
		disk.DoubleIndirect = s
	} else {
		l1, err = fs.readPtrSector(disk.DoubleIndirect)
		if err != nil {
			fs.logf("blockfs: resize: read double-indirect sector: %v", err)
			return rollback()
		}
	}

	for i := 0; i < PtrsPerSector; i++ {
		l2Base := indirectMax + int64(i)*int64(PtrsPerSector)*SectorSize
		if int64(target) <= l2Base && l1[i] == 0 {
			// Nothing in this second-level block is needed, and it was
			// never materialized: done with the pass.
			break
		}

		var l2 [PtrsPerSector]uint32
		if l1[i] == 0 {
			s, ok := fs.allocZeroedSector()
			if !ok {
				fs.writePtrSector(disk.DoubleIndirect, l1)
				return rollback()
			}
			l1[i] = s
		} else {
			l2, err = fs.readPtrSector(l1[i])
			if err != nil {
				fs.logf("blockfs: resize: read level-2 sector: %v", err)
				fs.writePtrSector(disk.DoubleIndirect, l1)
				return rollback()
			}
		}

		for j := 0; j < PtrsPerSector; j++ {
			slotOff := l2Base + int64(j)*SectorSize
			switch {
			case int64(target) <= slotOff && l2[j] != 0:
				fs.freeMap.Release(l2[j], 1)
				l2[j] = 0
			case int64(target) > slotOff && l2[j] == 0:
				s, ok := fs.allocZeroedSector()
				if !ok {
					fs.writePtrSector(l1[i], l2)
					fs.writePtrSector(disk.DoubleIndirect, l1)
					return rollback()
				}
				l2[j] = s
			}
		}
		if err := fs.writePtrSector(l1[i], l2); err != nil {
			fs.writePtrSector(disk.DoubleIndirect, l1)
			return rollback()
		}
	}

	if err := fs.writePtrSector(disk.DoubleIndirect, l1); err != nil {
		return rollback()
	}

	disk.Length = target
	return fs.writeDiskInode(sector, disk) == nil
}
