package blockfs

import "sync"

// inodeRegistry is the process-wide open-inode table of spec.md §4.3: it
// enforces that at most one in-memory Inode exists per sector at any
// instant. Lookups, insertions and removals are all linear-scan-shaped in
// the reference design; a map gives the same externally-visible behavior
// in O(1) instead, which is the point of replacing the C intrusive list
// (spec.md §9).
type inodeRegistry struct {
	mu    sync.Mutex
	table map[uint32]*Inode
}

func newInodeRegistry() *inodeRegistry {
	return &inodeRegistry{table: make(map[uint32]*Inode)}
}

// open returns the live in-memory inode for sector, reopening it if one
// already exists, or constructs and registers a new one with open_cnt=1.
// Lock order: registry lock, then the (new or found) inode's meta lock —
// matching spec.md §5's ordering #3 then #4.
func (r *inodeRegistry) open(fs *FileSystem, sector uint32) *Inode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ino, ok := r.table[sector]; ok {
		ino.metaLock.Lock()
		ino.openCnt++
		ino.metaLock.Unlock()
		return ino
	}

	ino := newInode(fs, sector)
	ino.openCnt = 1
	r.table[sector] = ino
	return ino
}

// close decrements ino's open count and, if it reaches zero, removes ino
// from the registry and reports whether the caller must now finish
// deallocating ino (shrink to zero and release its inode sector).
func (r *inodeRegistry) close(ino *Inode) (shouldDeallocate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ino.metaLock.Lock()
	ino.openCnt--
	openCnt := ino.openCnt
	removed := ino.removed
	ino.metaLock.Unlock()

	debugAssert(openCnt >= 0, "inode %d open_cnt went negative", ino.sector)

	if openCnt != 0 {
		return false
	}
	delete(r.table, ino.sector)
	return removed
}
