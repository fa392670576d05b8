package blockfs

// Sizes and layout constants. Bit-exact with the on-disk format: changing any
// of these changes the disk format.
const (
	// SectorSize is the fixed unit of device I/O.
	SectorSize = 512

	// InodeMagic identifies a valid on-disk inode.
	InodeMagic = 0x494E4F44

	// DirectPtrs is the number of direct data-sector pointers in an inode.
	DirectPtrs = 123

	// PtrsPerSector is how many 4-byte sector numbers fit in one sector.
	PtrsPerSector = SectorSize / 4

	// NameMax is the maximum length of a single path component, excluding
	// the terminating NUL.
	NameMax = 14

	// RootDirSector is the fixed sector of the root directory's inode.
	RootDirSector = 1

	// FreeMapSector is the fixed sector where the free map's own data begins.
	FreeMapSector = 0

	// CacheCapacity is the number of sectors the buffer cache holds at once.
	CacheCapacity = 64

	// dirEntrySize is the on-disk stride of one directory entry: a 1-byte
	// in-use flag, a 4-byte sector number, and NameMax+1 bytes of
	// NUL-terminated name, rounded up to keep entries 4-byte aligned.
	dirEntrySize = 24

	// rootDirInitialEntries is the number of directory-entry slots the
	// root directory is formatted with.
	rootDirInitialEntries = 16
)

// Byte offsets at which the three addressing regions of an inode end.
// direct covers [0, directMax); indirect covers [directMax, indirectMax);
// double-indirect covers [indirectMax, doubleMax).
const (
	directMax   = int64(DirectPtrs) * SectorSize
	indirectMax = directMax + int64(PtrsPerSector)*SectorSize
	doubleMax   = indirectMax + int64(PtrsPerSector)*int64(PtrsPerSector)*SectorSize
)
