package blockfs

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// FreeMap is the external free-sector allocator collaborator described in
// spec.md §1: the core only ever calls Allocate/Release, and never
// inspects the map's own representation.
type FreeMap interface {
	// Allocate reserves n contiguous sectors and returns the first one.
	// ok is false if no contiguous run of n free sectors exists.
	Allocate(n uint32) (start uint32, ok bool)

	// Release returns n contiguous sectors starting at start to the pool.
	Release(start, n uint32)
}

// BitmapFreeMap is the reference FreeMap implementation: a bitset with one
// bit per sector, persisted in the sectors starting at FREE_MAP_SECTOR.
// Bit i set means sector i is in use.
//
// The bitmap's own backing sectors and FREE_MAP_SECTOR itself are marked
// allocated at construction so the allocator never hands them out.
type BitmapFreeMap struct {
	mu   sync.Mutex
	bits *bitset.BitSet
	dev  BlockDevice
	// bitmapSectors is how many sectors the persisted bitmap occupies,
	// starting at FREE_MAP_SECTOR.
	bitmapSectors uint32
}

// NewBitmapFreeMap builds a free map covering dev's full sector range,
// with FREE_MAP_SECTOR and the bitmap's own sectors pre-marked allocated,
// and ROOT_DIR_SECTOR pre-marked allocated (it is always in use by the
// freshly formatted file system).
func NewBitmapFreeMap(dev BlockDevice) *BitmapFreeMap {
	total := dev.SectorCount()
	bits := bitset.New(uint(total))

	bitmapBytes := (total + 7) / 8
	bitmapSectors := (bitmapBytes + SectorSize - 1) / SectorSize
	if bitmapSectors == 0 {
		bitmapSectors = 1
	}

	fm := &BitmapFreeMap{bits: bits, dev: dev, bitmapSectors: bitmapSectors}
	for s := uint32(FreeMapSector); s < FreeMapSector+bitmapSectors && s < total; s++ {
		fm.bits.Set(uint(s))
	}
	if RootDirSector < total {
		fm.bits.Set(uint(RootDirSector))
	}
	return fm
}

// LoadBitmapFreeMap reconstructs a BitmapFreeMap from its persisted
// representation on dev (written by Flush).
func LoadBitmapFreeMap(dev BlockDevice) (*BitmapFreeMap, error) {
	fm := NewBitmapFreeMap(dev)

	buf := make([]byte, SectorSize)
	raw := make([]byte, 0, int(fm.bitmapSectors)*SectorSize)
	for s := uint32(0); s < fm.bitmapSectors; s++ {
		if err := dev.ReadSector(FreeMapSector+s, buf); err != nil {
			return nil, err
		}
		raw = append(raw, buf...)
	}

	bits := bitset.New(uint(dev.SectorCount()))
	if err := bits.UnmarshalBinary(raw); err == nil {
		fm.bits = bits
	}
	// A fresh/garbage bitmap area unmarshals into an empty set; the
	// caller is expected to call NewBitmapFreeMap instead when formatting.
	return fm, nil
}

// Allocate finds the first run of n contiguous clear bits, sets them, and
// returns the run's start. It does not persist the change; call Flush (or
// rely on the caller's cache flush) to make it durable.
func (fm *BitmapFreeMap) Allocate(n uint32) (uint32, bool) {
	if n == 0 {
		return 0, false
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()

	total := uint32(fm.bits.Len())
	run := uint32(0)
	start := uint32(0)
	for i := uint32(0); i < total; i++ {
		if fm.bits.Test(uint(i)) {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == n {
			for j := start; j < start+n; j++ {
				fm.bits.Set(uint(j))
			}
			return start, true
		}
	}
	return 0, false
}

// Release clears n contiguous bits starting at start.
func (fm *BitmapFreeMap) Release(start, n uint32) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	for j := start; j < start+n; j++ {
		fm.bits.Clear(uint(j))
	}
}

// IsAllocated reports whether sector s is currently marked in-use. Used by
// invariant checks and tests; not part of the FreeMap interface itself.
func (fm *BitmapFreeMap) IsAllocated(s uint32) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.bits.Test(uint(s))
}

// Flush persists the bitmap to its reserved sectors on dev.
func (fm *BitmapFreeMap) Flush() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	raw, err := fm.bits.MarshalBinary()
	if err != nil {
		return err
	}
	raw = append(raw, make([]byte, int(fm.bitmapSectors)*SectorSize)...)
	raw = raw[:int(fm.bitmapSectors)*SectorSize]

	for s := uint32(0); s < fm.bitmapSectors; s++ {
		off := int(s) * SectorSize
		if err := fm.dev.WriteSector(FreeMapSector+s, raw[off:off+SectorSize]); err != nil {
			return err
		}
	}
	return nil
}
