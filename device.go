package blockfs

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// BlockDevice is the external collaborator described in spec.md §1: a
// byte-addressable-only-at-sector-granularity store. Everything above it
// (the Cache, and transitively the whole file system) talks to a device
// exclusively through this interface.
type BlockDevice interface {
	// SectorCount returns the number of SectorSize-byte sectors the
	// device exposes.
	SectorCount() uint32

	// ReadSector reads sector sec into buf, which must be exactly
	// SectorSize bytes.
	ReadSector(sec uint32, buf []byte) error

	// WriteSector writes buf, which must be exactly SectorSize bytes,
	// to sector sec.
	WriteSector(sec uint32, buf []byte) error
}

func checkSector(dev BlockDevice, sec uint32) error {
	if sec >= dev.SectorCount() {
		return fmt.Errorf("%w: sector %d of %d", ErrBadSector, sec, dev.SectorCount())
	}
	return nil
}

// MemDevice is a BlockDevice backed entirely by memory. It is the fixture
// used by the test suite and by the scenarios of spec.md §8, including the
// write-coalescing scenario which needs a cheap, exact sector-write counter.
type MemDevice struct {
	mu          sync.RWMutex
	sectors     [][SectorSize]byte
	writeCount  uint64 // sector-granularity write count, for scenario 2 of §8
	readCount   uint64
}

// NewMemDevice creates an all-zero in-memory device of the given sector count.
func NewMemDevice(sectorCount uint32) *MemDevice {
	return &MemDevice{sectors: make([][SectorSize]byte, sectorCount)}
}

func (d *MemDevice) SectorCount() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return uint32(len(d.sectors))
}

func (d *MemDevice) ReadSector(sec uint32, buf []byte) error {
	if err := checkSector(d, sec); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	atomic.AddUint64(&d.readCount, 1)
	copy(buf, d.sectors[sec][:])
	return nil
}

func (d *MemDevice) WriteSector(sec uint32, buf []byte) error {
	if err := checkSector(d, sec); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	atomic.AddUint64(&d.writeCount, 1)
	copy(d.sectors[sec][:], buf)
	return nil
}

// WriteCount returns the total number of sector-granularity writes issued
// to the device since creation. Used by tests that assert the buffer cache
// coalesces bursts of small writes (spec.md §8 scenario 2).
func (d *MemDevice) WriteCount() uint64 {
	return atomic.LoadUint64(&d.writeCount)
}

// ReadCount returns the total number of sector-granularity reads.
func (d *MemDevice) ReadCount() uint64 {
	return atomic.LoadUint64(&d.readCount)
}

// FileDevice is a BlockDevice backed by an *os.File: either a plain regular
// file used as a disk image, or (on platforms where device_linux.go /
// device_darwin.go can query it) a real block device node.
type FileDevice struct {
	f       *os.File
	sectors uint32
	mu      sync.Mutex
}

// OpenFileDevice opens path (created and zero-extended to sectorCount
// sectors if it does not exist) as a FileDevice. If path refers to an
// existing file smaller than sectorCount sectors, it is extended; an
// existing larger file is truncated to sectorCount sectors. Pass
// sectorCount 0 to use the file's/device's existing size unchanged (see
// blockSectorCount in device_linux.go / device_darwin.go / device_other.go).
func OpenFileDevice(path string, sectorCount uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	if sectorCount == 0 {
		n, err := blockSectorCount(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		sectorCount = n
	} else if err := f.Truncate(int64(sectorCount) * SectorSize); err != nil {
		f.Close()
		return nil, err
	}

	return &FileDevice{f: f, sectors: sectorCount}, nil
}

func (d *FileDevice) SectorCount() uint32 {
	return d.sectors
}

func (d *FileDevice) ReadSector(sec uint32, buf []byte) error {
	if err := checkSector(d, sec); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.ReadAt(buf[:SectorSize], int64(sec)*SectorSize)
	return err
}

func (d *FileDevice) WriteSector(sec uint32, buf []byte) error {
	if err := checkSector(d, sec); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.WriteAt(buf[:SectorSize], int64(sec)*SectorSize)
	return err
}

// Sync flushes the underlying file to stable storage.
func (d *FileDevice) Sync() error {
	return d.f.Sync()
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
