//go:build darwin

package blockfs

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blockSectorCount mirrors device_linux.go for Darwin, using
// DKIOCGETBLOCKCOUNT/DKIOCGETBLOCKSIZE instead of BLKGETSIZE64.
func blockSectorCount(f *os.File) (uint32, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if fi.Mode()&os.ModeDevice != 0 {
		var blockCount uint64
		var blockSize uint32
		_, _, errno1 := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.DKIOCGETBLOCKCOUNT, uintptr(unsafe.Pointer(&blockCount)))
		_, _, errno2 := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.DKIOCGETBLOCKSIZE, uintptr(unsafe.Pointer(&blockSize)))
		if errno1 == 0 && errno2 == 0 && blockCount > 0 && blockSize > 0 {
			total := blockCount * uint64(blockSize)
			return uint32(total / SectorSize), nil
		}
		// Fall through to the regular-file path if the ioctls are refused.
	}

	return uint32(fi.Size() / SectorSize), nil
}
