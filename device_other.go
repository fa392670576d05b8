//go:build !linux && !darwin

package blockfs

import "os"

// blockSectorCount falls back to the plain file size on platforms where we
// have no ioctl to query a raw block device node.
func blockSectorCount(f *os.File) (uint32, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint32(fi.Size() / SectorSize), nil
}
