package blockfs

import "io/fs"

// Unix file-type and permission bits, used to translate between blockfs's
// on-disk is_dir flag and io/fs.FileMode for the fs.FS adapter.
const (
	sIFMT  = 0xf000
	sIFREG = 0x8000
	sIFDIR = 0x4000
)

// unixToMode converts a minimal unix mode word (file-type bits plus rwx
// permission bits) to an fs.FileMode. blockfs only ever distinguishes
// regular files from directories, so only those two type bits are
// meaningful here, but the conversion follows the same table a full unix
// stat would use.
func unixToMode(mode uint32) fs.FileMode {
	res := fs.FileMode(mode & 0777)
	if mode&sIFMT == sIFDIR {
		res |= fs.ModeDir
	}
	return res
}

// modeToUnix is unixToMode's inverse.
func modeToUnix(mode fs.FileMode) uint32 {
	res := uint32(mode.Perm())
	if mode&fs.ModeDir == fs.ModeDir {
		res |= sIFDIR
	} else {
		res |= sIFREG
	}
	return res
}
