package blockfs

import (
	"errors"
	"fmt"
)

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrNotFound is returned when a path component or directory entry
	// does not exist.
	ErrNotFound = errors.New("blockfs: no such file or directory")

	// ErrExists is returned by dir_add when the name is already present.
	ErrExists = errors.New("blockfs: name already exists")

	// ErrNotEmpty is returned when removing a non-empty directory.
	ErrNotEmpty = errors.New("blockfs: directory not empty")

	// ErrNotDirectory is returned when a directory operation targets a regular file.
	ErrNotDirectory = errors.New("blockfs: not a directory")

	// ErrIsDirectory is returned when a file operation targets a directory.
	ErrIsDirectory = errors.New("blockfs: is a directory")

	// ErrNoSpace is returned when the free map cannot satisfy an allocation request.
	ErrNoSpace = errors.New("blockfs: device out of free sectors")

	// ErrInvalidName is returned for empty names, names over NAME_MAX, or
	// "." / ".." where a real name is required.
	ErrInvalidName = errors.New("blockfs: invalid file name")

	// ErrInvalidMagic is returned when an on-disk inode fails to decode
	// or its magic number does not match INODE_MAGIC.
	ErrInvalidMagic = errors.New("blockfs: invalid inode magic")

	// ErrBadSector is returned by a BlockDevice implementation when an
	// out-of-range sector is requested.
	ErrBadSector = errors.New("blockfs: sector out of range")

	// ErrRootRemove is returned when attempting to remove the root directory.
	ErrRootRemove = errors.New("blockfs: cannot remove root directory")

	// ErrBadFd is returned by Process operations on an unknown or wrong-kind
	// file descriptor.
	ErrBadFd = errors.New("blockfs: bad file descriptor")
)

// debugAssert panics if cond is false. Invariant violations (spec.md §7
// category 7) are programming errors, not recoverable failures; this makes
// them loud the way the reference implementation's ASSERT aborts the kernel.
func debugAssert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("blockfs: invariant violation: "+format, args...))
	}
}
