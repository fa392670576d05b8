package blockfs

import "io"

// FileHandle is a per-open cursor onto a regular file's Inode, giving the
// io.ReadWriteSeeker semantics spec.md §6's read/write/seek/tell syscalls
// need. Multiple FileHandles may share one Inode (spec.md §4.2's
// Reopen/independent-position model); each FileHandle owns its own
// position. Deny-write state is kept only on the Inode: a handle does not
// record whether it called DenyWrite, and Close does not undo it. Writes go straight into
// Inode.WriteAt with no handle-level lock, per spec.md §9's resolution that
// a second write-lock layer above the inode's own lookup lock would be
// redundant.
type FileHandle struct {
	ino *Inode
	pos int64
}

// OpenFileHandle wraps ino in a new FileHandle positioned at 0. It takes
// ownership of ino: closing the handle closes ino.
func OpenFileHandle(ino *Inode) *FileHandle {
	return &FileHandle{ino: ino}
}

// Read implements io.Reader, advancing the handle's position.
func (h *FileHandle) Read(buf []byte) (int, error) {
	n, err := h.ino.ReadAt(buf, h.pos)
	h.pos += int64(n)
	if err == nil && n < len(buf) {
		err = io.EOF
	}
	return n, err
}

// ReadAt implements io.ReaderAt without disturbing the handle's position.
func (h *FileHandle) ReadAt(buf []byte, off int64) (int, error) {
	return h.ino.ReadAt(buf, off)
}

// Write implements io.Writer, advancing the handle's position. A write past
// the current end of file grows it first.
func (h *FileHandle) Write(buf []byte) (int, error) {
	n, err := h.ino.WriteAt(buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt without disturbing the handle's position.
func (h *FileHandle) WriteAt(buf []byte, off int64) (int, error) {
	return h.ino.WriteAt(buf, off)
}

// Seek implements io.Seeker. Seeking past the current end of file is legal
// (spec.md §7 category 4); the gap reads as zeros and is materialized by a
// subsequent write.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = int64(h.ino.Length())
	default:
		return 0, ErrBadFd
	}
	pos := base + offset
	if pos < 0 {
		pos = 0
	}
	h.pos = pos
	return pos, nil
}

// Tell returns the handle's current position without side effects.
func (h *FileHandle) Tell() int64 { return h.pos }

// Length returns the file's current on-disk length.
func (h *FileHandle) Length() int32 { return h.ino.Length() }

// DenyWrite/AllowWrite forward to the underlying inode (spec.md §4.2's
// deny-write protocol is per-inode, not per-handle).
func (h *FileHandle) DenyWrite() { h.ino.DenyWrite() }
func (h *FileHandle) AllowWrite() { h.ino.AllowWrite() }

// Inumber returns the file's inode sector, used as its stable inode number.
func (h *FileHandle) Inumber() uint32 { return h.ino.Sector() }

// Close releases the handle's reference on its inode.
func (h *FileHandle) Close() {
	h.ino.Close()
}
