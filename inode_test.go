package blockfs_test

import (
	"bytes"
	"testing"

	"github.com/blockfs-go/blockfs"
)

const (
	directMax   = int64(blockfs.DirectPtrs) * blockfs.SectorSize
	indirectMax = directMax + int64(blockfs.PtrsPerSector)*blockfs.SectorSize
)

func mustFormat(t *testing.T, sectors uint32) *blockfs.FileSystem {
	t.Helper()
	dev := blockfs.NewMemDevice(sectors)
	fsys, err := blockfs.Format(dev)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return fsys
}

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i) + seed
	}
	return buf
}

func createAndOpen(t *testing.T, fsys *blockfs.FileSystem, name string) *blockfs.Inode {
	t.Helper()
	root, err := blockfs.OpenRoot(fsys)
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	defer root.Close()

	if err := fsys.CreateFile(root, name, 0); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	ino, err := fsys.OpenFile(root, name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return ino
}

func TestInodeDirectReadWrite(t *testing.T) {
	fsys := mustFormat(t, 1024)
	ino := createAndOpen(t, fsys, "small")
	defer ino.Close()

	data := pattern(4096, 7)
	n, err := ino.WriteAt(data, 0)
	if err != nil || n != len(data) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if got := ino.Length(); got != int32(len(data)) {
		t.Fatalf("length = %d, want %d", got, len(data))
	}

	out := make([]byte, len(data))
	n, err = ino.ReadAt(out, 0)
	if err != nil || n != len(data) {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(data, out) {
		t.Fatalf("read-back mismatch")
	}
}

func TestInodeGrowIntoIndirectRegion(t *testing.T) {
	fsys := mustFormat(t, 2048)
	ino := createAndOpen(t, fsys, "indirect")
	defer ino.Close()

	size := int(directMax) + 5000
	data := pattern(size, 3)
	n, err := ino.WriteAt(data, 0)
	if err != nil || n != size {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	out := make([]byte, size)
	if _, err := ino.ReadAt(out, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, out) {
		t.Fatalf("read-back mismatch crossing into indirect region")
	}
}

func TestInodeGrowIntoDoubleIndirectRegion(t *testing.T) {
	fsys := mustFormat(t, 4096)
	ino := createAndOpen(t, fsys, "double")
	defer ino.Close()

	size := int(indirectMax) + 5000
	data := pattern(size, 11)
	n, err := ino.WriteAt(data, 0)
	if err != nil || n != size {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	out := make([]byte, size)
	if _, err := ino.ReadAt(out, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, out) {
		t.Fatalf("read-back mismatch crossing into double-indirect region")
	}

	// A zero-length write at offset 0 neither grows the file nor fails.
	if _, err := ino.WriteAt(nil, 0); err != nil {
		t.Fatalf("no-op write: %v", err)
	}
}

func TestInodeHoleReadsAsZero(t *testing.T) {
	fsys := mustFormat(t, 1024)
	ino := createAndOpen(t, fsys, "sparse")
	defer ino.Close()

	// Writing at offset 10000 grows the file, leaving [0,10000) a hole.
	tail := pattern(16, 1)
	if _, err := ino.WriteAt(tail, 10000); err != nil {
		t.Fatalf("write: %v", err)
	}

	head := make([]byte, 100)
	if _, err := ino.ReadAt(head, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, b := range head {
		if b != 0 {
			t.Fatalf("byte %d of hole region is %d, want 0", i, b)
		}
	}
}

func TestInodeShrinkReleasesSectors(t *testing.T) {
	// 64 sectors hold one 20000-byte file (40 data sectors plus its inode)
	// next to the free map and root directory, but not two.
	fsys := mustFormat(t, 64)
	ino := createAndOpen(t, fsys, "shrink")

	if _, err := ino.WriteAt(pattern(20000, 0), 0); err != nil {
		t.Fatalf("grow: %v", err)
	}
	ino.Remove()
	ino.Close() // open_cnt reaches 0: deallocates, releasing all data sectors.

	// A second file of similar size should now be allocatable, proving the
	// sectors were actually returned to the free map rather than leaked.
	second := createAndOpen(t, fsys, "after")
	defer second.Close()
	if _, err := second.WriteAt(pattern(20000, 0), 0); err != nil {
		t.Fatalf("grow after reclaim: %v", err)
	}
}

func TestInodeGrowFailsCleanlyWhenDeviceIsFull(t *testing.T) {
	fsys := mustFormat(t, 40) // a handful of free sectors only
	ino := createAndOpen(t, fsys, "toolarge")
	defer ino.Close()

	before := ino.Length()
	_, err := ino.WriteAt(pattern(1<<20, 0), 0)
	if err == nil {
		t.Fatalf("expected an out-of-space error growing past device capacity")
	}
	if got := ino.Length(); got != before {
		t.Fatalf("length changed after a failed grow: got %d, want %d (rollback incomplete)", got, before)
	}
}

func TestInodeDenyWriteBlocksWriters(t *testing.T) {
	fsys := mustFormat(t, 1024)
	ino := createAndOpen(t, fsys, "denied")
	defer ino.Close()

	ino.DenyWrite()
	n, err := ino.WriteAt([]byte("hello"), 0)
	if err != nil {
		t.Fatalf("a denied write should not itself error: %v", err)
	}
	if n != 0 {
		t.Fatalf("a denied write should write 0 bytes, wrote %d", n)
	}
	ino.AllowWrite()

	n, err = ino.WriteAt([]byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("write after AllowWrite: n=%d err=%v", n, err)
	}
}

func TestInodeReopenSharesOpenCount(t *testing.T) {
	fsys := mustFormat(t, 1024)
	ino := createAndOpen(t, fsys, "shared")

	second := ino.Reopen()
	ino.Close()
	// ino's underlying inode must still be usable through second.
	if _, err := second.WriteAt([]byte("x"), 0); err != nil {
		t.Fatalf("write through second handle after first Close: %v", err)
	}
	second.Close()
}
