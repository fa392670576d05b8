package blockfs_test

import (
	"bytes"
	"testing"

	"github.com/blockfs-go/blockfs"
)

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	src := blockfs.NewMemDevice(64)
	fsys, err := blockfs.Format(src)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	proc, err := blockfs.NewProcess(fsys, nil)
	if err != nil {
		t.Fatalf("new process: %v", err)
	}
	if err := proc.Create("/a.txt", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	fd, err := proc.Open("/a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := proc.Write(fd, []byte("snapshot me")); err != nil {
		t.Fatalf("write: %v", err)
	}
	proc.Exit()
	if err := fsys.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var buf bytes.Buffer
	if err := blockfs.Export(src, &buf, blockfs.CompNone); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := blockfs.NewMemDevice(64)
	if err := blockfs.Import(dst, &buf); err != nil {
		t.Fatalf("import: %v", err)
	}

	dstFsys, err := blockfs.NewFileSystem(dst)
	if err != nil {
		t.Fatalf("mount imported volume: %v", err)
	}
	dstProc, err := blockfs.NewProcess(dstFsys, nil)
	if err != nil {
		t.Fatalf("new process on imported volume: %v", err)
	}
	defer dstProc.Exit()

	fd2, err := dstProc.Open("/a.txt")
	if err != nil {
		t.Fatalf("open imported a.txt: %v", err)
	}
	out := make([]byte, len("snapshot me"))
	if _, err := dstProc.Read(fd2, out); err != nil {
		t.Fatalf("read imported a.txt: %v", err)
	}
	if string(out) != "snapshot me" {
		t.Fatalf("imported content mismatch: got %q", out)
	}
}

func TestImportRejectsBadMagic(t *testing.T) {
	dst := blockfs.NewMemDevice(8)
	if err := blockfs.Import(dst, bytes.NewReader([]byte("not a snapshot header!"))); err == nil {
		t.Fatalf("expected an error importing a non-snapshot stream")
	}
}

func TestImportRejectsOversizedSnapshot(t *testing.T) {
	src := blockfs.NewMemDevice(64)
	if _, err := blockfs.Format(src); err != nil {
		t.Fatalf("format: %v", err)
	}
	var buf bytes.Buffer
	if err := blockfs.Export(src, &buf, blockfs.CompNone); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := blockfs.NewMemDevice(8) // too small to hold the 64-sector snapshot
	if err := blockfs.Import(dst, &buf); err == nil {
		t.Fatalf("expected an error importing into an undersized device")
	}
}
