package blockfs_test

import (
	"io"
	"testing"

	"github.com/blockfs-go/blockfs"
)

func mustProcess(t *testing.T, fsys *blockfs.FileSystem) *blockfs.Process {
	t.Helper()
	proc, err := blockfs.NewProcess(fsys, nil)
	if err != nil {
		t.Fatalf("new process: %v", err)
	}
	return proc
}

func TestProcessCreateOpenWriteReadClose(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if err := proc.Create("/hello.txt", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	fd, err := proc.Open("/hello.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	msg := []byte("hello, blockfs")
	n, err := proc.Write(fd, msg)
	if err != nil || n != len(msg) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	if _, err := proc.Seek(fd, 0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	out := make([]byte, len(msg))
	n, err = proc.Read(fd, out)
	if err != nil || n != len(msg) {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if string(out) != string(msg) {
		t.Fatalf("read-back mismatch: got %q", out)
	}

	if err := proc.Close(fd); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestProcessSeekPastEOFThenWriteMaterializesHole(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if err := proc.Create("/sparse.txt", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	fd, err := proc.Open("/sparse.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := proc.Seek(fd, 1000, io.SeekStart); err != nil {
		t.Fatalf("seek past eof: %v", err)
	}
	pos, err := proc.Tell(fd)
	if err != nil || pos != 1000 {
		t.Fatalf("tell after seek: pos=%d err=%v", pos, err)
	}

	if _, err := proc.Write(fd, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	head := make([]byte, 1000)
	if _, err := proc.Seek(fd, 0, io.SeekStart); err != nil {
		t.Fatalf("seek start: %v", err)
	}
	if _, err := proc.Read(fd, head); err != nil {
		t.Fatalf("read hole: %v", err)
	}
	for i, b := range head {
		if b != 0 {
			t.Fatalf("byte %d of hole is %d, want 0", i, b)
		}
	}
}

func TestProcessMkdirChdirRelativeOpen(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if err := proc.Mkdir("/sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := proc.Chdir("/sub"); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	if err := proc.Create("rel.txt", 0); err != nil {
		t.Fatalf("create relative to cwd: %v", err)
	}
	if _, err := proc.Open("rel.txt"); err != nil {
		t.Fatalf("open relative to cwd: %v", err)
	}

	// ".." from /sub must resolve back to the root.
	if err := proc.Chdir(".."); err != nil {
		t.Fatalf("chdir ..: %v", err)
	}
	if _, err := proc.Open("sub/rel.txt"); err != nil {
		t.Fatalf("open sub/rel.txt from root: %v", err)
	}
}

func TestProcessIsDirAndInumber(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if err := proc.Mkdir("/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := proc.Create("/f", 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	dfd, err := proc.Open("/d")
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}
	ffd, err := proc.Open("/f")
	if err != nil {
		t.Fatalf("open file: %v", err)
	}

	if isDir, err := proc.IsDir(dfd); err != nil || !isDir {
		t.Fatalf("IsDir(/d) = %v, %v; want true, nil", isDir, err)
	}
	if isDir, err := proc.IsDir(ffd); err != nil || isDir {
		t.Fatalf("IsDir(/f) = %v, %v; want false, nil", isDir, err)
	}

	dNum, err := proc.Inumber(dfd)
	if err != nil {
		t.Fatalf("inumber dir: %v", err)
	}
	fNum, err := proc.Inumber(ffd)
	if err != nil {
		t.Fatalf("inumber file: %v", err)
	}
	if dNum == fNum {
		t.Fatalf("distinct files must have distinct inumbers")
	}
}

// A trailing slash means the tail after the last "/" is empty, so the spec
// defaults the final component to ".": "/sub/" must resolve the same
// directory as "/sub" itself, and creating a name in "/sub/" is really a
// create of "." inside /sub, which always already exists.
func TestProcessTrailingSlashResolvesToSelf(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if err := proc.Mkdir("/sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fd1, err := proc.Open("/sub")
	if err != nil {
		t.Fatalf("open /sub: %v", err)
	}
	fd2, err := proc.Open("/sub/")
	if err != nil {
		t.Fatalf("open /sub/: %v", err)
	}

	num1, err := proc.Inumber(fd1)
	if err != nil {
		t.Fatalf("inumber /sub: %v", err)
	}
	num2, err := proc.Inumber(fd2)
	if err != nil {
		t.Fatalf("inumber /sub/: %v", err)
	}
	if num1 != num2 {
		t.Fatalf("/sub and /sub/ must resolve to the same inode, got %d and %d", num1, num2)
	}

	if err := proc.Mkdir("/sub/"); err != blockfs.ErrExists {
		t.Fatalf("mkdir /sub/ should collide with the existing \".\" entry, got %v", err)
	}
}

func TestProcessReadUnknownFd(t *testing.T) {
	fsys := mustFormat(t, 512)
	proc := mustProcess(t, fsys)
	defer proc.Exit()

	if _, err := proc.Read(99, make([]byte, 1)); err != blockfs.ErrBadFd {
		t.Fatalf("expected ErrBadFd for unknown fd, got %v", err)
	}
}
