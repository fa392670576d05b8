package blockfs_test

import (
	"testing"

	"github.com/blockfs-go/blockfs"
)

func TestBitmapFreeMapAllocateRelease(t *testing.T) {
	dev := blockfs.NewMemDevice(256)
	fm := blockfs.NewBitmapFreeMap(dev)

	start, ok := fm.Allocate(10)
	if !ok {
		t.Fatalf("expected allocation to succeed")
	}
	if fm.IsAllocated(blockfs.RootDirSector) {
		// sanity: root dir sector should already be reserved, distinct from our run
		if start <= blockfs.RootDirSector && start+10 > blockfs.RootDirSector {
			t.Fatalf("allocator handed out the reserved root directory sector")
		}
	}

	for i := start; i < start+10; i++ {
		if !fm.IsAllocated(i) {
			t.Fatalf("sector %d should be marked allocated after Allocate", i)
		}
	}

	fm.Release(start, 10)
	for i := start; i < start+10; i++ {
		if fm.IsAllocated(i) {
			t.Fatalf("sector %d should be free after Release", i)
		}
	}
}

func TestBitmapFreeMapExhaustion(t *testing.T) {
	dev := blockfs.NewMemDevice(20)
	fm := blockfs.NewBitmapFreeMap(dev)

	if _, ok := fm.Allocate(1000); ok {
		t.Fatalf("expected allocation larger than the device to fail")
	}
}

func TestBitmapFreeMapPersistsAcrossLoad(t *testing.T) {
	dev := blockfs.NewMemDevice(64)
	fm := blockfs.NewBitmapFreeMap(dev)

	start, ok := fm.Allocate(3)
	if !ok {
		t.Fatalf("allocate failed")
	}
	if err := fm.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	loaded, err := blockfs.LoadBitmapFreeMap(dev)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := start; i < start+3; i++ {
		if !loaded.IsAllocated(i) {
			t.Fatalf("sector %d should still be marked allocated after reload", i)
		}
	}
}
