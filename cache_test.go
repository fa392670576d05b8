package blockfs_test

import (
	"testing"

	"github.com/blockfs-go/blockfs"
)

func TestCacheHitCounter(t *testing.T) {
	dev := blockfs.NewMemDevice(16)
	cache := blockfs.NewCache(dev, 4)

	buf := make([]byte, blockfs.SectorSize)
	if err := cache.Read(0, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := cache.HitRateSnapshot(); got != 0 {
		t.Fatalf("first read should be a miss, got %d hits", got)
	}

	for i := 0; i < 5; i++ {
		if err := cache.Read(0, buf, 0, blockfs.SectorSize); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if got := cache.HitRateSnapshot(); got != 5 {
		t.Fatalf("expected 5 hits, got %d", got)
	}
	if got := cache.HitRateSnapshot(); got != 0 {
		t.Fatalf("snapshot should reset the counter, got %d", got)
	}
}

func TestCacheCoalescesWrites(t *testing.T) {
	dev := blockfs.NewMemDevice(16)
	cache := blockfs.NewCache(dev, 4)

	buf := make([]byte, 4)
	for i := 0; i < 100; i++ {
		buf[0] = byte(i)
		if err := cache.Write(0, buf, 0, 4); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if dev.WriteCount() != 0 {
		t.Fatalf("expected no device writes before flush, got %d", dev.WriteCount())
	}

	if err := cache.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if dev.WriteCount() != 1 {
		t.Fatalf("expected exactly 1 coalesced device write, got %d", dev.WriteCount())
	}
}

func TestCacheEvictsLRU(t *testing.T) {
	dev := blockfs.NewMemDevice(16)
	cache := blockfs.NewCache(dev, 2)

	buf := make([]byte, blockfs.SectorSize)
	if err := cache.Read(0, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatal(err)
	}
	if err := cache.Read(1, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatal(err)
	}
	// Touch sector 0 again so it is MRU, leaving 1 as LRU.
	if err := cache.Read(0, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatal(err)
	}
	// This miss should evict sector 1, not sector 0.
	if err := cache.Read(2, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatal(err)
	}
	cache.HitRateSnapshot()

	if err := cache.Read(0, buf, 0, blockfs.SectorSize); err != nil {
		t.Fatal(err)
	}
	if got := cache.HitRateSnapshot(); got != 1 {
		t.Fatalf("expected sector 0 to still be resident, got %d hits", got)
	}
}

func TestCacheRejectsOutOfRangeSector(t *testing.T) {
	dev := blockfs.NewMemDevice(4)
	cache := blockfs.NewCache(dev, 4)
	buf := make([]byte, blockfs.SectorSize)
	if err := cache.Read(10, buf, 0, blockfs.SectorSize); err == nil {
		t.Fatalf("expected an error reading an out-of-range sector")
	}
}
