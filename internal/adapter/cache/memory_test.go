package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"webrelay/internal/domain"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	if err := m.Put(ctx, "k1", "https://example.org", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	payload, found, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(payload) != "payload" {
		t.Errorf("payload = %q, found=%v", payload, found)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(10)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Put(ctx, "k", "t", []byte("v"), time.Minute)

	now = now.Add(30 * time.Second)
	if _, found, _ := m.Get(ctx, "k"); !found {
		t.Fatal("entry should still be live")
	}

	now = now.Add(time.Minute)
	if _, found, _ := m.Get(ctx, "k"); found {
		t.Fatal("entry should have expired")
	}
}

func TestMemoryEvictsLeastRecentlyRead(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := m.Put(ctx, k, "t", []byte(k), time.Hour); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	// Touch a and c so b becomes the least recently read.
	m.Get(ctx, "a")
	m.Get(ctx, "c")

	if err := m.Put(ctx, "d", "t", []byte("d"), time.Hour); err != nil {
		t.Fatalf("Put d: %v", err)
	}

	if _, found, _ := m.Get(ctx, "b"); found {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, found, _ := m.Get(ctx, k); !found {
			t.Errorf("%s should have survived eviction", k)
		}
	}
}

func TestMemoryOverwriteAtCapacityDoesNotEvict(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	m.Put(ctx, "a", "t", []byte("1"), time.Hour)
	m.Put(ctx, "b", "t", []byte("2"), time.Hour)

	if err := m.Put(ctx, "a", "t", []byte("updated"), time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	stats, _ := m.Stats(ctx)
	if stats.Size != 2 {
		t.Errorf("Size = %d, want 2", stats.Size)
	}
	if stats.Evictions != 0 {
		t.Errorf("Evictions = %d, want 0", stats.Evictions)
	}
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory(10)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Put(ctx, "short", "t", []byte("x"), time.Minute)
	m.Put(ctx, "long", "t", []byte("x"), time.Hour)

	now = now.Add(10 * time.Minute)

	removed, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestMemoryStats(t *testing.T) {
	m := NewMemory(5)
	ctx := context.Background()

	m.Put(ctx, "k", "t", []byte("abcd"), time.Hour)
	m.Get(ctx, "k")
	m.Get(ctx, "absent")

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", stats.Backend)
	}
	if stats.Size != 1 || stats.MaxSize != 5 {
		t.Errorf("Size=%d MaxSize=%d, want 1/5", stats.Size, stats.MaxSize)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Hits=%d Misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.TotalBytes != 4 {
		t.Errorf("TotalBytes = %d, want 4", stats.TotalBytes)
	}
}

func TestMemoryPutInvalidTTL(t *testing.T) {
	m := NewMemory(10)

	err := m.Put(context.Background(), "k", "t", []byte("v"), -time.Second)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	m.Put(ctx, "a", "t", []byte("1"), time.Hour)
	m.Put(ctx, "b", "t", []byte("2"), time.Hour)

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := m.Get(ctx, "a"); found {
		t.Error("deleted entry still present")
	}
	if _, found, _ := m.Get(ctx, "b"); !found {
		t.Error("unrelated entry removed")
	}
	if err := m.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	m.Put(ctx, "a", "t", []byte("1"), time.Hour)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, found, _ := m.Get(ctx, "a"); found {
		t.Error("store should be empty after Clear")
	}
}
