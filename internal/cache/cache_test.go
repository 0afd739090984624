package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	a := PageKey("https://ourworldindata.org/marriages-and-divorces")
	b := PageKey("https://ourworldindata.org/marriages-and-divorces")
	c := PageKey("https://ourworldindata.org/other")

	if a != b {
		t.Errorf("same URL produced different keys: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different URLs produced the same key")
	}
	if !strings.HasPrefix(a, "vitals:v1:page:") {
		t.Errorf("unexpected key prefix: %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after Delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := PageKey("https://example.com/page")

	if err := c.Set(key, []byte("<html></html>"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "<html></html>" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || strings.Contains(entries[0].Name(), ":") {
		t.Errorf("unexpected cache files: %v", entries)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestDiskCache_ExpiredAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	_ = c.Set("old", []byte("x"), time.Minute)

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("old"); ok {
		t.Error("expected expired entry to miss")
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.cache"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("expected corrupt entry to miss")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.cache")); !os.IsNotExist(err) {
		t.Error("expected corrupt entry to be removed")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	mem := NewMemoryCache(time.Minute, time.Minute)
	c := &LayeredCache{memory: mem, disk: disk}

	_ = disk.Set("k", []byte("from-disk"), 0)

	got, ok := c.Get("k")
	if !ok || string(got) != "from-disk" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := mem.Get("k"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after Clear")
	}
}
