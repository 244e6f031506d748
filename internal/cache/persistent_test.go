package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoharbabin/google-research-mcp-sub000/internal/logger"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/policy"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/store"
	"github.com/zoharbabin/google-research-mcp-sub000/internal/workerpool"
)

func newTestPersistentCacheEager(t *testing.T, pol policy.Policy, eager bool) (*PersistentCache, *FakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	pool := workerpool.New(2)
	pool.Start()
	t.Cleanup(pool.Stop)

	log := logger.New(logger.LevelError)
	clock := NewFakeClock(time.UnixMilli(1_000_000))
	core := NewCore(5*time.Second, 100, clock, log, 0)
	st := store.New(dir, pool, log)

	pc := NewPersistentCache(core, st, pol, pool, log, eager)
	return pc, clock, dir
}

func newTestPersistentCache(t *testing.T, pol policy.Policy) (*PersistentCache, *FakeClock, string) {
	return newTestPersistentCacheEager(t, pol, true)
}

// S5 — persistence round-trip (write-through via Hybrid policy critical list).
func TestPersistentCache_RoundTrip(t *testing.T) {
	pol := policy.Hybrid{Critical: []string{"crit"}, Interval: 5 * time.Second}
	pc, _, dir := newTestPersistentCache(t, pol)

	v, err := GetOrComputePersistent(pc, "crit", map[string]any{"x": 1}, func() (string, error) {
		return "a", nil
	}, Options{})
	if err != nil || v != "a" {
		t.Fatalf("expected a, got %q err=%v", v, err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "namespaces"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one namespace dir, got %d", len(entries))
	}

	files, err := os.ReadDir(filepath.Join(dir, "namespaces", entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	jsonFiles := 0
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".json" {
			jsonFiles++
		}
	}
	if jsonFiles != 1 {
		t.Fatalf("expected exactly one .json file, got %d", jsonFiles)
	}

	InvalidatePersistent(pc, "crit", map[string]any{"x": 1})
	files, _ = os.ReadDir(filepath.Join(dir, "namespaces", entries[0].Name()))
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".json" {
			t.Fatalf("expected file removed after invalidate, found %s", f.Name())
		}
	}
}

// S6 — corrupt file self-heal through the persistent cache's lazy load path.
func TestPersistentCache_CorruptFileSelfHeals(t *testing.T) {
	pol := policy.WriteThrough{}
	pc, _, dir := newTestPersistentCacheEager(t, pol, false)

	v, err := GetOrComputePersistent(pc, "ns", "k", func() (string, error) {
		return "v1", nil
	}, Options{})
	if err != nil || v != "v1" {
		t.Fatalf("expected v1, got %q err=%v", v, err)
	}

	nsDirs, _ := os.ReadDir(filepath.Join(dir, "namespaces"))
	files, _ := os.ReadDir(filepath.Join(dir, "namespaces", nsDirs[0].Name()))
	var jsonPath string
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".json" {
			jsonPath = filepath.Join(dir, "namespaces", nsDirs[0].Name(), f.Name())
		}
	}
	if jsonPath == "" {
		t.Fatal("expected a persisted json file")
	}
	if err := os.WriteFile(jsonPath, []byte("not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear memory so the next read must go through the disk path.
	pc.core.Clear()

	calls := 0
	v2, err := GetOrComputePersistent(pc, "ns", "k", func() (string, error) {
		calls++
		return "v2", nil
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if v2 != "v2" || calls != 1 {
		t.Fatalf("expected recompute after corrupt file self-heal, got v=%q calls=%d", v2, calls)
	}
}
