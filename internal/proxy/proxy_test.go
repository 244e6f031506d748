package proxy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManager_LoadAndRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxies.txt")
	content := "# comment\nhttp://proxy1:8080\n\nhttp://proxy2:8080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var m Manager
	if err := m.LoadProxies(path); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 proxies, got %d", m.Count())
	}

	first := m.Next()
	second := m.Next()
	third := m.Next()
	if first != "http://proxy1:8080" || second != "http://proxy2:8080" || third != first {
		t.Fatalf("expected round-robin cycling, got %q %q %q", first, second, third)
	}
}

func TestManager_EmptyReturnsBlank(t *testing.T) {
	var m Manager
	if got := m.Next(); got != "" {
		t.Fatalf("expected empty string with no proxies loaded, got %q", got)
	}
}
