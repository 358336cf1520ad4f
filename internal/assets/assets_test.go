package assets

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestManagerLoadSearchOrder(t *testing.T) {
	low := t.TempDir()
	high := t.TempDir()
	writeFile(t, filepath.Join(low, "texture", "a.bmp"), "low")
	writeFile(t, filepath.Join(low, "texture", "b.bmp"), "only-low")
	writeFile(t, filepath.Join(high, "texture", "a.bmp"), "high")

	m := NewManager(low, high)
	defer m.Close()

	data, err := m.Load(`texture\a.bmp`)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "high" {
		t.Errorf("expected last root to win, got %q", data)
	}

	data, err = m.Load("texture/b.bmp")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "only-low" {
		t.Errorf("expected fallback to first root, got %q", data)
	}
}

func TestManagerLoadMissing(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.Load("missing.tga")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestManagerCacheAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeFile(t, path, "one")

	m := NewManager()
	if data, err := m.ReadFile(path); err != nil || string(data) != "one" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}

	writeFile(t, path, "two")
	if data, _ := m.ReadFile(path); string(data) != "one" {
		t.Errorf("expected cached content, got %q", data)
	}

	m.Invalidate(path)
	if data, _ := m.ReadFile(path); string(data) != "two" {
		t.Errorf("expected fresh content after Invalidate, got %q", data)
	}

	hits, misses := m.cache.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("expected 1 hit and 2 misses, got %d/%d", hits, misses)
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.glb")
	other := filepath.Join(dir, "other.glb")
	writeFile(t, path, "v1")
	writeFile(t, other, "v1")

	w, err := NewWatcher(nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}

	writeFile(t, other, "v2")
	writeFile(t, path, "v2")

	select {
	case got := <-w.Changed():
		if got != path {
			t.Errorf("expected change for %s, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcherCloseClosesChannel(t *testing.T) {
	w, err := NewWatcher(nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-w.Changed(); ok {
		t.Error("expected Changed channel to be closed")
	}
}

func TestManagerAddArchiveInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.grf")
	writeFile(t, path, "this is not an archive, just some bytes padding it out to header size")

	m := NewManager()
	defer m.Close()
	if err := m.AddArchive(path); err == nil {
		t.Error("expected error adding invalid archive")
	}
	if err := m.AddArchive(filepath.Join(t.TempDir(), "missing.grf")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist for missing archive, got %v", err)
	}
	if m.InArchive("anything.bmp") {
		t.Error("InArchive true with no archives")
	}
}
