// Package assets resolves and caches files referenced by models, and
// watches them for changes.
package assets

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/encoding"
	"github.com/Faultbox/midgard-skel/pkg/grf"
)

// archivePrefixes are tried in order when a name is looked up in a GRF.
// RSM texture names are relative to data/texture.
var archivePrefixes = []string{"", "data/texture/", "data/"}

// Manager reads asset files from search roots on disk and then from GRF
// archives.
type Manager struct {
	roots    []string
	archives []*grf.Archive
	cache    *Cache
	mu       sync.RWMutex
}

// NewManager creates a new asset manager searching the given roots.
func NewManager(roots ...string) *Manager {
	m := &Manager{
		cache: NewCache(),
	}
	for _, r := range roots {
		m.AddRoot(r)
	}
	return m
}

// AddRoot adds a search directory. Roots are searched in reverse order
// (last added = highest priority). Empty roots are ignored.
func (m *Manager) AddRoot(dir string) {
	if dir == "" {
		return
	}
	m.mu.Lock()
	m.roots = append(m.roots, filepath.Clean(dir))
	m.mu.Unlock()
}

// AddArchive opens a GRF archive and adds it to the search. Archives are
// searched after the roots, last added first.
func (m *Manager) AddArchive(path string) error {
	archive, err := grf.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening archive %s", path)
	}

	m.mu.Lock()
	m.archives = append(m.archives, archive)
	m.mu.Unlock()

	return nil
}

// ReadFile reads a file by path, through the cache.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	key := filepath.Clean(path)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, err
	}
	m.cache.Set(key, data)
	return data, nil
}

// Load finds name under the search roots. Backslash separators, as used
// by RSM texture names, are accepted.
func (m *Manager) Load(name string) ([]byte, error) {
	rel := filepath.FromSlash(encoding.NormalizePath(name))
	if filepath.IsAbs(rel) {
		return m.ReadFile(rel)
	}

	m.mu.RLock()
	roots := append([]string(nil), m.roots...)
	archives := append([]*grf.Archive(nil), m.archives...)
	m.mu.RUnlock()

	for i := len(roots) - 1; i >= 0; i-- {
		data, err := m.ReadFile(filepath.Join(roots[i], rel))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
	}

	slash := filepath.ToSlash(rel)
	for i := len(archives) - 1; i >= 0; i-- {
		for _, prefix := range archivePrefixes {
			key := "grf:" + prefix + slash
			if data, ok := m.cache.Get(key); ok {
				return data, nil
			}
			if !archives[i].Contains(prefix + slash) {
				continue
			}
			data, err := archives[i].Read(prefix + slash)
			if err != nil {
				return nil, err
			}
			m.cache.Set(key, data)
			return data, nil
		}
	}

	return nil, errors.Wrapf(fs.ErrNotExist, "asset %s", name)
}

// InArchive reports whether name resolves to a file inside an archive
// rather than on disk.
func (m *Manager) InArchive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slash := encoding.NormalizePath(name)
	for _, a := range m.archives {
		for _, prefix := range archivePrefixes {
			if a.Contains(prefix + slash) {
				return true
			}
		}
	}
	return false
}

// Invalidate drops a cached file so the next read goes to disk.
func (m *Manager) Invalidate(path string) {
	m.cache.Delete(filepath.Clean(path))
}

// Close closes all archives, drops the roots and clears the cache.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, archive := range m.archives {
		archive.Close()
	}
	m.archives = nil
	m.roots = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.RWMutex

	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Flush clears the cache but keeps the roots.
func (m *Manager) Flush() {
	m.cache.Clear()
}
