// Package kvcache is small JSON key-value scratch storage for cached
// blobs like the last-known employee list.
//
// Values are stored one file per key under a cache directory. Absence is
// normal: a missing key or a blob that fails to decode is logged and
// treated as a cache miss, never propagated as a fatal error.
package kvcache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Cache reads and writes JSON blobs keyed by name.
type Cache struct {
	dir    string
	logger *log.Logger
}

// New creates a Cache rooted at dir, creating the directory if needed.
// If logger is nil, a default logger writing to stderr is used.
func New(dir string, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[kvcache] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Get decodes the cached value for key into out. The bool reports whether
// a usable value was found; decode failures count as misses.
func (c *Cache) Get(key string, out any) bool {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Printf("discarding undecodable cache entry %q: %v", key, err)
		return false
	}
	return true
}

// Put JSON-encodes value under key. The write goes through a temp file
// and rename so readers never observe a partial blob.
func (c *Cache) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry %q: %w", key, err)
	}
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes a cached value. Deleting a missing key is a no-op.
func (c *Cache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	return nil
}

func (c *Cache) path(key string) string {
	// Keys are simple identifiers; flatten anything path-like.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(c.dir, safe+".json")
}
