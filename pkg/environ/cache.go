package environ

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// CacheEntry describes one prebuilt environment image.
type CacheEntry struct {
	Tag       string `json:"tag"`
	Digest    string `json:"digest"`
	CreatedAt string `json:"created_at"`
	Path      string `json:"path,omitempty"` // staged tarball or artifact, if kept
}

// CacheDir resolves the environment cache root: WF2WF_CACHE_DIR when set,
// otherwise the user cache directory.
func CacheDir() string {
	if dir := os.Getenv("WF2WF_CACHE_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "wf2wf")
}

// cacheIndex is the on-disk JSON map from lock hash to entry. All access
// goes through withIndexLock: readers and writers serialize on a file lock,
// and writes are atomic (temp + rename).
type cacheIndex struct {
	dir string
}

func newCacheIndex(dir string) *cacheIndex { return &cacheIndex{dir: dir} }

func (c *cacheIndex) indexPath() string { return filepath.Join(c.dir, "index.json") }
func (c *cacheIndex) lockPath() string  { return filepath.Join(c.dir, "index.lock") }

// withIndexLock runs fn while holding the exclusive index lock. fn receives
// the current index contents and returns the (possibly modified) contents
// plus whether to write them back.
func (c *cacheIndex) withIndexLock(fn func(map[string]CacheEntry) (map[string]CacheEntry, bool, error)) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	lock := flock.New(c.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock cache index: %w", err)
	}
	defer lock.Unlock()

	index := map[string]CacheEntry{}
	if data, err := os.ReadFile(c.indexPath()); err == nil {
		if err := json.Unmarshal(data, &index); err != nil {
			// A corrupt index is rebuilt from scratch rather than wedging
			// every future build.
			index = map[string]CacheEntry{}
		}
	}

	updated, write, err := fn(index)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}
	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	tmp := c.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	if err := os.Rename(tmp, c.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache index: %w", err)
	}
	return nil
}

// Lookup returns the entry for a lock hash, if present.
func (c *cacheIndex) Lookup(lockHash string) (CacheEntry, bool, error) {
	var entry CacheEntry
	var found bool
	err := c.withIndexLock(func(index map[string]CacheEntry) (map[string]CacheEntry, bool, error) {
		entry, found = index[lockHash]
		return index, false, nil
	})
	return entry, found, err
}

// Store records an entry for a lock hash.
func (c *cacheIndex) Store(lockHash string, entry CacheEntry) error {
	return c.withIndexLock(func(index map[string]CacheEntry) (map[string]CacheEntry, bool, error) {
		index[lockHash] = entry
		return index, true, nil
	})
}

// PruneCache deletes cache entries (and their artifact files) older than the
// given number of days. Returns the number of entries removed.
func (m *Manager) PruneCache(cacheDir string, days int) (int, error) {
	if cacheDir == "" {
		cacheDir = CacheDir()
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed := 0
	idx := newCacheIndex(cacheDir)
	err := idx.withIndexLock(func(index map[string]CacheEntry) (map[string]CacheEntry, bool, error) {
		for hash, entry := range index {
			created, err := time.Parse(time.RFC3339, entry.CreatedAt)
			if err != nil || created.Before(cutoff) {
				if entry.Path != "" {
					os.Remove(entry.Path)
				}
				delete(index, hash)
				removed++
			}
		}
		return index, removed > 0, nil
	})
	return removed, err
}
