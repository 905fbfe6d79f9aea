package runtime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tristendillon/locus/core/codec"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/manifest"
	"github.com/tristendillon/locus/core/models"
)

const (
	cacheIndexFile     = "index.cbor"
	cacheManifestsFile = "manifests.cbor"

	// DefaultCacheMaxAge is how long an unused cached bundle survives.
	DefaultCacheMaxAge = 600 * time.Second
)

type cacheRecord struct {
	Name     string `cbor:"1,keyasint"`
	Hash     string `cbor:"2,keyasint"`
	Size     int64  `cbor:"3,keyasint"`
	LastUsed int64  `cbor:"4,keyasint"`
}

// ContentCache stores downloaded bundles on disk keyed by name and hash.
type ContentCache struct {
	dir     string
	now     func() time.Time
	mu      sync.Mutex
	records map[string]*cacheRecord
	dirty   bool
}

func cacheKey(name, hash string) string {
	return name + "@" + hash
}

// OpenContentCache loads the cache index in dir. A missing or unreadable
// index starts an empty cache.
func OpenContentCache(dir string, now func() time.Time) (*ContentCache, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &ContentCache{
		dir:     dir,
		now:     now,
		records: make(map[string]*cacheRecord),
	}

	data, err := os.ReadFile(filepath.Join(dir, cacheIndexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	default:
		var records []*cacheRecord
		if err := codec.Unmarshal(data, &records); err != nil {
			logger.Warn("ContentCache: discarding unreadable index: %v", err)
			break
		}
		for _, r := range records {
			if checkEntry(r.Name, r.Hash) != nil {
				logger.Warn("ContentCache: dropping invalid entry %q", r.Name)
				c.dirty = true
				continue
			}
			c.records[cacheKey(r.Name, r.Hash)] = r
		}
	}
	return c, nil
}

// checkEntry keeps bundle names and hashes from escaping the cache folder.
func checkEntry(name, hash string) error {
	if !models.IsPathElement(name) || !models.IsPathElement(hash) {
		return fmt.Errorf("%w: %q (%q)", ErrInvalidEntry, name, hash)
	}
	return nil
}

func (c *ContentCache) path(name, hash string) string {
	return filepath.Join(c.dir, name, hash)
}

func (c *ContentCache) IsCached(name, hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[cacheKey(name, hash)]
	return ok
}

func (c *ContentCache) Get(name, hash string) ([]byte, error) {
	c.mu.Lock()
	_, ok := c.records[cacheKey(name, hash)]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s) is not cached", ErrNotFound, name, hash)
	}
	data, err := os.ReadFile(c.path(name, hash))
	if err != nil {
		c.mu.Lock()
		delete(c.records, cacheKey(name, hash))
		c.dirty = true
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to read cached bundle %s: %w", name, err)
	}
	return data, nil
}

func (c *ContentCache) Put(name, hash string, data []byte) error {
	if err := checkEntry(name, hash); err != nil {
		return err
	}
	p := c.path(name, hash)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create cache entry directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write cached bundle %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[cacheKey(name, hash)] = &cacheRecord{
		Name:     name,
		Hash:     hash,
		Size:     int64(len(data)),
		LastUsed: c.now().Unix(),
	}
	c.dirty = true
	return nil
}

// MarkAsUsed refreshes the last-used time of a cached bundle.
func (c *ContentCache) MarkAsUsed(name, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[cacheKey(name, hash)]; ok {
		r.LastUsed = c.now().Unix()
		c.dirty = true
	}
}

// ClearCache evicts bundles not used within maxAge and returns their keys.
func (c *ContentCache) ClearCache(maxAge time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge).Unix()
	var evicted []string
	for key, r := range c.records {
		if r.LastUsed >= cutoff {
			continue
		}
		if err := os.Remove(c.path(r.Name, r.Hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("ContentCache: failed to remove %s: %v", key, err)
			continue
		}
		delete(c.records, key)
		evicted = append(evicted, key)
	}
	if len(evicted) > 0 {
		c.dirty = true
		logger.Debug("ContentCache: evicted %d bundles", len(evicted))
	}
	sort.Strings(evicted)
	return evicted
}

// Size is the number of bytes held by the cache.
func (c *ContentCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, r := range c.records {
		total += r.Size
	}
	return total
}

func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Save writes the index if it changed.
func (c *ContentCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	records := make([]*cacheRecord, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return cacheKey(records[i].Name, records[i].Hash) < cacheKey(records[j].Name, records[j].Hash)
	})
	data, err := codec.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, cacheIndexFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	c.dirty = false
	return nil
}

// SaveManifests stores the last downloaded manifests for offline starts.
func (c *ContentCache) SaveManifests(manifests []*manifest.Manifest) error {
	data, err := codec.Marshal(manifests)
	if err != nil {
		return fmt.Errorf("failed to encode cached manifests: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, cacheManifestsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write cached manifests: %w", err)
	}
	return nil
}

func (c *ContentCache) LoadManifests() ([]*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, cacheManifestsFile))
	if err != nil {
		return nil, err
	}
	var manifests []*manifest.Manifest
	if err := codec.Unmarshal(data, &manifests); err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrParse, err)
	}
	return manifests, nil
}
