package packer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tristendillon/locus/core/codec"
	"github.com/tristendillon/locus/core/logger"
)

const buildCacheFile = "index.cbor"

// BuildCache remembers, per output file, the input hash a bundle was last
// written from so unchanged bundles are not packed again.
type BuildCache struct {
	dir     string
	entries map[string]*buildRecord
	mutex   sync.RWMutex
	dirty   bool
}

type buildRecord struct {
	InputHash string       `cbor:"1,keyasint"`
	Result    BundleResult `cbor:"2,keyasint"`
	BuiltAt   time.Time    `cbor:"3,keyasint"`
}

// OpenBuildCache loads the cache index stored in dir. A missing index yields
// an empty cache.
func OpenBuildCache(dir string) (*BuildCache, error) {
	bc := &BuildCache{dir: dir, entries: make(map[string]*buildRecord)}
	data, err := os.ReadFile(filepath.Join(dir, buildCacheFile))
	if errors.Is(err, os.ErrNotExist) {
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build cache: %w", err)
	}
	if err := codec.Unmarshal(data, &bc.entries); err != nil {
		logger.Warn("BuildCache: Discarding unreadable index: %v", err)
		bc.entries = make(map[string]*buildRecord)
	}
	logger.Debug("BuildCache: Loaded %d records", len(bc.entries))
	return bc, nil
}

// Lookup returns the recorded result when inputHash matches and the output
// file is still the one that was written.
func (bc *BuildCache) Lookup(fileName, inputHash string) (BundleResult, bool) {
	bc.mutex.RLock()
	record, exists := bc.entries[fileName]
	bc.mutex.RUnlock()
	if !exists || record.InputHash != inputHash {
		return BundleResult{}, false
	}

	info, err := os.Stat(fileName)
	if err != nil || info.Size() != record.Result.Size {
		return BundleResult{}, false
	}
	return record.Result, true
}

func (bc *BuildCache) Record(fileName, inputHash string, result BundleResult) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	result.Reused = false
	bc.entries[fileName] = &buildRecord{InputHash: inputHash, Result: result, BuiltAt: time.Now()}
	bc.dirty = true
}

func (bc *BuildCache) Invalidate(fileName string) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if _, exists := bc.entries[fileName]; exists {
		delete(bc.entries, fileName)
		bc.dirty = true
		logger.Debug("BuildCache: Invalidated %s", fileName)
	}
}

func (bc *BuildCache) Clear() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	bc.entries = make(map[string]*buildRecord)
	bc.dirty = true
}

func (bc *BuildCache) Files() []string {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	files := make([]string, 0, len(bc.entries))
	for f := range bc.entries {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Save writes the index back when it changed.
func (bc *BuildCache) Save() error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if !bc.dirty {
		return nil
	}
	data, err := codec.Marshal(bc.entries)
	if err != nil {
		return fmt.Errorf("failed to encode build cache: %w", err)
	}
	if err := os.MkdirAll(bc.dir, 0755); err != nil {
		return fmt.Errorf("failed to create build cache folder: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bc.dir, buildCacheFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write build cache: %w", err)
	}
	bc.dirty = false
	return nil
}

// combineHash hashes the sorted parts into a stable key.
func combineHash(parts []string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	sum := blake3.Sum256([]byte(strings.Join(sorted, "|")))
	return fmt.Sprintf("%x", sum)
}
