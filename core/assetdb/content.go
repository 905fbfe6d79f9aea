package assetdb

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tristendillon/locus/core/logger"
	"github.com/zeebo/blake3"
)

// ContentEntry is the last observed state of one file.
type ContentEntry struct {
	FilePath    string
	ContentHash string
	ModTime     time.Time
	Size        int64
}

// ContentStats reports how often a hash was served without reading the file.
type ContentStats struct {
	Entries int
	Hits    int64
	Misses  int64
	HitRate float64
}

// ContentCache remembers file content hashes and skips rehashing while a
// file's size and modification time are unchanged.
type ContentCache struct {
	entries map[string]*ContentEntry
	mutex   sync.Mutex
	hits    int64
	misses  int64
}

func NewContentCache() *ContentCache {
	return &ContentCache{
		entries: make(map[string]*ContentEntry),
	}
}

// Hash returns the content hash of a file, rehashing only when needed.
func (cc *ContentCache) Hash(filePath string) (string, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		cc.Remove(filePath)
		return "", fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}

	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	if existing, ok := cc.entries[filePath]; ok &&
		existing.Size == stat.Size() && existing.ModTime.Equal(stat.ModTime()) {
		cc.hits++
		return existing.ContentHash, nil
	}

	cc.misses++
	hash, err := HashFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to calculate hash for %s: %w", filePath, err)
	}
	if existing, ok := cc.entries[filePath]; ok && existing.ContentHash != hash {
		logger.Debug("ContentCache: Content changed for %s (hash: %s -> %s)", filePath, existing.ContentHash[:8], hash[:8])
	}
	cc.entries[filePath] = &ContentEntry{
		FilePath:    filePath,
		ContentHash: hash,
		ModTime:     stat.ModTime(),
		Size:        stat.Size(),
	}
	return hash, nil
}

func (cc *ContentCache) Remove(filePath string) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()
	if _, ok := cc.entries[filePath]; ok {
		delete(cc.entries, filePath)
		logger.Debug("ContentCache: Removed entry for %s", filePath)
	}
}

func (cc *ContentCache) Stats() ContentStats {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	stats := ContentStats{Entries: len(cc.entries), Hits: cc.hits, Misses: cc.misses}
	if total := cc.hits + cc.misses; total > 0 {
		stats.HitRate = float64(cc.hits) / float64(total) * 100
	}
	return stats
}

// HashFile computes the hex blake3 digest of a file.
func HashFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := blake3.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
