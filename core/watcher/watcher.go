package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/tristendillon/locus/core/logger"
)

const DefaultDebounce = 500 * time.Millisecond

// AssetWatcher reports batches of changed asset paths under a root folder.
// Events are debounced so a burst of saves triggers one OnChange.
type AssetWatcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	excludes []string
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]bool

	// OnStart runs once the watches are in place.
	OnStart func() error
	// OnChange receives the slash-separated paths, relative to the root,
	// that changed since the last call.
	OnChange func(changed []string) error
	OnClose  func() error
}

// NewAssetWatcher watches rootDir. excludes are doublestar patterns
// matched against root-relative paths.
func NewAssetWatcher(rootDir string, excludes []string) (*AssetWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	patterns := append([]string{".git", ".git/**", "**/*.tmp", "**/*~"}, excludes...)
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			w.Close()
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	logger.Debug("Watcher: excluding %v", patterns)

	return &AssetWatcher{
		watcher:  w,
		rootDir:  rootDir,
		excludes: patterns,
		debounce: DefaultDebounce,
		pending:  make(map[string]bool),
		OnStart:  func() error { return nil },
		OnChange: func([]string) error { return nil },
		OnClose:  func() error { return nil },
	}, nil
}

// SetDebounce changes the quiet period before OnChange fires.
func (aw *AssetWatcher) SetDebounce(d time.Duration) {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	aw.debounce = d
}

// Watch blocks until the watcher is closed.
func (aw *AssetWatcher) Watch() error {
	if err := aw.addWatchersRecursively(aw.rootDir); err != nil {
		return fmt.Errorf("failed to add watchers: %w", err)
	}

	if err := aw.OnStart(); err != nil {
		logger.Error("Watcher: OnStart failed: %v", err)
	}

	for {
		select {
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return nil
			}
			aw.handle(event)

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher: %v", err)
		}
	}
}

func (aw *AssetWatcher) handle(event fsnotify.Event) {
	rel, ok := aw.relative(event.Name)
	if !ok || aw.shouldExclude(rel) {
		return
	}
	logger.Debug("Watcher: %s %s", event.Op, rel)

	if event.Has(fsnotify.Create) {
		if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
			if err := aw.addWatchersRecursively(event.Name); err != nil {
				logger.Warn("Watcher: %v", err)
			}
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	aw.record(rel)
}

// record queues a changed path and restarts the debounce timer.
func (aw *AssetWatcher) record(rel string) {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	aw.pending[rel] = true
	if aw.timer != nil {
		aw.timer.Stop()
	}
	aw.timer = time.AfterFunc(aw.debounce, aw.flush)
}

func (aw *AssetWatcher) flush() {
	aw.mu.Lock()
	changed := make([]string, 0, len(aw.pending))
	for p := range aw.pending {
		changed = append(changed, p)
	}
	aw.pending = make(map[string]bool)
	aw.timer = nil
	aw.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	logger.Debug("Watcher: %d paths changed", len(changed))
	if err := aw.OnChange(changed); err != nil {
		logger.Error("Watcher: OnChange failed: %v", err)
	}
}

func (aw *AssetWatcher) Close() error {
	aw.mu.Lock()
	if aw.timer != nil {
		aw.timer.Stop()
		aw.timer = nil
	}
	aw.mu.Unlock()

	if err := aw.OnClose(); err != nil {
		logger.Error("Watcher: OnClose failed: %v", err)
	}
	return aw.watcher.Close()
}

func (aw *AssetWatcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(aw.rootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(filepath.Clean(rel)), true
}

func (aw *AssetWatcher) shouldExclude(rel string) bool {
	for _, pattern := range aw.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (aw *AssetWatcher) addWatchersRecursively(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		if rel, ok := aw.relative(path); ok && rel != "." && aw.shouldExclude(rel) {
			logger.Debug("Watcher: skipping %s", rel)
			return filepath.SkipDir
		}
		if err := aw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to add watcher for %s: %w", path, err)
		}
		return nil
	})
}
