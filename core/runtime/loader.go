// Package runtime loads built bundles in the player: it mounts the local
// packages shipped in the streaming folder, downloads newer remote bundles
// through a content cache, and tracks loaded objects so bundles are only
// unloaded once nothing references them.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/manifest"
	"github.com/tristendillon/locus/core/models"
)

type Options struct {
	// StreamingRoot holds the package list and one localbundles/<guid>
	// folder per local package. It may be a path or a URL.
	StreamingRoot string
	// BuildTarget, when set, must match the target of every manifest the
	// loader mounts or downloads.
	BuildTarget string
	CacheDir    string
	// Fetcher defaults to a MuxFetcher serving file and http locations.
	Fetcher     Fetcher
	CacheMaxAge time.Duration
	Now         func() time.Time
}

// Loader is the runtime bundle state. Initialize, GetManifests and Download
// run one at a time on the loader executor; the synchronous load and
// tracking calls may be used from any goroutine.
type Loader struct {
	opts    Options
	fetcher Fetcher
	cache   *ContentCache
	exec    *executor

	mu          sync.Mutex
	initialized bool
	bundles     map[string]*LoadedBundle
	localHashes map[string]string
	localURLs   map[string]string
	remoteURLs  map[string]string
	manifests   []*manifest.Manifest
	scenes      map[string]string
	tracker     *tracker
}

func NewLoader(opts Options) (*Loader, error) {
	if opts.StreamingRoot == "" {
		return nil, fmt.Errorf("loader needs a streaming root")
	}
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = DefaultCacheMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewMuxFetcher()
	}
	cache, err := OpenContentCache(opts.CacheDir, opts.Now)
	if err != nil {
		return nil, err
	}

	return &Loader{
		opts:        opts,
		fetcher:     fetcher,
		cache:       cache,
		exec:        newExecutor(),
		bundles:     make(map[string]*LoadedBundle),
		localHashes: make(map[string]string),
		localURLs:   make(map[string]string),
		remoteURLs:  make(map[string]string),
		scenes:      make(map[string]string),
		tracker:     newTracker(),
	}, nil
}

func (l *Loader) Cache() *ContentCache {
	return l.cache
}

func (l *Loader) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialized
}

// Post runs fn on the loader executor after the queued operations.
func (l *Loader) Post(fn func(ctx context.Context)) error {
	return l.exec.submit(fn)
}

// Shutdown stops the executor, drops every bundle and tracked object and
// saves the cache index.
func (l *Loader) Shutdown() error {
	l.exec.stop()

	l.mu.Lock()
	for _, b := range l.bundles {
		l.unloadLocked(b)
	}
	l.initialized = false
	l.localHashes = make(map[string]string)
	l.localURLs = make(map[string]string)
	l.remoteURLs = make(map[string]string)
	l.manifests = nil
	l.tracker = newTracker()
	l.mu.Unlock()

	logger.Debug("Loader: shut down")
	return l.cache.Save()
}

// LoadedBundles returns the names of the resident bundles.
func (l *Loader) LoadedBundles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.bundles))
	for name := range l.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) Bundle(name string) (*LoadedBundle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bundles[models.BundleNameWithExtension(name)]
	return b, ok
}

func (l *Loader) RemoteURL(packageGUID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.remoteURLs[packageGUID]
	return u, ok
}

// AllCachedManifests returns the manifests fetched by the last successful
// GetManifests.
func (l *Loader) AllCachedManifests() []*manifest.Manifest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*manifest.Manifest(nil), l.manifests...)
}

// CachedManifests returns the manifests saved by the last Download, for
// starting without network access.
func (l *Loader) CachedManifests() ([]*manifest.Manifest, error) {
	return l.cache.LoadManifests()
}

type localPackage struct {
	guid     string
	location string
	manifest *manifest.Manifest
}

// Initialize mounts every package listed in the streaming folder. State is
// swapped only after all packages load; a failed or cancelled call leaves
// the previous state in place.
func (l *Loader) Initialize() *Operation[struct{}] {
	return start(l.exec, func(ctx context.Context, op *Operation[struct{}]) {
		if l.IsInitialized() {
			op.finish(Success, struct{}{}, nil)
			return
		}

		listLocation := joinLocation(l.opts.StreamingRoot, config.PackageListFileName)
		data, err := l.fetcher.Fetch(ctx, listLocation, nil)
		if err != nil {
			failOp(ctx, op, NetworkError, fmt.Errorf("failed to read package list: %w", err))
			return
		}
		guids, err := config.ParsePackageList(data)
		if err != nil {
			failOp(ctx, op, ManifestParseError, err)
			return
		}

		var packages []localPackage
		total := 0
		for _, guid := range guids {
			location := joinLocation(l.opts.StreamingRoot, models.LocalBundlesFolder, guid)
			m, code, err := l.fetchManifest(ctx, location)
			if err != nil {
				failOp(ctx, op, code, err)
				return
			}
			packages = append(packages, localPackage{guid: guid, location: location, manifest: m})
			total += len(m.BundleInfos)
		}
		op.setTotal(total)

		loaded := make(map[string]*LoadedBundle)
		localHashes := make(map[string]string)
		localURLs := make(map[string]string)
		remoteURLs := make(map[string]string)
		index := 0
		for _, pkg := range packages {
			deps := pkg.manifest.Dependencies()
			for _, info := range pkg.manifest.BundleInfos {
				op.setCurrent(index, false)
				b, _, err := l.loadBundle(ctx, info, joinLocation(pkg.location, info.BundleName), false, progressOf(op, index, total))
				if err != nil {
					failOp(ctx, op, NetworkError, err)
					return
				}
				b.IsLocal = true
				b.PackageGUID = pkg.guid
				b.Dependencies = manifest.CollectBundleDependencies(deps, info.BundleName, true)
				loaded[b.Name] = b
				localHashes[b.Name] = info.Hash
				index++
			}
			localURLs[pkg.guid] = pkg.location
			if pkg.manifest.RemoteURL != "" {
				remoteURLs[pkg.guid] = joinLocation(pkg.manifest.RemoteURL, pkg.manifest.BuildTarget)
			}
		}
		if ctx.Err() != nil {
			failOp(ctx, op, Cancelled, ctx.Err())
			return
		}

		l.mu.Lock()
		for _, b := range l.bundles {
			l.unloadLocked(b)
		}
		l.localHashes = localHashes
		l.localURLs = localURLs
		l.remoteURLs = remoteURLs
		for _, b := range loaded {
			l.registerLocked(b)
		}
		l.initialized = true
		l.mu.Unlock()

		logger.Info("Loader: initialized %d packages, %d bundles", len(packages), len(loaded))
		op.finish(Success, struct{}{}, nil)
	})
}

// GetManifests fetches the remote manifest of every package that has a
// remote URL.
func (l *Loader) GetManifests() *Operation[[]*manifest.Manifest] {
	return start(l.exec, func(ctx context.Context, op *Operation[[]*manifest.Manifest]) {
		l.mu.Lock()
		if !l.initialized {
			l.mu.Unlock()
			op.finish(NotInitialized, nil, ErrNotInitialized)
			return
		}
		guids := make([]string, 0, len(l.remoteURLs))
		for guid := range l.remoteURLs {
			guids = append(guids, guid)
		}
		remotes := make(map[string]string, len(l.remoteURLs))
		for guid, u := range l.remoteURLs {
			remotes[guid] = u
		}
		l.mu.Unlock()
		sort.Strings(guids)

		op.setTotal(len(guids))
		manifests := make([]*manifest.Manifest, 0, len(guids))
		for i, guid := range guids {
			op.setCurrent(i, false)
			m, code, err := l.fetchManifest(ctx, remotes[guid])
			if err != nil {
				failOp(ctx, op, code, err)
				return
			}
			manifests = append(manifests, m)
		}

		l.mu.Lock()
		l.manifests = manifests
		l.mu.Unlock()
		op.finish(Success, manifests, nil)
	})
}

// GetDownloadSize sums the sizes of the bundles in manifests, or in the
// subset of them, that are neither shipped locally nor cached.
func (l *Loader) GetDownloadSize(manifests []*manifest.Manifest, subset []string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return 0, ErrNotInitialized
	}

	infos, _ := collectInfos(manifests, subset)
	var size int64
	for _, info := range infos {
		if l.localHashes[info.BundleName] == info.Hash {
			continue
		}
		if l.cache.IsCached(info.BundleName, info.Hash) {
			continue
		}
		size += info.Size
	}
	return size, nil
}

// Download brings the loaded bundles in line with manifests. With a subset
// only the named bundles and their dependencies are considered. Bundles
// already loaded with the same hash are kept as they are. The result
// reports whether any loaded bundle was replaced.
func (l *Loader) Download(manifests []*manifest.Manifest, subset []string) *Operation[bool] {
	return start(l.exec, func(ctx context.Context, op *Operation[bool]) {
		l.mu.Lock()
		if !l.initialized {
			l.mu.Unlock()
			op.finish(NotInitialized, false, ErrNotInitialized)
			return
		}
		toUnload := make(map[string]bool, len(l.bundles))
		for name := range l.bundles {
			toUnload[name] = true
		}
		l.mu.Unlock()

		for _, m := range manifests {
			if err := l.checkTarget(m); err != nil {
				failOp(ctx, op, ManifestParseError, err)
				return
			}
		}
		infos, deps := collectInfos(manifests, subset)
		op.setTotal(len(infos))

		var staged []*LoadedBundle
		for i, info := range infos {
			l.mu.Lock()
			remote, hasRemote := l.remoteURLs[info.PackageGUID]
			local := l.localURLs[info.PackageGUID]
			localHash := l.localHashes[info.BundleName]
			current := l.bundles[info.BundleName]
			l.mu.Unlock()

			if !hasRemote {
				continue
			}
			delete(toUnload, info.BundleName)

			isLocal := localHash == info.Hash
			isCached := !isLocal && l.cache.IsCached(info.BundleName, info.Hash)
			op.setCurrent(i, isCached)

			if current != nil && current.Hash == info.Hash {
				logger.Debug("Loader: load skipped for %s", info.BundleName)
				continue
			}

			location := joinLocation(remote, info.BundleName)
			if isLocal {
				location = joinLocation(local, info.BundleName)
			}
			b, data, err := l.loadBundle(ctx, info, location, isCached, progressOf(op, i, len(infos)))
			if err != nil {
				failOp(ctx, op, NetworkError, err)
				return
			}
			if !isLocal && !isCached {
				if err := l.cache.Put(info.BundleName, info.Hash, data); err != nil {
					logger.Warn("Loader: failed to cache %s: %v", info.BundleName, err)
				}
			}
			b.IsLocal = isLocal
			b.PackageGUID = info.PackageGUID
			b.Dependencies = manifest.CollectBundleDependencies(deps, info.BundleName, true)
			staged = append(staged, b)
		}
		if ctx.Err() != nil {
			failOp(ctx, op, Cancelled, ctx.Err())
			return
		}

		replaced := false
		l.mu.Lock()
		for _, b := range staged {
			if prev, ok := l.bundles[b.Name]; ok {
				replaced = true
				l.unloadLocked(prev)
			}
			l.registerLocked(b)
		}
		for name := range toUnload {
			b := l.bundles[name]
			if b == nil || l.isBaselineLocked(b) {
				continue
			}
			l.unloadLocked(b)
		}
		l.mu.Unlock()

		for _, m := range manifests {
			for _, info := range m.BundleInfos {
				l.cache.MarkAsUsed(info.BundleName, info.Hash)
			}
		}
		l.cache.ClearCache(l.opts.CacheMaxAge)
		if err := l.cache.Save(); err != nil {
			logger.Warn("Loader: %v", err)
		}
		if err := l.cache.SaveManifests(manifests); err != nil {
			logger.Warn("Loader: %v", err)
		}

		logger.Info("Loader: downloaded %d bundles (replaced: %t)", len(staged), replaced)
		op.finish(Success, replaced, nil)
	})
}

func (l *Loader) fetchManifest(ctx context.Context, location string) (*manifest.Manifest, ErrorCode, error) {
	data, err := l.fetcher.Fetch(ctx, joinLocation(location, models.ManifestFileName), nil)
	if err != nil {
		return nil, NetworkError, fmt.Errorf("failed to fetch manifest from %s: %w", location, err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, ManifestParseError, err
	}
	if err := l.checkTarget(m); err != nil {
		return nil, ManifestParseError, fmt.Errorf("%s: %w", location, err)
	}
	return m, Success, nil
}

func (l *Loader) checkTarget(m *manifest.Manifest) error {
	if l.opts.BuildTarget == "" || m.BuildTarget == l.opts.BuildTarget {
		return nil
	}
	return fmt.Errorf("%w: manifest of %s is built for %q, loader expects %q",
		ErrBuildTarget, m.PackageName, m.BuildTarget, l.opts.BuildTarget)
}

// loadBundle reads a bundle from the cache or from location and checks it
// against the manifest hash.
func (l *Loader) loadBundle(ctx context.Context, info manifest.BundleInfo, location string, fromCache bool, progress ProgressFunc) (*LoadedBundle, []byte, error) {
	var data []byte
	if fromCache {
		cached, err := l.cache.Get(info.BundleName, info.Hash)
		if err != nil {
			logger.Warn("Loader: %v, fetching again", err)
		} else {
			data = cached
		}
	}
	if data == nil {
		fetched, err := l.fetcher.Fetch(ctx, location, progress)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch %s: %w", info.BundleName, err)
		}
		data = fetched
	}

	b, err := newLoadedBundle(info.BundleName, data, info.Hash)
	if err != nil {
		return nil, nil, err
	}
	b.Location = location
	return b, data, nil
}

// isBaselineLocked reports whether b is the copy shipped with the player.
func (l *Loader) isBaselineLocked(b *LoadedBundle) bool {
	return b.IsLocal && l.localHashes[b.Name] == b.Hash
}

func (l *Loader) registerLocked(b *LoadedBundle) {
	l.bundles[b.Name] = b
	for _, scene := range b.ScenePaths() {
		l.scenes[scene] = b.Name
	}
}

func (l *Loader) unloadLocked(b *LoadedBundle) {
	if l.bundles[b.Name] != b {
		return
	}
	delete(l.bundles, b.Name)
	for scene, owner := range l.scenes {
		if owner == b.Name {
			delete(l.scenes, scene)
		}
	}
	logger.Debug("Loader: unloaded %s", b.Name)
}

// collectInfos flattens the bundle infos of manifests, narrowed to subset
// when one is given, and merges their dependency maps.
func collectInfos(manifests []*manifest.Manifest, subset []string) ([]manifest.BundleInfo, map[string][]string) {
	var infos []manifest.BundleInfo
	deps := make(map[string][]string)
	for _, m := range manifests {
		for name, d := range m.Dependencies() {
			deps[name] = d
		}
		if len(subset) > 0 {
			infos = append(infos, m.CollectSubsetBundleInfos(subset)...)
		} else {
			infos = append(infos, m.BundleInfos...)
		}
	}
	return infos, deps
}

func progressOf[T any](op *Operation[T], index, total int) ProgressFunc {
	return func(read, size int64) {
		if size <= 0 || total <= 0 {
			return
		}
		op.setProgress((float64(index) + float64(read)/float64(size)) / float64(total))
	}
}

// failOp finishes op with code, or with Cancelled once cancellation was
// requested.
func failOp[T any](ctx context.Context, op *Operation[T], code ErrorCode, err error) {
	var zero T
	if op.IsCancelled() || (code == Cancelled && ctx.Err() != nil) {
		logger.Debug("Loader: operation cancelled")
		op.finish(Cancelled, zero, context.Canceled)
		return
	}
	logger.Warn("Loader: %s: %v", code, err)
	op.finish(code, zero, err)
}
