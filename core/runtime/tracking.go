package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
	"github.com/tristendillon/locus/core/packer"
)

type ObjectID uint64

// Object is a loaded asset or an instantiated clone of one.
type Object struct {
	ID       ObjectID
	Bundle   string
	Address  string
	Path     string
	GUID     string
	SubAsset string
	Data     []byte
	// Source is the original a clone was instantiated from, 0 otherwise.
	Source ObjectID
}

func (o *Object) IsClone() bool {
	return o.Source != 0
}

type assetKey struct {
	bundle string
	hash   string
	path   string
	sub    string
}

type trackedObject struct {
	object   *Object
	bundle   *LoadedBundle
	refCount int
}

// tracker counts references from objects to the bundles they came from.
// Retaining a bundle retains its dependencies too.
type tracker struct {
	nextID     ObjectID
	objects    map[ObjectID]*trackedObject
	byAsset    map[assetKey]ObjectID
	owners     map[ObjectID]ObjectID
	bundleRefs map[string]int
}

func newTracker() *tracker {
	return &tracker{
		objects:    make(map[ObjectID]*trackedObject),
		byAsset:    make(map[assetKey]ObjectID),
		owners:     make(map[ObjectID]ObjectID),
		bundleRefs: make(map[string]int),
	}
}

func (t *tracker) newID() ObjectID {
	t.nextID++
	return t.nextID
}

func (t *tracker) retain(b *LoadedBundle, n int) {
	for _, name := range b.Dependencies {
		t.bundleRefs[name] += n
	}
}

func (t *tracker) release(b *LoadedBundle, n int) {
	for _, name := range b.Dependencies {
		t.bundleRefs[name] -= n
		if t.bundleRefs[name] <= 0 {
			delete(t.bundleRefs, name)
		}
	}
}

// track returns the object for asset, counting one more reference to it.
func (t *tracker) track(b *LoadedBundle, asset packer.PackedAsset, subAsset string) *Object {
	key := assetKey{bundle: b.Name, hash: b.Hash, path: asset.Path, sub: subAsset}
	if id, ok := t.byAsset[key]; ok {
		tracked := t.objects[id]
		tracked.refCount++
		return tracked.object
	}

	obj := &Object{
		ID:       t.newID(),
		Bundle:   b.Name,
		Address:  asset.Address,
		Path:     asset.Path,
		GUID:     asset.GUID,
		SubAsset: subAsset,
		Data:     asset.Data,
	}
	t.objects[obj.ID] = &trackedObject{object: obj, bundle: b, refCount: 1}
	t.byAsset[key] = obj.ID
	t.retain(b, 1)
	return obj
}

func (t *tracker) untrack(id ObjectID) error {
	tracked, ok := t.objects[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUntrackedObject, id)
	}
	tracked.refCount--
	if tracked.refCount > 0 {
		return nil
	}
	delete(t.objects, id)
	o := tracked.object
	delete(t.byAsset, assetKey{bundle: tracked.bundle.Name, hash: tracked.bundle.Hash, path: o.Path, sub: o.SubAsset})
	t.release(tracked.bundle, 1)
	return nil
}

// Load returns an asset of a loaded bundle by addressable name or path.
// Every successful Load must be paired with a Release.
func (l *Loader) Load(bundleName, assetName string) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, asset, err := l.findAssetLocked(bundleName, assetName)
	if err != nil {
		return nil, err
	}
	return l.tracker.track(b, asset, ""), nil
}

// LoadByGUID finds a main asset through the bundle path catalogs.
func (l *Loader) LoadByGUID(guid string) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.sortedBundlesLocked() {
		cat, err := b.Catalog()
		if err != nil {
			logger.Warn("Loader: %s: %v", b.Name, err)
			continue
		}
		assetPath, ok := cat.TryGetMainAssetPath(guid)
		if !ok {
			continue
		}
		asset, ok := b.Asset(assetPath)
		if !ok {
			continue
		}
		return l.tracker.track(b, asset, ""), nil
	}
	return nil, fmt.Errorf("%w: guid %s", ErrAssetNotFound, guid)
}

// LoadSubAsset finds a sub-asset by the guid of its main asset and its
// local id.
func (l *Loader) LoadSubAsset(guid string, localID int64) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.sortedBundlesLocked() {
		cat, err := b.Catalog()
		if err != nil {
			continue
		}
		assetPath, subName, ok := cat.TryGetSubAssetPath(guid, localID)
		if !ok {
			continue
		}
		asset, ok := b.Asset(assetPath)
		if !ok {
			continue
		}
		return l.tracker.track(b, asset, subName), nil
	}
	return nil, fmt.Errorf("%w: guid %s local id %d", ErrAssetNotFound, guid, localID)
}

// Exists reports whether a loaded bundle contains assetName.
func (l *Loader) Exists(bundleName, assetName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _, err := l.findAssetLocked(bundleName, assetName)
	return err == nil
}

func (l *Loader) AssetNames(bundleName string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bundles[models.BundleNameWithExtension(bundleName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotLoaded, bundleName)
	}
	return b.AssetNames(), nil
}

// Release drops one reference to an object returned by a load call.
func (l *Loader) Release(obj *Object) error {
	if obj.IsClone() {
		return l.Destroy(obj)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.untrack(obj.ID)
}

// Instantiate clones a tracked object. The clone holds a reference to its
// original until it is destroyed.
func (l *Loader) Instantiate(original *Object) (*Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rootID := original.ID
	if owner, ok := l.tracker.owners[original.ID]; ok {
		rootID = owner
	}
	tracked, ok := l.tracker.objects[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUntrackedObject, original.ID)
	}

	src := tracked.object
	clone := &Object{
		ID:       l.tracker.newID(),
		Bundle:   src.Bundle,
		Address:  src.Address,
		Path:     src.Path,
		GUID:     src.GUID,
		SubAsset: src.SubAsset,
		Data:     append([]byte(nil), src.Data...),
		Source:   rootID,
	}
	l.tracker.owners[clone.ID] = rootID
	tracked.refCount++
	return clone, nil
}

// Destroy releases a clone's reference to its original.
func (l *Loader) Destroy(clone *Object) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.tracker.owners[clone.ID]
	if !ok {
		return fmt.Errorf("%w: %d is not an instantiated clone", ErrUntrackedObject, clone.ID)
	}
	delete(l.tracker.owners, clone.ID)
	return l.tracker.untrack(owner)
}

// ObjectRefCount returns the reference count of a tracked object.
func (l *Loader) ObjectRefCount(obj *Object) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tracked, ok := l.tracker.objects[obj.ID]; ok {
		return tracked.refCount
	}
	return 0
}

// BundleRefCount counts the distinct tracked objects, and pending async
// loads, that hold a bundle directly or through a dependency. Clones count
// against their original object, not the bundle, so they keep the bundle
// held for as long as the original stays tracked.
func (l *Loader) BundleRefCount(bundleName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.bundleRefs[models.BundleNameWithExtension(bundleName)]
}

// UnloadUnused unloads the bundles nothing references, except the local
// copies shipped with the player.
func (l *Loader) UnloadUnused() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var unloaded []string
	for _, b := range l.sortedBundlesLocked() {
		if l.tracker.bundleRefs[b.Name] > 0 || l.isBaselineLocked(b) {
			continue
		}
		l.unloadLocked(b)
		unloaded = append(unloaded, b.Name)
	}
	return unloaded
}

// LoadAsync loads an asset off the calling goroutine. The bundle is
// retained until the load completes.
func (l *Loader) LoadAsync(bundleName, assetName string) (*Operation[*Object], error) {
	l.mu.Lock()
	b, asset, err := l.findAssetLocked(bundleName, assetName)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.tracker.retain(b, 1)
	l.mu.Unlock()

	op := newOperation[*Object]()
	op.setTotal(1)
	go func() {
		op.setCurrent(0, false)
		l.mu.Lock()
		obj := l.tracker.track(b, asset, "")
		l.tracker.release(b, 1)
		l.mu.Unlock()
		op.finish(Success, obj, nil)
	}()
	return op, nil
}

// SceneHost activates scene data handed over by LoadScene.
type SceneHost interface {
	OpenScene(ctx context.Context, scenePath string, data []byte) error
}

// LoadScene opens a scene from the bundle that holds it. The bundle is
// retained while the host opens the scene and released exactly once.
func (l *Loader) LoadScene(ctx context.Context, scenePath string, host SceneHost) (*Operation[struct{}], error) {
	l.mu.Lock()
	name, ok := l.scenes[scenePath]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: scene %s", ErrAssetNotFound, scenePath)
	}
	b := l.bundles[name]
	asset, _ := b.Asset(scenePath)
	l.tracker.retain(b, 1)
	l.mu.Unlock()

	op := newOperation[struct{}]()
	op.setTotal(1)
	sceneCtx, cancel := context.WithCancel(ctx)
	op.bind(cancel)
	go func() {
		op.setCurrent(0, false)
		err := host.OpenScene(sceneCtx, scenePath, asset.Data)

		l.mu.Lock()
		l.tracker.release(b, 1)
		l.mu.Unlock()

		if err != nil {
			failOp(sceneCtx, op, NetworkError, fmt.Errorf("failed to open scene %s: %w", scenePath, err))
			return
		}
		op.finish(Success, struct{}{}, nil)
	}()
	return op, nil
}

func (l *Loader) findAssetLocked(bundleName, assetName string) (*LoadedBundle, packer.PackedAsset, error) {
	b, ok := l.bundles[models.BundleNameWithExtension(bundleName)]
	if !ok {
		return nil, packer.PackedAsset{}, fmt.Errorf("%w: %s", ErrBundleNotLoaded, bundleName)
	}
	asset, ok := b.Asset(assetName)
	if !ok {
		return nil, packer.PackedAsset{}, fmt.Errorf("%w: %s in %s", ErrAssetNotFound, assetName, b.Name)
	}
	return b, asset, nil
}

func (l *Loader) sortedBundlesLocked() []*LoadedBundle {
	bundles := make([]*LoadedBundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Name < bundles[j].Name
	})
	return bundles
}
