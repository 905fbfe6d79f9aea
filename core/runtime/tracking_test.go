package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/locus/core/manifest"
	"github.com/tristendillon/locus/core/packer"
)

func TestLoadCountsReferences(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	l := f.loader

	button, err := l.Load("ui", "button")
	require.NoError(t, err)
	assert.Equal(t, []byte("button v1"), button.Data)
	assert.Equal(t, 1, l.BundleRefCount("ui.bundle"))
	assert.Equal(t, 1, l.BundleRefCount(sharedName), "dependencies are retained with the bundle")

	again, err := l.Load("ui.bundle", "Assets/UI/button.prefab")
	require.NoError(t, err)
	assert.Equal(t, button.ID, again.ID)
	assert.Equal(t, 2, l.ObjectRefCount(button))
	assert.Equal(t, 1, l.BundleRefCount("ui"))

	require.NoError(t, l.Release(button))
	require.NoError(t, l.Release(again))
	assert.Zero(t, l.ObjectRefCount(button))
	assert.Zero(t, l.BundleRefCount("ui"))
	assert.Zero(t, l.BundleRefCount(sharedName))

	assert.ErrorIs(t, l.Release(button), ErrUntrackedObject)
}

func TestLoadMissing(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	_, err := f.loader.Load("nope", "button")
	assert.ErrorIs(t, err, ErrBundleNotLoaded)
	_, err = f.loader.Load("ui", "nope")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	_, err = f.loader.Load("ui", "BundlePathCatalog")
	assert.ErrorIs(t, err, ErrAssetNotFound)

	assert.True(t, f.loader.Exists("ui", "button"))
	assert.False(t, f.loader.Exists("ui", "nope"))

	names, err := f.loader.AssetNames("ui")
	require.NoError(t, err)
	assert.Equal(t, []string{"button"}, names)
}

func TestInstantiateAndDestroy(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	l := f.loader

	original, err := l.Load("ui", "button")
	require.NoError(t, err)

	clone, err := l.Instantiate(original)
	require.NoError(t, err)
	assert.True(t, clone.IsClone())
	assert.Equal(t, original.ID, clone.Source)
	assert.Equal(t, 2, l.ObjectRefCount(original))

	// Cloning a clone counts against the root original.
	nested, err := l.Instantiate(clone)
	require.NoError(t, err)
	assert.Equal(t, original.ID, nested.Source)
	assert.Equal(t, 3, l.ObjectRefCount(original))

	require.NoError(t, l.Destroy(clone))
	require.NoError(t, l.Release(nested))
	assert.Equal(t, 1, l.ObjectRefCount(original))
	assert.Equal(t, 1, l.BundleRefCount("ui"))

	assert.ErrorIs(t, l.Destroy(clone), ErrUntrackedObject)
	assert.ErrorIs(t, l.Destroy(original), ErrUntrackedObject)

	require.NoError(t, l.Release(original))
	_, err = l.Instantiate(original)
	assert.ErrorIs(t, err, ErrUntrackedObject)
	_, err = l.Instantiate(&Object{ID: 999})
	assert.ErrorIs(t, err, ErrUntrackedObject)
}

func TestLoadThroughCatalog(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	obj, err := f.loader.LoadByGUID("g-button")
	require.NoError(t, err)
	assert.Equal(t, "ui.bundle", obj.Bundle)
	assert.Equal(t, "Assets/UI/button.prefab", obj.Path)

	sub, err := f.loader.LoadSubAsset("g-button", 7)
	require.NoError(t, err)
	assert.Equal(t, "icon", sub.SubAsset)
	assert.NotEqual(t, obj.ID, sub.ID)
	assert.Equal(t, 2, f.loader.BundleRefCount("ui"), "main and sub asset retain the bundle once each")

	_, err = f.loader.LoadByGUID("missing")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	_, err = f.loader.LoadSubAsset("g-button", 8)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestUnloadUnusedKeepsReferencedAndLocalBundles(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	l := f.loader

	dlc := makeBundle(t, "dlc.bundle", packer.PackedAsset{Address: "boss", Path: "Assets/DLC/boss.prefab", Data: []byte("boss")})
	putBundle(f.fetcher, remoteDir, dlc)
	remote := makeManifest(t, f.ui.info(sharedName), f.shared.info(), dlc.info(sharedName))
	_, err := wait(t, l.Download([]*manifest.Manifest{remote}, nil))
	require.NoError(t, err)

	boss, err := l.Load("dlc", "boss")
	require.NoError(t, err)
	assert.Empty(t, l.UnloadUnused())

	require.NoError(t, l.Release(boss))
	assert.Equal(t, []string{"dlc.bundle"}, l.UnloadUnused())
	assert.Equal(t, []string{"level.scenes.bundle", sharedName, "ui.bundle"}, l.LoadedBundles())
}

func TestCloneKeepsBundleLoaded(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	l := f.loader

	dlc := makeBundle(t, "dlc.bundle", packer.PackedAsset{Address: "boss", Path: "Assets/DLC/boss.prefab", Data: []byte("boss")})
	putBundle(f.fetcher, remoteDir, dlc)
	remote := makeManifest(t, f.ui.info(sharedName), f.shared.info(), dlc.info(sharedName))
	_, err := wait(t, l.Download([]*manifest.Manifest{remote}, nil))
	require.NoError(t, err)

	boss, err := l.Load("dlc", "boss")
	require.NoError(t, err)
	clone, err := l.Instantiate(boss)
	require.NoError(t, err)
	assert.Equal(t, 1, l.BundleRefCount("dlc"), "one tracked object holds the bundle")

	require.NoError(t, l.Release(boss))
	assert.Empty(t, l.UnloadUnused())
	assert.Equal(t, 1, l.BundleRefCount("dlc"))

	require.NoError(t, l.Destroy(clone))
	assert.Zero(t, l.BundleRefCount("dlc"))
	assert.Equal(t, []string{"dlc.bundle"}, l.UnloadUnused())
}

func TestLoadAsyncRetainsBundleUntilDone(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	op, err := f.loader.LoadAsync("ui", "button")
	require.NoError(t, err)
	obj, err := wait(t, op)
	require.NoError(t, err)
	assert.Equal(t, "button", obj.Address)
	assert.Equal(t, 1, f.loader.BundleRefCount("ui"), "only the loaded object keeps a reference")

	require.NoError(t, f.loader.Release(obj))
	assert.Zero(t, f.loader.BundleRefCount("ui"))

	_, err = f.loader.LoadAsync("ui", "missing")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

type sceneHost struct {
	mu     sync.Mutex
	opened map[string][]byte
	err    error
	during func()
}

func (h *sceneHost) OpenScene(_ context.Context, scenePath string, data []byte) error {
	if h.during != nil {
		h.during()
	}
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opened == nil {
		h.opened = make(map[string][]byte)
	}
	h.opened[scenePath] = data
	return nil
}

func TestLoadSceneReleasesBundleOnce(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	var during int
	host := &sceneHost{during: func() { during = f.loader.BundleRefCount("level.scenes") }}
	op, err := f.loader.LoadScene(context.Background(), "Assets/Levels/one.unity", host)
	require.NoError(t, err)
	_, err = wait(t, op)
	require.NoError(t, err)

	assert.Equal(t, 1, during)
	assert.Equal(t, []byte("scene"), host.opened["Assets/Levels/one.unity"])
	assert.Zero(t, f.loader.BundleRefCount("level.scenes"))
	assert.Zero(t, f.loader.BundleRefCount(sharedName))

	failing := &sceneHost{err: errors.New("activation failed")}
	op, err = f.loader.LoadScene(context.Background(), "Assets/Levels/one.unity", failing)
	require.NoError(t, err)
	_, err = wait(t, op)
	require.Error(t, err)
	assert.Zero(t, f.loader.BundleRefCount("level.scenes"))

	_, err = f.loader.LoadScene(context.Background(), "Assets/Levels/two.unity", host)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}
