package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/manifest"
	"github.com/tristendillon/locus/core/models"
)

func TestContentCache(t *testing.T) {
	dir := t.TempDir()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	c, err := OpenContentCache(dir, clock.Now)
	require.NoError(t, err)
	require.NoError(t, c.Put("ui.bundle", "h1", []byte("one")))
	require.NoError(t, c.Put("dlc.bundle", "h2", []byte("three")))
	assert.True(t, c.IsCached("ui.bundle", "h1"))
	assert.False(t, c.IsCached("ui.bundle", "h2"))
	assert.Equal(t, int64(8), c.Size())

	data, err := c.Get("ui.bundle", "h1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
	_, err = c.Get("ui.bundle", "h2")
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(5 * time.Minute)
	c.MarkAsUsed("ui.bundle", "h1")
	clock.Advance(6 * time.Minute)

	assert.Equal(t, []string{"dlc.bundle@h2"}, c.ClearCache(DefaultCacheMaxAge))
	assert.Equal(t, 1, c.Len())
	assert.NoFileExists(t, filepath.Join(dir, "dlc.bundle", "h2"))
	require.NoError(t, c.Save())

	reopened, err := OpenContentCache(dir, clock.Now)
	require.NoError(t, err)
	assert.True(t, reopened.IsCached("ui.bundle", "h1"))
	assert.False(t, reopened.IsCached("dlc.bundle", "h2"))
}

func TestContentCacheDiscardsBrokenIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheIndexFile), []byte("garbage"), 0644))

	c, err := OpenContentCache(dir, nil)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestContentCacheRejectsEscapingNames(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "cache")
	c, err := OpenContentCache(dir, nil)
	require.NoError(t, err)

	err = c.Put("../../escaped.bundle", "h1", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidEntry)
	err = c.Put("ui.bundle", "../h1", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.NoDirExists(t, filepath.Join(parent, "escaped.bundle"))
	assert.NoFileExists(t, filepath.Join(dir, "h1"))
	assert.Zero(t, c.Len())
}

func TestContentCacheManifests(t *testing.T) {
	c, err := OpenContentCache(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = c.LoadManifests()
	assert.ErrorIs(t, err, os.ErrNotExist)

	m, err := manifest.New("android", []manifest.BundleInfo{{BundleName: "ui.bundle", Hash: "h", Size: 3}})
	require.NoError(t, err)
	require.NoError(t, c.SaveManifests([]*manifest.Manifest{m}))

	loaded, err := c.LoadManifests()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, m.GlobalHash, loaded[0].GlobalHash)
	assert.Equal(t, "ui.bundle", loaded[0].BundleInfos[0].BundleName)
}

func TestJoinLocation(t *testing.T) {
	assert.Equal(t, "http://cdn/core/android", joinLocation("http://cdn/core/", "android"))
	assert.Equal(t, "/data/localbundles/g/ui.bundle", joinLocation("/data", "localbundles", "g", "/ui.bundle"))
}

func TestMuxFetcherReadsFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "ui.bundle")
	payload := make([]byte, chunkSize*2+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(p, payload, 0644))

	var reports []int64
	mux := NewMuxFetcher()
	data, err := mux.Fetch(context.Background(), filepath.ToSlash(p), func(read, total int64) {
		assert.Equal(t, int64(len(payload)), total)
		reports = append(reports, read)
	})
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, []int64{chunkSize, chunkSize * 2, int64(len(payload))}, reports)

	_, err = mux.Fetch(context.Background(), filepath.ToSlash(filepath.Join(dir, "missing")), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = mux.Fetch(context.Background(), "gopher://host/x", nil)
	assert.ErrorContains(t, err, "no fetcher registered")
}

func TestFetchStopsWhenCancelled(t *testing.T) {
	f := NewMemoryFetcher()
	f.Put("mem://a", []byte("abc"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "mem://a", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitS3Location(t *testing.T) {
	tests := []struct {
		location string
		bucket   string
		key      string
		wantErr  bool
	}{
		{location: "s3://bundles/core/android/ui.bundle", bucket: "bundles", key: "core/android/ui.bundle"},
		{location: "s3://bundles/", wantErr: true},
		{location: "http://bundles/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := splitS3Location(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func writeAsset(t *testing.T, root, assetPath, guid, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(assetPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	require.NoError(t, os.WriteFile(full+assetdb.MetaExtension, []byte("guid: "+guid+"\n"), 0644))
}

func TestDirectSource(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "Assets/UI/button.prefab", "g-button", "button")
	writeAsset(t, root, "Assets/UI/panel.prefab", "g-panel", "panel")

	src := NewDirectSource(assetdb.Open(root), []models.BundleDefinition{{
		BundleName:       "UI",
		AssetPaths:       []string{"Library/locus/catalogs/ui.bundle.catalog", "Assets/UI/button.prefab", "Assets/UI/panel.prefab"},
		AddressableNames: []string{models.CatalogAddress, "button", "panel"},
	}})

	obj, err := src.Load("ui", "button")
	require.NoError(t, err)
	assert.Equal(t, []byte("button"), obj.Data)
	assert.Equal(t, "g-button", obj.GUID)
	assert.Equal(t, "ui.bundle", obj.Bundle)

	byGUID, err := src.LoadByGUID("g-panel")
	require.NoError(t, err)
	assert.Equal(t, "panel", byGUID.Address)
	assert.NotEqual(t, obj.ID, byGUID.ID)

	names, err := src.AssetNames("ui.bundle")
	require.NoError(t, err)
	assert.Equal(t, []string{"button", "panel"}, names)

	assert.True(t, src.Exists("ui", "Assets/UI/panel.prefab"))
	assert.False(t, src.Exists("ui", models.CatalogAddress))
	_, err = src.Load("other", "button")
	assert.ErrorIs(t, err, ErrBundleNotLoaded)
	_, err = src.LoadByGUID("nope")
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.NoError(t, src.Release(obj))
}
