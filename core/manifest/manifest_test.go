package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := New("android", []BundleInfo{
		{BundleName: "ui.bundle", Dependencies: []string{"shared_a.bundle"}, Hash: "h-ui", Size: 10},
		{BundleName: "level.bundle", Dependencies: []string{"ui.bundle", "shared_a.bundle"}, Hash: "h-level", Size: 40},
		{BundleName: "shared_a.bundle", Hash: "h-shared", Size: 5},
		{BundleName: "audio.bundle", Hash: "h-audio", Size: 10},
	})
	require.NoError(t, err)
	return m
}

func names(infos []BundleInfo) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.BundleName)
	}
	return out
}

func TestNewSortsBySizeDescending(t *testing.T) {
	m := setupManifest(t)
	assert.Equal(t, []string{"level.bundle", "audio.bundle", "ui.bundle", "shared_a.bundle"}, names(m.BundleInfos))
	assert.NotEmpty(t, m.GlobalHash)
	assert.Equal(t, int64(65), m.TotalSize())
}

func TestGlobalHashIgnoresHeader(t *testing.T) {
	a := setupManifest(t)
	b := setupManifest(t)
	b.SetHeader(Header{
		BuildTime:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RemoteURL:   "https://cdn.example.com/other",
		PackageName: "core",
		PackageGUID: "abc",
	})
	assert.Equal(t, a.GlobalHash, b.GlobalHash)

	changed, err := New("android", []BundleInfo{
		{BundleName: "ui.bundle", Dependencies: []string{"shared_a.bundle"}, Hash: "h-ui-2", Size: 10},
		{BundleName: "level.bundle", Dependencies: []string{"ui.bundle", "shared_a.bundle"}, Hash: "h-level", Size: 40},
		{BundleName: "shared_a.bundle", Hash: "h-shared", Size: 5},
		{BundleName: "audio.bundle", Hash: "h-audio", Size: 10},
	})
	require.NoError(t, err)
	assert.NotEqual(t, a.GlobalHash, changed.GlobalHash)
}

func TestCollectBundleDependencies(t *testing.T) {
	deps := map[string][]string{
		"a.bundle": {"b.bundle"},
		"b.bundle": {"c", "a.bundle"},
		"c.bundle": {"a.bundle", "b.bundle"},
	}

	tests := []struct {
		name        string
		root        string
		includeSelf bool
		want        []string
	}{
		{name: "cycle back to root is dropped", root: "a.bundle", want: []string{"b.bundle", "c.bundle"}},
		{name: "include self", root: "a", includeSelf: true, want: []string{"a.bundle", "b.bundle", "c.bundle"}},
		{name: "missing key", root: "zzz.bundle", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectBundleDependencies(deps, tt.root, tt.includeSelf))
		})
	}
}

func TestCollectSubsetBundleInfos(t *testing.T) {
	m := setupManifest(t)

	subset := m.CollectSubsetBundleInfos([]string{"ui.bundle"})
	assert.Equal(t, []string{"ui.bundle", "shared_a.bundle"}, names(subset))

	subset = m.CollectSubsetBundleInfos([]string{"level", "missing.bundle"})
	assert.Equal(t, []string{"level.bundle", "ui.bundle", "shared_a.bundle"}, names(subset))
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	m := setupManifest(t)
	m.SetHeader(Header{BuildTime: time.UnixMilli(1700000000000), RemoteURL: "http://localhost/abc", PackageGUID: "abc"})
	require.NoError(t, m.Write(dir))

	read, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, m, read)

	read, err = Read(filepath.Join(dir, "Manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, m.GlobalHash, read.GlobalHash)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.ErrorIs(t, err, ErrParse)

	_, err = Parse([]byte("{}"))
	assert.ErrorIs(t, err, ErrParse)

	_, err = Parse([]byte(`{"buildTarget":"android","bundleInfos":[{"bundleName":"../../escaped.bundle","hash":"h"}]}`))
	assert.ErrorIs(t, err, ErrParse)
	_, err = Parse([]byte(`{"buildTarget":"android","bundleInfos":[{"bundleName":"ui.bundle","hash":"h/../x"}]}`))
	assert.ErrorIs(t, err, ErrParse)
	_, err = Parse([]byte(`{"buildTarget":"android","bundleInfos":[{"bundleName":"ui.bundle","hash":"h","dependencies":["a\\b.bundle"]}]}`))
	assert.ErrorIs(t, err, ErrParse)

	m, err := Parse([]byte(`{
		// comment
		"buildTarget": "ios",
		"bundleInfos": [],
	}`))
	require.NoError(t, err)
	assert.Equal(t, "ios", m.BuildTarget)
}

func TestCompare(t *testing.T) {
	old := setupManifest(t)
	updated, err := New("android", []BundleInfo{
		{BundleName: "ui.bundle", Dependencies: []string{"shared_a.bundle"}, Hash: "h-ui-2", Size: 12},
		{BundleName: "level.bundle", Dependencies: []string{"ui.bundle", "shared_a.bundle"}, Hash: "h-level", Size: 40},
		{BundleName: "shared_a.bundle", Hash: "h-shared", Size: 5},
		{BundleName: "fx.bundle", Hash: "h-fx", Size: 3},
	})
	require.NoError(t, err)

	changes := Compare(old, updated)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{BundleName: "audio.bundle", Kind: Removed, OldHash: "h-audio", SizeDelta: -10}, changes[0])
	assert.Equal(t, Change{BundleName: "fx.bundle", Kind: Added, NewHash: "h-fx", SizeDelta: 3}, changes[1])
	assert.Equal(t, Modified, changes[2].Kind)
	assert.Equal(t, int64(2), changes[2].SizeDelta)

	text, err := UnifiedDiff(old, updated, "old", "new")
	require.NoError(t, err)
	assert.Contains(t, text, "--- old")
	assert.Contains(t, text, `+            "hash": "h-fx",`)
}
