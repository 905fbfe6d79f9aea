package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	dir := setupProject(t, map[string]string{
		FileName: `
packages:
  - path: packages/core.package.yaml
  - path: packages/dlc.package.yaml
    include: false
profiles:
  android:
    remote_url: https://cdn.example.com/
`,
	})

	cfg, err := LoadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "Assets", cfg.AssetsRoot)
	assert.True(t, cfg.DisallowCrossReference)
	require.Len(t, cfg.Packages, 2)
	assert.True(t, cfg.Packages[0].Include)
	assert.False(t, cfg.Packages[1].Include)

	profile, err := cfg.Profile("Android")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/", profile.RemoteURL)
	assert.Equal(t, "RemoteBundles", profile.RemoteOutputFolder)
	assert.Equal(t, "https://cdn.example.com/abc", profile.RemoteURLFor("abc"))

	_, err = cfg.Profile("ios")
	assert.ErrorIs(t, err, ErrMissingProfile)
}

func TestLoadPackages(t *testing.T) {
	dir := setupProject(t, map[string]string{
		FileName: "packages:\n  - path: core.package.yaml\n  - path: skipped.package.yaml\n    include: false\n",
		"core.package.yaml": `
name: core
guid: 0a1b2c
bundles:
  - bundle_name: UI
    folder: Assets/UI
    included_in_player: true
  - bundle_name: Chars
    folder: Assets/Chars
    compress_bundle: false
    split_by_file: true
`,
	})

	cfg, err := LoadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	packages, err := cfg.LoadPackages()
	require.NoError(t, err)
	require.Len(t, packages, 1)

	pkg := packages[0]
	assert.Equal(t, "core", pkg.Name)
	assert.Equal(t, "0a1b2c", pkg.GUID)
	assert.True(t, pkg.AutoCreateSharedBundles)
	require.Len(t, pkg.Bundles, 2)
	assert.True(t, pkg.Bundles[0].CompressBundle)
	assert.False(t, pkg.Bundles[1].CompressBundle)
	assert.True(t, pkg.Bundles[1].SplitByFile)
	assert.Equal(t, "ui.bundle", pkg.Bundles[0].NameWithExtension())
}

func TestLoadPackageDerivesGUID(t *testing.T) {
	dir := setupProject(t, map[string]string{"p.yaml": "name: extras\n"})

	pkg, err := LoadPackage(filepath.Join(dir, "p.yaml"))
	require.NoError(t, err)
	assert.Equal(t, PackageGUID("extras"), pkg.GUID)
	assert.Len(t, pkg.GUID, 32)
}

func TestLoadPackageRejectsDuplicateBundleNames(t *testing.T) {
	dir := setupProject(t, map[string]string{"p.yaml": `
name: dup
guid: g
bundles:
  - bundle_name: UI
    folder: a
  - bundle_name: ui.bundle
    folder: b
`})

	_, err := LoadPackage(filepath.Join(dir, "p.yaml"))
	assert.ErrorIs(t, err, ErrDuplicateBundleName)
}

func TestOutputPath(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, filepath.Join("RemoteBundles", "g", "android"), p.OutputPath(false, "g", "android"))
	assert.Equal(t, filepath.Join("Assets/StreamingAssets/BuiltInAssets", "g", "android"), p.OutputPath(true, "g", "android"))
}

func TestPackageListRoundTripWithComments(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, PackageListFileName)
	require.NoError(t, WritePackageList(p, []string{"a", "b"}))

	guids, err := ReadPackageList(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, guids)

	guids, err = ParsePackageList([]byte("[\n  // built in\n  \"core\",\n]"))
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, guids)
}
