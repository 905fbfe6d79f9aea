package bundlelist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/catalog"
	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/models"
)

func setupProject(t *testing.T) *assetdb.Database {
	t.Helper()
	root := t.TempDir()
	files := []string{
		"Assets/UI/button.prefab",
		"Assets/UI/panel.prefab",
		"Assets/UI/panel.prefab.meta",
		"Assets/UI/menu.unity",
		"Assets/UI/logic.cs",
		"Assets/UI/Icons/star.png",
		"Assets/UI/Icons/moon.png",
		"Assets/UI/Fonts/main.ttf",
		"Assets/UI/Drafts/wip.prefab",
		"Assets/Chars/hero.prefab",
		"Assets/Chars/villain.prefab",
	}
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		content := "data"
		if filepath.Ext(f) == ".meta" {
			content = "guid: panelguid\nsub_assets:\n  - name: frame\n    local_id: 3\n"
		}
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return assetdb.Open(root)
}

func names(defs []models.BundleDefinition) []string {
	var out []string
	for _, d := range defs {
		out = append(out, d.BundleName)
	}
	return out
}

func TestFolderBundleWithTerritories(t *testing.T) {
	db := setupProject(t)
	b := New(db, "Library/locus/catalogs", nil)

	pkg := &config.PackageSettings{Name: "core", Bundles: []config.BundleSetting{
		{BundleName: "UI", Folder: "Assets/UI", IncludeSubfolder: true, Exclude: []string{"Drafts/**"}},
		{BundleName: "Icons", Folder: "Assets/UI/Icons"},
	}}

	defs, err := b.Build(pkg)
	require.NoError(t, err)
	assert.Equal(t, []string{"ui.bundle", "ui.scenes.bundle", "icons.bundle"}, names(defs))

	ui := defs[0]
	assert.Equal(t, []string{
		"Library/locus/catalogs/ui.bundle.catalog",
		"Assets/UI/button.prefab",
		"Assets/UI/panel.prefab",
		"Assets/UI/Fonts/main.ttf",
	}, ui.AssetPaths)
	assert.Equal(t, []string{models.CatalogAddress, "button", "panel", "Fonts/main"}, ui.AddressableNames)

	scenes := defs[1]
	assert.Equal(t, []string{"Assets/UI/menu.unity"}, scenes.AssetPaths)

	data, err := os.ReadFile(db.Abs(ui.AssetPaths[0]))
	require.NoError(t, err)
	cat, err := catalog.Decode(data)
	require.NoError(t, err)
	p, ok := cat.TryGetMainAssetPath("panelguid")
	assert.True(t, ok)
	assert.Equal(t, "Assets/UI/panel.prefab", p)
	_, name, ok := cat.TryGetSubAssetPath("panelguid", 3)
	assert.True(t, ok)
	assert.Equal(t, "frame", name)
}

func TestSplitByFile(t *testing.T) {
	db := setupProject(t)
	b := New(db, "Library/locus/catalogs", nil)

	setting := config.BundleSetting{BundleName: "Chars", Folder: "Assets/Chars", SplitByFile: true}
	pkg := &config.PackageSettings{Name: "core", Bundles: []config.BundleSetting{setting}}

	defs, err := b.Build(pkg)
	require.NoError(t, err)

	heroGUID, _ := db.GUID("Assets/Chars/hero.prefab")
	villainGUID, _ := db.GUID("Assets/Chars/villain.prefab")
	assert.Equal(t, []string{
		"chars.hero_" + heroGUID + ".bundle",
		"chars.villain_" + villainGUID + ".bundle",
	}, names(defs))
	for _, d := range defs {
		require.Len(t, d.AssetPaths, 2)
		assert.Equal(t, models.CatalogAddress, d.AddressableNames[0])
		assert.NoError(t, d.Validate())
	}

	listed, err := b.BundleNames(pkg, setting)
	require.NoError(t, err)
	assert.Equal(t, names(defs), listed)
}

func TestWithoutSubfolders(t *testing.T) {
	db := setupProject(t)
	b := New(db, "Library/locus/catalogs", []string{"**/*.ttf"})

	defs, err := b.Build(&config.PackageSettings{Name: "core", Bundles: []config.BundleSetting{
		{BundleName: "UI", Folder: "Assets/UI"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Library/locus/catalogs/ui.bundle.catalog", "Assets/UI/button.prefab", "Assets/UI/panel.prefab"}, defs[0].AssetPaths)
}

func TestMissingFolderNamesBundle(t *testing.T) {
	db := setupProject(t)
	b := New(db, "Library/locus/catalogs", nil)

	_, err := b.Build(&config.PackageSettings{Name: "core", Bundles: []config.BundleSetting{
		{BundleName: "Ghost", Folder: "Assets/Nope"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")
}
