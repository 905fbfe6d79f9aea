package packer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/models"
)

func setupProject(t *testing.T) (*assetdb.Database, *FilePacker) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"Assets/UI/button.prefab":      strings.Repeat("button ", 64),
		"Assets/UI/button.prefab.meta": "guid: btn\ndependencies: [Assets/Art/atlas.png, Assets/Shared/font.ttf]\n",
		"Assets/Art/atlas.png":         strings.Repeat("atlas ", 64),
		"Assets/Shared/font.ttf":       "font",
		"Assets/HUD/hud.prefab":        "hud",
		"Assets/HUD/hud.prefab.meta":   "guid: hud\ndependencies: [Assets/Shared/font.ttf, Assets/Scripts/hud.cs]\n",
		"Assets/Scripts/hud.cs":        "class Hud {}",
	}
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	db := assetdb.Open(root)
	return db, NewFilePacker(db, assetdb.NewResolver(db))
}

func setupDefs() []models.BundleDefinition {
	return []models.BundleDefinition{
		{BundleName: "ui.bundle", AssetPaths: []string{"Assets/UI/button.prefab"}, AddressableNames: []string{"button"}},
		{BundleName: "hud.bundle", AssetPaths: []string{"Assets/HUD/hud.prefab"}, AddressableNames: []string{"hud"}},
		{BundleName: models.SharedBundleName("font"), AssetPaths: []string{"Assets/Shared/font.ttf"}, AddressableNames: []string{"Assets/Shared/font.ttf"}},
	}
}

func TestPackWritesBundles(t *testing.T) {
	_, p := setupProject(t)
	out := t.TempDir()

	code, results, err := p.Pack(context.Background(), Params{BuildTarget: "android", OutputPath: out}, setupDefs())
	require.NoError(t, err)
	require.Equal(t, Success, code)
	require.Len(t, results.BundleInfos, 3)

	ui := results.BundleInfos["ui.bundle"]
	assert.Equal(t, []string{"shared_font.bundle"}, ui.Dependencies)
	assert.Len(t, ui.Hash, 32)
	assert.Contains(t, ui.AssetSizes, "Assets/Art/atlas.png")
	assert.Equal(t, CompressionLZ4, ui.Compression)

	data, err := os.ReadFile(filepath.Join(out, "ui.bundle"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), ui.Size)

	bundle, hash, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ui.Hash, hash)
	assert.Equal(t, "ui.bundle", bundle.Name)

	button, ok := bundle.Asset("button")
	require.True(t, ok)
	assert.Equal(t, "btn", button.GUID)
	_, ok = bundle.Asset("Assets/Art/atlas.png")
	assert.True(t, ok, "implicit asset is packed into the referencing bundle")
	_, ok = bundle.Asset("Assets/Shared/font.ttf")
	assert.False(t, ok, "declared asset of another bundle is a dependency")

	hud := results.BundleInfos["hud.bundle"]
	assert.NotContains(t, hud.AssetSizes, "Assets/Scripts/hud.cs")
}

func TestPackWriteFilterAndCompression(t *testing.T) {
	_, p := setupProject(t)
	out := t.TempDir()

	params := Params{
		OutputPath:  out,
		Compression: func(string) Compression { return CompressionZstd },
		WriteFilter: func(deps map[string][]string) []string {
			return append([]string{"ui.bundle"}, deps["ui.bundle"]...)
		},
	}
	code, results, err := p.Pack(context.Background(), params, setupDefs())
	require.NoError(t, err)
	require.Equal(t, Success, code)

	assert.Len(t, results.BundleInfos, 2)
	assert.NotContains(t, results.BundleInfos, "hud.bundle")
	assert.Equal(t, CompressionZstd, results.BundleInfos["ui.bundle"].Compression)
	assert.NoFileExists(t, filepath.Join(out, "hud.bundle"))
}

func TestPackReturnCodes(t *testing.T) {
	_, p := setupProject(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, _, err := p.Pack(ctx, Params{OutputPath: t.TempDir()}, setupDefs())
	assert.Equal(t, Canceled, code)
	assert.Error(t, err)

	defs := append(setupDefs(), models.BundleDefinition{BundleName: "gone.bundle", AssetPaths: []string{"Assets/gone.prefab"}, AddressableNames: []string{"gone"}})
	code, _, err = p.Pack(context.Background(), Params{OutputPath: t.TempDir()}, defs)
	assert.Equal(t, MissingInputs, code)
	assert.Error(t, err)
}

func TestBuildCacheReusesUnchangedBundles(t *testing.T) {
	db, p := setupProject(t)
	out := t.TempDir()
	cacheDir := t.TempDir()

	cache, err := OpenBuildCache(cacheDir)
	require.NoError(t, err)
	params := Params{OutputPath: out, Cache: cache}

	_, first, err := p.Pack(context.Background(), params, setupDefs())
	require.NoError(t, err)
	assert.False(t, first.BundleInfos["ui.bundle"].Reused)

	reopened, err := OpenBuildCache(cacheDir)
	require.NoError(t, err)
	assert.Len(t, reopened.Files(), 3)
	params.Cache = reopened

	_, second, err := p.Pack(context.Background(), params, setupDefs())
	require.NoError(t, err)
	assert.True(t, second.BundleInfos["ui.bundle"].Reused)
	assert.Equal(t, first.BundleInfos["ui.bundle"].Hash, second.BundleInfos["ui.bundle"].Hash)

	require.NoError(t, os.WriteFile(db.Abs("Assets/Art/atlas.png"), []byte("changed atlas"), 0644))
	_, third, err := p.Pack(context.Background(), params, setupDefs())
	require.NoError(t, err)
	assert.False(t, third.BundleInfos["ui.bundle"].Reused)
	assert.NotEqual(t, first.BundleInfos["ui.bundle"].Hash, third.BundleInfos["ui.bundle"].Hash)
	assert.True(t, third.BundleInfos["hud.bundle"].Reused)
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("locus bundle payload ", 100))
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			data, used, err := compress(payload, c)
			require.NoError(t, err)
			assert.Equal(t, c, used)
			out, err := decompress(data, used, len(payload))
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}

	_, used, err := compress([]byte("x"), CompressionLZ4)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, used)

	_, _, err = Decode([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotBundle)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
