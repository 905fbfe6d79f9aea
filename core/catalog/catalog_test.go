package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tristendillon/locus/core/assetdb"
)

type fakeSource struct {
	subs map[string][]assetdb.SubAsset
}

func (f fakeSource) GUID(assetPath string) (string, error) {
	return "guid-" + filepath.Base(assetPath), nil
}

func (f fakeSource) SubAssets(assetPath string) ([]assetdb.SubAsset, error) {
	return f.subs[assetPath], nil
}

func setupCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Build(fakeSource{subs: map[string][]assetdb.SubAsset{
		"Assets/atlas.png": {{Name: "icon_a", LocalID: 11}, {Name: "icon_b", LocalID: 12}},
	}}, []string{"Assets/hero.prefab", "Assets/atlas.png"})
	require.NoError(t, err)
	return c
}

func TestLookups(t *testing.T) {
	c := setupCatalog(t)

	p, ok := c.TryGetMainAssetPath("guid-hero.prefab")
	assert.True(t, ok)
	assert.Equal(t, "Assets/hero.prefab", p)

	p, name, ok := c.TryGetSubAssetPath("guid-atlas.png", 12)
	assert.True(t, ok)
	assert.Equal(t, "Assets/atlas.png", p)
	assert.Equal(t, "icon_b", name)

	guid, id, ok := c.TryGetSubAssetID("Assets/atlas.png", "icon_a")
	assert.True(t, ok)
	assert.Equal(t, "guid-atlas.png", guid)
	assert.EqualValues(t, 11, id)

	assert.True(t, c.ContainsGUID("guid-atlas.png"))
	assert.False(t, c.ContainsGUID("nope"))
	_, _, ok = c.TryGetSubAssetPath("guid-atlas.png", 99)
	assert.False(t, ok)
}

func TestEncodeDecodeKeepsIndexes(t *testing.T) {
	c := setupCatalog(t)
	path := filepath.Join(t.TempDir(), "catalogs", "ui.bundle"+Extension)
	require.NoError(t, c.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, c.Entries, decoded.Entries)
	p, ok := decoded.TryGetMainAssetPath("guid-hero.prefab")
	assert.True(t, ok)
	assert.Equal(t, "Assets/hero.prefab", p)
}
