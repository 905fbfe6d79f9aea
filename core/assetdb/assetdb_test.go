package assetdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tristendillon/locus/core/models"
)

func setupDatabase(t *testing.T, files map[string]string) *Database {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return Open(root)
}

func TestResolverFiltersAndDedupes(t *testing.T) {
	graph := &MapGraph{Deps: map[string][]string{
		"a.prefab": {"b.png", "script.cs", "b.png", "a.prefab", "c.mat"},
	}}
	r := NewResolver(graph)

	deps, err := r.Dependencies("a.prefab")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png", "c.mat"}, deps)
	assert.False(t, r.IsBundlable("script.cs"))
	assert.True(t, r.IsBundlable("b.png"))
}

func TestResolverUnwrapsInlinedScenePrefabs(t *testing.T) {
	graph := &MapGraph{
		Deps: map[string][]string{
			"level.unity":    {"tree.prefab", "rock.prefab", "sky.png"},
			"tree.prefab":    {"bark.png", "leaf.mat"},
			"rock.prefab":    {"stone.png"},
			"another.prefab": {"x.png"},
		},
		Inlined: map[string][]string{"level.unity": {"tree.prefab"}},
	}
	r := NewResolver(graph)

	deps, err := r.Dependencies("level.unity")
	require.NoError(t, err)
	assert.Equal(t, []string{"bark.png", "leaf.mat", "rock.prefab", "sky.png"}, deps)

	// only scenes are unwrapped
	deps, err = r.Dependencies("tree.prefab")
	require.NoError(t, err)
	assert.Equal(t, []string{"bark.png", "leaf.mat"}, deps)
}

func TestPathGUIDIsStable(t *testing.T) {
	assert.Equal(t, PathGUID("Assets/a.png"), PathGUID("Assets/a.png"))
	assert.NotEqual(t, PathGUID("Assets/a.png"), PathGUID("Assets/b.png"))
	assert.Len(t, PathGUID("Assets/a.png"), 32)
}

func TestDatabaseReadsSidecars(t *testing.T) {
	db := setupDatabase(t, map[string]string{
		"Assets/level.unity":      "scene",
		"Assets/level.unity.meta": "guid: lvl\ndependencies: [Assets/hero.prefab, Assets/gone.png]\ninlined_prefabs: [Assets/hero.prefab]\n",
		"Assets/hero.prefab":      "prefab",
		"Assets/hero.prefab.meta": "guid: hero\ndependencies: [Assets/hero.png]\nsub_assets:\n  - name: idle\n    local_id: 7\n",
		"Assets/hero.png":         "png",
		"Assets/data.bin":         "bin",
		"Assets/data.bin.meta":    "type: prefab\n",
	})

	guid, err := db.GUID("Assets/level.unity")
	require.NoError(t, err)
	assert.Equal(t, "lvl", guid)

	guid, err = db.GUID("Assets/hero.png")
	require.NoError(t, err)
	assert.Equal(t, PathGUID("Assets/hero.png"), guid)

	deps, err := db.DirectDependencies("Assets/level.unity")
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/hero.prefab"}, deps, "missing assets are dropped")

	resolved, err := NewResolver(db).Dependencies("Assets/level.unity")
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/hero.png"}, resolved)

	subs, err := db.SubAssets("Assets/hero.prefab")
	require.NoError(t, err)
	assert.Equal(t, []SubAsset{{Name: "idle", LocalID: 7}}, subs)

	assert.Equal(t, models.TypeFolder, db.Type("Assets"))
	assert.Equal(t, models.TypeMeta, db.Type("Assets/hero.png.meta"))
	assert.Equal(t, models.TypePrefab, db.Type("Assets/data.bin"))
	assert.Equal(t, models.TypeScene, db.Type("Assets/level.unity"))
}

func TestDatabaseContentHashTracksChanges(t *testing.T) {
	db := setupDatabase(t, map[string]string{"Assets/a.txt": "one"})

	first, err := db.ContentHash("Assets/a.txt")
	require.NoError(t, err)
	again, err := db.ContentHash("Assets/a.txt")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.EqualValues(t, 1, db.ContentStats().Hits)

	require.NoError(t, os.WriteFile(db.Abs("Assets/a.txt"), []byte("two two"), 0644))
	db.Invalidate("Assets/a.txt")
	changed, err := db.ContentHash("Assets/a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}
