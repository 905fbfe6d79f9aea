package assetdb

import "github.com/tristendillon/locus/core/models"

// MapGraph is an in-memory AssetGraph, used by tests and by tools that
// already hold the reference graph.
type MapGraph struct {
	Deps    map[string][]string
	Types   map[string]models.AssetType
	GUIDs   map[string]string
	Inlined map[string][]string
}

func (g *MapGraph) DirectDependencies(assetPath string) ([]string, error) {
	return append([]string(nil), g.Deps[assetPath]...), nil
}

func (g *MapGraph) Type(assetPath string) models.AssetType {
	if t, ok := g.Types[assetPath]; ok {
		return t
	}
	return models.TypeFromPath(assetPath)
}

func (g *MapGraph) GUID(assetPath string) (string, error) {
	if guid, ok := g.GUIDs[assetPath]; ok {
		return guid, nil
	}
	return PathGUID(assetPath), nil
}

func (g *MapGraph) InlinedPrefabs(scenePath string) ([]string, error) {
	return g.Inlined[scenePath], nil
}
