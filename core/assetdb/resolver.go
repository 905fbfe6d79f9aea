package assetdb

import (
	"fmt"

	"github.com/tristendillon/locus/core/models"
)

// AssetGraph is the project-level asset query surface: direct references,
// classification and identity of an asset path.
type AssetGraph interface {
	DirectDependencies(assetPath string) ([]string, error)
	Type(assetPath string) models.AssetType
	GUID(assetPath string) (string, error)
}

// SceneUnwrapper is implemented by graphs that know which prefabs a scene
// stores inline rather than by reference. Those prefabs cannot be loaded on
// their own, so a scene depends on what they reference instead.
type SceneUnwrapper interface {
	InlinedPrefabs(scenePath string) ([]string, error)
}

// Resolver wraps an AssetGraph with the bundlability predicate and the scene
// unwrap rule. It holds no state of its own.
type Resolver struct {
	graph AssetGraph
}

func NewResolver(graph AssetGraph) *Resolver {
	return &Resolver{graph: graph}
}

func (r *Resolver) Graph() AssetGraph {
	return r.graph
}

func (r *Resolver) IsBundlable(assetPath string) bool {
	return r.graph.Type(assetPath).Bundlable()
}

func (r *Resolver) Type(assetPath string) models.AssetType {
	return r.graph.Type(assetPath)
}

func (r *Resolver) GUID(assetPath string) (string, error) {
	return r.graph.GUID(assetPath)
}

// Dependencies returns the bundlable direct dependencies of an asset, with
// inlined scene prefabs replaced by their own direct dependencies. The
// result has no duplicates and never contains assetPath itself.
func (r *Resolver) Dependencies(assetPath string) ([]string, error) {
	deps, err := r.graph.DirectDependencies(assetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies of %s: %w", assetPath, err)
	}

	if r.graph.Type(assetPath) == models.TypeScene {
		if unwrapper, ok := r.graph.(SceneUnwrapper); ok {
			deps, err = r.unwrapScene(assetPath, deps, unwrapper)
			if err != nil {
				return nil, err
			}
		}
	}

	seen := make(map[string]bool, len(deps))
	result := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep == assetPath || seen[dep] || !r.IsBundlable(dep) {
			continue
		}
		seen[dep] = true
		result = append(result, dep)
	}
	return result, nil
}

func (r *Resolver) unwrapScene(scenePath string, deps []string, unwrapper SceneUnwrapper) ([]string, error) {
	inlined, err := unwrapper.InlinedPrefabs(scenePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read inlined prefabs of %s: %w", scenePath, err)
	}
	if len(inlined) == 0 {
		return deps, nil
	}

	isInlined := make(map[string]bool, len(inlined))
	for _, p := range inlined {
		isInlined[p] = true
	}

	unwrapped := make([]string, 0, len(deps))
	for _, dep := range deps {
		if !isInlined[dep] {
			unwrapped = append(unwrapped, dep)
			continue
		}
		prefabDeps, err := r.graph.DirectDependencies(dep)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dependencies of inlined prefab %s: %w", dep, err)
		}
		unwrapped = append(unwrapped, prefabDeps...)
	}
	return unwrapped, nil
}
