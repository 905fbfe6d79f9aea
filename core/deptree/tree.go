// Package deptree builds the asset dependency forest of a set of bundle
// definitions and extracts assets reachable from more than one bundle into
// synthesized shared bundles.
package deptree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

var (
	ErrDuplicateAsset  = errors.New("duplicate asset across bundle definitions")
	ErrDuplicateBundle = errors.New("duplicate bundle definition")
)

// DuplicateAssetError lists every asset path declared by more than one
// bundle definition, with the bundles that declared it.
type DuplicateAssetError struct {
	Assets map[string][]string
}

func (e *DuplicateAssetError) Error() string {
	paths := make([]string, 0, len(e.Assets))
	for p := range e.Assets {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	sb.WriteString(ErrDuplicateAsset.Error())
	sb.WriteString(":")
	for _, p := range paths {
		fmt.Fprintf(&sb, " %s (%s);", p, strings.Join(e.Assets[p], ", "))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

func (e *DuplicateAssetError) Unwrap() error {
	return ErrDuplicateAsset
}

// Resolver is the part of assetdb.Resolver the tree needs.
type Resolver interface {
	Dependencies(assetPath string) ([]string, error)
	GUID(assetPath string) (string, error)
}

// Result is the outcome of one Process call.
type Result struct {
	// BundleDependencies maps every bundle, shared ones included, to the
	// sorted names of the bundles it directly references.
	BundleDependencies map[string][]string
	// SharedBundles are the synthesized single-asset bundles, sorted by name.
	SharedBundles []models.BundleDefinition
	// AllAssets is every distinct asset reachable from any root, in
	// breadth-first order.
	AllAssets []string
}

// IsShared reports whether name is one of the synthesized bundles.
func (r *Result) IsShared(name string) bool {
	for _, b := range r.SharedBundles {
		if b.BundleName == name {
			return true
		}
	}
	return false
}

// Process builds the dependency forest for defs. Every asset path must
// appear in exactly one definition; otherwise nothing is walked and a
// *DuplicateAssetError is returned.
func Process(resolver Resolver, defs []models.BundleDefinition) (*Result, error) {
	bc := newContext(resolver)
	if err := bc.seed(defs); err != nil {
		return nil, err
	}

	// Roots are only expanded once every declared root is registered, so a
	// second bundle's root is never mistaken for a shared dependency.
	seeded := len(bc.nodes)
	for id := 0; id < seeded; id++ {
		if err := bc.expand(nodeID(id), nodeID(id)); err != nil {
			return nil, err
		}
	}

	result := bc.result()
	logger.Debug("DependencyTree: %d bundles, %d shared bundles, %d reachable assets",
		len(result.BundleDependencies), len(result.SharedBundles), len(result.AllAssets))
	return result, nil
}
