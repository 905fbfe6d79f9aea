package models

import (
	"fmt"
	"strings"
)

const (
	BundleExtension = ".bundle"

	// CatalogAddress is the addressable name of the path catalog asset that
	// is injected as the first entry of every built bundle.
	CatalogAddress = "BundlePathCatalog"

	ManifestFileName = "Manifest.json"
	BuildLogFileName = "BundleBuildLog.txt"

	// LocalBundlesFolder is the folder under the streaming root that holds
	// one directory of built bundles per local package.
	LocalBundlesFolder = "localbundles"
)

// BundleDefinition names a bundle and the root assets it explicitly contains.
// AssetPaths and AddressableNames are parallel.
type BundleDefinition struct {
	BundleName       string   `json:"bundleName" cbor:"1,keyasint"`
	AssetPaths       []string `json:"assetPaths" cbor:"2,keyasint"`
	AddressableNames []string `json:"addressableNames" cbor:"3,keyasint"`
}

func (b BundleDefinition) Validate() error {
	if b.BundleName == "" {
		return fmt.Errorf("bundle definition has no name")
	}
	if len(b.AssetPaths) == 0 {
		return fmt.Errorf("bundle %s has no assets", b.BundleName)
	}
	if len(b.AssetPaths) != len(b.AddressableNames) {
		return fmt.Errorf("bundle %s has %d assets but %d addressable names",
			b.BundleName, len(b.AssetPaths), len(b.AddressableNames))
	}
	return nil
}

// BundleNameWithExtension lower-cases a bundle name and makes sure it ends in .bundle.
func BundleNameWithExtension(name string) string {
	name = strings.ToLower(name)
	if strings.HasSuffix(name, BundleExtension) {
		return name
	}
	return name + BundleExtension
}

func bundleStem(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), BundleExtension)
}

// FileBundleName names the bundle of a single asset when a folder is split file by file.
func FileBundleName(bundleName, assetPath, guid string) string {
	return BundleNameWithExtension(fmt.Sprintf("%s.%s_%s", bundleStem(bundleName), NameWithoutExtension(assetPath), guid))
}

// ScenesBundleName names the per-folder bundle that holds scene assets.
func ScenesBundleName(bundleName string) string {
	return BundleNameWithExtension(bundleStem(bundleName) + ".scenes")
}

// SharedBundleName names a synthesized shared bundle from its asset GUID.
func SharedBundleName(guid string) string {
	return BundleNameWithExtension("shared_" + strings.ToLower(guid))
}

// IsSharedBundleName reports whether name was produced by SharedBundleName.
func IsSharedBundleName(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "shared_")
}

// IsPathElement reports whether name can be used as a single file or
// directory name: non-empty, no separators, no parent references.
func IsPathElement(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
