package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tristendillon/locus/core/catalog"
	"github.com/tristendillon/locus/core/models"
	"github.com/tristendillon/locus/core/packer"
)

// LoadedBundle is one bundle resident in the loader.
type LoadedBundle struct {
	Name        string
	Hash        string
	PackageGUID string
	// Dependencies lists every bundle this one needs, itself included.
	Dependencies []string
	IsLocal      bool
	Location     string

	file *packer.BundleFile

	catalogOnce sync.Once
	catalog     *catalog.Catalog
	catalogErr  error
}

func newLoadedBundle(name string, data []byte, expectedHash string) (*LoadedBundle, error) {
	file, hash, err := packer.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", name, err)
	}
	if expectedHash != "" && hash != expectedHash {
		return nil, fmt.Errorf("%w: %s has %s, manifest says %s", ErrHashMismatch, name, hash, expectedHash)
	}
	return &LoadedBundle{
		Name: name,
		Hash: hash,
		file: file,
	}, nil
}

// Catalog decodes the embedded path catalog on first use.
func (b *LoadedBundle) Catalog() (*catalog.Catalog, error) {
	b.catalogOnce.Do(func() {
		asset, ok := b.file.Asset(models.CatalogAddress)
		if !ok {
			b.catalog = catalog.New(nil)
			return
		}
		b.catalog, b.catalogErr = catalog.Decode(asset.Data)
	})
	return b.catalog, b.catalogErr
}

// AssetNames lists the addressable names in the bundle, without the catalog.
func (b *LoadedBundle) AssetNames() []string {
	names := make([]string, 0, len(b.file.Assets))
	for _, a := range b.file.Assets {
		if a.Address == models.CatalogAddress {
			continue
		}
		names = append(names, a.Address)
	}
	sort.Strings(names)
	return names
}

func (b *LoadedBundle) Asset(name string) (packer.PackedAsset, bool) {
	if name == models.CatalogAddress {
		return packer.PackedAsset{}, false
	}
	return b.file.Asset(name)
}

// ScenePaths lists the scene assets packed in the bundle.
func (b *LoadedBundle) ScenePaths() []string {
	var scenes []string
	for _, a := range b.file.Assets {
		if models.TypeFromPath(a.Path) == models.TypeScene {
			scenes = append(scenes, a.Path)
		}
	}
	return scenes
}
