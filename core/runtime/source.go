package runtime

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tristendillon/locus/core/models"
)

// AssetSource is what game code loads assets through. BundleSource serves
// built bundles; DirectSource reads the project in development.
type AssetSource interface {
	Load(bundleName, assetName string) (*Object, error)
	LoadByGUID(guid string) (*Object, error)
	AssetNames(bundleName string) ([]string, error)
	Exists(bundleName, assetName string) bool
	Release(obj *Object) error
}

// BundleSource serves assets from the bundles mounted in a Loader.
type BundleSource struct {
	*Loader
}

func NewBundleSource(l *Loader) BundleSource {
	return BundleSource{Loader: l}
}

// Project is the part of the asset database DirectSource reads.
type Project interface {
	ReadAsset(assetPath string) ([]byte, error)
	GUID(assetPath string) (string, error)
}

// DirectSource maps bundle definitions straight onto project files, so
// content can be iterated on without building.
type DirectSource struct {
	project Project
	bundles map[string]models.BundleDefinition

	mu     sync.Mutex
	nextID ObjectID
	guids  map[string]directEntry
}

type directEntry struct {
	bundle string
	path   string
}

func NewDirectSource(project Project, defs []models.BundleDefinition) *DirectSource {
	bundles := make(map[string]models.BundleDefinition, len(defs))
	for _, d := range defs {
		bundles[models.BundleNameWithExtension(d.BundleName)] = d
	}
	return &DirectSource{project: project, bundles: bundles}
}

func (s *DirectSource) find(bundleName, assetName string) (string, string, error) {
	def, ok := s.bundles[models.BundleNameWithExtension(bundleName)]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrBundleNotLoaded, bundleName)
	}
	for i, p := range def.AssetPaths {
		if def.AddressableNames[i] == models.CatalogAddress {
			continue
		}
		if def.AddressableNames[i] == assetName || p == assetName {
			return p, def.AddressableNames[i], nil
		}
	}
	return "", "", fmt.Errorf("%w: %s in %s", ErrAssetNotFound, assetName, bundleName)
}

func (s *DirectSource) object(bundleName, assetPath, address string) (*Object, error) {
	data, err := s.project.ReadAsset(assetPath)
	if err != nil {
		return nil, err
	}
	guid, err := s.project.GUID(assetPath)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return &Object{
		ID:      id,
		Bundle:  models.BundleNameWithExtension(bundleName),
		Address: address,
		Path:    assetPath,
		GUID:    guid,
		Data:    data,
	}, nil
}

func (s *DirectSource) Load(bundleName, assetName string) (*Object, error) {
	assetPath, address, err := s.find(bundleName, assetName)
	if err != nil {
		return nil, err
	}
	return s.object(bundleName, assetPath, address)
}

func (s *DirectSource) LoadByGUID(guid string) (*Object, error) {
	s.mu.Lock()
	if s.guids == nil {
		s.guids = make(map[string]directEntry)
		for _, name := range s.sortedNames() {
			def := s.bundles[name]
			for _, p := range def.AssetPaths {
				g, err := s.project.GUID(p)
				if err != nil {
					continue
				}
				if _, seen := s.guids[g]; !seen {
					s.guids[g] = directEntry{bundle: name, path: p}
				}
			}
		}
	}
	entry, ok := s.guids[guid]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: guid %s", ErrAssetNotFound, guid)
	}
	return s.Load(entry.bundle, entry.path)
}

func (s *DirectSource) AssetNames(bundleName string) ([]string, error) {
	def, ok := s.bundles[models.BundleNameWithExtension(bundleName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotLoaded, bundleName)
	}
	var names []string
	for _, n := range def.AddressableNames {
		if n != models.CatalogAddress {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirectSource) Exists(bundleName, assetName string) bool {
	_, _, err := s.find(bundleName, assetName)
	return err == nil
}

// Release is a no-op; project files are not reference counted.
func (s *DirectSource) Release(*Object) error {
	return nil
}

func (s *DirectSource) sortedNames() []string {
	names := make([]string, 0, len(s.bundles))
	for name := range s.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	_ AssetSource = BundleSource{}
	_ AssetSource = (*DirectSource)(nil)
)
