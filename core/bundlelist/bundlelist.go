// Package bundlelist turns folder based bundle settings into concrete bundle
// definitions.
package bundlelist

import (
	"fmt"
	"path"
	"strings"

	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/catalog"
	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

// Project is the view of the asset database the builder needs.
type Project interface {
	Abs(assetPath string) string
	IsFolder(assetPath string) bool
	Type(assetPath string) models.AssetType
	GUID(assetPath string) (string, error)
	SubAssets(assetPath string) ([]assetdb.SubAsset, error)
}

type Builder struct {
	project Project
	// catalogDir is the project-relative folder catalogs are written to.
	catalogDir string
	exclude    []string
}

func New(project Project, catalogDir string, exclude []string) *Builder {
	return &Builder{project: project, catalogDir: strings.TrimSuffix(catalogDir, "/"), exclude: exclude}
}

// CatalogDir is where Build writes the path catalog assets.
func (b *Builder) CatalogDir() string {
	return b.catalogDir
}

// Build produces the bundle definitions of one package: a bundle per folder
// setting (or per file when split), plus a scenes bundle per folder.
func (b *Builder) Build(pkg *config.PackageSettings) ([]models.BundleDefinition, error) {
	var defs []models.BundleDefinition
	for _, setting := range pkg.Bundles {
		folder, found, err := b.scanSetting(pkg, setting)
		if err != nil {
			return nil, err
		}
		settingDefs, err := b.definitions(setting, folder, found)
		if err != nil {
			return nil, err
		}
		defs = append(defs, settingDefs...)
	}

	logger.Debug("BundleList: Package %s produced %d bundles", pkg.Name, len(defs))
	return defs, nil
}

// BundleNames returns the bundle names a setting produces without writing
// any catalog.
func (b *Builder) BundleNames(pkg *config.PackageSettings, setting config.BundleSetting) ([]string, error) {
	_, found, err := b.scanSetting(pkg, setting)
	if err != nil {
		return nil, err
	}

	var names []string
	if setting.SplitByFile {
		for _, asset := range found.assets {
			guid, err := b.project.GUID(asset)
			if err != nil {
				return nil, err
			}
			names = append(names, models.FileBundleName(setting.BundleName, asset, guid))
		}
	} else if len(found.assets) > 0 {
		names = append(names, setting.NameWithExtension())
	}
	if len(found.scenes) > 0 {
		names = append(names, models.ScenesBundleName(setting.BundleName))
	}
	return names, nil
}

func (b *Builder) scanSetting(pkg *config.PackageSettings, setting config.BundleSetting) (string, *scanResult, error) {
	folders := make([]string, 0, len(pkg.Bundles))
	for _, other := range pkg.Bundles {
		folders = append(folders, strings.TrimSuffix(other.Folder, "/"))
	}

	folder := strings.TrimSuffix(setting.Folder, "/")
	if folder == "" || !b.project.IsFolder(folder) {
		return "", nil, fmt.Errorf("bundle %s: folder %q not found", setting.BundleName, setting.Folder)
	}

	s := &scanner{
		project:     b.project,
		territories: territoriesOf(folder, folders),
		exclude:     b.patterns(folder, setting.Exclude),
	}
	found, err := s.scan(folder, setting.IncludeSubfolder)
	if err != nil {
		return "", nil, fmt.Errorf("bundle %s: failed to scan %s: %w", setting.BundleName, folder, err)
	}
	return folder, found, nil
}

func (b *Builder) patterns(folder string, settingExclude []string) []string {
	patterns := append([]string(nil), b.exclude...)
	for _, p := range settingExclude {
		patterns = append(patterns, path.Join(folder, p))
	}
	return patterns
}

func (b *Builder) definitions(setting config.BundleSetting, folder string, found *scanResult) ([]models.BundleDefinition, error) {
	var defs []models.BundleDefinition

	if setting.SplitByFile {
		for _, asset := range found.assets {
			guid, err := b.project.GUID(asset)
			if err != nil {
				return nil, err
			}
			def, err := b.withCatalog(models.FileBundleName(setting.BundleName, asset, guid), folder, []string{asset})
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	} else if len(found.assets) > 0 {
		def, err := b.withCatalog(setting.NameWithExtension(), folder, found.assets)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	} else {
		logger.Debug("BundleList: %s has no assets in %s", setting.BundleName, folder)
	}

	if len(found.scenes) > 0 {
		defs = append(defs, models.BundleDefinition{
			BundleName:       models.ScenesBundleName(setting.BundleName),
			AssetPaths:       found.scenes,
			AddressableNames: addresses(folder, found.scenes),
		})
	}
	return defs, nil
}

// withCatalog writes the path catalog of a bundle and puts it first.
func (b *Builder) withCatalog(bundleName, folder string, assets []string) (models.BundleDefinition, error) {
	cat, err := catalog.Build(b.project, assets)
	if err != nil {
		return models.BundleDefinition{}, fmt.Errorf("bundle %s: failed to build path catalog: %w", bundleName, err)
	}
	catalogPath := path.Join(b.catalogDir, bundleName+catalog.Extension)
	if err := cat.WriteFile(b.project.Abs(catalogPath)); err != nil {
		return models.BundleDefinition{}, err
	}

	return models.BundleDefinition{
		BundleName:       bundleName,
		AssetPaths:       append([]string{catalogPath}, assets...),
		AddressableNames: append([]string{models.CatalogAddress}, addresses(folder, assets)...),
	}, nil
}

// addresses are asset paths relative to the settings folder, without extension.
func addresses(folder string, assets []string) []string {
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		rel := strings.TrimPrefix(a, folder+"/")
		names = append(names, strings.TrimSuffix(rel, path.Ext(rel)))
	}
	return names
}
