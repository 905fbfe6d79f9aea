package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
	"gopkg.in/yaml.v3"
)

// PackageSettings is one top-level package: a group of bundle settings that
// is built, versioned and downloaded together.
type PackageSettings struct {
	Name                    string          `yaml:"name"`
	GUID                    string          `yaml:"guid"`
	AutoCreateSharedBundles bool            `yaml:"auto_create_shared_bundles"`
	DownloadAtInitialTime   bool            `yaml:"download_at_initial_time"`
	Bundles                 []BundleSetting `yaml:"bundles"`

	// SourcePath is the settings file this package was loaded from.
	SourcePath string `yaml:"-"`
}

func (p *PackageSettings) UnmarshalYAML(node *yaml.Node) error {
	type raw PackageSettings
	r := raw{AutoCreateSharedBundles: true}
	if err := node.Decode(&r); err != nil {
		return err
	}
	*p = PackageSettings(r)
	return nil
}

// BundleSetting maps one project folder onto one or more bundles.
type BundleSetting struct {
	BundleName       string   `yaml:"bundle_name"`
	Folder           string   `yaml:"folder"`
	IncludedInPlayer bool     `yaml:"included_in_player"`
	IncludeSubfolder bool     `yaml:"include_subfolder"`
	CompressBundle   bool     `yaml:"compress_bundle"`
	SplitByFile      bool     `yaml:"split_by_file"`
	Exclude          []string `yaml:"exclude,omitempty"`
}

func (b *BundleSetting) UnmarshalYAML(node *yaml.Node) error {
	type raw BundleSetting
	r := raw{CompressBundle: true}
	if err := node.Decode(&r); err != nil {
		return err
	}
	*b = BundleSetting(r)
	return nil
}

// NameWithExtension is the bundle file name of a folder-mode setting.
func (b BundleSetting) NameWithExtension() string {
	return models.BundleNameWithExtension(b.BundleName)
}

func LoadPackage(filePath string) (*PackageSettings, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package settings %s: %w", filePath, err)
	}

	var pkg PackageSettings
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	pkg.SourcePath = filePath

	if pkg.Name == "" {
		return nil, fmt.Errorf("package settings %s has no name", filePath)
	}
	if pkg.GUID == "" {
		pkg.GUID = PackageGUID(pkg.Name)
		logger.Warn("Package %s has no guid, derived %s from its name", pkg.Name, pkg.GUID)
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// PackageGUID derives a stable guid from a package name.
func PackageGUID(name string) string {
	return strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte("locus-package:"+name)).String(), "-", "")
}

// Validate rejects settings that cannot produce a build.
func (p *PackageSettings) Validate() error {
	seen := make(map[string]bool)
	var duplicates []string
	for i, b := range p.Bundles {
		if b.BundleName == "" {
			return fmt.Errorf("package %s: bundle setting %d has no bundle_name", p.Name, i)
		}
		name := b.NameWithExtension()
		if seen[name] {
			duplicates = append(duplicates, name)
		}
		seen[name] = true
	}
	if len(duplicates) > 0 {
		return fmt.Errorf("%w %s: %s", ErrDuplicateBundleName, p.Name, strings.Join(duplicates, ", "))
	}
	return nil
}

// Save writes the package settings as YAML.
func (p *PackageSettings) Save(filePath string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal package settings: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write package settings %s: %w", filePath, err)
	}
	return nil
}
