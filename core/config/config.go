package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tristendillon/locus/core/logger"
	"gopkg.in/yaml.v3"
)

const FileName = "locus.yaml"

var (
	ErrMissingProfile      = errors.New("no distribution profile for platform")
	ErrDuplicateBundleName = errors.New("duplicate bundle name in package")
)

type Config struct {
	ProjectRoot            string                          `yaml:"project_root"`
	AssetsRoot             string                          `yaml:"assets_root"`
	ScratchDir             string                          `yaml:"scratch_dir"`
	DisallowCrossReference bool                            `yaml:"disallow_cross_reference"`
	Packages               []PackageEntry                  `yaml:"packages"`
	Profiles               map[string]*DistributionProfile `yaml:"profiles"`
	Exclude                []string                        `yaml:"exclude"`
}

// PackageEntry points at a package settings file. Include defaults to true.
type PackageEntry struct {
	Path    string `yaml:"path"`
	Include bool   `yaml:"include"`
}

func (e *PackageEntry) UnmarshalYAML(node *yaml.Node) error {
	type raw PackageEntry
	r := raw{Include: true}
	if err := node.Decode(&r); err != nil {
		return err
	}
	*e = PackageEntry(r)
	return nil
}

type DistributionProfile struct {
	RemoteOutputFolder string `yaml:"remote_output_folder"`
	LocalOutputFolder  string `yaml:"local_output_folder"`
	RemoteURL          string `yaml:"remote_url"`
	StreamingFolder    string `yaml:"streaming_folder"`
}

func DefaultProfile() *DistributionProfile {
	return &DistributionProfile{
		RemoteOutputFolder: "RemoteBundles",
		LocalOutputFolder:  "Assets/StreamingAssets/BuiltInAssets",
		RemoteURL:          "http://localhost/",
		StreamingFolder:    "Build/StreamingAssets",
	}
}

func (p *DistributionProfile) fillDefaults() {
	def := DefaultProfile()
	if p.RemoteOutputFolder == "" {
		p.RemoteOutputFolder = def.RemoteOutputFolder
	}
	if p.LocalOutputFolder == "" {
		p.LocalOutputFolder = def.LocalOutputFolder
	}
	if p.RemoteURL == "" {
		p.RemoteURL = def.RemoteURL
	}
	if p.StreamingFolder == "" {
		p.StreamingFolder = def.StreamingFolder
	}
}

// OutputPath is <output folder>/<package guid>/<build target>.
func (p *DistributionProfile) OutputPath(local bool, packageGUID, buildTarget string) string {
	folder := p.RemoteOutputFolder
	if local {
		folder = p.LocalOutputFolder
	}
	return filepath.Join(folder, packageGUID, buildTarget)
}

// RemoteURLFor is the base URL a package's manifest advertises.
func (p *DistributionProfile) RemoteURLFor(packageGUID string) string {
	return strings.TrimSuffix(p.RemoteURL, "/") + "/" + packageGUID
}

func Default() *Config {
	return &Config{
		AssetsRoot:             "Assets",
		ScratchDir:             "Library/locus",
		DisallowCrossReference: true,
		Profiles: map[string]*DistributionProfile{
			"android":    DefaultProfile(),
			"ios":        DefaultProfile(),
			"standalone": DefaultProfile(),
		},
	}
}

// Load reads locus.yaml from the working directory, falling back to Default.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine working dir: %w", err)
	}

	filePath := filepath.Join(wd, FileName)
	if _, err := os.Stat(filePath); err != nil {
		logger.Debug("No config file found, using default config")
		cfg := Default()
		cfg.ProjectRoot = wd
		return cfg, nil
	}
	return LoadFile(filePath)
}

func LoadFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	cfg := Default()
	cfg.Profiles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = Default().Profiles
	}
	for _, p := range cfg.Profiles {
		if p != nil {
			p.fillDefaults()
		}
	}

	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = filepath.Dir(filePath)
	} else if !filepath.IsAbs(cfg.ProjectRoot) {
		cfg.ProjectRoot = filepath.Join(filepath.Dir(filePath), cfg.ProjectRoot)
	}

	logger.Debug("Config file found: %s", filePath)
	logger.Debug("Config: %+v", *cfg)
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(filePath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}

// Profile returns the distribution profile for a platform.
func (c *Config) Profile(platform string) (*DistributionProfile, error) {
	p, ok := c.Profiles[strings.ToLower(platform)]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingProfile, platform)
	}
	return p, nil
}

// Abs resolves a project-relative path.
func (c *Config) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.ProjectRoot, rel)
}

// LoadPackages loads every package entry marked include, in declaration order.
func (c *Config) LoadPackages() ([]*PackageSettings, error) {
	var packages []*PackageSettings
	for _, entry := range c.Packages {
		if !entry.Include {
			logger.Debug("Skipping excluded package %s", entry.Path)
			continue
		}
		pkg, err := LoadPackage(c.Abs(entry.Path))
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}
