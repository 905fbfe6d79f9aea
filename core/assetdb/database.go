package assetdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
	"gopkg.in/yaml.v3"
)

const MetaExtension = ".meta"

// Meta is the optional YAML sidecar stored next to an asset as <asset>.meta.
type Meta struct {
	GUID           string     `yaml:"guid"`
	Type           string     `yaml:"type,omitempty"`
	Dependencies   []string   `yaml:"dependencies,omitempty"`
	InlinedPrefabs []string   `yaml:"inlined_prefabs,omitempty"`
	SubAssets      []SubAsset `yaml:"sub_assets,omitempty"`
}

type SubAsset struct {
	Name    string `yaml:"name"`
	LocalID int64  `yaml:"local_id"`
}

// Database is the filesystem AssetGraph. Asset paths are slash-separated and
// relative to the project root, e.g. "Assets/UI/button.prefab".
type Database struct {
	root    string
	mu      sync.RWMutex
	metas   map[string]*Meta
	content *ContentCache
}

func Open(root string) *Database {
	return &Database{
		root:    root,
		metas:   make(map[string]*Meta),
		content: NewContentCache(),
	}
}

func (d *Database) Root() string {
	return d.root
}

// Abs converts an asset path to a filesystem path.
func (d *Database) Abs(assetPath string) string {
	return filepath.Join(d.root, filepath.FromSlash(assetPath))
}

// Rel converts a filesystem path back to an asset path.
func (d *Database) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(d.root, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", absPath, err)
	}
	return filepath.ToSlash(rel), nil
}

func (d *Database) Exists(assetPath string) bool {
	_, err := os.Stat(d.Abs(assetPath))
	return err == nil
}

func (d *Database) IsFolder(assetPath string) bool {
	stat, err := os.Stat(d.Abs(assetPath))
	return err == nil && stat.IsDir()
}

// Meta returns the sidecar of an asset. Assets without one get an empty Meta
// carrying their path GUID.
func (d *Database) Meta(assetPath string) (*Meta, error) {
	d.mu.RLock()
	meta, ok := d.metas[assetPath]
	d.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta = &Meta{}
	data, err := os.ReadFile(d.Abs(assetPath) + MetaExtension)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read meta of %s: %w", assetPath, err)
	default:
		if err := yaml.Unmarshal(data, meta); err != nil {
			return nil, fmt.Errorf("failed to parse meta of %s: %w", assetPath, err)
		}
	}
	if meta.GUID == "" {
		meta.GUID = PathGUID(assetPath)
	}

	d.mu.Lock()
	d.metas[assetPath] = meta
	d.mu.Unlock()
	return meta, nil
}

// Invalidate drops cached state for an asset or its sidecar.
func (d *Database) Invalidate(assetPath string) {
	assetPath = strings.TrimSuffix(assetPath, MetaExtension)
	d.mu.Lock()
	delete(d.metas, assetPath)
	d.mu.Unlock()
	d.content.Remove(d.Abs(assetPath))
	d.content.Remove(d.Abs(assetPath) + MetaExtension)
}

func (d *Database) DirectDependencies(assetPath string) ([]string, error) {
	meta, err := d.Meta(assetPath)
	if err != nil {
		return nil, err
	}
	deps := make([]string, 0, len(meta.Dependencies))
	for _, dep := range meta.Dependencies {
		if !d.Exists(dep) {
			logger.Warn("AssetDatabase: %s references missing asset %s", assetPath, dep)
			continue
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func (d *Database) InlinedPrefabs(scenePath string) ([]string, error) {
	meta, err := d.Meta(scenePath)
	if err != nil {
		return nil, err
	}
	return meta.InlinedPrefabs, nil
}

func (d *Database) SubAssets(assetPath string) ([]SubAsset, error) {
	meta, err := d.Meta(assetPath)
	if err != nil {
		return nil, err
	}
	return meta.SubAssets, nil
}

func (d *Database) Type(assetPath string) models.AssetType {
	if strings.HasSuffix(assetPath, MetaExtension) {
		return models.TypeMeta
	}
	if d.IsFolder(assetPath) {
		return models.TypeFolder
	}
	if meta, err := d.Meta(assetPath); err == nil && meta.Type != "" {
		if t, ok := models.ParseAssetType(meta.Type); ok {
			return t
		}
		logger.Warn("AssetDatabase: unknown type %q in meta of %s", meta.Type, assetPath)
	}
	t := models.TypeFromPath(assetPath)
	if t == models.TypeFolder {
		return models.TypeOther
	}
	return t
}

func (d *Database) GUID(assetPath string) (string, error) {
	meta, err := d.Meta(assetPath)
	if err != nil {
		return "", err
	}
	return meta.GUID, nil
}

func (d *Database) ReadAsset(assetPath string) ([]byte, error) {
	data, err := os.ReadFile(d.Abs(assetPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", assetPath, err)
	}
	return data, nil
}

// ContentHash is the blake3 hash of the asset file and its sidecar.
func (d *Database) ContentHash(assetPath string) (string, error) {
	hash, err := d.content.Hash(d.Abs(assetPath))
	if err != nil {
		return "", err
	}
	metaPath := d.Abs(assetPath) + MetaExtension
	if _, err := os.Stat(metaPath); err == nil {
		metaHash, err := d.content.Hash(metaPath)
		if err != nil {
			return "", err
		}
		hash += metaHash
	}
	return hash, nil
}

func (d *Database) ContentStats() ContentStats {
	return d.content.Stats()
}
