// Package catalog implements the path catalog asset embedded as the first
// entry of every bundle. Packed bundles lose project identity metadata, so
// the catalog maps GUIDs and sub-asset ids back to asset paths at runtime.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/codec"
)

const Extension = ".catalog"

type Entry struct {
	Path         string `cbor:"1,keyasint" json:"path"`
	IsMainAsset  bool   `cbor:"2,keyasint" json:"isMainAsset"`
	SubAssetName string `cbor:"3,keyasint,omitempty" json:"subAssetName,omitempty"`
	GUID         string `cbor:"4,keyasint" json:"guid"`
	LocalID      int64  `cbor:"5,keyasint,omitempty" json:"localId,omitempty"`
}

type subKey struct {
	guid    string
	localID int64
}

type nameKey struct {
	path string
	name string
}

type Catalog struct {
	Entries []Entry `cbor:"1,keyasint"`

	main  map[string]int
	sub   map[subKey]int
	names map[nameKey]int
}

func New(entries []Entry) *Catalog {
	c := &Catalog{Entries: entries}
	c.index()
	return c
}

func (c *Catalog) index() {
	c.main = make(map[string]int)
	c.sub = make(map[subKey]int)
	c.names = make(map[nameKey]int)
	for i, e := range c.Entries {
		if e.IsMainAsset {
			c.main[e.GUID] = i
			continue
		}
		c.sub[subKey{e.GUID, e.LocalID}] = i
		c.names[nameKey{e.Path, e.SubAssetName}] = i
	}
}

func (c *Catalog) TryGetMainAssetPath(guid string) (string, bool) {
	i, ok := c.main[guid]
	if !ok {
		return "", false
	}
	return c.Entries[i].Path, true
}

// TryGetSubAssetPath returns the containing asset path and the sub-asset name.
func (c *Catalog) TryGetSubAssetPath(guid string, localID int64) (string, string, bool) {
	i, ok := c.sub[subKey{guid, localID}]
	if !ok {
		return "", "", false
	}
	return c.Entries[i].Path, c.Entries[i].SubAssetName, true
}

func (c *Catalog) ContainsGUID(guid string) bool {
	if _, ok := c.main[guid]; ok {
		return true
	}
	for key := range c.sub {
		if key.guid == guid {
			return true
		}
	}
	return false
}

// TryGetSubAssetID finds the GUID and local id of a named sub-asset.
func (c *Catalog) TryGetSubAssetID(assetPath, subAssetName string) (string, int64, bool) {
	i, ok := c.names[nameKey{assetPath, subAssetName}]
	if !ok {
		return "", 0, false
	}
	return c.Entries[i].GUID, c.Entries[i].LocalID, true
}

func (c *Catalog) Encode() ([]byte, error) {
	data, err := codec.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode path catalog: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (*Catalog, error) {
	var c Catalog
	if err := codec.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode path catalog: %w", err)
	}
	c.index()
	return &c, nil
}

// Source is what Build needs to know about assets.
type Source interface {
	GUID(assetPath string) (string, error)
	SubAssets(assetPath string) ([]assetdb.SubAsset, error)
}

// Build creates the catalog for a set of asset paths.
func Build(src Source, assetPaths []string) (*Catalog, error) {
	var entries []Entry
	for _, p := range assetPaths {
		guid, err := src.GUID(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: p, IsMainAsset: true, GUID: guid})

		subs, err := src.SubAssets(p)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			entries = append(entries, Entry{Path: p, SubAssetName: s.Name, GUID: guid, LocalID: s.LocalID})
		}
	}
	return New(entries), nil
}

// WriteFile encodes the catalog to filePath, creating parent directories.
func (c *Catalog) WriteFile(filePath string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog %s: %w", filePath, err)
	}
	return nil
}
