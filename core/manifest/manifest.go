// Package manifest is the persisted description of one package build: every
// bundle with its hash, size and transitive dependencies, plus a global hash
// that only changes when bundle content does.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/tristendillon/locus/core/models"
)

var ErrParse = errors.New("failed to parse manifest")

type BundleInfo struct {
	BundleName   string   `json:"bundleName" cbor:"1,keyasint"`
	Dependencies []string `json:"dependencies" cbor:"2,keyasint"`
	Hash         string   `json:"hash" cbor:"3,keyasint"`
	Size         int64    `json:"size" cbor:"4,keyasint"`
	PackageGUID  string   `json:"packageGuid" cbor:"5,keyasint"`
}

type Manifest struct {
	BuildTarget           string       `json:"buildTarget" cbor:"1,keyasint"`
	BundleInfos           []BundleInfo `json:"bundleInfos" cbor:"2,keyasint"`
	GlobalHash            string       `json:"globalHash" cbor:"3,keyasint"`
	BuildTime             int64        `json:"buildTime" cbor:"4,keyasint"`
	RemoteURL             string       `json:"remoteURL" cbor:"5,keyasint"`
	PackageName           string       `json:"packageName" cbor:"6,keyasint"`
	PackageGUID           string       `json:"packageGuid" cbor:"7,keyasint"`
	DownloadAtInitialTime bool         `json:"downloadAtInitialTime" cbor:"8,keyasint"`
}

// Header carries the fields set after the global hash is computed.
type Header struct {
	BuildTime             time.Time
	RemoteURL             string
	PackageName           string
	PackageGUID           string
	DownloadAtInitialTime bool
}

// New sorts infos by size, largest first, and computes the global hash over
// the manifest while it holds only the build target and bundle infos.
func New(buildTarget string, infos []BundleInfo) (*Manifest, error) {
	sorted := append([]BundleInfo(nil), infos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size > sorted[j].Size
		}
		return sorted[i].BundleName < sorted[j].BundleName
	})

	m := &Manifest{BuildTarget: buildTarget, BundleInfos: sorted}
	hash, err := m.computeGlobalHash()
	if err != nil {
		return nil, err
	}
	m.GlobalHash = hash
	return m, nil
}

func (m *Manifest) computeGlobalHash() (string, error) {
	payload, err := json.Marshal(struct {
		BuildTarget string       `json:"buildTarget"`
		BundleInfos []BundleInfo `json:"bundleInfos"`
	}{m.BuildTarget, m.BundleInfos})
	if err != nil {
		return "", fmt.Errorf("failed to serialize bundle infos: %w", err)
	}
	sum := blake3.Sum256(payload)
	return fmt.Sprintf("%x", sum[:16]), nil
}

func (m *Manifest) SetHeader(h Header) {
	m.BuildTime = h.BuildTime.UTC().UnixMilli()
	m.RemoteURL = h.RemoteURL
	m.PackageName = h.PackageName
	m.PackageGUID = h.PackageGUID
	m.DownloadAtInitialTime = h.DownloadAtInitialTime
}

func (m *Manifest) BuiltAt() time.Time {
	return time.UnixMilli(m.BuildTime).UTC()
}

func (m *Manifest) TryGetBundleInfo(name string) (BundleInfo, bool) {
	for _, info := range m.BundleInfos {
		if info.BundleName == name {
			return info, true
		}
	}
	return BundleInfo{}, false
}

func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, info := range m.BundleInfos {
		total += info.Size
	}
	return total
}

// Dependencies returns the bundle -> transitive dependencies map stored in
// the manifest.
func (m *Manifest) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(m.BundleInfos))
	for _, info := range m.BundleInfos {
		deps[info.BundleName] = info.Dependencies
	}
	return deps
}

// CollectSubsetBundleInfos returns the infos of names and of every bundle
// they depend on, in manifest order. Unknown names are ignored.
func (m *Manifest) CollectSubsetBundleInfos(names []string) []BundleInfo {
	deps := m.Dependencies()
	wanted := make(map[string]bool)
	for _, name := range names {
		for _, dep := range CollectBundleDependencies(deps, name, true) {
			wanted[dep] = true
		}
	}

	var subset []BundleInfo
	for _, info := range m.BundleInfos {
		if wanted[info.BundleName] {
			subset = append(subset, info)
		}
	}
	return subset
}

func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "    ")
}

// Write stores the manifest as Manifest.json under dir.
func (m *Manifest) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, models.ManifestFileName), data, 0644)
}

// Parse decodes a manifest. Comments and trailing commas are tolerated.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if m.BuildTarget == "" && m.BundleInfos == nil {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}
	for _, info := range m.BundleInfos {
		if !models.IsPathElement(info.BundleName) || !models.IsPathElement(info.Hash) {
			return nil, fmt.Errorf("%w: invalid bundle entry %q (%q)", ErrParse, info.BundleName, info.Hash)
		}
		for _, dep := range info.Dependencies {
			if !models.IsPathElement(dep) {
				return nil, fmt.Errorf("%w: bundle %s has invalid dependency %q", ErrParse, info.BundleName, dep)
			}
		}
	}
	return &m, nil
}

// Read loads a manifest file, or Manifest.json when path is a directory.
func Read(path string) (*Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, models.ManifestFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// CollectBundleDependencies returns the transitive dependencies of name.
// Names lacking the bundle extension are normalized first. Edges back to
// name are dropped, and includeSelf prepends name itself.
func CollectBundleDependencies(deps map[string][]string, name string, includeSelf bool) []string {
	name = normalize(name)
	seen := map[string]bool{}
	var out []string
	if includeSelf {
		seen[name] = true
		out = append(out, name)
	}
	collect(deps, name, name, seen, &out)
	return out
}

func collect(deps map[string][]string, name, root string, seen map[string]bool, out *[]string) {
	for _, dep := range deps[name] {
		dep = normalize(dep)
		if dep == root || seen[dep] {
			continue
		}
		seen[dep] = true
		*out = append(*out, dep)
		collect(deps, dep, root, seen, out)
	}
}

func normalize(name string) string {
	if strings.HasSuffix(name, models.BundleExtension) {
		return name
	}
	return name + models.BundleExtension
}
