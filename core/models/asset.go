package models

import (
	"path"
	"strings"
)

// AssetType is the coarse classification the pipeline needs to decide
// bundlability and the scene code path.
type AssetType int

const (
	TypeOther AssetType = iota
	TypeScene
	TypePrefab
	TypeScript
	TypeFolder
	TypeMeta
	TypeCatalog
)

func (t AssetType) String() string {
	switch t {
	case TypeScene:
		return "scene"
	case TypePrefab:
		return "prefab"
	case TypeScript:
		return "script"
	case TypeFolder:
		return "folder"
	case TypeMeta:
		return "meta"
	case TypeCatalog:
		return "catalog"
	default:
		return "other"
	}
}

// ParseAssetType maps the `type` field of a meta sidecar back to an AssetType.
func ParseAssetType(s string) (AssetType, bool) {
	for t := TypeOther; t <= TypeCatalog; t++ {
		if t.String() == strings.ToLower(s) {
			return t, true
		}
	}
	return TypeOther, false
}

// Bundlable reports whether assets of this type may be placed in a bundle.
func (t AssetType) Bundlable() bool {
	switch t {
	case TypeScript, TypeFolder, TypeMeta:
		return false
	default:
		return true
	}
}

var extensionTypes = map[string]AssetType{
	".unity":   TypeScene,
	".scene":   TypeScene,
	".prefab":  TypePrefab,
	".cs":      TypeScript,
	".go":      TypeScript,
	".js":      TypeScript,
	".dll":     TypeScript,
	".meta":    TypeMeta,
	".catalog": TypeCatalog,
}

// TypeFromPath classifies an asset path by its extension.
func TypeFromPath(assetPath string) AssetType {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(assetPath))]; ok {
		return t
	}
	if path.Ext(assetPath) == "" {
		return TypeFolder
	}
	return TypeOther
}

// NameWithoutExtension returns the file name of an asset path without its extension.
func NameWithoutExtension(assetPath string) string {
	base := path.Base(assetPath)
	return strings.TrimSuffix(base, path.Ext(base))
}
