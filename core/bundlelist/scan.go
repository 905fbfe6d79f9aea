package bundlelist

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

// scanner enumerates the bundlable files of one settings folder.
type scanner struct {
	project Project
	// territories are subfolders owned by other settings of the same package.
	territories []string
	// exclude holds doublestar patterns matched against the asset path.
	exclude []string
}

type scanResult struct {
	assets []string
	scenes []string
}

func (s *scanner) scan(folder string, includeSubfolder bool) (*scanResult, error) {
	result := &scanResult{}
	if err := s.walk(folder, includeSubfolder, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *scanner) walk(folder string, includeSubfolder bool, result *scanResult) error {
	entries, err := os.ReadDir(s.project.Abs(folder))
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var subfolders []string
	for _, entry := range entries {
		assetPath := path.Join(folder, entry.Name())
		if s.excluded(assetPath) {
			logger.Debug("BundleList: Excluding %s", assetPath)
			continue
		}
		if entry.IsDir() {
			subfolders = append(subfolders, assetPath)
			continue
		}

		switch t := s.project.Type(assetPath); {
		case !t.Bundlable(), t == models.TypeCatalog:
			continue
		case t == models.TypeScene:
			result.scenes = append(result.scenes, assetPath)
		default:
			result.assets = append(result.assets, assetPath)
		}
	}

	if !includeSubfolder {
		return nil
	}
	for _, sub := range subfolders {
		if s.isTerritory(sub) {
			logger.Debug("BundleList: %s belongs to another bundle setting", sub)
			continue
		}
		if err := s.walk(sub, includeSubfolder, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) isTerritory(folder string) bool {
	for _, t := range s.territories {
		if t == folder {
			return true
		}
	}
	return false
}

func (s *scanner) excluded(assetPath string) bool {
	for _, pattern := range s.exclude {
		if ok, err := doublestar.Match(pattern, assetPath); err == nil && ok {
			return true
		}
	}
	return false
}

// territoriesOf returns the folders of other settings nested under folder.
func territoriesOf(folder string, all []string) []string {
	var nested []string
	for _, other := range all {
		if other != folder && strings.HasPrefix(other, folder+"/") {
			nested = append(nested, other)
		}
	}
	return nested
}
