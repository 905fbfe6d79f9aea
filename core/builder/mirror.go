package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

// StreamingMirror copies local build outputs into the streaming folder the
// player ships with.
type StreamingMirror struct {
	root   string
	copied map[string][]string
}

func NewStreamingMirror(streamingRoot string) *StreamingMirror {
	return &StreamingMirror{root: streamingRoot, copied: make(map[string][]string)}
}

func (m *StreamingMirror) PackageDir(packageGUID string) string {
	return filepath.Join(m.root, models.LocalBundlesFolder, packageGUID)
}

// Mirror replaces <root>/localbundles/<guid> with the files of outputDir.
func (m *StreamingMirror) Mirror(packageGUID, outputDir string) ([]string, error) {
	targetDir := m.PackageDir(packageGUID)
	if err := os.RemoveAll(targetDir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", targetDir, err)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target directory %s: %w", targetDir, err)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == models.BuildLogFileName {
			continue
		}
		source := filepath.Join(outputDir, entry.Name())
		target := filepath.Join(targetDir, entry.Name())
		if err := copyFile(source, target); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", entry.Name(), err)
		}
		files = append(files, target)
	}

	m.copied[packageGUID] = files
	logger.Debug("Mirror: Copied %d files for package %s to %s", len(files), packageGUID, targetDir)
	return files, nil
}

// WritePackageList rewrites <root>/asset_bundle_groups with every package
// that has a local manifest under the streaming root.
func (m *StreamingMirror) WritePackageList() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, models.LocalBundlesFolder))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var guids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.PackageDir(entry.Name()), models.ManifestFileName)); err == nil {
			guids = append(guids, entry.Name())
		}
	}
	sort.Strings(guids)

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, err
	}
	if err := config.WritePackageList(filepath.Join(m.root, config.PackageListFileName), guids); err != nil {
		return nil, err
	}
	return guids, nil
}

// Copied returns the files mirrored per package during this run.
func (m *StreamingMirror) Copied() map[string][]string {
	return m.copied
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
