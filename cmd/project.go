package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/config"
)

func loadProject() (*config.Config, *assetdb.Database, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, assetdb.Open(cfg.ProjectRoot), nil
}

// writeReport stores a report under <scratch>/reports and returns its path.
func writeReport(cfg *config.Config, name, content string) (string, error) {
	dir := cfg.Abs(filepath.Join(cfg.ScratchDir, "reports"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", name, err)
	}
	return p, nil
}
