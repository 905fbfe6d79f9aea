package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// PackageListFileName is the file, next to the local bundles, that lists the
// packages shipped inside the player.
const PackageListFileName = "asset_bundle_groups"

// ReadPackageList reads the package guid list. Comments are allowed.
func ReadPackageList(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package list %s: %w", filePath, err)
	}
	return ParsePackageList(data)
}

func ParsePackageList(data []byte) ([]string, error) {
	var guids []string
	if err := json.Unmarshal(jsonc.ToJSON(data), &guids); err != nil {
		return nil, fmt.Errorf("failed to parse package list: %w", err)
	}
	return guids, nil
}

func WritePackageList(filePath string, guids []string) error {
	if guids == nil {
		guids = []string{}
	}
	data, err := json.MarshalIndent(guids, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal package list: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write package list %s: %w", filePath, err)
	}
	return nil
}
