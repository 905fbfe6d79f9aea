/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/logger"
)

var (
	force       bool
	packageName string
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new Locus project",
	Long:  `Creates locus.yaml and a first package settings file.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("init called")
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		configPath := filepath.Join(dir, config.FileName)
		if _, err := os.Stat(configPath); err == nil && !force {
			fmt.Printf("%s already exists. Use --force to overwrite.\n", configPath)
			return nil
		}

		name := strings.ToLower(packageName)
		pkgRel := filepath.ToSlash(filepath.Join("Packages", name+".package.yaml"))
		folder := "Assets/" + packageName

		cfg := config.Default()
		cfg.Packages = []config.PackageEntry{{Path: pkgRel, Include: true}}
		cfg.Exclude = []string{"**/*.tmp"}

		pkg := &config.PackageSettings{
			Name:                    packageName,
			GUID:                    strings.ReplaceAll(uuid.NewString(), "-", ""),
			AutoCreateSharedBundles: true,
			Bundles: []config.BundleSetting{{
				BundleName:       name,
				Folder:           folder,
				IncludedInPlayer: true,
				IncludeSubfolder: true,
				CompressBundle:   true,
			}},
		}

		for _, d := range []string{dir, filepath.Join(dir, "Packages"), filepath.Join(dir, filepath.FromSlash(folder))} {
			if err := os.MkdirAll(d, os.ModePerm); err != nil {
				return fmt.Errorf("failed to create %s: %w", d, err)
			}
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		if err := pkg.Save(filepath.Join(dir, filepath.FromSlash(pkgRel))); err != nil {
			return err
		}

		fmt.Printf("Successfully initialized project: %s\n", dir)
		fmt.Printf("Next Steps:\n")
		fmt.Printf("  - put assets under %s\n", folder)
		fmt.Printf("  - locus build --target android\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&force, "force", false, "Force overwrite existing files")
	initCmd.Flags().StringVar(&packageName, "package", "Main", "Name of the first package")
}
