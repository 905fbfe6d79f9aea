/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tristendillon/locus/core/builder"
	"github.com/tristendillon/locus/core/logger"
)

var (
	buildTarget      string
	buildType        string
	buildIncremental bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Builds the bundles of every package",
	Long: `Builds local and/or remote bundles for a target platform, writes their
manifests and build logs, and mirrors local bundles into the streaming folder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Debug("build called")
		types, err := builder.ParseBuildTypes(buildType)
		if err != nil {
			return err
		}
		cfg, db, err := loadProject()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		o := builder.NewForDatabase(cfg, db)
		o.OnStateChange(func(from, to builder.State) {
			logger.Debug("Builder: %s -> %s", from, to)
		})
		report, err := o.Build(ctx, builder.Options{
			Target:      buildTarget,
			Types:       types,
			Incremental: buildIncremental,
		})
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		for _, b := range report.Builds {
			fmt.Printf("%-8s %-24s %3d bundles %10s  %s\n",
				b.Type, b.Package.Name, len(b.Manifest.BundleInfos),
				humanize.Bytes(uint64(b.Manifest.TotalSize())), b.OutputPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&buildTarget, "target", "android", "Target platform profile")
	buildCmd.Flags().StringVar(&buildType, "type", "both", "Build type: local, remote or both")
	buildCmd.Flags().BoolVar(&buildIncremental, "incremental", true, "Reuse unchanged bundle files")
}
